// Package redisstore shares sticky assignments between instances through
// Redis, so every node hands a user the same variant.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

const DefaultKeyPrefix = "splitgoat:"

// Assignments implements experiment.AssignmentStore with one Redis hash per
// experiment, keyed by user id.
type Assignments struct {
	rdb    goredis.UniversalClient
	prefix string
}

type record struct {
	Variant    experiment.Variant `json:"variant"`
	AssignedAt int64              `json:"assigned_at"`
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient, prefix string) *Assignments {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Assignments{rdb: rdb, prefix: prefix}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, prefix string) (*Assignments, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return New(rdb, prefix), nil
}

func (a *Assignments) Close() error {
	return a.rdb.Close()
}

func (a *Assignments) key(experimentID string) string {
	return a.prefix + "assign:" + experimentID
}

func (a *Assignments) Get(ctx context.Context, experimentID, userID string) (experiment.UserVariant, bool, error) {
	raw, err := a.rdb.HGet(ctx, a.key(experimentID), userID).Result()
	if errors.Is(err, goredis.Nil) {
		return experiment.UserVariant{}, false, nil
	}
	if err != nil {
		return experiment.UserVariant{}, false, fmt.Errorf("redis hget: %w", err)
	}

	uv, err := decode(experimentID, userID, raw)
	if err != nil {
		return experiment.UserVariant{}, false, err
	}
	return uv, true, nil
}

// PutIfAbsent uses HSETNX so the first instance to assign a user wins.
func (a *Assignments) PutIfAbsent(ctx context.Context, uv experiment.UserVariant) (experiment.UserVariant, error) {
	raw, err := json.Marshal(record{Variant: uv.Variant, AssignedAt: uv.AssignedAt.UnixMilli()})
	if err != nil {
		return experiment.UserVariant{}, fmt.Errorf("failed to marshal assignment: %w", err)
	}

	key := a.key(uv.ExperimentID)
	set, err := a.rdb.HSetNX(ctx, key, uv.UserID, raw).Result()
	if err != nil {
		return experiment.UserVariant{}, fmt.Errorf("redis hsetnx: %w", err)
	}
	if set {
		return uv, nil
	}

	existing, ok, err := a.Get(ctx, uv.ExperimentID, uv.UserID)
	if err != nil {
		return experiment.UserVariant{}, err
	}
	if !ok {
		return experiment.UserVariant{}, fmt.Errorf("assignment for %s vanished after hsetnx", uv.UserID)
	}
	return existing, nil
}

func (a *Assignments) List(ctx context.Context, experimentID string) ([]experiment.UserVariant, error) {
	all, err := a.rdb.HGetAll(ctx, a.key(experimentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	out := make([]experiment.UserVariant, 0, len(all))
	for userID, raw := range all {
		uv, err := decode(experimentID, userID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, uv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func decode(experimentID, userID, raw string) (experiment.UserVariant, error) {
	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return experiment.UserVariant{}, fmt.Errorf("bad assignment payload for %s: %w", userID, err)
	}
	return experiment.UserVariant{
		ExperimentID: experimentID,
		UserID:       userID,
		Variant:      r.Variant,
		AssignedAt:   time.UnixMilli(r.AssignedAt),
	}, nil
}
