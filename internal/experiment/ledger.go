package experiment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mirror durably stores conversions. Writes are best effort.
type Mirror interface {
	SaveConversion(ctx context.Context, c Conversion) error
}

// Ledger records conversions in memory and mirrors them asynchronously.
type Ledger struct {
	registry    *Registry
	assignments AssignmentStore
	mirror      Mirror
	opts        options

	mu          sync.RWMutex
	conversions []Conversion
	closed      bool

	inflight sync.WaitGroup
}

// NewLedger creates a ledger. mirror may be nil to keep conversions in
// memory only.
func NewLedger(registry *Registry, assignments AssignmentStore, mirror Mirror, opts ...Option) *Ledger {
	return &Ledger{
		registry:    registry,
		assignments: assignments,
		mirror:      mirror,
		opts:        buildOptions(opts),
	}
}

// TrackConversion appends a conversion and returns without waiting for the
// mirror. variant is trusted as given.
func (l *Ledger) TrackConversion(experimentID, userID string, variant Variant, ev Event) Conversion {
	now := l.opts.now()
	eventType := ev.EventType
	if eventType == "" {
		eventType = DefaultEventType
	}

	c := Conversion{
		ID:           conversionID(experimentID, userID, now.UnixMilli()),
		ExperimentID: experimentID,
		UserID:       userID,
		Variant:      variant,
		EventType:    eventType,
		EventValue:   ev.Value,
		Metadata:     ev.Metadata,
		ConvertedAt:  now,
	}

	l.mu.Lock()
	l.conversions = append(l.conversions, c)
	mirrored := l.mirror != nil && !l.closed
	if mirrored {
		// Add under the lock so it never races Close's Wait
		l.inflight.Add(1)
	}
	l.mu.Unlock()

	l.opts.rec.Converted(c)

	if mirrored {
		go l.persist(c)
	} else if l.mirror != nil {
		l.opts.log.Warn("Ledger closed, conversion kept in memory only",
			zap.String("conversion_id", c.ID),
			zap.String("experiment_id", c.ExperimentID))
		l.opts.rec.MirrorFailed(c.ExperimentID)
	}

	return c
}

// conversionID keeps the experimentID:userID:millis prefix and appends a
// random suffix so repeated events within one millisecond stay distinct.
func conversionID(experimentID, userID string, millis int64) string {
	return fmt.Sprintf("%s:%s:%d:%s", experimentID, userID, millis, uuid.NewString()[:8])
}

func (l *Ledger) persist(c Conversion) {
	defer l.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), l.opts.mirrorTimeout)
	defer cancel()

	if err := l.mirror.SaveConversion(ctx, c); err != nil {
		l.opts.log.Warn("Failed to mirror conversion",
			zap.String("conversion_id", c.ID),
			zap.String("experiment_id", c.ExperimentID),
			zap.Error(err))
		l.opts.rec.MirrorFailed(c.ExperimentID)
	}
}

// Close waits for in-flight mirror writes. Conversions tracked afterwards
// are still recorded in memory but no longer mirrored. Close may be called
// more than once.
func (l *Ledger) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.inflight.Wait()
}

// Conversions returns the conversions recorded for one experiment, oldest
// first.
func (l *Ledger) Conversions(experimentID string) []Conversion {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Conversion
	for _, c := range l.conversions {
		if c.ExperimentID == experimentID {
			out = append(out, c)
		}
	}
	return out
}

// Results aggregates conversions per variant. Only variants with at least
// one recorded assignment appear. Repeat conversions by the same user count
// once toward Conversions but every event adds to TotalValue.
func (l *Ledger) Results(ctx context.Context, experimentID string) (Results, error) {
	res := Results{Variants: make(map[Variant]VariantStats)}
	if exp, ok := l.registry.Lookup(experimentID); ok {
		res.Experiment = &exp
	}

	assigned, err := l.assignments.List(ctx, experimentID)
	if err != nil {
		return Results{}, fmt.Errorf("failed to list assignments: %w", err)
	}

	conversions := l.Conversions(experimentID)
	res.TotalConversions = len(conversions)

	users := make(map[Variant]map[string]struct{})
	for _, uv := range assigned {
		if users[uv.Variant] == nil {
			users[uv.Variant] = make(map[string]struct{})
		}
		users[uv.Variant][uv.UserID] = struct{}{}
	}

	for variant, members := range users {
		converters := make(map[string]struct{})
		var total float64
		for _, c := range conversions {
			if c.Variant != variant {
				continue
			}
			converters[c.UserID] = struct{}{}
			if c.EventValue != nil {
				total += *c.EventValue
			}
		}

		st := VariantStats{
			Users:       len(members),
			Conversions: len(converters),
			TotalValue:  total,
		}
		if st.Users > 0 {
			st.ConversionRate = float64(st.Conversions) / float64(st.Users) * 100
		}
		if st.Conversions > 0 {
			st.AverageValue = st.TotalValue / float64(st.Conversions)
		}
		res.Variants[variant] = st
	}

	return res, nil
}
