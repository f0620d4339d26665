package redisstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/headline-goat/splitgoat/internal/experiment"
	"github.com/headline-goat/splitgoat/internal/redisstore"
)

func dial(t *testing.T) *redisstore.Assignments {
	t.Helper()

	addr := os.Getenv("SG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SG_TEST_REDIS_ADDR not set")
	}

	prefix := fmt.Sprintf("splitgoat-test-%d:", time.Now().UnixNano())
	a, err := redisstore.Dial(context.Background(), addr, prefix)
	if err != nil {
		t.Fatalf("failed to dial redis: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAssignments_FirstWriterWins(t *testing.T) {
	a := dial(t)
	ctx := context.Background()

	first := experiment.UserVariant{ExperimentID: "hero", UserID: "alice", Variant: experiment.VariantA, AssignedAt: time.UnixMilli(1000)}
	second := experiment.UserVariant{ExperimentID: "hero", UserID: "alice", Variant: experiment.Control, AssignedAt: time.UnixMilli(2000)}

	if _, err := a.PutIfAbsent(ctx, first); err != nil {
		t.Fatalf("first put: %v", err)
	}
	got, err := a.PutIfAbsent(ctx, second)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if got.Variant != experiment.VariantA {
		t.Errorf("got %s, want variant_a from the first writer", got.Variant)
	}

	uv, ok, err := a.Get(ctx, "hero", "alice")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !uv.AssignedAt.Equal(time.UnixMilli(1000)) {
		t.Errorf("got assigned_at %v, want first writer's timestamp", uv.AssignedAt)
	}
}

func TestAssignments_GetMissing(t *testing.T) {
	a := dial(t)

	_, ok, err := a.Get(context.Background(), "hero", "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no assignment")
	}
}

func TestAssignments_SharedAcrossEngines(t *testing.T) {
	a := dial(t)
	ctx := context.Background()

	// Two instances with separate registries share the Redis assignments
	regA := experiment.NewRegistry()
	regB := experiment.NewRegistry()
	regA.GetOrCreate("hero", &experiment.Config{TrafficAllocation: map[experiment.Variant]int{experiment.VariantA: 100}})
	regB.GetOrCreate("hero", &experiment.Config{TrafficAllocation: map[experiment.Variant]int{experiment.Control: 100}})

	engineA := experiment.NewEngine(regA, a)
	engineB := experiment.NewEngine(regB, a)

	if got := engineA.GetVariant(ctx, "hero", "alice"); got != experiment.VariantA {
		t.Fatalf("instance A: got %s, want variant_a", got)
	}
	if got := engineB.GetVariant(ctx, "hero", "alice"); got != experiment.VariantA {
		t.Errorf("instance B: got %s, want the shared variant_a", got)
	}

	list, err := a.List(ctx, "hero")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d assignments, want 1", len(list))
	}
}
