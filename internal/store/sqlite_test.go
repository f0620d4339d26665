package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/headline-goat/splitgoat/internal/experiment"
	"github.com/headline-goat/splitgoat/internal/store"
)

func setupTestDB(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func float(v float64) *float64 { return &v }

func conversion(id, experimentID, userID string, at time.Time) experiment.Conversion {
	return experiment.Conversion{
		ID:           id,
		ExperimentID: experimentID,
		UserID:       userID,
		Variant:      experiment.VariantA,
		EventType:    experiment.DefaultEventType,
		ConvertedAt:  at,
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 2; i++ {
		s, err := store.OpenSQLite(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		s.Close()
	}
}

func TestSaveConversion_RoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	at := time.UnixMilli(1700000000123)
	c := conversion("hero:alice:1700000000123:abcd1234", "hero", "alice", at)
	c.EventType = "purchase"
	c.EventValue = float(19.99)
	c.Metadata = map[string]any{"plan": "pro", "seats": float64(3)}

	if err := s.SaveConversion(ctx, c); err != nil {
		t.Fatalf("failed to save conversion: %v", err)
	}

	got, err := s.ListConversions(ctx, "hero")
	if err != nil {
		t.Fatalf("failed to list conversions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d conversions, want 1", len(got))
	}
	if diff := cmp.Diff(c, got[0]); diff != "" {
		t.Errorf("conversion mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveConversion_NullableFields(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if err := s.SaveConversion(ctx, conversion("c1", "hero", "alice", time.UnixMilli(1))); err != nil {
		t.Fatalf("failed to save conversion: %v", err)
	}

	got, err := s.ListConversions(ctx, "hero")
	if err != nil {
		t.Fatalf("failed to list conversions: %v", err)
	}
	if got[0].EventValue != nil {
		t.Errorf("expected nil event value, got %v", *got[0].EventValue)
	}
	if got[0].Metadata != nil {
		t.Errorf("expected nil metadata, got %v", got[0].Metadata)
	}
}

func TestSaveConversion_DuplicateIDIgnored(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	c := conversion("dup", "hero", "alice", time.UnixMilli(1))
	for i := 0; i < 3; i++ {
		if err := s.SaveConversion(ctx, c); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	n, err := s.CountConversions(ctx, "hero")
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d conversions, want 1", n)
	}
}

func TestListConversions_FiltersAndOrders(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_ = s.SaveConversion(ctx, conversion("b", "hero", "bob", time.UnixMilli(20)))
	_ = s.SaveConversion(ctx, conversion("a", "hero", "alice", time.UnixMilli(10)))
	_ = s.SaveConversion(ctx, conversion("x", "pricing", "carol", time.UnixMilli(5)))

	got, err := s.ListConversions(ctx, "hero")
	if err != nil {
		t.Fatalf("failed to list conversions: %v", err)
	}

	var ids []string
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestListConversions_Empty(t *testing.T) {
	s := setupTestDB(t)

	got, err := s.ListConversions(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d conversions, want 0", len(got))
	}
}

func TestSaveConversion_Concurrent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "c" + string(rune('A'+i%26)) + string(rune('a'+i/26))
			if err := s.SaveConversion(ctx, conversion(id, "hero", "alice", time.UnixMilli(int64(i)))); err != nil {
				t.Errorf("save %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	n, _ := s.CountConversions(ctx, "hero")
	if n != 50 {
		t.Errorf("got %d conversions, want 50", n)
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer s.Close()

	if err := s.Ping(ctx); err != nil {
		t.Errorf("ping failed: %v", err)
	}

	if _, err := store.Open(ctx, "mongodb", "x"); !errors.Is(err, store.ErrUnknownDriver) {
		t.Errorf("got %v, want ErrUnknownDriver", err)
	}
}
