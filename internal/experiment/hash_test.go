package experiment_test

import (
	"testing"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

func TestBucket_ReferenceValues(t *testing.T) {
	tests := []struct {
		experimentID string
		userID       string
		want         int
	}{
		{"", "", 0},
		{"", "a", 97},
		{"b", "a", 5},
		{"exp1", "user-1", 39},
		{"exp1", "user-2", 60},
		{"exp1", "user-3", 81},
		{"checkout", "alice", 62},
		// negative 32-bit hashes
		{"pricing", "visitor-42", 7},
		{"exp", "u10", 39},
	}

	for _, tt := range tests {
		got := experiment.Bucket(tt.experimentID, tt.userID)
		if got != tt.want {
			t.Errorf("Bucket(%q, %q) = %d, want %d", tt.experimentID, tt.userID, got, tt.want)
		}
	}
}

func TestBucket_Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		b := experiment.Bucket("range", string(rune('a'+i%26))+string(rune(i)))
		if b < 0 || b > 99 {
			t.Fatalf("bucket %d out of range", b)
		}
	}
}

func TestBucket_OrderSensitive(t *testing.T) {
	// userID is hashed before experimentID
	if experiment.Bucket("a", "b") == experiment.Bucket("b", "a") {
		t.Error("expected swapped inputs to hash differently")
	}
}
