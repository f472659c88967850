package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestIsReciprocal(t *testing.T) {
	tests := []struct {
		name      string
		aToB      int64
		bToA      int64
		want      bool
	}{
		{"no activity", 0, 0, false},
		{"one-directional burst", 3, 0, false},
		{"reciprocal below threshold", 1, 1, false},
		{"reciprocal at threshold", 2, 1, true},
		{"reciprocal at threshold reversed", 1, 2, true},
		{"heavy reciprocal", 10, 10, true},
		{"single exchange each way plus one", 1, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReciprocal(tt.aToB, tt.bToA, 3))
		})
	}
}

// TestOneDirectionalNeverSuspiciousProperty checks that generosity in a
// single direction never trips the detector, regardless of volume.
func TestOneDirectionalNeverSuspiciousProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.Int64Range(0, 1_000_000).Draw(t, "count")
		threshold := rapid.Int64Range(1, 100).Draw(t, "threshold")

		if IsReciprocal(count, 0, threshold) {
			t.Fatalf("one-directional %d transfers flagged as reciprocal", count)
		}
		if IsReciprocal(0, count, threshold) {
			t.Fatalf("one-directional %d transfers flagged as reciprocal (reverse)", count)
		}
	})
}

// TestReciprocalThresholdProperty checks the predicate against its
// definition for arbitrary directional counts.
func TestReciprocalThresholdProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		aToB := rapid.Int64Range(0, 1000).Draw(t, "aToB")
		bToA := rapid.Int64Range(0, 1000).Draw(t, "bToA")
		threshold := rapid.Int64Range(1, 50).Draw(t, "threshold")

		want := aToB > 0 && bToA > 0 && aToB+bToA >= threshold
		if got := IsReciprocal(aToB, bToA, threshold); got != want {
			t.Fatalf("IsReciprocal(%d, %d, %d) = %v, want %v", aToB, bToA, threshold, got, want)
		}
	})
}
