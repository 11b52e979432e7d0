package math_test

import (
	"testing"

	bps "VaultAccountant/internal/math"
)

func TestShareOf(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		bps    int64
		want   int64
	}{
		{"zero amount", 0, 5000, 0},
		{"zero bps", 1000, 0, 0},
		{"negative amount", -100, 5000, 0},
		{"negative bps", 1000, -1, 0},
		{"half", 1000, 5000, 500},
		{"full", 1000, 10_000, 1000},
		{"ten percent", 500, 1000, 50},
		{"one bp", 10_000, 1, 1},
		{"truncates toward zero", 999, 1, 0},
		{"truncates not rounds", 15, 1000, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := bps.ShareOf(tc.amount, tc.bps); got != tc.want {
				t.Fatalf("ShareOf(%d, %d) = %d, want %d", tc.amount, tc.bps, got, tc.want)
			}
		})
	}
}

func TestShareOf_LargeAmounts(t *testing.T) {
	const maxInt64 = int64(1<<63 - 1)

	// The product overflows int64; the big.Int path must stay exact.
	got := bps.ShareOf(maxInt64, 10_000)
	if got != maxInt64 {
		t.Fatalf("ShareOf(max, 10000) = %d, want %d", got, maxInt64)
	}

	got = bps.ShareOf(maxInt64, 1)
	if got != maxInt64/10_000 {
		t.Fatalf("ShareOf(max, 1) = %d, want %d", got, maxInt64/10_000)
	}

	// A quotient beyond int64 saturates instead of wrapping.
	got = bps.ShareOf(maxInt64, 20_000)
	if got != maxInt64 {
		t.Fatalf("ShareOf(max, 20000) = %d, want %d", got, maxInt64)
	}
}

func TestWithinBound(t *testing.T) {
	// 10% of 500 debt allows deltas up to 50.
	if !bps.WithinBound(50, 500, 1000) {
		t.Fatal("delta at the bound should pass")
	}
	if bps.WithinBound(51, 500, 1000) {
		t.Fatal("delta over the bound should fail")
	}
	if !bps.WithinBound(0, 500, 1000) {
		t.Fatal("zero delta always passes")
	}
	// Zero bps forbids any positive delta.
	if bps.WithinBound(1, 500, 0) {
		t.Fatal("positive delta with zero bps should fail")
	}
	// Zero debt with a positive bound still forbids any delta.
	if bps.WithinBound(1, 0, 10_000) {
		t.Fatal("positive delta with zero debt should fail")
	}
}
