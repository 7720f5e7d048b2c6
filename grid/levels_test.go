package grid

import (
	"math"
	"testing"

	"gridbot/exchange"
)

func TestArithmeticLevels(t *testing.T) {
	tests := []struct {
		name   string
		lower  float64
		upper  float64
		n      int
		wantOK bool
	}{
		{"basic range", 45, 55, 10, true},
		{"two levels", 100, 200, 2, true},
		{"many levels", 0.5, 1.5, 50, true},
		{"one level", 45, 55, 1, false},
		{"inverted range", 55, 45, 10, false},
		{"equal bounds", 50, 50, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := ArithmeticLevels(tt.lower, tt.upper, tt.n)
			if !tt.wantOK {
				if err == nil {
					t.Fatalf("expected error, got levels %v", levels)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			checkLadder(t, levels, tt.lower, tt.upper, tt.n)

			step := (tt.upper - tt.lower) / float64(tt.n-1)
			for i := 1; i < len(levels); i++ {
				if diff := levels[i] - levels[i-1]; math.Abs(diff-step) > 1e-9 {
					t.Errorf("step %d = %.9f, want %.9f", i, diff, step)
				}
			}
		})
	}
}

func TestGeometricLevels(t *testing.T) {
	tests := []struct {
		name   string
		lower  float64
		upper  float64
		n      int
		wantOK bool
	}{
		{"basic range", 45, 55, 10, true},
		{"wide range", 100, 1000, 5, true},
		{"one level", 45, 55, 1, false},
		{"inverted range", 55, 45, 10, false},
		{"zero lower bound", 0, 55, 10, false},
		{"negative lower bound", -5, 55, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := GeometricLevels(tt.lower, tt.upper, tt.n)
			if !tt.wantOK {
				if err == nil {
					t.Fatalf("expected error, got levels %v", levels)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			checkLadder(t, levels, tt.lower, tt.upper, tt.n)

			ratio := levels[1] / levels[0]
			for i := 1; i < len(levels)-1; i++ {
				r := levels[i+1] / levels[i]
				if math.Abs(r-ratio) > 1e-9 {
					t.Errorf("ratio at %d = %.9f, want constant %.9f", i, r, ratio)
				}
			}
		})
	}
}

func TestVolumeWeightedLevelsFallback(t *testing.T) {
	arith, err := ArithmeticLevels(45, 55, 10)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		trades []exchange.Trade
	}{
		{"no trades", nil},
		{"too few trades", manyTrades(50, 50, 1)},
		{"all trades out of range", manyTrades(200, 100, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := VolumeWeightedLevels(45, 55, 10, tt.trades, 2.0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i := range levels {
				if math.Abs(levels[i]-arith[i]) > 1e-9 {
					t.Fatalf("level %d = %.6f, want arithmetic %.6f", i, levels[i], arith[i])
				}
			}
		})
	}
}

func TestVolumeWeightedLevelsClustering(t *testing.T) {
	// Heavy volume near 47, light everywhere else: levels should be denser
	// around 47 than around 53
	trades := manyTrades(47, 120, 10)
	trades = append(trades, manyTrades(53, 30, 1)...)

	levels, err := VolumeWeightedLevels(45, 55, 10, trades, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkLadder(t, levels, 45, 55, 10)

	nearHeavy, nearLight := 0, 0
	for _, p := range levels {
		if p >= 46 && p <= 48 {
			nearHeavy++
		}
		if p >= 52 && p <= 54 {
			nearLight++
		}
	}
	if nearHeavy <= nearLight {
		t.Errorf("expected clustering near heavy volume: %d levels near 47 vs %d near 53", nearHeavy, nearLight)
	}
}

// checkLadder asserts count, strict ordering, and pinned endpoints
func checkLadder(t *testing.T, levels []float64, lower, upper float64, n int) {
	t.Helper()
	if len(levels) != n {
		t.Fatalf("got %d levels, want %d", len(levels), n)
	}
	if levels[0] != lower {
		t.Errorf("levels[0] = %.6f, want %.6f", levels[0], lower)
	}
	if levels[n-1] != upper {
		t.Errorf("levels[%d] = %.6f, want %.6f", n-1, levels[n-1], upper)
	}
	for i := 1; i < n; i++ {
		if levels[i] <= levels[i-1] {
			t.Errorf("levels not strictly increasing at %d: %.6f <= %.6f", i, levels[i], levels[i-1])
		}
	}
}

func manyTrades(price float64, count int, size float64) []exchange.Trade {
	trades := make([]exchange.Trade, count)
	for i := range trades {
		// Small spread around the target price
		trades[i] = exchange.Trade{Price: price + float64(i%5)*0.1 - 0.2, Size: size}
	}
	return trades
}
