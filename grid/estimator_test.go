package grid

import (
	"math"
	"testing"

	"gridbot/exchange"
)

func candlesFromCloses(closes ...float64) []exchange.Candle {
	out := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		out[i] = exchange.Candle{Close: c}
	}
	return out
}

func TestEstimateRangeManual(t *testing.T) {
	cfg := &Config{RangeSource: RangeManual, LowerPrice: 45, UpperPrice: 55}
	lower, upper := EstimateRange(cfg, 50, nil)
	if lower != 45 || upper != 55 {
		t.Fatalf("manual mode must return configured bounds, got %.2f - %.2f", lower, upper)
	}
}

func TestEstimateRangeFewCandles(t *testing.T) {
	cfg := &Config{RangeSource: RangeAutoVolatility, Symbol: "BTCUSDT"}

	tests := []struct {
		name    string
		candles []exchange.Candle
	}{
		{"no candles", nil},
		{"six closes", candlesFromCloses(50, 51, 49, 50, 52, 48)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lower, upper := EstimateRange(cfg, 100, tt.candles)
			if math.Abs(lower-90) > 1e-9 || math.Abs(upper-110) > 1e-9 {
				t.Fatalf("fallback should be ±10%%, got %.2f - %.2f", lower, upper)
			}
		})
	}
}

func TestEstimateRangeVolatility(t *testing.T) {
	cfg := &Config{RangeSource: RangeAutoVolatility, Symbol: "BTCUSDT", VolatilityBufferPct: 10}
	closes := candlesFromCloses(98, 99, 100, 101, 102, 100, 100, 99, 101)
	current := 100.0

	lower, upper := EstimateRange(cfg, current, closes)

	// Range is centered on the current price, not the close mean
	if math.Abs((lower+upper)/2-current) > 1e-9 {
		t.Errorf("range %.4f - %.4f not centered on %.2f", lower, upper, current)
	}

	// Half-width = 2 * sample stdev * (1 + 10/100)
	mean := 100.0
	variance := 0.0
	for _, c := range closes {
		d := c.Close - mean
		variance += d * d
	}
	variance /= float64(len(closes) - 1)
	wantHalf := 2 * math.Sqrt(variance) * 1.1
	if math.Abs((upper-lower)/2-wantHalf) > 1e-9 {
		t.Errorf("half-width = %.6f, want %.6f", (upper-lower)/2, wantHalf)
	}
}

func TestEstimateRangeLowerClamp(t *testing.T) {
	cfg := &Config{RangeSource: RangeAutoVolatility, Symbol: "BTCUSDT"}
	// Violent closes push 2 sigma far below half the current price
	closes := candlesFromCloses(100, 20, 180, 30, 170, 10, 190, 50, 150)

	lower, _ := EstimateRange(cfg, 100, closes)
	if lower < 50 {
		t.Fatalf("lower bound %.4f below 0.5x current price", lower)
	}
	if lower != 50 {
		t.Fatalf("expected clamp at 50, got %.4f", lower)
	}
}

func TestEstimateRangeFlatHistory(t *testing.T) {
	cfg := &Config{RangeSource: RangeAutoVolatility, Symbol: "BTCUSDT"}
	closes := candlesFromCloses(100, 100, 100, 100, 100, 100, 100, 100)

	lower, upper := EstimateRange(cfg, 100, closes)
	if math.Abs(lower-90) > 1e-9 || math.Abs(upper-110) > 1e-9 {
		t.Fatalf("flat history should fall back to ±10%%, got %.2f - %.2f", lower, upper)
	}
}

func TestCalculateNewRange(t *testing.T) {
	tests := []struct {
		name      string
		oldLower  float64
		oldUpper  float64
		current   float64
		factor    float64
		wantLower float64
		wantUpper float64
	}{
		{"upward re-center", 45, 55, 56, 1.2, 50, 62},
		{"downward re-center", 45, 55, 44, 1.2, 38, 50},
		{"default factor on zero", 45, 55, 56, 0, 50, 62},
		{"custom factor", 100, 200, 150, 1.5, 75, 225},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lower, upper := CalculateNewRange(tt.oldLower, tt.oldUpper, tt.current, tt.factor)
			if math.Abs(lower-tt.wantLower) > 1e-9 || math.Abs(upper-tt.wantUpper) > 1e-9 {
				t.Fatalf("got %.4f - %.4f, want %.4f - %.4f", lower, upper, tt.wantLower, tt.wantUpper)
			}

			// Width and centering properties
			if math.Abs((upper-lower)-(tt.oldUpper-tt.oldLower)*effectiveFactor(tt.factor)) > 1e-9 {
				t.Errorf("width %.4f does not equal old width x factor", upper-lower)
			}
			if math.Abs((upper+lower)/2-tt.current) > 1e-9 {
				t.Errorf("range not centered on current price %.2f", tt.current)
			}
		})
	}
}

func effectiveFactor(f float64) float64 {
	if f <= 0 {
		return DefaultExpansionFactor
	}
	return f
}

func TestCalculateNewRangeLowerFloor(t *testing.T) {
	// Huge old width would push the lower bound below 0.3x price
	lower, upper := CalculateNewRange(10, 500, 100, 1.2)
	if lower != 30 {
		t.Fatalf("lower bound %.4f, want floor at 30", lower)
	}
	if upper <= lower {
		t.Fatalf("degenerate range %.4f - %.4f", lower, upper)
	}
}
