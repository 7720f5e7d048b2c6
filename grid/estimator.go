package grid

import (
	"math"

	"gridbot/exchange"
	"gridbot/logger"
)

const (
	// DefaultExpansionFactor widens a rebalanced range by 20% to reduce
	// repeat breakouts.
	DefaultExpansionFactor = 1.2

	minClosesForVolatility = 7
	fallbackRangePct       = 0.10
	volatilityStdevMult    = 2.0

	// Lower-bound clamps: estimation never produces a lower bound under
	// half the current price, rebalancing never under 0.3x.
	estimateLowerClamp  = 0.5
	rebalanceLowerFloor = 0.3
)

// EstimateRange resolves the grid's price range. Manual mode returns the
// configured bounds verbatim. Auto mode sizes the range from recent close
// volatility (2 sigma plus buffer) but centers it on the current price, not
// the historical mean, so the ladder starts balanced around where trading
// actually happens.
func EstimateRange(cfg *Config, currentPrice float64, candles []exchange.Candle) (lower, upper float64) {
	if cfg.RangeSource == RangeManual {
		return cfg.LowerPrice, cfg.UpperPrice
	}

	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Close > 0 {
			closes = append(closes, c.Close)
		}
	}

	if len(closes) < minClosesForVolatility {
		logger.Warnf("[Grid] Only %d closes available for volatility estimate, using ±%.0f%% of price $%.2f",
			len(closes), fallbackRangePct*100, currentPrice)
		return currentPrice * (1 - fallbackRangePct), currentPrice * (1 + fallbackRangePct)
	}

	mean := 0.0
	for _, c := range closes {
		mean += c
	}
	mean /= float64(len(closes))

	variance := 0.0
	for _, c := range closes {
		d := c - mean
		variance += d * d
	}
	variance /= float64(len(closes) - 1)
	stdev := math.Sqrt(variance)

	if stdev <= 0 {
		logger.Warnf("[Grid] Flat close history (stdev=0), using ±%.0f%% of price $%.2f",
			fallbackRangePct*100, currentPrice)
		return currentPrice * (1 - fallbackRangePct), currentPrice * (1 + fallbackRangePct)
	}

	halfWidth := volatilityStdevMult * stdev * (1 + cfg.VolatilityBufferPct/100)
	lower = currentPrice - halfWidth
	upper = currentPrice + halfWidth
	if min := currentPrice * estimateLowerClamp; lower < min {
		lower = min
	}

	logger.Infof("[Grid] Volatility range for %s: $%.2f - $%.2f (stdev %.4f over %d closes)",
		cfg.Symbol, lower, upper, stdev, len(closes))
	return lower, upper
}

// CalculateNewRange computes the post-breakout range: the old width scaled
// by expansionFactor, re-centered on the current price. Upward and downward
// breakouts use the same centering rule: re-anchor, don't chase. The lower
// bound is floored at 0.3x the current price.
func CalculateNewRange(oldLower, oldUpper, currentPrice, expansionFactor float64) (lower, upper float64) {
	if expansionFactor <= 0 {
		expansionFactor = DefaultExpansionFactor
	}
	half := (oldUpper - oldLower) * expansionFactor / 2
	lower = currentPrice - half
	upper = currentPrice + half
	if floor := currentPrice * rebalanceLowerFloor; lower < floor {
		lower = floor
	}
	return lower, upper
}
