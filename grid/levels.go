package grid

import (
	"fmt"
	"math"

	"gridbot/exchange"
	"gridbot/logger"
)

const (
	volumeBucketCount   = 100
	minQualifyingTrades = 100
)

// ArithmeticLevels returns n evenly spaced prices from lower to upper,
// endpoints included.
func ArithmeticLevels(lower, upper float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 levels, got %d", ErrInvalidRange, n)
	}
	if upper <= lower {
		return nil, fmt.Errorf("%w: upper %.4f <= lower %.4f", ErrInvalidRange, upper, lower)
	}

	step := (upper - lower) / float64(n-1)
	levels := make([]float64, n)
	for i := range levels {
		levels[i] = lower + step*float64(i)
	}
	levels[n-1] = upper
	return levels, nil
}

// GeometricLevels returns n prices with a constant ratio between adjacent
// levels, so each grid step captures the same percentage move.
func GeometricLevels(lower, upper float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 levels, got %d", ErrInvalidRange, n)
	}
	if upper <= lower {
		return nil, fmt.Errorf("%w: upper %.4f <= lower %.4f", ErrInvalidRange, upper, lower)
	}
	if lower <= 0 {
		return nil, fmt.Errorf("%w: geometric spacing requires positive lower bound, got %.4f", ErrInvalidRange, lower)
	}

	ratio := math.Pow(upper/lower, 1/float64(n-1))
	levels := make([]float64, n)
	for i := range levels {
		levels[i] = lower * math.Pow(ratio, float64(i))
	}
	levels[0] = lower
	levels[n-1] = upper
	return levels, nil
}

// VolumeWeightedLevels clusters levels where historical trade volume
// concentrated. Trade volume inside [lower, upper] is bucketed into 100
// equal-width buckets, each bucket's volume is raised to clusteringStrength
// to sharpen high-volume zones, and levels are read off the inverse of the
// cumulative distribution. First and last levels are pinned to the bounds.
//
// Falls back to ArithmeticLevels when fewer than 100 in-range trades exist
// or in-range volume is zero; a thin tape must never produce a degenerate
// ladder.
func VolumeWeightedLevels(lower, upper float64, n int, trades []exchange.Trade, clusteringStrength float64) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 levels, got %d", ErrInvalidRange, n)
	}
	if upper <= lower {
		return nil, fmt.Errorf("%w: upper %.4f <= lower %.4f", ErrInvalidRange, upper, lower)
	}

	width := upper - lower
	bucketWidth := width / volumeBucketCount
	buckets := make([]float64, volumeBucketCount)

	qualifying := 0
	totalVolume := 0.0
	for _, t := range trades {
		if t.Price < lower || t.Price > upper {
			continue
		}
		idx := int((t.Price - lower) / bucketWidth)
		if idx >= volumeBucketCount {
			idx = volumeBucketCount - 1
		}
		buckets[idx] += t.Size
		totalVolume += t.Size
		qualifying++
	}

	if qualifying < minQualifyingTrades || totalVolume <= 0 {
		logger.Debugf("[Grid] Volume weighting: %d in-range trades (volume %.4f), falling back to arithmetic spacing",
			qualifying, totalVolume)
		return ArithmeticLevels(lower, upper, n)
	}

	// Weighted cumulative distribution over buckets
	cum := make([]float64, volumeBucketCount)
	totalWeight := 0.0
	for i, v := range buckets {
		totalWeight += math.Pow(v, clusteringStrength)
		cum[i] = totalWeight
	}
	if totalWeight <= 0 {
		return ArithmeticLevels(lower, upper, n)
	}

	// Invert the CDF at n evenly spaced targets. Interpolating inside the
	// bucket keeps levels strictly increasing when several targets land in
	// the same bucket.
	levels := make([]float64, n)
	bucket := 0
	for i := 0; i < n; i++ {
		target := totalWeight * float64(i) / float64(n-1)
		for bucket < volumeBucketCount-1 && cum[bucket] < target {
			bucket++
		}
		prev := 0.0
		if bucket > 0 {
			prev = cum[bucket-1]
		}
		frac := 1.0
		if cum[bucket] > prev {
			frac = (target - prev) / (cum[bucket] - prev)
		}
		levels[i] = lower + (float64(bucket)+frac)*bucketWidth
	}
	levels[0] = lower
	levels[n-1] = upper
	return levels, nil
}
