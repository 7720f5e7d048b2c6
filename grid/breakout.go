package grid

// DetectBreakout compares the current price against a grid's range. The
// threshold is a fraction (0.01 = 1%); the price must clear the boundary by
// more than the threshold before a breakout is flagged, so ordinary edge
// touches do not trigger rebalances. Pure comparison, no side effects; the
// caller decides whether to rebalance.
func DetectBreakout(price, lower, upper, threshold float64) BreakoutDirection {
	if price > upper*(1+threshold) {
		return BreakoutUpward
	}
	if price < lower*(1-threshold) {
		return BreakoutDownward
	}
	return BreakoutNone
}
