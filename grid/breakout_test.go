package grid

import "testing"

func TestDetectBreakout(t *testing.T) {
	const (
		lower     = 45.0
		upper     = 55.0
		threshold = 0.01
		eps       = 1e-6
	)

	tests := []struct {
		name  string
		price float64
		want  BreakoutDirection
	}{
		{"inside range", 50, BreakoutNone},
		{"at upper bound", 55, BreakoutNone},
		{"at lower bound", 45, BreakoutNone},
		{"just under upper threshold", upper*(1+threshold) - eps, BreakoutNone},
		{"exactly at upper threshold", upper * (1 + threshold), BreakoutNone},
		{"just over upper threshold", upper*(1+threshold) + eps, BreakoutUpward},
		{"just above lower threshold", lower*(1-threshold) + eps, BreakoutNone},
		{"exactly at lower threshold", lower * (1 - threshold), BreakoutNone},
		{"just under lower threshold", lower*(1-threshold) - eps, BreakoutDownward},
		{"far above", 100, BreakoutUpward},
		{"far below", 10, BreakoutDownward},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectBreakout(tt.price, lower, upper, threshold); got != tt.want {
				t.Fatalf("DetectBreakout(%.6f) = %s, want %s", tt.price, got, tt.want)
			}
		})
	}
}

func TestDetectBreakoutZeroThreshold(t *testing.T) {
	if got := DetectBreakout(55.001, 45, 55, 0); got != BreakoutUpward {
		t.Fatalf("got %s, want upward", got)
	}
	if got := DetectBreakout(44.999, 45, 55, 0); got != BreakoutDownward {
		t.Fatalf("got %s, want downward", got)
	}
}
