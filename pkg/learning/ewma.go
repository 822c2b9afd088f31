package learning

import (
	"math"
	"time"
)

// EWMA implements an exponentially weighted moving average smoother.
// It backs the feedback loop's confidence weights and the trend analysis
// over per-type metric series.
type EWMA struct {
	alpha       float64
	current     float64
	initialized bool
	lastUpdate  time.Time
	valueCount  int
}

// NewEWMA creates an EWMA smoother with the given alpha. Out-of-range
// alphas fall back to 0.1.
func NewEWMA(alpha float64) *EWMA {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return &EWMA{alpha: alpha}
}

// NewEWMAWithInitial creates a smoother pre-seeded with a prior value, so
// the first observation moves the average gradually instead of replacing it.
func NewEWMAWithInitial(alpha, initial float64) *EWMA {
	e := NewEWMA(alpha)
	e.current = initial
	e.initialized = true
	return e
}

// Update incorporates a new observation and returns the smoothed value
func (e *EWMA) Update(value float64) float64 {
	e.lastUpdate = time.Now()
	e.valueCount++

	if !e.initialized {
		e.current = value
		e.initialized = true
	} else {
		e.current = e.alpha*value + (1-e.alpha)*e.current
	}
	return e.current
}

// Current returns the current smoothed value, or 0 before the first update
func (e *EWMA) Current() float64 {
	if !e.initialized {
		return 0.0
	}
	return e.current
}

// Count returns the number of observations processed
func (e *EWMA) Count() int {
	return e.valueCount
}

// Reset returns the smoother to its uninitialized state
func (e *EWMA) Reset() {
	e.current = 0.0
	e.initialized = false
	e.valueCount = 0
}

// TrendDirection represents the direction of a metric trend
type TrendDirection int

const (
	TrendNone TrendDirection = iota
	TrendUpward
	TrendDownward
)

// String returns the string representation of the trend direction
func (td TrendDirection) String() string {
	switch td {
	case TrendUpward:
		return "upward"
	case TrendDownward:
		return "downward"
	default:
		return "none"
	}
}

// RegressionSlope fits a least-squares line through the values (index as
// x) and returns its slope. Used for trend classification and forecasting.
func RegressionSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0.0
	}

	sumX, sumY, sumXY, sumXX := 0.0, 0.0, 0.0, 0.0
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0.0
	}
	return (n*sumXY - sumX*sumY) / denominator
}

// DetectTrend classifies the trend of a metric series. The threshold is
// the minimum absolute slope, relative to the series mean, that counts as
// a trend.
func DetectTrend(values []float64, threshold float64) TrendDirection {
	if len(values) < 3 {
		return TrendNone
	}

	slope := RegressionSlope(values)

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	scale := math.Abs(mean)
	if scale == 0 {
		scale = 1.0
	}

	relative := slope / scale
	if relative > threshold {
		return TrendUpward
	}
	if relative < -threshold {
		return TrendDownward
	}
	return TrendNone
}
