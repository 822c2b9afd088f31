package learning

import (
	"math"
	"time"
)

// ShiftDirection classifies a detected mean shift in a metric series
type ShiftDirection int

const (
	ShiftNone ShiftDirection = iota
	ShiftUpward
	ShiftDownward
)

// String returns the string representation of the shift direction
func (sd ShiftDirection) String() string {
	switch sd {
	case ShiftUpward:
		return "upward"
	case ShiftDownward:
		return "downward"
	default:
		return "none"
	}
}

// ShiftResult is the outcome of one CUSUM update
type ShiftResult struct {
	Direction ShiftDirection
	Severity  float64 // Cumulative sum as a multiple of the threshold
	Sustained time.Duration
}

// CUSUM implements cumulative-sum change detection over a metric series.
// The insights aggregator feeds it per-cycle metric values; a sustained
// shift is stronger bottleneck evidence than a single threshold crossing.
// Parameters are re-estimated from the observed series (adaptive form,
// k=0.5σ, h=5σ).
type CUSUM struct {
	threshold float64 // h
	drift     float64 // k
	reference float64 // μ0

	positiveSum float64
	negativeSum float64

	observations []float64
	maxHistory   int

	shiftStart time.Time
	lastShift  ShiftDirection
}

// NewCUSUM creates an adaptive CUSUM detector that estimates its
// reference mean and deviation from the data it sees.
func NewCUSUM() *CUSUM {
	return &CUSUM{
		threshold:  5.0,
		drift:      0.5,
		maxHistory: 100,
	}
}

// Update processes a new observation and reports any detected shift
func (c *CUSUM) Update(value float64, now time.Time) ShiftResult {
	c.observations = append(c.observations, value)
	if len(c.observations) > c.maxHistory {
		c.observations = c.observations[len(c.observations)-c.maxHistory:]
	}

	// Warmup: no judgment until the reference can be estimated
	if len(c.observations) < 5 {
		return ShiftResult{Direction: ShiftNone}
	}
	c.refit()

	deviation := value - c.reference

	// C+ = max(0, C+ + (x - μ0) - k); C- = max(0, C- - (x - μ0) - k)
	c.positiveSum = math.Max(0, c.positiveSum+deviation-c.drift)
	c.negativeSum = math.Max(0, c.negativeSum-deviation-c.drift)

	direction := ShiftNone
	severity := 0.0
	if c.positiveSum > c.threshold {
		direction = ShiftUpward
		severity = c.positiveSum / c.threshold
	} else if c.negativeSum > c.threshold {
		direction = ShiftDownward
		severity = c.negativeSum / c.threshold
	}

	sustained := time.Duration(0)
	if direction == ShiftNone {
		c.lastShift = ShiftNone
		c.shiftStart = time.Time{}
	} else {
		if direction != c.lastShift {
			c.lastShift = direction
			c.shiftStart = now
		}
		sustained = now.Sub(c.shiftStart)
	}

	return ShiftResult{Direction: direction, Severity: severity, Sustained: sustained}
}

// refit re-estimates reference mean and sigma-scaled parameters from the
// retained observations.
func (c *CUSUM) refit() {
	n := len(c.observations)
	if n < 5 {
		return
	}

	mean := 0.0
	for _, v := range c.observations {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range c.observations {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n - 1)
	sigma := math.Sqrt(variance)

	if sigma == 0 {
		sigma = math.Abs(mean) * 0.01
		if sigma == 0 {
			sigma = 1e-9
		}
	}

	c.reference = mean
	c.drift = 0.5 * sigma
	c.threshold = 5.0 * sigma
}

// Reset clears the detector state
func (c *CUSUM) Reset() {
	c.positiveSum = 0
	c.negativeSum = 0
	c.observations = nil
	c.lastShift = ShiftNone
	c.shiftStart = time.Time{}
}
