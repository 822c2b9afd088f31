package learning

import (
	"fmt"
	"math"
)

// Forecaster produces short-horizon trend extrapolations over a metric
// series. It keeps a bounded observation history, fits a least-squares
// line, and scores its own confidence from the residual spread: wide
// residuals or long horizons mean less confidence.
type Forecaster struct {
	observations []float64
	maxHistory   int
}

// NewForecaster creates a forecaster retaining up to maxHistory points
func NewForecaster(maxHistory int) *Forecaster {
	if maxHistory < 10 {
		maxHistory = 10
	}
	return &Forecaster{maxHistory: maxHistory}
}

// AddObservation appends a point to the series
func (f *Forecaster) AddObservation(value float64) {
	f.observations = append(f.observations, value)
	if len(f.observations) > f.maxHistory {
		f.observations = f.observations[len(f.observations)-f.maxHistory:]
	}
}

// Len returns the number of retained observations
func (f *Forecaster) Len() int {
	return len(f.observations)
}

// Forecast extrapolates the fitted trend stepsAhead points into the
// future and returns the predicted value with a [0,1] confidence.
func (f *Forecaster) Forecast(stepsAhead int) (float64, float64, error) {
	n := len(f.observations)
	if n < 3 {
		return 0, 0, fmt.Errorf("insufficient data: need at least 3 observations, have %d", n)
	}
	if stepsAhead < 1 {
		return 0, 0, fmt.Errorf("forecast horizon must be positive")
	}

	slope := RegressionSlope(f.observations)

	// Intercept from the means
	meanY := 0.0
	for _, v := range f.observations {
		meanY += v
	}
	meanY /= float64(n)
	meanX := float64(n-1) / 2.0
	intercept := meanY - slope*meanX

	forecast := intercept + slope*float64(n-1+stepsAhead)

	// Confidence: residual spread relative to the series scale, decayed
	// by how far out the horizon reaches
	rmse := 0.0
	for i, v := range f.observations {
		fitted := intercept + slope*float64(i)
		rmse += (v - fitted) * (v - fitted)
	}
	rmse = math.Sqrt(rmse / float64(n))

	scale := math.Abs(meanY)
	if scale == 0 {
		scale = 1.0
	}
	fit := 1.0 / (1.0 + rmse/scale)

	horizonDecay := math.Pow(0.9, float64(stepsAhead))
	confidence := math.Max(0.0, math.Min(1.0, fit*horizonDecay))

	return forecast, confidence, nil
}

// Trend classifies the direction of the retained series
func (f *Forecaster) Trend() TrendDirection {
	return DetectTrend(f.observations, 0.01)
}

// Reset discards the observation history
func (f *Forecaster) Reset() {
	f.observations = nil
}

// Autocorrelation computes the sample autocorrelation of a series at the
// given lag. Values near 1 at a candidate period lag indicate seasonality.
func Autocorrelation(series []float64, lag int) float64 {
	n := len(series)
	if lag <= 0 || n <= lag+1 {
		return 0.0
	}

	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range series {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)
	if variance == 0 {
		return 0.0
	}

	covariance := 0.0
	for i := 0; i < n-lag; i++ {
		covariance += (series[i] - mean) * (series[i+lag] - mean)
	}
	covariance /= float64(n - lag)

	return covariance / variance
}
