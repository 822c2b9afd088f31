package learning

import (
	"math"
	"testing"
)

func linearForecaster(n int) *Forecaster {
	f := NewForecaster(100)
	for i := 0; i < n; i++ {
		f.AddObservation(float64(i + 1))
	}
	return f
}

func TestForecaster_LinearSeries(t *testing.T) {
	f := linearForecaster(20)

	forecast, confidence, err := f.Forecast(1)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	if math.Abs(forecast-21.0) > 1e-6 {
		t.Errorf("Expected forecast 21.0, got %f", forecast)
	}
	if confidence <= 0.8 {
		t.Errorf("Expected high confidence for a perfect fit, got %f", confidence)
	}
}

func TestForecaster_InsufficientData(t *testing.T) {
	f := NewForecaster(100)
	f.AddObservation(1.0)
	f.AddObservation(2.0)

	if _, _, err := f.Forecast(1); err == nil {
		t.Error("Expected error with fewer than 3 observations")
	}
}

func TestForecaster_InvalidHorizon(t *testing.T) {
	f := linearForecaster(10)

	if _, _, err := f.Forecast(0); err == nil {
		t.Error("Expected error for non-positive horizon")
	}
}

func TestForecaster_ConfidenceDecaysWithHorizon(t *testing.T) {
	f := linearForecaster(20)

	_, near, err := f.Forecast(1)
	if err != nil {
		t.Fatal(err)
	}
	_, far, err := f.Forecast(10)
	if err != nil {
		t.Fatal(err)
	}

	if far >= near {
		t.Errorf("Expected confidence to decay with horizon: near=%f far=%f", near, far)
	}
}

func TestForecaster_NoisyFitLowersConfidence(t *testing.T) {
	clean := linearForecaster(20)

	noisy := NewForecaster(100)
	jitter := []float64{8, -7, 5, -9, 6, -4}
	for i := 0; i < 20; i++ {
		noisy.AddObservation(float64(i+1) + jitter[i%len(jitter)])
	}

	_, cleanConf, _ := clean.Forecast(1)
	_, noisyConf, _ := noisy.Forecast(1)

	if noisyConf >= cleanConf {
		t.Errorf("Expected noisy fit to have lower confidence: clean=%f noisy=%f", cleanConf, noisyConf)
	}
}

func TestForecaster_BoundedHistory(t *testing.T) {
	f := NewForecaster(10)
	for i := 0; i < 50; i++ {
		f.AddObservation(float64(i))
	}

	if f.Len() != 10 {
		t.Errorf("Expected history bounded to 10, got %d", f.Len())
	}
}

func TestForecaster_TrendAndReset(t *testing.T) {
	f := linearForecaster(20)

	if f.Trend() != TrendUpward {
		t.Errorf("Expected upward trend, got %v", f.Trend())
	}

	f.Reset()
	if f.Len() != 0 {
		t.Errorf("Expected empty history after reset, got %d", f.Len())
	}
}

func TestAutocorrelation_PeriodicSeries(t *testing.T) {
	// Period-4 sawtooth
	var series []float64
	for i := 0; i < 40; i++ {
		series = append(series, float64(i%4))
	}

	atPeriod := Autocorrelation(series, 4)
	if atPeriod < 0.9 {
		t.Errorf("Expected strong autocorrelation at the period lag, got %f", atPeriod)
	}

	offPeriod := Autocorrelation(series, 2)
	if offPeriod >= atPeriod {
		t.Errorf("Expected weaker correlation off-period: %f vs %f", offPeriod, atPeriod)
	}
}

func TestAutocorrelation_EdgeCases(t *testing.T) {
	if v := Autocorrelation([]float64{1, 2, 3}, 0); v != 0.0 {
		t.Errorf("Expected 0 for non-positive lag, got %f", v)
	}
	if v := Autocorrelation([]float64{1, 2, 3}, 5); v != 0.0 {
		t.Errorf("Expected 0 when lag exceeds series, got %f", v)
	}
	if v := Autocorrelation([]float64{5, 5, 5, 5, 5, 5}, 2); v != 0.0 {
		t.Errorf("Expected 0 for zero-variance series, got %f", v)
	}
}
