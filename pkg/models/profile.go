package models

import (
	"time"
)

// RequestTypeProfile is a read-only snapshot of the rolling aggregate the
// analytics store maintains per request type. All consumers receive copies;
// only the store mutates the underlying state.
type RequestTypeProfile struct {
	RequestType string `json:"request_type"`
	SampleCount int64  `json:"sample_count"`

	// Duration statistics (Welford incremental update, no buffered history)
	MeanDuration     time.Duration `json:"mean_duration"`
	DurationVariance float64       `json:"duration_variance"` // Seconds squared
	DurationStdDev   time.Duration `json:"duration_std_dev"`

	// Error rate as exponential moving average
	ErrorRate float64 `json:"error_rate"`

	// Resource footprint
	MeanMemoryDelta   float64 `json:"mean_memory_delta"` // Bytes
	MeanDatabaseCalls float64 `json:"mean_database_calls"`
	MeanExternalCalls float64 `json:"mean_external_calls"`

	// Concurrency high-water mark observed across all samples
	ConcurrencyHighWater int `json:"concurrency_high_water"`

	// Recent access timestamps, oldest first. Bounded; used only by the
	// caching analysis service for interval regularity.
	RecentAccesses []time.Time `json:"recent_accesses,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// CoefficientOfVariation returns stddev/mean of duration, or 0 when the
// mean is zero. High values indicate unstable latency.
func (p RequestTypeProfile) CoefficientOfVariation() float64 {
	if p.MeanDuration <= 0 {
		return 0.0
	}
	return float64(p.DurationStdDev) / float64(p.MeanDuration)
}

// CallRate returns observed calls per second over the profile's lifetime
func (p RequestTypeProfile) CallRate() float64 {
	if p.SampleCount < 2 {
		return 0.0
	}
	elapsed := p.LastSeen.Sub(p.FirstSeen).Seconds()
	if elapsed <= 0 {
		return 0.0
	}
	return float64(p.SampleCount) / elapsed
}

// CachingProfile holds per-request-type caching state maintained by the
// caching analysis service.
type CachingProfile struct {
	RequestType      string          `json:"request_type"`
	AccessIntervals  []time.Duration `json:"access_intervals,omitempty"`
	PredictedHitRate float64         `json:"predicted_hit_rate"`
	RecommendedTTL   time.Duration   `json:"recommended_ttl"`
	Scope            CacheScope      `json:"scope"`
	KeyStrategy      KeyStrategy     `json:"key_strategy"`
	LastAnalyzed     time.Time       `json:"last_analyzed"`
}
