package models

import (
	"time"
)

// SystemPerformanceInsights is a point-in-time, immutable snapshot of
// system-wide analysis across all tracked request types. Snapshots are
// regenerated wholesale each aggregation cycle, never partially mutated.
type SystemPerformanceInsights struct {
	ID     string        `json:"id"`
	Window time.Duration `json:"window"`

	Bottlenecks   []Bottleneck  `json:"bottlenecks"`
	Opportunities []Opportunity `json:"opportunities"`

	Health HealthScore `json:"health"`

	SeasonalPatterns []SeasonalPattern  `json:"seasonal_patterns"`
	Prediction       PredictiveAnalysis `json:"prediction"`

	Metrics map[string]float64 `json:"metrics,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Bottleneck represents a metric sustained above its unhealthy threshold
type Bottleneck struct {
	RequestType string        `json:"request_type,omitempty"`
	Metric      string        `json:"metric"`
	Current     float64       `json:"current"`
	Threshold   float64       `json:"threshold"`
	Severity    float64       `json:"severity"` // Proportional to overshoot, [0,1]
	SustainedIn time.Duration `json:"sustained_in"`
	Description string        `json:"description"`
}

// Opportunity surfaces a recommendation with enough confidence to act on
// but not yet marked as applied, ranked by expected gain.
type Opportunity struct {
	RequestType          string   `json:"request_type"`
	Strategy             Strategy `json:"strategy"`
	Confidence           float64  `json:"confidence"`
	EstimatedGainPercent float64  `json:"estimated_gain_percent"`
	Reasoning            string   `json:"reasoning"`
}

// HealthScore decomposes the overall score into weighted sub-scores,
// each in [0,100].
type HealthScore struct {
	Overall        float64 `json:"overall"`
	Performance    float64 `json:"performance"`
	Reliability    float64 `json:"reliability"`
	ResourceUsage  float64 `json:"resource_usage"`
	UserExperience float64 `json:"user_experience"`
}

// SeasonalPatternType classifies the shape of a detected periodicity
type SeasonalPatternType string

const (
	SeasonalHourly SeasonalPatternType = "hourly"
	SeasonalDaily  SeasonalPatternType = "daily"
	SeasonalWeekly SeasonalPatternType = "weekly"
	SeasonalCustom SeasonalPatternType = "custom"
)

// SeasonalPattern represents a recurring periodicity detected in a metric
// time series via autocorrelation at the candidate period lag.
type SeasonalPattern struct {
	Metric   string              `json:"metric"`
	Type     SeasonalPatternType `json:"type"`
	Period   time.Duration       `json:"period"`
	Strength float64             `json:"strength"` // Autocorrelation at lag, [0,1]
}

// PredictiveAnalysis is a short-horizon trend extrapolation. Confidence
// decays as the horizon grows.
type PredictiveAnalysis struct {
	Metric     string        `json:"metric"`
	Forecast   float64       `json:"forecast"`
	Confidence float64       `json:"confidence"`
	Horizon    time.Duration `json:"horizon"`
	Trend      string        `json:"trend"` // upward, downward, none
}
