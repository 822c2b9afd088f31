package history

import (
	"time"
)

// RecommendationRecord is one published recommendation
type RecommendationRecord struct {
	ID          string  `json:"id" gorm:"primaryKey"`
	RequestType string  `json:"request_type" gorm:"index"`
	Strategy    string  `json:"strategy" gorm:"index"`
	Confidence  float64 `json:"confidence"`
	SampleCount int64   `json:"sample_count"`

	EstimatedImprovementMs float64 `json:"estimated_improvement_ms"`
	EstimatedGainPercent   float64 `json:"estimated_gain_percent"`
	Priority               string  `json:"priority"`
	Risk                   string  `json:"risk"`
	AutoApply              bool    `json:"auto_apply"`
	Reasoning              string  `json:"reasoning"`
	Parameters             string  `json:"parameters"` // JSON strategy parameters
	Exploratory            bool    `json:"exploratory"`

	GeneratedAt time.Time `json:"generated_at" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReconciliationRecord captures one feedback report: what was applied
// for a request type and the metrics observed afterward
type ReconciliationRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RequestType string    `json:"request_type" gorm:"index"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`

	AppliedStrategies string `json:"applied_strategies"` // JSON list

	// Observed outcome
	MeanDurationMs float64   `json:"mean_duration_ms"`
	ErrorRate      float64   `json:"error_rate"`
	Throughput     float64   `json:"throughput"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`

	CreatedAt time.Time `json:"created_at"`
}

// InsightSnapshot is one persisted insights cycle
type InsightSnapshot struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	GeneratedAt time.Time `json:"generated_at" gorm:"index"`

	OverallHealth       float64 `json:"overall_health"`
	PerformanceScore    float64 `json:"performance_score"`
	ReliabilityScore    float64 `json:"reliability_score"`
	ResourceScore       float64 `json:"resource_score"`
	UserExperienceScore float64 `json:"user_experience_score"`

	BottleneckCount  int    `json:"bottleneck_count"`
	OpportunityCount int    `json:"opportunity_count"`
	Bottlenecks      string `json:"bottlenecks"`   // JSON list
	Opportunities    string `json:"opportunities"` // JSON list

	CreatedAt time.Time `json:"created_at"`
}

// AccuracySample tracks how a recommendation's predicted improvement
// compared with the improvement observed after reconciliation
type AccuracySample struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RequestType string    `json:"request_type" gorm:"index"`
	Strategy    string    `json:"strategy" gorm:"index"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`

	PredictedImprovementMs float64 `json:"predicted_improvement_ms"`
	ObservedImprovementMs  float64 `json:"observed_improvement_ms"`
	ImprovementError       float64 `json:"improvement_error"`

	CreatedAt time.Time `json:"created_at"`
}
