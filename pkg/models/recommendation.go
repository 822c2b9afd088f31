package models

import (
	"time"
)

// OptimizationRecommendation is the engine's primary output: a ranked,
// confidence-scored suggestion for one request type. Instances are
// immutable; a new recommendation replaces the previous one atomically.
type OptimizationRecommendation struct {
	ID          string   `json:"id"`
	RequestType string   `json:"request_type"`
	Strategy    Strategy `json:"strategy"`

	// Statistical support
	Confidence  float64 `json:"confidence"`   // [0,1]
	SampleCount int64   `json:"sample_count"` // Samples behind the analysis

	// Expected effect
	EstimatedImprovement time.Duration `json:"estimated_improvement"`
	EstimatedGainPercent float64       `json:"estimated_gain_percent"` // [0,100]

	// Ranking
	Priority PriorityTier `json:"priority"`
	Risk     RiskTier     `json:"risk"`

	// AutoApply is set when the risk stays within the configured ceiling,
	// advising callers the recommendation is safe to apply unattended.
	AutoApply bool `json:"auto_apply"`

	// Human-readable justification
	Reasoning string `json:"reasoning"`

	// Strategy-specific parameters, e.g. recommended TTL for caching or
	// batch size for batching. Keys are strategy-defined.
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// IsActionable reports whether the recommendation suggests a concrete change
func (r OptimizationRecommendation) IsActionable() bool {
	return r.Strategy != StrategyNone && r.Strategy != ""
}

// ResourceOptimizationResult is the output of the stateless resource
// optimization analysis.
type ResourceOptimizationResult struct {
	ShouldOptimize bool     `json:"should_optimize"`
	Strategy       Strategy `json:"strategy"`

	// Per-metric utilization fraction of capacity, for every tracked metric
	UtilizationRatios map[string]float64 `json:"utilization_ratios"`

	// Metrics that exceeded the configured fraction of capacity
	PressuredResources []string `json:"pressured_resources"`

	// Estimated savings per pressured metric: delta between current usage
	// and the target utilization band, in the metric's own unit
	EstimatedSavings map[string]float64 `json:"estimated_savings"`

	Reasoning  string    `json:"reasoning"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// AppliedStrategy reports what the caller actually applied for a request
// type, fed back to the learning loop.
type AppliedStrategy struct {
	Strategy  Strategy  `json:"strategy"`
	AppliedAt time.Time `json:"applied_at"`
}

// ObservedMetrics carries post-application measurements used by the
// learning loop to judge whether a strategy helped.
type ObservedMetrics struct {
	MeanDuration time.Duration `json:"mean_duration"`
	ErrorRate    float64       `json:"error_rate"`
	Throughput   float64       `json:"throughput"`
	WindowStart  time.Time     `json:"window_start"`
	WindowEnd    time.Time     `json:"window_end"`
}

// StrategyConfidence is the learned confidence weight for one
// (request type, strategy) pair.
type StrategyConfidence struct {
	RequestType string    `json:"request_type"`
	Strategy    Strategy  `json:"strategy"`
	Weight      float64   `json:"weight"` // [0,1]
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	LastUpdated time.Time `json:"last_updated"`
}

// ModelStatistics summarizes the engine's internal state for observability
type ModelStatistics struct {
	TrackedTypes      int                  `json:"tracked_types"`
	TotalSamples      int64                `json:"total_samples"`
	SamplesByType     map[string]int64     `json:"samples_by_type"`
	Reconciliations   int64                `json:"reconciliations"`
	ExplorationCount  int64                `json:"exploration_count"`
	AnalysisFailures  int64                `json:"analysis_failures"`
	ConfidenceWeights []StrategyConfidence `json:"confidence_weights,omitempty"`
	GeneratedAt       time.Time            `json:"generated_at"`
}
