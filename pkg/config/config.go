package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// Options is the engine-wide configuration, loaded once at startup and
// read-only afterwards. Invalid options are rejected before the engine
// accepts traffic.
type Options struct {
	Enabled bool `mapstructure:"enabled"`

	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Caching    CachingConfig   `mapstructure:"caching"`
	Learning   LearningConfig  `mapstructure:"learning"`
	Insights   InsightsConfig  `mapstructure:"insights"`
	Resources  ResourceConfig  `mapstructure:"resources"`
	Engine     EngineConfig    `mapstructure:"engine"`

	// Per-request-type monitoring opt-in. Empty means monitor everything.
	MonitoredTypes map[string]TypeOptions `mapstructure:"monitored_types"`
}

// TypeOptions carries per-request-type overrides
type TypeOptions struct {
	Enabled          bool `mapstructure:"enabled"`
	CachingCandidate bool `mapstructure:"caching_candidate"`
}

// ThresholdConfig holds the heuristic cutoffs that drive strategy selection
type ThresholdConfig struct {
	MinExecutionsForAnalysis int64         `mapstructure:"min_executions_for_analysis"`
	LatencyThreshold         time.Duration `mapstructure:"latency_threshold"`
	ConcurrencyThreshold     int           `mapstructure:"concurrency_threshold"`
	ErrorRateThreshold       float64       `mapstructure:"error_rate_threshold"`
	MemoryDeltaCeiling       int64         `mapstructure:"memory_delta_ceiling"`    // Bytes
	DatabaseCallThreshold    float64       `mapstructure:"database_call_threshold"` // Mean calls per request
	HighVolumeRate           float64       `mapstructure:"high_volume_rate"`        // Calls per second
	LowDurationCutoff        time.Duration `mapstructure:"low_duration_cutoff"`

	// Expected percentage reduction per strategy, used for improvement
	// estimates. Keys are strategy names.
	ExpectedReductions map[string]float64 `mapstructure:"expected_reductions"`
}

// CachingConfig bounds the caching analysis
type CachingConfig struct {
	MinCacheTTL     time.Duration `mapstructure:"min_cache_ttl"`
	MaxCacheTTL     time.Duration `mapstructure:"max_cache_ttl"`
	HitRateFloor    float64       `mapstructure:"hit_rate_floor"`
	RegularityCVMax float64       `mapstructure:"regularity_cv_max"` // Max CV for "periodic"
	WindowSize      int           `mapstructure:"window_size"`       // Sliding window for repeats
}

// LearningConfig drives the feedback loop
type LearningConfig struct {
	LearningRate    float64 `mapstructure:"learning_rate"`
	ExplorationRate float64 `mapstructure:"exploration_rate"`
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	Seed            int64   `mapstructure:"seed"` // 0 means time-seeded
}

// InsightsConfig drives periodic system-wide aggregation
type InsightsConfig struct {
	Interval               time.Duration   `mapstructure:"interval"`
	Window                 time.Duration   `mapstructure:"window"`
	Weights                HealthWeights   `mapstructure:"weights"`
	SeasonalPeriods        []time.Duration `mapstructure:"seasonal_periods"`
	SeasonalMinCorrelation float64         `mapstructure:"seasonal_min_correlation"`
	BottleneckSustain      time.Duration   `mapstructure:"bottleneck_sustain"`
	ForecastHorizon        time.Duration   `mapstructure:"forecast_horizon"`
}

// HealthWeights are the health sub-score weights; they must sum to 1.0
type HealthWeights struct {
	Performance    float64 `mapstructure:"performance"`
	Reliability    float64 `mapstructure:"reliability"`
	Resource       float64 `mapstructure:"resource"`
	UserExperience float64 `mapstructure:"user_experience"`
}

// Sum returns the sum of all sub-score weights
func (w HealthWeights) Sum() float64 {
	return w.Performance + w.Reliability + w.Resource + w.UserExperience
}

// ResourceConfig bounds the resource optimization analysis
type ResourceConfig struct {
	// Fraction of capacity above which a resource is flagged, e.g. 0.8
	PressureFraction float64 `mapstructure:"pressure_fraction"`
	// Target utilization band the savings estimate aims for, e.g. 0.6
	TargetUtilization float64 `mapstructure:"target_utilization"`
	// Hard ceilings for connection-count estimation per resource name
	ConnectionCeilings map[string]float64 `mapstructure:"connection_ceilings"`
}

// EngineConfig controls the facade's background behavior
type EngineConfig struct {
	RecommendationRefresh time.Duration `mapstructure:"recommendation_refresh"`
	RiskCeiling           string        `mapstructure:"risk_ceiling"` // Max risk for auto-apply advice
	AccessHistorySize     int           `mapstructure:"access_history_size"`
	ErrorRateAlpha        float64       `mapstructure:"error_rate_alpha"` // EWMA smoothing
}

// Load reads options from the given config file (YAML), applying defaults
// and environment overrides, and validates the result.
func Load(path string) (*Options, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("optiq")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("OPTIQ")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine, defaults carry the engine
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &opts, nil
}

// Default returns the built-in options without touching any config file
func Default() *Options {
	v := viper.New()
	setDefaults(v)

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		panic(fmt.Sprintf("default config failed to unmarshal: %v", err))
	}
	return &opts
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", true)

	v.SetDefault("thresholds.min_executions_for_analysis", 50)
	v.SetDefault("thresholds.latency_threshold", "250ms")
	v.SetDefault("thresholds.concurrency_threshold", 20)
	v.SetDefault("thresholds.error_rate_threshold", 0.05)
	v.SetDefault("thresholds.memory_delta_ceiling", 8*1024*1024)
	v.SetDefault("thresholds.database_call_threshold", 5.0)
	v.SetDefault("thresholds.high_volume_rate", 10.0)
	v.SetDefault("thresholds.low_duration_cutoff", "50ms")
	v.SetDefault("thresholds.expected_reductions", map[string]float64{
		"enable_caching":        0.70,
		"batch_processing":      0.40,
		"parallel_processing":   0.50,
		"memory_pooling":        0.20,
		"database_optimization": 0.35,
		"circuit_breaker":       0.15,
	})

	v.SetDefault("caching.min_cache_ttl", "30s")
	v.SetDefault("caching.max_cache_ttl", "1h")
	v.SetDefault("caching.hit_rate_floor", 0.3)
	v.SetDefault("caching.regularity_cv_max", 0.5)
	v.SetDefault("caching.window_size", 50)

	v.SetDefault("learning.learning_rate", 0.1)
	v.SetDefault("learning.exploration_rate", 0.05)
	v.SetDefault("learning.confidence_floor", 0.5)
	v.SetDefault("learning.seed", 0)

	v.SetDefault("insights.interval", "1m")
	v.SetDefault("insights.window", "15m")
	v.SetDefault("insights.weights.performance", 0.3)
	v.SetDefault("insights.weights.reliability", 0.3)
	v.SetDefault("insights.weights.resource", 0.2)
	v.SetDefault("insights.weights.user_experience", 0.2)
	v.SetDefault("insights.seasonal_periods", []string{"1h", "24h"})
	v.SetDefault("insights.seasonal_min_correlation", 0.6)
	v.SetDefault("insights.bottleneck_sustain", "2m")
	v.SetDefault("insights.forecast_horizon", "5m")

	v.SetDefault("resources.pressure_fraction", 0.8)
	v.SetDefault("resources.target_utilization", 0.6)
	v.SetDefault("resources.connection_ceilings", map[string]float64{
		"db_connections":   100,
		"http_connections": 200,
	})

	v.SetDefault("engine.recommendation_refresh", "30s")
	v.SetDefault("engine.risk_ceiling", "medium")
	v.SetDefault("engine.access_history_size", 128)
	v.SetDefault("engine.error_rate_alpha", 0.1)
}

// Validate checks the options for internal consistency. This is the only
// failure path that is allowed to stop the engine from starting.
func (o *Options) Validate() error {
	var errs []string

	if o.Thresholds.MinExecutionsForAnalysis < 1 {
		errs = append(errs, "thresholds.min_executions_for_analysis must be >= 1")
	}
	if o.Thresholds.LatencyThreshold <= 0 {
		errs = append(errs, "thresholds.latency_threshold must be positive")
	}
	if o.Thresholds.ErrorRateThreshold <= 0 || o.Thresholds.ErrorRateThreshold >= 1 {
		errs = append(errs, "thresholds.error_rate_threshold must be in (0,1)")
	}
	for name, reduction := range o.Thresholds.ExpectedReductions {
		if reduction < 0 || reduction > 1 {
			errs = append(errs, fmt.Sprintf("thresholds.expected_reductions[%s] must be in [0,1]", name))
		}
	}

	if o.Caching.MinCacheTTL <= 0 {
		errs = append(errs, "caching.min_cache_ttl must be positive")
	}
	if o.Caching.MaxCacheTTL < o.Caching.MinCacheTTL {
		errs = append(errs, "caching.max_cache_ttl must be >= caching.min_cache_ttl")
	}
	if o.Caching.HitRateFloor < 0 || o.Caching.HitRateFloor > 1 {
		errs = append(errs, "caching.hit_rate_floor must be in [0,1]")
	}

	if o.Learning.LearningRate <= 0 || o.Learning.LearningRate > 1 {
		errs = append(errs, "learning.learning_rate must be in (0,1]")
	}
	if o.Learning.ExplorationRate < 0 || o.Learning.ExplorationRate > 1 {
		errs = append(errs, "learning.exploration_rate must be in [0,1]")
	}
	if o.Learning.ConfidenceFloor < 0 || o.Learning.ConfidenceFloor > 1 {
		errs = append(errs, "learning.confidence_floor must be in [0,1]")
	}

	if sum := o.Insights.Weights.Sum(); math.Abs(sum-1.0) > 1e-6 {
		errs = append(errs, fmt.Sprintf("insights.weights must sum to 1.0, got %.4f", sum))
	}
	if o.Insights.Interval <= 0 {
		errs = append(errs, "insights.interval must be positive")
	}
	if o.Insights.Window <= 0 {
		errs = append(errs, "insights.window must be positive")
	}

	if o.Resources.PressureFraction <= 0 || o.Resources.PressureFraction > 1 {
		errs = append(errs, "resources.pressure_fraction must be in (0,1]")
	}
	if o.Resources.TargetUtilization <= 0 || o.Resources.TargetUtilization >= o.Resources.PressureFraction {
		errs = append(errs, "resources.target_utilization must be in (0, pressure_fraction)")
	}

	if o.Engine.RecommendationRefresh <= 0 {
		errs = append(errs, "engine.recommendation_refresh must be positive")
	}
	switch o.Engine.RiskCeiling {
	case "low", "medium", "high":
	default:
		errs = append(errs, "engine.risk_ceiling must be one of low, medium, high")
	}
	if o.Engine.AccessHistorySize < 2 {
		errs = append(errs, "engine.access_history_size must be >= 2")
	}
	if o.Engine.ErrorRateAlpha <= 0 || o.Engine.ErrorRateAlpha > 1 {
		errs = append(errs, "engine.error_rate_alpha must be in (0,1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs)
	}
	return nil
}

// TypeEnabled reports whether a request type is opted in for monitoring.
// An empty MonitoredTypes map monitors every type.
func (o *Options) TypeEnabled(requestType string) bool {
	if !o.Enabled {
		return false
	}
	if len(o.MonitoredTypes) == 0 {
		return true
	}
	topts, ok := o.MonitoredTypes[requestType]
	return ok && topts.Enabled
}

// CachingCandidate reports whether a request type should be considered by
// the caching analysis. Types without an explicit entry are candidates;
// an entry must opt in.
func (o *Options) CachingCandidate(requestType string) bool {
	topts, ok := o.MonitoredTypes[requestType]
	if !ok {
		return true
	}
	return topts.CachingCandidate
}
