// Package pattern selects an optimization strategy for a request type
// from its rolling profile. Rules are evaluated in priority order; the
// first matching rule wins.
package pattern

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/models"
)

// Service implements the pattern analysis strategy selection
type Service struct {
	cfg    config.ThresholdConfig
	logger *logrus.Logger
}

// NewService creates a pattern analysis service
func NewService(cfg config.ThresholdConfig, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{cfg: cfg, logger: logger}
}

// Analyze produces a recommendation for one request type. It never blocks
// on I/O; on cancellation it returns the cold-start fallback rather than
// an error. latestSample may be nil when analysis runs off a timer with
// no fresh observation.
func (s *Service) Analyze(ctx context.Context, profile models.RequestTypeProfile, latestSample *models.ExecutionSample) models.OptimizationRecommendation {
	if err := ctx.Err(); err != nil {
		s.logger.WithField("request_type", profile.RequestType).
			Debug("pattern analysis cancelled, returning fallback")
		return s.none(profile, "analysis cancelled")
	}

	// Cold-start gate: no judgment without a statistical basis
	if profile.SampleCount < s.cfg.MinExecutionsForAnalysis {
		return s.none(profile, fmt.Sprintf(
			"insufficient data: %d of %d required samples",
			profile.SampleCount, s.cfg.MinExecutionsForAnalysis))
	}

	confidence := s.confidence(profile)

	if rec, ok := s.checkCircuitBreaker(profile, confidence); ok {
		return rec
	}
	if rec, ok := s.checkParallelProcessing(profile, latestSample, confidence); ok {
		return rec
	}
	if rec, ok := s.checkBatchProcessing(profile, confidence); ok {
		return rec
	}
	if rec, ok := s.checkMemoryPooling(profile, confidence); ok {
		return rec
	}
	if rec, ok := s.checkDatabaseOptimization(profile, confidence); ok {
		return rec
	}

	return s.none(profile, "no optimization trigger matched")
}

// confidence scores the statistical support behind the profile: more
// samples and lower duration variance push toward 1. Kept below 0.5 until
// the minimum-sample gate is comfortably exceeded.
func (s *Service) confidence(profile models.RequestTypeProfile) float64 {
	sampleFactor := float64(profile.SampleCount) / float64(2*s.cfg.MinExecutionsForAnalysis)
	if sampleFactor > 1.0 {
		sampleFactor = 1.0
	}

	stability := 1.0 / (1.0 + profile.CoefficientOfVariation())

	return clamp01(sampleFactor * stability)
}

func (s *Service) checkCircuitBreaker(profile models.RequestTypeProfile, confidence float64) (models.OptimizationRecommendation, bool) {
	if profile.ErrorRate <= s.cfg.ErrorRateThreshold {
		return models.OptimizationRecommendation{}, false
	}

	// Scale confidence by how far the error rate exceeds the threshold
	excess := (profile.ErrorRate - s.cfg.ErrorRateThreshold) / s.cfg.ErrorRateThreshold
	scaled := clamp01(confidence * math.Min(1.0, 0.5+0.5*excess))

	severity := math.Min(1.0, excess)
	rec := s.build(profile, models.StrategyCircuitBreaker, scaled, severity, fmt.Sprintf(
		"error rate %.1f%% exceeds %.1f%% threshold",
		profile.ErrorRate*100, s.cfg.ErrorRateThreshold*100))
	rec.Risk = models.RiskHigh
	rec.Parameters = map[string]interface{}{
		"error_rate":      profile.ErrorRate,
		"error_threshold": s.cfg.ErrorRateThreshold,
	}
	return rec, true
}

func (s *Service) checkParallelProcessing(profile models.RequestTypeProfile, latest *models.ExecutionSample, confidence float64) (models.OptimizationRecommendation, bool) {
	concurrency := profile.ConcurrencyHighWater
	if latest != nil && latest.ConcurrentCount > concurrency {
		concurrency = latest.ConcurrentCount
	}

	if profile.MeanDuration <= s.cfg.LatencyThreshold || concurrency <= s.cfg.ConcurrencyThreshold {
		return models.OptimizationRecommendation{}, false
	}

	latencyOver := float64(profile.MeanDuration)/float64(s.cfg.LatencyThreshold) - 1.0
	severity := math.Min(1.0, latencyOver)
	rec := s.build(profile, models.StrategyParallelProcessing, confidence, severity, fmt.Sprintf(
		"mean duration %v above %v with concurrency high-water %d (threshold %d)",
		profile.MeanDuration.Round(time.Millisecond), s.cfg.LatencyThreshold,
		concurrency, s.cfg.ConcurrencyThreshold))
	rec.Parameters = map[string]interface{}{
		"concurrency_high_water": concurrency,
		"suggested_parallelism":  suggestedParallelism(concurrency),
	}
	return rec, true
}

func (s *Service) checkBatchProcessing(profile models.RequestTypeProfile, confidence float64) (models.OptimizationRecommendation, bool) {
	rate := profile.CallRate()
	if rate < s.cfg.HighVolumeRate || profile.MeanDuration > s.cfg.LowDurationCutoff {
		return models.OptimizationRecommendation{}, false
	}

	severity := math.Min(1.0, rate/(2*s.cfg.HighVolumeRate))
	rec := s.build(profile, models.StrategyBatchProcessing, confidence, severity, fmt.Sprintf(
		"high volume (%.1f calls/s) of short calls (mean %v) suits batching",
		rate, profile.MeanDuration.Round(time.Millisecond)))
	rec.Parameters = map[string]interface{}{
		"observed_rate":        rate,
		"suggested_batch_size": suggestedBatchSize(rate),
	}
	return rec, true
}

func (s *Service) checkMemoryPooling(profile models.RequestTypeProfile, confidence float64) (models.OptimizationRecommendation, bool) {
	ceiling := float64(s.cfg.MemoryDeltaCeiling)
	if ceiling <= 0 || profile.MeanMemoryDelta <= ceiling {
		return models.OptimizationRecommendation{}, false
	}

	severity := math.Min(1.0, profile.MeanMemoryDelta/ceiling-1.0)
	rec := s.build(profile, models.StrategyMemoryPooling, confidence, severity, fmt.Sprintf(
		"mean allocation %.0f bytes per call exceeds %.0f ceiling",
		profile.MeanMemoryDelta, ceiling))
	rec.Parameters = map[string]interface{}{
		"mean_memory_delta": profile.MeanMemoryDelta,
	}
	return rec, true
}

func (s *Service) checkDatabaseOptimization(profile models.RequestTypeProfile, confidence float64) (models.OptimizationRecommendation, bool) {
	if profile.MeanDatabaseCalls <= s.cfg.DatabaseCallThreshold {
		return models.OptimizationRecommendation{}, false
	}

	severity := math.Min(1.0, profile.MeanDatabaseCalls/s.cfg.DatabaseCallThreshold-1.0)
	rec := s.build(profile, models.StrategyDatabaseOptimization, confidence, severity, fmt.Sprintf(
		"%.1f database calls per request (threshold %.1f)",
		profile.MeanDatabaseCalls, s.cfg.DatabaseCallThreshold))
	rec.Parameters = map[string]interface{}{
		"mean_database_calls": profile.MeanDatabaseCalls,
	}
	return rec, true
}

// build assembles a recommendation with improvement, priority and risk
// derived from the chosen strategy, confidence and severity.
func (s *Service) build(profile models.RequestTypeProfile, strategy models.Strategy, confidence, severity float64, reasoning string) models.OptimizationRecommendation {
	reduction := s.cfg.ExpectedReductions[string(strategy)]

	gainPercent := clamp(reduction*(0.5+0.5*severity)*100, 0, 100)
	improvement := time.Duration(float64(profile.MeanDuration) * gainPercent / 100)

	return models.OptimizationRecommendation{
		ID:                   uuid.New().String(),
		RequestType:          profile.RequestType,
		Strategy:             strategy,
		Confidence:           clamp01(confidence),
		SampleCount:          profile.SampleCount,
		EstimatedImprovement: improvement,
		EstimatedGainPercent: gainPercent,
		Priority:             priorityFor(confidence, gainPercent),
		Risk:                 s.riskFor(strategy, confidence, profile.SampleCount),
		Reasoning:            reasoning,
		GeneratedAt:          time.Now(),
	}
}

// none is the first-class insufficient-data / no-trigger result
func (s *Service) none(profile models.RequestTypeProfile, reasoning string) models.OptimizationRecommendation {
	return models.OptimizationRecommendation{
		ID:          uuid.New().String(),
		RequestType: profile.RequestType,
		Strategy:    models.StrategyNone,
		Confidence:  0.0,
		SampleCount: profile.SampleCount,
		Priority:    models.PriorityLow,
		Risk:        models.RiskLow,
		Reasoning:   reasoning,
		GeneratedAt: time.Now(),
	}
}

// priorityFor ranks a recommendation by confidence-weighted gain
func priorityFor(confidence, gainPercent float64) models.PriorityTier {
	score := confidence * gainPercent / 100
	switch {
	case score >= 0.5:
		return models.PriorityCritical
	case score >= 0.3:
		return models.PriorityHigh
	case score >= 0.1:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// baseRisk is the static per-strategy risk before confidence adjustment
var baseRisk = map[models.Strategy]models.RiskTier{
	models.StrategyEnableCaching:        models.RiskLow,
	models.StrategyBatchProcessing:      models.RiskMedium,
	models.StrategyParallelProcessing:   models.RiskMedium,
	models.StrategyMemoryPooling:        models.RiskMedium,
	models.StrategyDatabaseOptimization: models.RiskLow,
	models.StrategyCircuitBreaker:       models.RiskHigh,
}

// riskFor adjusts the strategy's base risk upward when the statistical
// support is thin.
func (s *Service) riskFor(strategy models.Strategy, confidence float64, sampleCount int64) models.RiskTier {
	risk, ok := baseRisk[strategy]
	if !ok {
		risk = models.RiskMedium
	}

	thin := confidence < 0.4 || sampleCount < 2*s.cfg.MinExecutionsForAnalysis
	if thin {
		switch risk {
		case models.RiskLow:
			risk = models.RiskMedium
		case models.RiskMedium:
			risk = models.RiskHigh
		}
	}
	return risk
}

func suggestedParallelism(concurrency int) int {
	p := concurrency / 4
	if p < 2 {
		p = 2
	}
	if p > 32 {
		p = 32
	}
	return p
}

func suggestedBatchSize(rate float64) int {
	size := int(rate / 2)
	if size < 10 {
		size = 10
	}
	if size > 500 {
		size = 500
	}
	return size
}

func clamp01(v float64) float64 {
	return clamp(v, 0.0, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
