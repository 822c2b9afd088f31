// Package caching judges whether a request type's access pattern is worth
// caching, and with what TTL, scope and key strategy.
package caching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/models"
)

// Service implements the caching analysis. It keeps one CachingProfile
// per request type, updated on every analysis pass.
type Service struct {
	cfg    config.CachingConfig
	logger *logrus.Logger

	mu       sync.RWMutex
	profiles map[string]models.CachingProfile
}

// NewService creates a caching analysis service
func NewService(cfg config.CachingConfig, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		profiles: make(map[string]models.CachingProfile),
	}
}

// Analyze evaluates cache-worthiness for one request type from its ordered
// access events. The recommended TTL is always clamped to the configured
// [MinCacheTTL, MaxCacheTTL] bound.
func (s *Service) Analyze(ctx context.Context, profile models.RequestTypeProfile, accesses []models.AccessPattern) models.OptimizationRecommendation {
	if err := ctx.Err(); err != nil {
		return s.none(profile, "analysis cancelled")
	}

	if len(accesses) < 3 {
		return s.none(profile, fmt.Sprintf(
			"insufficient access history: %d events, need at least 3", len(accesses)))
	}

	intervals := accessIntervals(accesses)
	cv := coefficientOfVariation(intervals)
	hitRate := s.predictHitRate(accesses)
	ttl := s.recommendTTL(intervals)
	scope, keyStrategy := s.classifyShape(accesses)

	caching := models.CachingProfile{
		RequestType:      profile.RequestType,
		AccessIntervals:  intervals,
		PredictedHitRate: hitRate,
		RecommendedTTL:   ttl,
		Scope:            scope,
		KeyStrategy:      keyStrategy,
		LastAnalyzed:     time.Now(),
	}

	s.mu.Lock()
	s.profiles[profile.RequestType] = caching
	s.mu.Unlock()

	if hitRate < s.cfg.HitRateFloor {
		return s.none(profile, fmt.Sprintf(
			"predicted hit rate %.0f%% below %.0f%% floor",
			hitRate*100, s.cfg.HitRateFloor*100))
	}

	// Regularity factor: periodic access keeps confidence high, erratic
	// intervals discount it
	regularity := 1.0
	if cv > s.cfg.RegularityCVMax && cv > 0 {
		regularity = s.cfg.RegularityCVMax / cv
	}
	confidence := clamp01(hitRate * regularity)

	gainPercent := clamp(hitRate*70, 0, 100)
	improvement := time.Duration(float64(profile.MeanDuration) * gainPercent / 100)

	return models.OptimizationRecommendation{
		ID:                   uuid.New().String(),
		RequestType:          profile.RequestType,
		Strategy:             models.StrategyEnableCaching,
		Confidence:           confidence,
		SampleCount:          profile.SampleCount,
		EstimatedImprovement: improvement,
		EstimatedGainPercent: gainPercent,
		Priority:             priorityFor(confidence, gainPercent),
		Risk:                 models.RiskLow,
		Reasoning: fmt.Sprintf(
			"predicted hit rate %.0f%%, interval CV %.2f, recommended TTL %v (%s, %s keys)",
			hitRate*100, cv, ttl, scope, keyStrategy),
		Parameters: map[string]interface{}{
			"ttl":          ttl,
			"scope":        string(scope),
			"key_strategy": string(keyStrategy),
			"hit_rate":     hitRate,
		},
		GeneratedAt: time.Now(),
	}
}

// Profile returns the last computed caching profile for a request type
func (s *Service) Profile(requestType string) (models.CachingProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[requestType]
	return p, ok
}

// Reset clears all caching state
func (s *Service) Reset() {
	s.mu.Lock()
	s.profiles = make(map[string]models.CachingProfile)
	s.mu.Unlock()
}

// predictHitRate estimates the fraction of accesses inside a sliding
// window that repeat an already-seen key shape.
func (s *Service) predictHitRate(accesses []models.AccessPattern) float64 {
	window := s.cfg.WindowSize
	if window < 2 {
		window = 2
	}

	hits := 0
	seen := make(map[string]int) // key shape -> count inside window

	for i, access := range accesses {
		if seen[access.KeyShape] > 0 {
			hits++
		}
		seen[access.KeyShape]++

		// Slide: evict the access falling out of the window
		if i >= window {
			old := accesses[i-window].KeyShape
			seen[old]--
			if seen[old] == 0 {
				delete(seen, old)
			}
		}
	}

	return float64(hits) / float64(len(accesses))
}

// recommendTTL picks the median inter-access interval, clamped to the
// configured bounds. The clamp is a hard invariant.
func (s *Service) recommendTTL(intervals []time.Duration) time.Duration {
	ttl := median(intervals)

	if ttl < s.cfg.MinCacheTTL {
		ttl = s.cfg.MinCacheTTL
	}
	if ttl > s.cfg.MaxCacheTTL {
		ttl = s.cfg.MaxCacheTTL
	}
	return ttl
}

// classifyShape chooses cache scope and key strategy from the access
// pattern shape: many distinct keys with little per-key repeat push toward
// normalized keys in a distributed cache, few hot keys stay exact and
// instance-local.
func (s *Service) classifyShape(accesses []models.AccessPattern) (models.CacheScope, models.KeyStrategy) {
	counts := make(map[string]int)
	for _, a := range accesses {
		counts[a.KeyShape]++
	}

	cardinality := float64(len(counts)) / float64(len(accesses))
	meanRepeat := float64(len(accesses)) / float64(len(counts))

	if cardinality > 0.5 && meanRepeat < 2 {
		return models.CacheScopeDistributed, models.KeyStrategyNormalized
	}
	return models.CacheScopeInstance, models.KeyStrategyExact
}

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

func accessIntervals(accesses []models.AccessPattern) []time.Duration {
	sorted := make([]models.AccessPattern, len(accesses))
	copy(sorted, accesses)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	intervals := make([]time.Duration, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Timestamp.Sub(sorted[i-1].Timestamp))
	}
	return intervals
}

func coefficientOfVariation(intervals []time.Duration) float64 {
	if len(intervals) < 2 {
		return 0.0
	}

	mean := 0.0
	for _, iv := range intervals {
		mean += iv.Seconds()
	}
	mean /= float64(len(intervals))
	if mean == 0 {
		return 0.0
	}

	variance := 0.0
	for _, iv := range intervals {
		d := iv.Seconds() - mean
		variance += d * d
	}
	variance /= float64(len(intervals) - 1)

	return math.Sqrt(variance) / mean
}

func median(intervals []time.Duration) time.Duration {
	if len(intervals) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

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

func clamp01(v float64) float64 {
	return clamp(v, 0.0, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
