// Package engine is the externally visible entry point of the adaptive
// optimization decision engine. It coordinates the analytics store, the
// analysis services, the learning feedback loop and the insights
// aggregator. The engine is advisory: it accepts telemetry and returns
// recommendations, but never executes an optimization, performs I/O, or
// lets an internal failure reach the caller's request path.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/pkg/analytics"
	"github.com/optiq-labs/optiq/pkg/caching"
	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/insights"
	"github.com/optiq-labs/optiq/pkg/learning"
	"github.com/optiq-labs/optiq/pkg/models"
	"github.com/optiq-labs/optiq/pkg/pattern"
	"github.com/optiq-labs/optiq/pkg/resource"
)

// Sink receives the engine's outputs for external consumption (e.g. a
// history store or notification pipeline). Implementations are invoked
// off the hot path and must tolerate concurrent calls.
type Sink interface {
	PublishRecommendation(rec models.OptimizationRecommendation)
	PublishInsights(snapshot *models.SystemPerformanceInsights)
	PublishReconciliation(requestType string, applied []models.AppliedStrategy, observed models.ObservedMetrics)
}

// Engine is the facade coordinating all analysis components
type Engine struct {
	opts   *config.Options
	logger *logrus.Logger

	store       *analytics.Store
	patternSvc  *pattern.Service
	cachingSvc  *caching.Service
	resourceSvc *resource.Service
	loop        *learning.FeedbackLoop
	aggregator  *insights.Aggregator

	// Cached recommendations, one immutable value per request type,
	// replaced atomically. Readers see the previous or the newest
	// complete recommendation, never a partial one.
	recommendations sync.Map // string -> *models.OptimizationRecommendation

	accessMu sync.Mutex
	accesses map[string][]models.AccessPattern

	appliedMu sync.Mutex
	applied   map[string]bool

	resourceMu   sync.Mutex
	lastResource models.ResourceOptimizationResult

	analysisFailures atomic.Int64

	scheduler *cron.Cron
	sink      Sink
}

// New creates an engine from validated options. Configuration problems
// are the only startup failure: they fail fast, before any traffic.
func New(opts *config.Options, logger *logrus.Logger) (*Engine, error) {
	return NewWithSource(opts, logger, nil)
}

// NewWithSource creates an engine with an explicit randomness source for
// the exploration policy, so tests can pin its behavior.
func NewWithSource(opts *config.Options, logger *logrus.Logger, source rand.Source) (*Engine, error) {
	if opts == nil {
		return nil, fmt.Errorf("options are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	e := &Engine{
		opts:        opts,
		logger:      logger,
		store:       analytics.NewStore(opts.Engine.ErrorRateAlpha, opts.Engine.AccessHistorySize, logger),
		patternSvc:  pattern.NewService(opts.Thresholds, logger),
		cachingSvc:  caching.NewService(opts.Caching, logger),
		resourceSvc: resource.NewService(opts.Resources),
		loop:        learning.NewFeedbackLoop(opts.Learning, logger, source),
		aggregator:  insights.NewAggregator(opts, logger),
		accesses:    make(map[string][]models.AccessPattern),
		applied:     make(map[string]bool),
	}
	return e, nil
}

// SetSink attaches an output consumer. Pass nil to detach.
func (e *Engine) SetSink(sink Sink) {
	e.sink = sink
}

// Record ingests one execution sample. This is the hot-path write: it
// only touches the store's single-shard lock and never computes analysis.
func (e *Engine) Record(sample models.ExecutionSample) {
	if !e.opts.TypeEnabled(sample.RequestType) {
		return
	}
	e.store.Record(sample)
}

// ObserveAccess feeds an access event for cache-worthiness analysis. The
// per-type history is bounded by the configured access history size.
func (e *Engine) ObserveAccess(requestType string, access models.AccessPattern) {
	if !e.opts.TypeEnabled(requestType) {
		return
	}

	e.accessMu.Lock()
	defer e.accessMu.Unlock()

	history := append(e.accesses[requestType], access)
	if limit := e.opts.Engine.AccessHistorySize; len(history) > limit {
		history = history[len(history)-limit:]
	}
	e.accesses[requestType] = history
}

// Recommendation returns the cached recommendation for a request type,
// computing one on first request. The hot path never waits on a refresh:
// once cached, the value is reused until the background cycle replaces it.
func (e *Engine) Recommendation(ctx context.Context, requestType string) models.OptimizationRecommendation {
	if cached, ok := e.recommendations.Load(requestType); ok {
		return *cached.(*models.OptimizationRecommendation)
	}
	return e.refresh(ctx, requestType)
}

// refresh recomputes and caches one type's recommendation. All analysis
// failures are contained here: the caller gets a None recommendation (or
// the previous cached one) rather than an error.
func (e *Engine) refresh(ctx context.Context, requestType string) (rec models.OptimizationRecommendation) {
	defer func() {
		if r := recover(); r != nil {
			e.analysisFailures.Add(1)
			e.logger.WithFields(logrus.Fields{
				"request_type": requestType,
				"panic":        r,
			}).Error("analysis failed, substituting safe recommendation")
			rec = e.fallback(requestType)
		}
	}()

	profile, ok := e.store.Snapshot(requestType)
	if !ok {
		// Cache the empty result too, so hot callers of a never-observed
		// type do not regenerate and republish it on every request
		rec = noneRecommendation(requestType, 0, "no samples observed")
		e.recommendations.Store(requestType, &rec)
		e.publish(rec)
		return rec
	}

	rec = e.patternSvc.Analyze(ctx, profile, nil)

	// The cold-start gate applies to every analysis: below the minimum
	// sample count the pattern service already returned its fallback, and
	// the caching analysis must not run either. Types can additionally be
	// excluded from caching consideration by configuration.
	if profile.SampleCount >= e.opts.Thresholds.MinExecutionsForAnalysis && e.opts.CachingCandidate(requestType) {
		accesses := e.accessSnapshot(requestType)
		cacheRec := e.cachingSvc.Analyze(ctx, profile, accesses)
		rec = pickBetter(rec, cacheRec)
	}

	// Blend the learned confidence weight for this (type, strategy)
	// pair: a neutral weight of 0.5 leaves the analysis confidence
	// untouched
	if rec.IsActionable() {
		weight := e.loop.ConfidenceWeight(requestType, rec.Strategy)
		rec.Confidence = clamp01(rec.Confidence * (0.5 + weight))

		if substituted, explored := e.loop.ChooseStrategy(requestType, rec.Strategy); explored {
			rec = e.exploratory(rec, substituted)
		}

		rec.AutoApply = !rec.Risk.Exceeds(models.RiskTier(e.opts.Engine.RiskCeiling))

		e.loop.RecordPrediction(requestType, rec, profile)
	}

	// A cancelled cycle yields partial results: discard them instead of
	// overwriting the last complete recommendation
	if ctx.Err() != nil {
		if cached, ok := e.recommendations.Load(requestType); ok {
			return *cached.(*models.OptimizationRecommendation)
		}
		return rec
	}

	e.recommendations.Store(requestType, &rec)
	e.publish(rec)
	return rec
}

// fallback keeps the last-known-good recommendation when analysis blows
// up, falling back to None for never-analyzed types.
func (e *Engine) fallback(requestType string) models.OptimizationRecommendation {
	if cached, ok := e.recommendations.Load(requestType); ok {
		return *cached.(*models.OptimizationRecommendation)
	}
	rec := noneRecommendation(requestType, 0, "analysis failure, no recommendation available")
	e.recommendations.Store(requestType, &rec)
	return rec
}

// exploratory rewrites a recommendation around a substituted strategy so
// the caller can gather comparative data on alternatives.
func (e *Engine) exploratory(rec models.OptimizationRecommendation, substituted models.Strategy) models.OptimizationRecommendation {
	rec.ID = uuid.New().String()
	rec.Reasoning = fmt.Sprintf("exploratory substitution of %s (top-ranked: %s)", substituted, rec.Strategy)
	rec.Strategy = substituted
	rec.Confidence = clamp01(rec.Confidence * 0.5)
	rec.Priority = models.PriorityLow
	rec.Risk = models.RiskHigh
	rec.Parameters = map[string]interface{}{"exploration": true}
	rec.GeneratedAt = time.Now()
	return rec
}

// RefreshAll recomputes recommendations for every tracked type. Invoked
// by the background scheduler; callers may also force it.
func (e *Engine) RefreshAll(ctx context.Context) {
	for _, requestType := range e.store.TrackedTypes() {
		if ctx.Err() != nil {
			return
		}
		e.refresh(ctx, requestType)
	}
}

// Reconcile reports what was actually applied for a request type and the
// resulting metrics. It never returns an error: the feedback loop logs
// and skips anything it cannot use.
func (e *Engine) Reconcile(requestType string, applied []models.AppliedStrategy, observed models.ObservedMetrics) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"request_type": requestType,
				"panic":        r,
			}).Error("reconciliation failed, skipping")
		}
	}()

	e.loop.Reconcile(requestType, applied, observed)

	actionable := false
	for _, a := range applied {
		if a.Strategy != models.StrategyNone && a.Strategy.IsValid() {
			actionable = true
			break
		}
	}
	if actionable {
		e.appliedMu.Lock()
		e.applied[requestType] = true
		e.appliedMu.Unlock()
	}

	if e.sink != nil {
		e.sink.PublishReconciliation(requestType, applied, observed)
	}
}

// AnalyzeResources runs the stateless resource analysis and retains the
// result for the next insights cycle.
func (e *Engine) AnalyzeResources(current, capacity map[string]float64) models.ResourceOptimizationResult {
	result := e.resourceSvc.Analyze(current, capacity)

	e.resourceMu.Lock()
	e.lastResource = result
	e.resourceMu.Unlock()

	return result
}

// GenerateInsights runs one aggregation cycle and returns the snapshot.
// Cycle failures keep the previous snapshot; the scheduler's next tick is
// unaffected.
func (e *Engine) GenerateInsights(ctx context.Context) (snapshot *models.SystemPerformanceInsights) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("panic", r).Error("insight generation failed, keeping last snapshot")
			snapshot = e.aggregator.Latest()
		}
	}()

	profiles := e.store.SnapshotAll()
	recs := e.cachedRecommendations()

	e.appliedMu.Lock()
	applied := make(map[string]bool, len(e.applied))
	for k, v := range e.applied {
		applied[k] = v
	}
	e.appliedMu.Unlock()

	e.resourceMu.Lock()
	resourceResult := e.lastResource
	e.resourceMu.Unlock()

	snapshot = e.aggregator.Generate(ctx, e.opts.Insights.Window, profiles, recs, applied, resourceResult)

	if snapshot != nil && e.sink != nil {
		e.sink.PublishInsights(snapshot)
	}
	return snapshot
}

// Insights returns the most recent snapshot, generating one if no cycle
// has run yet.
func (e *Engine) Insights(ctx context.Context) *models.SystemPerformanceInsights {
	if latest := e.aggregator.Latest(); latest != nil {
		return latest
	}
	return e.GenerateInsights(ctx)
}

// Statistics summarizes the engine's internal state for observability
func (e *Engine) Statistics() models.ModelStatistics {
	samplesByType := make(map[string]int64)
	for _, p := range e.store.SnapshotAll() {
		samplesByType[p.RequestType] = p.SampleCount
	}

	reconciliations, explorations := e.loop.Stats()
	weights := e.loop.Weights()
	sort.Slice(weights, func(i, j int) bool {
		if weights[i].RequestType != weights[j].RequestType {
			return weights[i].RequestType < weights[j].RequestType
		}
		return weights[i].Strategy < weights[j].Strategy
	})

	return models.ModelStatistics{
		TrackedTypes:      len(samplesByType),
		TotalSamples:      e.store.TotalSamples(),
		SamplesByType:     samplesByType,
		Reconciliations:   reconciliations,
		ExplorationCount:  explorations,
		AnalysisFailures:  e.analysisFailures.Load(),
		ConfidenceWeights: weights,
		GeneratedAt:       time.Now(),
	}
}

// Reset atomically clears all profiles, caches and learned state
func (e *Engine) Reset() {
	e.store.Reset()
	e.cachingSvc.Reset()
	e.loop.Reset()
	e.aggregator.Reset()

	e.recommendations.Range(func(key, _ interface{}) bool {
		e.recommendations.Delete(key)
		return true
	})

	e.accessMu.Lock()
	e.accesses = make(map[string][]models.AccessPattern)
	e.accessMu.Unlock()

	e.appliedMu.Lock()
	e.applied = make(map[string]bool)
	e.appliedMu.Unlock()

	e.resourceMu.Lock()
	e.lastResource = models.ResourceOptimizationResult{}
	e.resourceMu.Unlock()

	e.analysisFailures.Store(0)
}

func (e *Engine) cachedRecommendations() []models.OptimizationRecommendation {
	var recs []models.OptimizationRecommendation
	e.recommendations.Range(func(_, value interface{}) bool {
		recs = append(recs, *value.(*models.OptimizationRecommendation))
		return true
	})
	return recs
}

func (e *Engine) accessSnapshot(requestType string) []models.AccessPattern {
	e.accessMu.Lock()
	defer e.accessMu.Unlock()

	history := e.accesses[requestType]
	out := make([]models.AccessPattern, len(history))
	copy(out, history)
	return out
}

func (e *Engine) publish(rec models.OptimizationRecommendation) {
	if e.sink != nil {
		e.sink.PublishRecommendation(rec)
	}
}

// pickBetter chooses between the pattern and caching analyses: an
// actionable result beats None, and between two actionable results the
// higher confidence-weighted gain wins.
func pickBetter(a, b models.OptimizationRecommendation) models.OptimizationRecommendation {
	if !b.IsActionable() {
		return a
	}
	if !a.IsActionable() {
		return b
	}
	if b.Confidence*b.EstimatedGainPercent > a.Confidence*a.EstimatedGainPercent {
		return b
	}
	return a
}

func noneRecommendation(requestType string, sampleCount int64, reasoning string) models.OptimizationRecommendation {
	return models.OptimizationRecommendation{
		ID:          uuid.New().String(),
		RequestType: requestType,
		Strategy:    models.StrategyNone,
		Confidence:  0.0,
		SampleCount: sampleCount,
		Priority:    models.PriorityLow,
		Risk:        models.RiskLow,
		Reasoning:   reasoning,
		GeneratedAt: time.Now(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
