// Package insights aggregates per-type profiles into system-wide reports:
// bottlenecks, opportunities, a weighted health score, seasonality and a
// short-horizon forecast. Aggregation runs on its own timer, never on the
// request hot path.
package insights

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/learning"
	"github.com/optiq-labs/optiq/pkg/models"
)

// seriesCapacity bounds the retained per-metric cycle history
const seriesCapacity = 2048

// Aggregator builds SystemPerformanceInsights snapshots. Each Generate
// call appends the current cycle's system metrics to its internal series
// and regenerates the snapshot wholesale.
type Aggregator struct {
	opts   *config.Options
	logger *logrus.Logger

	mu         sync.Mutex
	series     map[string][]float64
	cusums     map[string]*learning.CUSUM
	exceeded   map[string]time.Time // metric key -> first time seen above threshold
	forecaster *learning.Forecaster

	last *models.SystemPerformanceInsights
}

// NewAggregator creates an insights aggregator
func NewAggregator(opts *config.Options, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{
		opts:       opts,
		logger:     logger,
		series:     make(map[string][]float64),
		cusums:     make(map[string]*learning.CUSUM),
		exceeded:   make(map[string]time.Time),
		forecaster: learning.NewForecaster(seriesCapacity),
	}
}

// Generate builds a point-in-time snapshot from the current profiles, the
// engine's cached recommendations (with applied flags) and the latest
// resource analysis. On cancellation it returns the last-known-good
// snapshot rather than an error.
func (a *Aggregator) Generate(
	ctx context.Context,
	window time.Duration,
	profiles []models.RequestTypeProfile,
	recommendations []models.OptimizationRecommendation,
	applied map[string]bool,
	resourceResult models.ResourceOptimizationResult,
) *models.SystemPerformanceInsights {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		a.logger.Debug("insight generation cancelled, returning last snapshot")
		return a.last
	}

	now := time.Now()

	meanLatency, errorRate, p95Latency := systemAverages(profiles)
	a.appendSeries("mean_latency_ms", meanLatency*1000)
	a.appendSeries("error_rate", errorRate)
	a.forecaster.AddObservation(meanLatency * 1000)

	snapshot := &models.SystemPerformanceInsights{
		ID:               uuid.New().String(),
		Window:           window,
		Bottlenecks:      a.detectBottlenecks(profiles, now),
		Opportunities:    a.detectOpportunities(recommendations, applied),
		Health:           a.healthScore(profiles, resourceResult, meanLatency, errorRate, p95Latency),
		SeasonalPatterns: a.detectSeasonality(),
		Prediction:       a.predict(),
		Metrics: map[string]float64{
			"tracked_types":   float64(len(profiles)),
			"mean_latency_ms": meanLatency * 1000,
			"p95_latency_ms":  p95Latency * 1000,
			"error_rate":      errorRate,
		},
		GeneratedAt: now,
	}

	a.last = snapshot
	return snapshot
}

// Latest returns the last generated snapshot, or nil before the first cycle
func (a *Aggregator) Latest() *models.SystemPerformanceInsights {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Reset clears all series history and the cached snapshot
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.series = make(map[string][]float64)
	a.cusums = make(map[string]*learning.CUSUM)
	a.exceeded = make(map[string]time.Time)
	a.forecaster.Reset()
	a.last = nil
}

func (a *Aggregator) appendSeries(metric string, value float64) {
	s := append(a.series[metric], value)
	if len(s) > seriesCapacity {
		s = s[len(s)-seriesCapacity:]
	}
	a.series[metric] = s
}

// detectBottlenecks flags per-type metrics sustained above their
// thresholds. A CUSUM shift on the same metric strengthens the severity;
// the sustain requirement filters one-cycle spikes.
func (a *Aggregator) detectBottlenecks(profiles []models.RequestTypeProfile, now time.Time) []models.Bottleneck {
	var bottlenecks []models.Bottleneck

	latencyThreshold := a.opts.Thresholds.LatencyThreshold.Seconds()
	errorThreshold := a.opts.Thresholds.ErrorRateThreshold

	for _, p := range profiles {
		if p.SampleCount < a.opts.Thresholds.MinExecutionsForAnalysis {
			continue
		}

		if b, ok := a.checkMetric(p.RequestType, "mean_latency", p.MeanDuration.Seconds(), latencyThreshold, now); ok {
			b.Description = fmt.Sprintf("mean latency %v sustained above %v",
				p.MeanDuration.Round(time.Millisecond), a.opts.Thresholds.LatencyThreshold)
			bottlenecks = append(bottlenecks, b)
		}
		if b, ok := a.checkMetric(p.RequestType, "error_rate", p.ErrorRate, errorThreshold, now); ok {
			b.Description = fmt.Sprintf("error rate %.1f%% sustained above %.1f%%",
				p.ErrorRate*100, errorThreshold*100)
			bottlenecks = append(bottlenecks, b)
		}
	}

	sort.Slice(bottlenecks, func(i, j int) bool {
		return bottlenecks[i].Severity > bottlenecks[j].Severity
	})
	return bottlenecks
}

// checkMetric tracks how long a metric has been over its threshold and
// reports it once the overshoot has been sustained long enough.
func (a *Aggregator) checkMetric(requestType, metric string, current, threshold float64, now time.Time) (models.Bottleneck, bool) {
	key := requestType + "/" + metric

	cusum, ok := a.cusums[key]
	if !ok {
		cusum = learning.NewCUSUM()
		a.cusums[key] = cusum
	}
	shift := cusum.Update(current, now)

	if threshold <= 0 || current <= threshold {
		delete(a.exceeded, key)
		return models.Bottleneck{}, false
	}

	first, ok := a.exceeded[key]
	if !ok {
		first = now
		a.exceeded[key] = first
	}
	sustained := now.Sub(first)
	if sustained < a.opts.Insights.BottleneckSustain {
		return models.Bottleneck{}, false
	}

	// Severity proportional to the overshoot, reinforced by an upward
	// CUSUM shift on the same metric
	severity := clamp01((current - threshold) / threshold)
	if shift.Direction == learning.ShiftUpward {
		severity = clamp01(severity + 0.1*shift.Severity)
	}

	return models.Bottleneck{
		RequestType: requestType,
		Metric:      metric,
		Current:     current,
		Threshold:   threshold,
		Severity:    severity,
		SustainedIn: sustained,
	}, true
}

// detectOpportunities surfaces confident, unapplied recommendations
// ranked by expected gain.
func (a *Aggregator) detectOpportunities(recommendations []models.OptimizationRecommendation, applied map[string]bool) []models.Opportunity {
	floor := a.opts.Learning.ConfidenceFloor

	var opportunities []models.Opportunity
	for _, rec := range recommendations {
		if !rec.IsActionable() || rec.Confidence < floor || applied[rec.RequestType] {
			continue
		}
		opportunities = append(opportunities, models.Opportunity{
			RequestType:          rec.RequestType,
			Strategy:             rec.Strategy,
			Confidence:           rec.Confidence,
			EstimatedGainPercent: rec.EstimatedGainPercent,
			Reasoning:            rec.Reasoning,
		})
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].EstimatedGainPercent > opportunities[j].EstimatedGainPercent
	})
	return opportunities
}

// healthScore combines the four [0,100] sub-scores using the configured
// weights. Weight validity is enforced at config load, not here.
func (a *Aggregator) healthScore(profiles []models.RequestTypeProfile, resourceResult models.ResourceOptimizationResult, meanLatency, errorRate, p95Latency float64) models.HealthScore {
	latencyThreshold := a.opts.Thresholds.LatencyThreshold.Seconds()
	errorThreshold := a.opts.Thresholds.ErrorRateThreshold

	performance := 100.0
	if len(profiles) > 0 && meanLatency > 0 && latencyThreshold > 0 {
		performance = 100 * clamp01(latencyThreshold/meanLatency)
	}

	reliability := 100.0
	if errorThreshold > 0 {
		reliability = 100 * clamp01(1-errorRate/(2*errorThreshold))
	}

	resourceScore := 100.0
	if len(resourceResult.UtilizationRatios) > 0 {
		worst := 0.0
		for _, ratio := range resourceResult.UtilizationRatios {
			if ratio > worst {
				worst = ratio
			}
		}
		resourceScore = 100 * clamp01(1-worst)
		if resourceResult.ShouldOptimize {
			resourceScore = clamp(resourceScore, 0, 60)
		}
	}

	// Tail latency as the user-experience proxy
	userExperience := 100.0
	if p95Latency > 0 && latencyThreshold > 0 {
		userExperience = 100 * clamp01(2*latencyThreshold/p95Latency)
		if userExperience > 100 {
			userExperience = 100
		}
	}

	w := a.opts.Insights.Weights
	overall := w.Performance*performance +
		w.Reliability*reliability +
		w.Resource*resourceScore +
		w.UserExperience*userExperience

	return models.HealthScore{
		Overall:        clamp(overall, 0, 100),
		Performance:    clamp(performance, 0, 100),
		Reliability:    clamp(reliability, 0, 100),
		ResourceUsage:  clamp(resourceScore, 0, 100),
		UserExperience: clamp(userExperience, 0, 100),
	}
}

// detectSeasonality tests each candidate period by autocorrelation of the
// latency series at lag = period / cycle interval.
func (a *Aggregator) detectSeasonality() []models.SeasonalPattern {
	series := a.series["mean_latency_ms"]
	interval := a.opts.Insights.Interval
	if interval <= 0 || len(series) == 0 {
		return nil
	}

	var patterns []models.SeasonalPattern
	for _, period := range a.opts.Insights.SeasonalPeriods {
		lag := int(period / interval)
		if lag <= 0 || len(series) <= lag+1 {
			continue
		}

		strength := learning.Autocorrelation(series, lag)
		if strength < a.opts.Insights.SeasonalMinCorrelation {
			continue
		}

		patterns = append(patterns, models.SeasonalPattern{
			Metric:   "mean_latency_ms",
			Type:     classifyPeriod(period),
			Period:   period,
			Strength: clamp01(strength),
		})
	}
	return patterns
}

func classifyPeriod(period time.Duration) models.SeasonalPatternType {
	switch {
	case period == time.Hour:
		return models.SeasonalHourly
	case period == 24*time.Hour:
		return models.SeasonalDaily
	case period == 7*24*time.Hour:
		return models.SeasonalWeekly
	default:
		return models.SeasonalCustom
	}
}

// predict extrapolates the latency trend over the configured horizon
func (a *Aggregator) predict() models.PredictiveAnalysis {
	horizon := a.opts.Insights.ForecastHorizon
	interval := a.opts.Insights.Interval

	steps := 1
	if interval > 0 && horizon > interval {
		steps = int(horizon / interval)
	}

	forecast, confidence, err := a.forecaster.Forecast(steps)
	if err != nil {
		return models.PredictiveAnalysis{
			Metric:  "mean_latency_ms",
			Horizon: horizon,
			Trend:   learning.TrendNone.String(),
		}
	}

	return models.PredictiveAnalysis{
		Metric:     "mean_latency_ms",
		Forecast:   forecast,
		Confidence: confidence,
		Horizon:    horizon,
		Trend:      a.forecaster.Trend().String(),
	}
}

// systemAverages computes sample-weighted mean latency, error rate and a
// p95 proxy (mean + 1.645 stddev) across all profiles, in seconds.
func systemAverages(profiles []models.RequestTypeProfile) (meanLatency, errorRate, p95Latency float64) {
	var totalSamples int64
	for _, p := range profiles {
		totalSamples += p.SampleCount
	}
	if totalSamples == 0 {
		return 0, 0, 0
	}

	for _, p := range profiles {
		weight := float64(p.SampleCount) / float64(totalSamples)
		meanLatency += weight * p.MeanDuration.Seconds()
		errorRate += weight * p.ErrorRate
		p95Latency += weight * (p.MeanDuration.Seconds() + 1.645*p.DurationStdDev.Seconds())
	}
	return meanLatency, errorRate, p95Latency
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
