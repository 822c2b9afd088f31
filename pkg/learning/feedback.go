// Package learning closes the loop between the engine's predictions and
// what actually happened after a strategy was applied. "Learning" here is
// heuristic confidence adjustment (moving averages and sample-count
// gating), not numerical optimization.
package learning

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/models"
)

// initialWeight is the neutral confidence weight for an unobserved
// (request type, strategy) pair.
const initialWeight = 0.5

// prediction remembers what the engine last recommended for a type, plus
// the baseline it was judged against.
type prediction struct {
	strategy          models.Strategy
	baselineDuration  time.Duration
	baselineErrorRate float64
	recordedAt        time.Time
}

// FeedbackLoop reconciles predicted strategies against reported outcomes
// and maintains per-(type, strategy) confidence weights. It never raises
// to the caller: reconciliation failures are logged and skipped.
type FeedbackLoop struct {
	cfg     config.LearningConfig
	logger  *logrus.Logger
	sampler *StrategySampler

	mu          sync.Mutex
	weights     map[string]map[models.Strategy]*EWMA
	predictions map[string]prediction

	reconciliations int64
	explorations    int64
}

// NewFeedbackLoop creates a feedback loop. A nil source uses the
// configured seed, or the clock when the seed is zero.
func NewFeedbackLoop(cfg config.LearningConfig, logger *logrus.Logger, source rand.Source) *FeedbackLoop {
	if logger == nil {
		logger = logrus.New()
	}
	if source == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		source = rand.NewSource(seed)
	}
	return &FeedbackLoop{
		cfg:         cfg,
		logger:      logger,
		sampler:     NewStrategySampler(cfg.ExplorationRate, source),
		weights:     make(map[string]map[models.Strategy]*EWMA),
		predictions: make(map[string]prediction),
	}
}

// RecordPrediction notes what the engine recommended for a request type
// and the baseline metrics the outcome will be judged against.
func (fl *FeedbackLoop) RecordPrediction(requestType string, rec models.OptimizationRecommendation, baseline models.RequestTypeProfile) {
	if !rec.IsActionable() {
		return
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.predictions[requestType] = prediction{
		strategy:          rec.Strategy,
		baselineDuration:  baseline.MeanDuration,
		baselineErrorRate: baseline.ErrorRate,
		recordedAt:        time.Now(),
	}
}

// Reconcile compares applied strategies and observed metrics against the
// recorded prediction. A matching strategy with improved outcomes nudges
// the pair's confidence weight toward 1; a diverging strategy or worse
// outcomes nudge it toward 0. The nudge is an EMA step with the
// configured learning rate, so repeated identical outcomes move the
// weight monotonically and then plateau.
func (fl *FeedbackLoop) Reconcile(requestType string, applied []models.AppliedStrategy, observed models.ObservedMetrics) {
	if requestType == "" || len(applied) == 0 {
		fl.logger.WithField("request_type", requestType).
			Warn("skipping reconciliation with empty input")
		return
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()

	fl.reconciliations++

	pred, predicted := fl.predictions[requestType]
	improved := fl.outcomeImproved(pred, observed, predicted)

	appliedSet := make(map[models.Strategy]bool, len(applied))
	for _, a := range applied {
		if !a.Strategy.IsValid() || a.Strategy == models.StrategyNone {
			fl.logger.WithFields(logrus.Fields{
				"request_type": requestType,
				"strategy":     a.Strategy,
			}).Warn("ignoring invalid applied strategy in reconciliation")
			continue
		}
		appliedSet[a.Strategy] = true
	}

	for strategy := range appliedSet {
		matched := predicted && strategy == pred.strategy
		success := improved && matched

		fl.nudgeLocked(requestType, strategy, success)
		fl.sampler.Observe(requestType, strategy, improved)
	}

	// A prediction the caller chose not to apply is weak evidence
	// against it
	if predicted && !appliedSet[pred.strategy] {
		fl.nudgeLocked(requestType, pred.strategy, false)
	}
}

// outcomeImproved judges an observation window against the prediction's
// baseline. Without a baseline, only the error-rate direction counts.
func (fl *FeedbackLoop) outcomeImproved(pred prediction, observed models.ObservedMetrics, predicted bool) bool {
	if !predicted || pred.baselineDuration <= 0 {
		return observed.ErrorRate < 0.01
	}
	durationBetter := observed.MeanDuration < pred.baselineDuration
	errorsNoWorse := observed.ErrorRate <= pred.baselineErrorRate+1e-9
	return durationBetter && errorsNoWorse
}

// nudgeLocked moves the (type, strategy) weight toward 1 or 0
func (fl *FeedbackLoop) nudgeLocked(requestType string, strategy models.Strategy, up bool) {
	byStrategy, ok := fl.weights[requestType]
	if !ok {
		byStrategy = make(map[models.Strategy]*EWMA)
		fl.weights[requestType] = byStrategy
	}
	w, ok := byStrategy[strategy]
	if !ok {
		w = NewEWMAWithInitial(fl.cfg.LearningRate, initialWeight)
		byStrategy[strategy] = w
	}

	target := 0.0
	if up {
		target = 1.0
	}
	w.Update(target)
}

// ChooseStrategy applies the exploration policy to a recommended
// strategy. With low probability the sampler substitutes an alternative
// to gather comparative data. The boolean reports whether the choice was
// an exploration.
func (fl *FeedbackLoop) ChooseStrategy(requestType string, recommended models.Strategy) (models.Strategy, bool) {
	if recommended == models.StrategyNone {
		return recommended, false
	}

	candidates := make([]models.Strategy, 0, len(models.ValidStrategies())-1)
	for _, s := range models.ValidStrategies() {
		if s != models.StrategyNone {
			candidates = append(candidates, s)
		}
	}

	choice, explored := fl.sampler.Select(requestType, recommended, candidates)
	if explored {
		fl.mu.Lock()
		fl.explorations++
		fl.mu.Unlock()
	}
	return choice, explored
}

// ConfidenceWeight returns the learned weight for a pair, or the neutral
// initial weight when the pair has never been reconciled.
func (fl *FeedbackLoop) ConfidenceWeight(requestType string, strategy models.Strategy) float64 {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if w, ok := fl.weights[requestType][strategy]; ok {
		return w.Current()
	}
	return initialWeight
}

// Weights returns the learned confidence weights for observability
func (fl *FeedbackLoop) Weights() []models.StrategyConfidence {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	var out []models.StrategyConfidence
	for requestType, byStrategy := range fl.weights {
		for strategy, w := range byStrategy {
			successes, failures := fl.sampler.Counts(requestType, strategy)
			out = append(out, models.StrategyConfidence{
				RequestType: requestType,
				Strategy:    strategy,
				Weight:      w.Current(),
				Successes:   successes,
				Failures:    failures,
				LastUpdated: w.lastUpdate,
			})
		}
	}
	return out
}

// Stats returns reconciliation and exploration counters
func (fl *FeedbackLoop) Stats() (reconciliations, explorations int64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.reconciliations, fl.explorations
}

// Reset clears all learned state
func (fl *FeedbackLoop) Reset() {
	fl.mu.Lock()
	fl.weights = make(map[string]map[models.Strategy]*EWMA)
	fl.predictions = make(map[string]prediction)
	fl.reconciliations = 0
	fl.explorations = 0
	fl.mu.Unlock()
	fl.sampler.Reset()
}
