package history

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/pkg/models"
)

// Sink adapts the repository to the engine's publication interface.
// Failures are logged and dropped: persistence never propagates errors
// back into the decision path.
type Sink struct {
	repo   *Repository
	logger *logrus.Logger
}

// NewSink creates a persistence sink backed by the repository
func NewSink(repo *Repository, logger *logrus.Logger) *Sink {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sink{repo: repo, logger: logger}
}

// PublishRecommendation persists one recommendation
func (s *Sink) PublishRecommendation(rec models.OptimizationRecommendation) {
	params := ""
	if len(rec.Parameters) > 0 {
		if raw, err := json.Marshal(rec.Parameters); err == nil {
			params = string(raw)
		}
	}

	_, exploratory := rec.Parameters["exploration"]

	record := &RecommendationRecord{
		ID:                     rec.ID,
		RequestType:            rec.RequestType,
		Strategy:               rec.Strategy.String(),
		Confidence:             float64(rec.Confidence),
		SampleCount:            rec.SampleCount,
		EstimatedImprovementMs: float64(rec.EstimatedImprovement) / float64(time.Millisecond),
		EstimatedGainPercent:   rec.EstimatedGainPercent,
		Priority:               string(rec.Priority),
		Risk:                   string(rec.Risk),
		AutoApply:              rec.AutoApply,
		Reasoning:              rec.Reasoning,
		Parameters:             params,
		Exploratory:            exploratory,
		GeneratedAt:            rec.GeneratedAt,
	}

	if err := s.repo.SaveRecommendation(record); err != nil {
		s.logger.WithError(err).WithField("request_type", rec.RequestType).
			Warn("failed to persist recommendation")
	}
}

// PublishInsights persists one insights cycle
func (s *Sink) PublishInsights(snapshot *models.SystemPerformanceInsights) {
	if snapshot == nil {
		return
	}

	bottlenecks, _ := json.Marshal(snapshot.Bottlenecks)
	opportunities, _ := json.Marshal(snapshot.Opportunities)

	record := &InsightSnapshot{
		GeneratedAt:         snapshot.GeneratedAt,
		OverallHealth:       snapshot.Health.Overall,
		PerformanceScore:    snapshot.Health.Performance,
		ReliabilityScore:    snapshot.Health.Reliability,
		ResourceScore:       snapshot.Health.ResourceUsage,
		UserExperienceScore: snapshot.Health.UserExperience,
		BottleneckCount:     len(snapshot.Bottlenecks),
		OpportunityCount:    len(snapshot.Opportunities),
		Bottlenecks:         string(bottlenecks),
		Opportunities:       string(opportunities),
	}

	if err := s.repo.SaveInsightSnapshot(record); err != nil {
		s.logger.WithError(err).Warn("failed to persist insight snapshot")
	}
}

// PublishReconciliation persists a feedback report and, when a prior
// reconciliation exists, an accuracy sample comparing the recommended
// improvement against the observed one.
func (s *Sink) PublishReconciliation(requestType string, applied []models.AppliedStrategy, observed models.ObservedMetrics) {
	strategies, _ := json.Marshal(applied)

	record := &ReconciliationRecord{
		RequestType:       requestType,
		Timestamp:         time.Now(),
		AppliedStrategies: string(strategies),
		MeanDurationMs:    float64(observed.MeanDuration) / float64(time.Millisecond),
		ErrorRate:         observed.ErrorRate,
		Throughput:        observed.Throughput,
		WindowStart:       observed.WindowStart,
		WindowEnd:         observed.WindowEnd,
	}

	previous, prevErr := s.repo.GetReconciliations(requestType, 1)

	if err := s.repo.SaveReconciliation(record); err != nil {
		s.logger.WithError(err).WithField("request_type", requestType).
			Warn("failed to persist reconciliation")
		return
	}

	if prevErr != nil || len(previous) == 0 {
		return
	}

	latest, err := s.repo.LatestRecommendation(requestType)
	if err != nil {
		return
	}

	observedImprovement := previous[0].MeanDurationMs - record.MeanDurationMs
	sample := &AccuracySample{
		RequestType:            requestType,
		Strategy:               latest.Strategy,
		Timestamp:              record.Timestamp,
		PredictedImprovementMs: latest.EstimatedImprovementMs,
		ObservedImprovementMs:  observedImprovement,
		ImprovementError:       latest.EstimatedImprovementMs - observedImprovement,
	}

	if err := s.repo.SaveAccuracySample(sample); err != nil {
		s.logger.WithError(err).WithField("request_type", requestType).
			Warn("failed to persist accuracy sample")
	}
}
