package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/models"
)

func newTestService() *Service {
	return NewService(config.Default().Thresholds, nil)
}

// slowConcurrentProfile is a well-observed type with high latency and
// high concurrency: the canonical parallel-processing candidate.
func slowConcurrentProfile() models.RequestTypeProfile {
	now := time.Now()
	return models.RequestTypeProfile{
		RequestType:          "GET /api/reports",
		SampleCount:          200,
		MeanDuration:         500 * time.Millisecond,
		DurationStdDev:       100 * time.Millisecond,
		DurationVariance:     0.01,
		ConcurrencyHighWater: 60,
		FirstSeen:            now.Add(-200 * time.Second),
		LastSeen:             now,
	}
}

func TestAnalyze_ColdStartGate(t *testing.T) {
	svc := newTestService()

	profile := slowConcurrentProfile()
	profile.SampleCount = 10

	rec := svc.Analyze(context.Background(), profile, nil)

	assert.Equal(t, models.StrategyNone, rec.Strategy)
	assert.Zero(t, rec.Confidence)
	assert.Contains(t, rec.Reasoning, "insufficient data")
	assert.Contains(t, rec.Reasoning, "10 of 50")
	assert.Equal(t, int64(10), rec.SampleCount)
}

func TestAnalyze_ParallelProcessingForSlowConcurrentType(t *testing.T) {
	svc := newTestService()

	rec := svc.Analyze(context.Background(), slowConcurrentProfile(), nil)

	assert.Equal(t, models.StrategyParallelProcessing, rec.Strategy)
	assert.Greater(t, rec.Confidence, 0.5)
	assert.LessOrEqual(t, rec.Confidence, 1.0)
	assert.Greater(t, rec.EstimatedGainPercent, 0.0)
	assert.Greater(t, rec.EstimatedImprovement, time.Duration(0))
	assert.Equal(t, 60, rec.Parameters["concurrency_high_water"])
	assert.Equal(t, 15, rec.Parameters["suggested_parallelism"])
	assert.Equal(t, models.RiskMedium, rec.Risk)
}

func TestAnalyze_CircuitBreakerTakesPrecedence(t *testing.T) {
	svc := newTestService()

	// Failing, slow and concurrent: the error rate must win
	profile := slowConcurrentProfile()
	profile.ErrorRate = 0.20

	rec := svc.Analyze(context.Background(), profile, nil)

	assert.Equal(t, models.StrategyCircuitBreaker, rec.Strategy)
	assert.Equal(t, models.RiskHigh, rec.Risk)
	assert.Contains(t, rec.Reasoning, "error rate")
}

func TestAnalyze_BatchProcessingForHighVolumeShortCalls(t *testing.T) {
	svc := newTestService()
	now := time.Now()

	profile := models.RequestTypeProfile{
		RequestType:    "GET /api/flags",
		SampleCount:    1000,
		MeanDuration:   5 * time.Millisecond,
		DurationStdDev: time.Millisecond,
		FirstSeen:      now.Add(-20 * time.Second), // 50 calls/s
		LastSeen:       now,
	}

	rec := svc.Analyze(context.Background(), profile, nil)

	assert.Equal(t, models.StrategyBatchProcessing, rec.Strategy)
	assert.Equal(t, 25, rec.Parameters["suggested_batch_size"])
}

func TestAnalyze_MemoryPooling(t *testing.T) {
	svc := newTestService()

	profile := models.RequestTypeProfile{
		RequestType:     "POST /api/render",
		SampleCount:     100,
		MeanDuration:    100 * time.Millisecond,
		DurationStdDev:  10 * time.Millisecond,
		MeanMemoryDelta: 20 * 1024 * 1024, // Above the 8 MiB ceiling
	}

	rec := svc.Analyze(context.Background(), profile, nil)
	assert.Equal(t, models.StrategyMemoryPooling, rec.Strategy)
}

func TestAnalyze_DatabaseOptimization(t *testing.T) {
	svc := newTestService()

	profile := models.RequestTypeProfile{
		RequestType:       "GET /api/dashboard",
		SampleCount:       100,
		MeanDuration:      100 * time.Millisecond,
		DurationStdDev:    10 * time.Millisecond,
		MeanDatabaseCalls: 12,
	}

	rec := svc.Analyze(context.Background(), profile, nil)
	assert.Equal(t, models.StrategyDatabaseOptimization, rec.Strategy)
}

func TestAnalyze_NoTriggerMatched(t *testing.T) {
	svc := newTestService()

	profile := models.RequestTypeProfile{
		RequestType:    "GET /api/ping",
		SampleCount:    100,
		MeanDuration:   10 * time.Millisecond,
		DurationStdDev: time.Millisecond,
	}

	rec := svc.Analyze(context.Background(), profile, nil)
	assert.Equal(t, models.StrategyNone, rec.Strategy)
	assert.Contains(t, rec.Reasoning, "no optimization trigger matched")
}

func TestAnalyze_Deterministic(t *testing.T) {
	svc := newTestService()
	profile := slowConcurrentProfile()

	first := svc.Analyze(context.Background(), profile, nil)
	second := svc.Analyze(context.Background(), profile, nil)

	assert.Equal(t, first.Strategy, second.Strategy)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.EstimatedGainPercent, second.EstimatedGainPercent)
	assert.Equal(t, first.Priority, second.Priority)
	assert.Equal(t, first.Risk, second.Risk)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	svc := newTestService()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := svc.Analyze(ctx, slowConcurrentProfile(), nil)
	assert.Equal(t, models.StrategyNone, rec.Strategy)
	assert.Contains(t, rec.Reasoning, "cancelled")
}

func TestAnalyze_LatestSampleRaisesConcurrency(t *testing.T) {
	svc := newTestService()

	profile := slowConcurrentProfile()
	profile.ConcurrencyHighWater = 5 // Below threshold on its own

	latest := &models.ExecutionSample{
		RequestType:     profile.RequestType,
		Duration:        profile.MeanDuration,
		Success:         true,
		ConcurrentCount: 40,
	}

	rec := svc.Analyze(context.Background(), profile, latest)
	assert.Equal(t, models.StrategyParallelProcessing, rec.Strategy)
	assert.Equal(t, 40, rec.Parameters["concurrency_high_water"])
}

func TestAnalyze_BoundsHoldAcrossProfiles(t *testing.T) {
	svc := newTestService()
	now := time.Now()

	profiles := []models.RequestTypeProfile{
		slowConcurrentProfile(),
		{RequestType: "a", SampleCount: 50, MeanDuration: time.Second, DurationStdDev: 2 * time.Second, ErrorRate: 0.9},
		{RequestType: "b", SampleCount: 10000, MeanDuration: time.Millisecond, FirstSeen: now.Add(-time.Second), LastSeen: now},
		{RequestType: "c", SampleCount: 51, MeanMemoryDelta: 1e12, MeanDuration: time.Millisecond},
	}

	for _, p := range profiles {
		rec := svc.Analyze(context.Background(), p, nil)
		assert.GreaterOrEqual(t, rec.Confidence, 0.0)
		assert.LessOrEqual(t, rec.Confidence, 1.0)
		assert.GreaterOrEqual(t, rec.EstimatedGainPercent, 0.0)
		assert.LessOrEqual(t, rec.EstimatedGainPercent, 100.0)
		assert.True(t, rec.Strategy.IsValid())
	}
}

func TestRiskFor_BumpsWhenSupportIsThin(t *testing.T) {
	svc := newTestService()

	// Just past the gate: sample count below 2x minimum bumps the tier
	profile := slowConcurrentProfile()
	profile.SampleCount = 60

	rec := svc.Analyze(context.Background(), profile, nil)
	require.Equal(t, models.StrategyParallelProcessing, rec.Strategy)
	assert.Equal(t, models.RiskHigh, rec.Risk)
}

func TestPriorityFor_Tiers(t *testing.T) {
	assert.Equal(t, models.PriorityCritical, priorityFor(1.0, 60))
	assert.Equal(t, models.PriorityHigh, priorityFor(0.8, 50))
	assert.Equal(t, models.PriorityMedium, priorityFor(0.5, 30))
	assert.Equal(t, models.PriorityLow, priorityFor(0.2, 10))
}
