package caching

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/models"
)

func newTestService() *Service {
	return NewService(config.Default().Caching, nil)
}

func testProfile() models.RequestTypeProfile {
	return models.RequestTypeProfile{
		RequestType:  "GET /api/catalog",
		SampleCount:  100,
		MeanDuration: 80 * time.Millisecond,
	}
}

// regularAccesses builds n accesses with a fixed interval and one key shape
func regularAccesses(n int, interval time.Duration, keyShape string) []models.AccessPattern {
	base := time.Now().Add(-time.Duration(n) * interval)
	accesses := make([]models.AccessPattern, n)
	for i := range accesses {
		accesses[i] = models.AccessPattern{
			Timestamp: base.Add(time.Duration(i) * interval),
			KeyShape:  keyShape,
		}
	}
	return accesses
}

func TestAnalyze_RegularRepeatingAccessesRecommendCaching(t *testing.T) {
	svc := newTestService()

	rec := svc.Analyze(context.Background(), testProfile(), regularAccesses(20, 10*time.Second, "catalog:all"))

	assert.Equal(t, models.StrategyEnableCaching, rec.Strategy)
	assert.Greater(t, rec.Confidence, 0.5)
	assert.Equal(t, models.RiskLow, rec.Risk)
	assert.Equal(t, string(models.CacheScopeInstance), rec.Parameters["scope"])
	assert.Equal(t, string(models.KeyStrategyExact), rec.Parameters["key_strategy"])
}

func TestAnalyze_TTLClampedToMinimum(t *testing.T) {
	svc := newTestService()

	// Median interval 10s is below the 30s floor
	rec := svc.Analyze(context.Background(), testProfile(), regularAccesses(20, 10*time.Second, "catalog:all"))

	require.Equal(t, models.StrategyEnableCaching, rec.Strategy)
	assert.Equal(t, 30*time.Second, rec.Parameters["ttl"])
}

func TestAnalyze_TTLClampedToMaximum(t *testing.T) {
	svc := newTestService()

	// Median interval 2h exceeds the 1h ceiling
	rec := svc.Analyze(context.Background(), testProfile(), regularAccesses(10, 2*time.Hour, "catalog:all"))

	require.Equal(t, models.StrategyEnableCaching, rec.Strategy)
	assert.Equal(t, time.Hour, rec.Parameters["ttl"])
}

func TestAnalyze_TTLWithinBoundsKept(t *testing.T) {
	svc := newTestService()

	rec := svc.Analyze(context.Background(), testProfile(), regularAccesses(20, 5*time.Minute, "catalog:all"))

	require.Equal(t, models.StrategyEnableCaching, rec.Strategy)
	assert.Equal(t, 5*time.Minute, rec.Parameters["ttl"])
}

func TestAnalyze_LowHitRateReturnsNone(t *testing.T) {
	svc := newTestService()

	// Every access has a distinct key shape: no repeats to cache
	base := time.Now()
	accesses := make([]models.AccessPattern, 20)
	for i := range accesses {
		accesses[i] = models.AccessPattern{
			Timestamp: base.Add(time.Duration(i) * 10 * time.Second),
			KeyShape:  fmt.Sprintf("user:%d", i),
		}
	}

	rec := svc.Analyze(context.Background(), testProfile(), accesses)

	assert.Equal(t, models.StrategyNone, rec.Strategy)
	assert.Contains(t, rec.Reasoning, "below")
}

func TestAnalyze_InsufficientAccessHistory(t *testing.T) {
	svc := newTestService()

	rec := svc.Analyze(context.Background(), testProfile(), regularAccesses(2, time.Second, "k"))

	assert.Equal(t, models.StrategyNone, rec.Strategy)
	assert.Contains(t, rec.Reasoning, "insufficient access history")
}

func TestAnalyze_ErraticIntervalsDiscountConfidence(t *testing.T) {
	svc := newTestService()
	base := time.Now()

	// Same key shape, wildly irregular spacing
	gaps := []time.Duration{time.Second, 40 * time.Minute, 2 * time.Second, time.Hour, 3 * time.Second, 50 * time.Minute}
	accesses := []models.AccessPattern{{Timestamp: base, KeyShape: "k"}}
	at := base
	for _, g := range gaps {
		at = at.Add(g)
		accesses = append(accesses, models.AccessPattern{Timestamp: at, KeyShape: "k"})
	}

	erratic := svc.Analyze(context.Background(), testProfile(), accesses)
	regular := svc.Analyze(context.Background(), testProfile(), regularAccesses(len(accesses), 10*time.Second, "k"))

	require.Equal(t, models.StrategyEnableCaching, erratic.Strategy)
	require.Equal(t, models.StrategyEnableCaching, regular.Strategy)
	assert.Less(t, erratic.Confidence, regular.Confidence)
}

func TestAnalyze_HighCardinalityGoesDistributedNormalized(t *testing.T) {
	svc := NewService(config.CachingConfig{
		MinCacheTTL:     time.Second,
		MaxCacheTTL:     time.Hour,
		HitRateFloor:    0.1,
		RegularityCVMax: 0.5,
		WindowSize:      50,
	}, nil)

	// Many distinct keys, each repeating at most once
	base := time.Now()
	var accesses []models.AccessPattern
	for i := 0; i < 15; i++ {
		key := fmt.Sprintf("item:%d", i)
		accesses = append(accesses,
			models.AccessPattern{Timestamp: base.Add(time.Duration(2*i) * time.Second), KeyShape: key},
		)
	}
	// A few repeats to clear the lowered hit-rate floor
	for i := 0; i < 4; i++ {
		accesses = append(accesses, models.AccessPattern{
			Timestamp: base.Add(time.Duration(30+i) * time.Second),
			KeyShape:  fmt.Sprintf("item:%d", i),
		})
	}

	rec := svc.Analyze(context.Background(), testProfile(), accesses)

	require.Equal(t, models.StrategyEnableCaching, rec.Strategy)
	assert.Equal(t, string(models.CacheScopeDistributed), rec.Parameters["scope"])
	assert.Equal(t, string(models.KeyStrategyNormalized), rec.Parameters["key_strategy"])
}

func TestAnalyze_StoresProfile(t *testing.T) {
	svc := newTestService()

	svc.Analyze(context.Background(), testProfile(), regularAccesses(10, 10*time.Second, "k"))

	profile, ok := svc.Profile("GET /api/catalog")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, profile.RecommendedTTL)
	assert.Greater(t, profile.PredictedHitRate, 0.5)

	svc.Reset()
	_, ok = svc.Profile("GET /api/catalog")
	assert.False(t, ok)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	svc := newTestService()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := svc.Analyze(ctx, testProfile(), regularAccesses(10, 10*time.Second, "k"))
	assert.Equal(t, models.StrategyNone, rec.Strategy)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2*time.Second, median([]time.Duration{time.Second, 2 * time.Second, 3 * time.Second}))
	assert.Equal(t, 2500*time.Millisecond, median([]time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second}))
	assert.Equal(t, time.Duration(0), median(nil))
}

func TestCoefficientOfVariation(t *testing.T) {
	regular := []time.Duration{time.Second, time.Second, time.Second, time.Second}
	assert.InDelta(t, 0.0, coefficientOfVariation(regular), 1e-9)

	erratic := []time.Duration{time.Second, 10 * time.Second, 100 * time.Second}
	assert.Greater(t, coefficientOfVariation(erratic), 1.0)
}
