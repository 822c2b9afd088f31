package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/models"
)

func newTestService() *Service {
	return NewService(config.Default().Resources)
}

func TestAnalyze_DatabaseConnectionPressure(t *testing.T) {
	svc := newTestService()

	result := svc.Analyze(
		map[string]float64{"db_connections": 90},
		map[string]float64{"db_connections": 100},
	)

	require.True(t, result.ShouldOptimize)
	assert.Equal(t, models.StrategyDatabaseOptimization, result.Strategy)
	assert.Equal(t, []string{"db_connections"}, result.PressuredResources)
	assert.InDelta(t, 0.9, result.UtilizationRatios["db_connections"], 1e-9)

	// Savings down to the 60% target band: 90 - 100*0.6
	assert.InDelta(t, 30.0, result.EstimatedSavings["db_connections"], 1e-9)
	assert.Contains(t, result.Reasoning, "db_connections")
}

func TestAnalyze_NoPressure(t *testing.T) {
	svc := newTestService()

	result := svc.Analyze(
		map[string]float64{"db_connections": 40, "memory_bytes": 1 << 28},
		map[string]float64{"db_connections": 100, "memory_bytes": 1 << 30},
	)

	assert.False(t, result.ShouldOptimize)
	assert.Equal(t, models.StrategyNone, result.Strategy)
	assert.Empty(t, result.PressuredResources)
	assert.Empty(t, result.EstimatedSavings)
	assert.Contains(t, result.Reasoning, "within capacity")
	assert.InDelta(t, 0.4, result.UtilizationRatios["db_connections"], 1e-9)
}

func TestAnalyze_ExactlyAtPressureFractionNotFlagged(t *testing.T) {
	svc := newTestService()

	result := svc.Analyze(
		map[string]float64{"db_connections": 80},
		map[string]float64{"db_connections": 100},
	)

	assert.False(t, result.ShouldOptimize)
	assert.Empty(t, result.PressuredResources)
}

func TestAnalyze_ConnectionCeilingFallback(t *testing.T) {
	svc := newTestService()

	// No capacity given: the configured ceiling of 100 applies
	result := svc.Analyze(map[string]float64{"db_connections": 95}, nil)

	require.True(t, result.ShouldOptimize)
	assert.Equal(t, models.StrategyDatabaseOptimization, result.Strategy)
	assert.InDelta(t, 0.95, result.UtilizationRatios["db_connections"], 1e-9)
	assert.InDelta(t, 35.0, result.EstimatedSavings["db_connections"], 1e-9)
}

func TestAnalyze_UnknownMetricWithoutCeilingSkipped(t *testing.T) {
	svc := newTestService()

	result := svc.Analyze(map[string]float64{"goroutines": 50000}, nil)

	assert.False(t, result.ShouldOptimize)
	assert.NotContains(t, result.UtilizationRatios, "goroutines")
}

func TestAnalyze_ZeroCeilingSkipped(t *testing.T) {
	svc := newTestService()

	result := svc.Analyze(
		map[string]float64{"custom_pool": 10},
		map[string]float64{"custom_pool": 0},
	)

	assert.False(t, result.ShouldOptimize)
	assert.NotContains(t, result.UtilizationRatios, "custom_pool")
}

func TestAnalyze_PressuredResourcesSorted(t *testing.T) {
	svc := newTestService()

	result := svc.Analyze(
		map[string]float64{
			"queue_depth":  950,
			"cpu_percent":  0.95,
			"memory_bytes": 950,
		},
		map[string]float64{
			"queue_depth":  1000,
			"cpu_percent":  1.0,
			"memory_bytes": 1000,
		},
	)

	require.True(t, result.ShouldOptimize)
	assert.Equal(t, []string{"cpu_percent", "memory_bytes", "queue_depth"}, result.PressuredResources)
	// Strategy follows the first pressured resource after sorting
	assert.Equal(t, models.StrategyParallelProcessing, result.Strategy)
}

func TestAnalyze_Deterministic(t *testing.T) {
	svc := newTestService()

	current := map[string]float64{"db_connections": 90, "memory_bytes": 900}
	capacity := map[string]float64{"db_connections": 100, "memory_bytes": 1000}

	a := svc.Analyze(current, capacity)
	b := svc.Analyze(current, capacity)

	assert.Equal(t, a.Strategy, b.Strategy)
	assert.Equal(t, a.PressuredResources, b.PressuredResources)
	assert.Equal(t, a.UtilizationRatios, b.UtilizationRatios)
	assert.Equal(t, a.EstimatedSavings, b.EstimatedSavings)
	assert.Equal(t, a.Reasoning, b.Reasoning)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	svc := newTestService()

	result := svc.Analyze(nil, nil)

	assert.False(t, result.ShouldOptimize)
	assert.Equal(t, models.StrategyNone, result.Strategy)
	assert.Empty(t, result.UtilizationRatios)
}

func TestStrategyForResource(t *testing.T) {
	cases := []struct {
		metric string
		want   models.Strategy
	}{
		{"db_connections", models.StrategyDatabaseOptimization},
		{"http_connections", models.StrategyDatabaseOptimization},
		{"database_pool", models.StrategyDatabaseOptimization},
		{"memory_bytes", models.StrategyMemoryPooling},
		{"heap_in_use", models.StrategyMemoryPooling},
		{"queue_depth", models.StrategyBatchProcessing},
		{"cpu_percent", models.StrategyParallelProcessing},
		{"thread_count", models.StrategyParallelProcessing},
		{"file_descriptors", models.StrategyEnableCaching},
	}

	for _, tc := range cases {
		t.Run(tc.metric, func(t *testing.T) {
			assert.Equal(t, tc.want, strategyForResource(tc.metric))
		})
	}
}
