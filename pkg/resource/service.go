// Package resource analyzes system-resource utilization against estimated
// capacity. The service is stateless and side-effect free: two calls with
// the same inputs always produce the same result.
package resource

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/optiq-labs/optiq/pkg/config"
	"github.com/optiq-labs/optiq/pkg/models"
)

// Service implements the resource optimization analysis
type Service struct {
	cfg config.ResourceConfig
}

// NewService creates a resource optimization service
func NewService(cfg config.ResourceConfig) *Service {
	return &Service{cfg: cfg}
}

// Analyze compares current utilization against estimated capacity and
// flags resources running above the configured pressure fraction. Metric
// names missing a capacity entry fall back to any configured connection
// ceiling, then are skipped.
func (s *Service) Analyze(current map[string]float64, capacity map[string]float64) models.ResourceOptimizationResult {
	result := models.ResourceOptimizationResult{
		Strategy:          models.StrategyNone,
		UtilizationRatios: make(map[string]float64),
		EstimatedSavings:  make(map[string]float64),
		AnalyzedAt:        time.Now(),
	}

	for metric, usage := range current {
		ceiling, ok := capacity[metric]
		if !ok {
			ceiling, ok = s.cfg.ConnectionCeilings[metric]
		}
		if !ok || ceiling <= 0 {
			continue
		}

		ratio := usage / ceiling
		result.UtilizationRatios[metric] = ratio

		if ratio > s.cfg.PressureFraction {
			result.PressuredResources = append(result.PressuredResources, metric)
			// Savings: distance from current usage down to the target band
			target := ceiling * s.cfg.TargetUtilization
			result.EstimatedSavings[metric] = usage - target
		}
	}

	sort.Strings(result.PressuredResources)

	if len(result.PressuredResources) == 0 {
		result.Reasoning = "all tracked resources within capacity bounds"
		return result
	}

	result.ShouldOptimize = true
	result.Strategy = strategyForResource(result.PressuredResources[0])
	result.Reasoning = fmt.Sprintf("%d resource(s) above %.0f%% of capacity: %s",
		len(result.PressuredResources),
		s.cfg.PressureFraction*100,
		strings.Join(result.PressuredResources, ", "))

	return result
}

// strategyForResource maps a pressured metric to the optimization most
// likely to relieve it.
func strategyForResource(metric string) models.Strategy {
	name := strings.ToLower(metric)
	switch {
	case strings.Contains(name, "connection"), strings.Contains(name, "db"), strings.Contains(name, "database"):
		return models.StrategyDatabaseOptimization
	case strings.Contains(name, "memory"), strings.Contains(name, "heap"):
		return models.StrategyMemoryPooling
	case strings.Contains(name, "queue"):
		return models.StrategyBatchProcessing
	case strings.Contains(name, "cpu"), strings.Contains(name, "thread"):
		return models.StrategyParallelProcessing
	default:
		return models.StrategyEnableCaching
	}
}
