package learning

import (
	"math"
	"math/rand"
	"testing"

	"github.com/optiq-labs/optiq/pkg/models"
)

var testCandidates = []models.Strategy{
	models.StrategyEnableCaching,
	models.StrategyBatchProcessing,
	models.StrategyParallelProcessing,
}

func TestSampler_SelectWithoutDataKeepsPreferred(t *testing.T) {
	// Exploration disabled and no observed outcomes: the preferred
	// strategy must always survive
	sampler := NewStrategySampler(0.0, rand.NewSource(42))

	for i := 0; i < 50; i++ {
		choice, explored := sampler.Select("GET /x", models.StrategyParallelProcessing, testCandidates)
		if choice != models.StrategyParallelProcessing {
			t.Fatalf("Expected preferred strategy, got %s", choice)
		}
		if explored {
			t.Fatal("No exploration expected with rate 0 and no data")
		}
	}
}

func TestSampler_FullExplorationPicksUniformly(t *testing.T) {
	sampler := NewStrategySampler(1.0, rand.NewSource(7))

	seen := make(map[models.Strategy]int)
	for i := 0; i < 300; i++ {
		choice, explored := sampler.Select("GET /x", models.StrategyEnableCaching, testCandidates)
		seen[choice]++
		if explored != (choice != models.StrategyEnableCaching) {
			t.Fatal("explored flag must report divergence from preferred")
		}
	}

	for _, candidate := range testCandidates {
		if seen[candidate] == 0 {
			t.Errorf("Candidate %s never picked under full exploration", candidate)
		}
	}
}

func TestSampler_PosteriorFavorsObservedWinner(t *testing.T) {
	sampler := NewStrategySampler(0.0, rand.NewSource(13))

	// Batch processing observed to win overwhelmingly
	for i := 0; i < 50; i++ {
		sampler.Observe("GET /x", models.StrategyBatchProcessing, true)
		sampler.Observe("GET /x", models.StrategyEnableCaching, false)
	}

	wins := 0
	for i := 0; i < 100; i++ {
		choice, _ := sampler.Select("GET /x", models.StrategyEnableCaching, testCandidates)
		if choice == models.StrategyBatchProcessing {
			wins++
		}
	}

	if wins < 90 {
		t.Errorf("Expected the observed winner to dominate, won %d/100", wins)
	}
}

func TestSampler_PosteriorMean(t *testing.T) {
	sampler := NewStrategySampler(0.05, rand.NewSource(1))

	// Uniform prior with no data
	mean := sampler.PosteriorMean("GET /x", models.StrategyEnableCaching)
	if math.Abs(mean-0.5) > 1e-9 {
		t.Errorf("Expected prior mean 0.5, got %f", mean)
	}

	for i := 0; i < 3; i++ {
		sampler.Observe("GET /x", models.StrategyEnableCaching, true)
	}
	sampler.Observe("GET /x", models.StrategyEnableCaching, false)

	// Beta(4, 2) mean
	mean = sampler.PosteriorMean("GET /x", models.StrategyEnableCaching)
	expected := 4.0 / 6.0
	if math.Abs(mean-expected) > 1e-9 {
		t.Errorf("Expected posterior mean %f, got %f", expected, mean)
	}
}

func TestSampler_Counts(t *testing.T) {
	sampler := NewStrategySampler(0.05, rand.NewSource(1))

	sampler.Observe("GET /x", models.StrategyMemoryPooling, true)
	sampler.Observe("GET /x", models.StrategyMemoryPooling, true)
	sampler.Observe("GET /x", models.StrategyMemoryPooling, false)

	successes, failures := sampler.Counts("GET /x", models.StrategyMemoryPooling)
	if successes != 2 || failures != 1 {
		t.Errorf("Expected 2/1, got %d/%d", successes, failures)
	}

	successes, failures = sampler.Counts("GET /y", models.StrategyMemoryPooling)
	if successes != 0 || failures != 0 {
		t.Errorf("Expected empty counts for unseen type, got %d/%d", successes, failures)
	}
}

func TestSampler_Reset(t *testing.T) {
	sampler := NewStrategySampler(0.05, rand.NewSource(1))
	sampler.Observe("GET /x", models.StrategyEnableCaching, true)

	sampler.Reset()

	successes, failures := sampler.Counts("GET /x", models.StrategyEnableCaching)
	if successes != 0 || failures != 0 {
		t.Errorf("Expected counts cleared after reset, got %d/%d", successes, failures)
	}
}

func TestSampler_EmptyCandidates(t *testing.T) {
	sampler := NewStrategySampler(1.0, rand.NewSource(1))

	choice, explored := sampler.Select("GET /x", models.StrategyEnableCaching, nil)
	if choice != models.StrategyEnableCaching || explored {
		t.Errorf("Expected preferred/no-exploration for empty candidates, got %s/%v", choice, explored)
	}
}

func TestSampler_BetaSamplesInRange(t *testing.T) {
	sampler := NewStrategySampler(0.05, rand.NewSource(99))

	for i := 0; i < 1000; i++ {
		v := sampler.sampleBeta(2.0, 5.0)
		if v < 0.0 || v > 1.0 {
			t.Fatalf("Beta sample out of range: %f", v)
		}
	}

	// Mean of Beta(8,2) is 0.8; a large sample average should sit near it
	sum := 0.0
	const n = 5000
	for i := 0; i < n; i++ {
		sum += sampler.sampleBeta(8.0, 2.0)
	}
	if mean := sum / n; math.Abs(mean-0.8) > 0.05 {
		t.Errorf("Beta(8,2) sample mean %f far from 0.8", mean)
	}
}
