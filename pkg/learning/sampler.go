package learning

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/optiq-labs/optiq/pkg/models"
)

// StrategySampler implements Thompson sampling over optimization
// strategies. Each (request type, strategy) pair carries a Beta posterior
// built from observed successes and failures; sampling the posteriors
// balances exploiting the best-known strategy against exploring
// alternatives that might turn out better.
//
// All randomness flows through the injected rand.Source so tests can pin
// both the exploit and explore branches.
type StrategySampler struct {
	mu sync.Mutex

	successes map[string]map[models.Strategy]int
	failures  map[string]map[models.Strategy]int

	random          *rand.Rand
	explorationRate float64 // Minimum probability of a uniform pick
}

// NewStrategySampler creates a sampler. A nil source is time-seeded.
func NewStrategySampler(explorationRate float64, source rand.Source) *StrategySampler {
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	if explorationRate < 0 || explorationRate > 1 {
		explorationRate = 0.05
	}
	return &StrategySampler{
		successes:       make(map[string]map[models.Strategy]int),
		failures:        make(map[string]map[models.Strategy]int),
		random:          rand.New(source),
		explorationRate: explorationRate,
	}
}

// Select picks a strategy from the candidates for a request type. With
// probability explorationRate it picks uniformly; otherwise it samples
// each candidate's Beta posterior and takes the best draw. The boolean
// reports whether the pick was an exploration (differs from preferred).
func (s *StrategySampler) Select(requestType string, preferred models.Strategy, candidates []models.Strategy) (models.Strategy, bool) {
	if len(candidates) == 0 {
		return preferred, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.random.Float64() < s.explorationRate {
		pick := candidates[s.random.Intn(len(candidates))]
		return pick, pick != preferred
	}

	best := preferred
	bestSample := -1.0
	for _, candidate := range candidates {
		// Candidates with no observed outcomes cannot outrank the
		// preferred strategy; their posterior is pure prior
		if candidate != preferred &&
			s.successCount(requestType, candidate)+s.failureCount(requestType, candidate) == 0 {
			continue
		}
		alpha := float64(s.successCount(requestType, candidate) + 1)
		beta := float64(s.failureCount(requestType, candidate) + 1)
		sample := s.sampleBeta(alpha, beta)
		if sample > bestSample {
			bestSample = sample
			best = candidate
		}
	}
	return best, best != preferred
}

// Observe records an outcome for a (request type, strategy) pair
func (s *StrategySampler) Observe(requestType string, strategy models.Strategy, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.failures
	if success {
		target = s.successes
	}
	if target[requestType] == nil {
		target[requestType] = make(map[models.Strategy]int)
	}
	target[requestType][strategy]++
}

// PosteriorMean returns the Beta posterior mean for a pair, with a
// uniform prior of one success and one failure.
func (s *StrategySampler) PosteriorMean(requestType string, strategy models.Strategy) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	alpha := float64(s.successCount(requestType, strategy) + 1)
	beta := float64(s.failureCount(requestType, strategy) + 1)
	return alpha / (alpha + beta)
}

// Counts returns raw success/failure counts for a pair (priors excluded)
func (s *StrategySampler) Counts(requestType string, strategy models.Strategy) (successes, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successCount(requestType, strategy), s.failureCount(requestType, strategy)
}

// Reset clears all posteriors
func (s *StrategySampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes = make(map[string]map[models.Strategy]int)
	s.failures = make(map[string]map[models.Strategy]int)
}

func (s *StrategySampler) successCount(requestType string, strategy models.Strategy) int {
	return s.successes[requestType][strategy]
}

func (s *StrategySampler) failureCount(requestType string, strategy models.Strategy) int {
	return s.failures[requestType][strategy]
}

// sampleBeta samples Beta(alpha, beta) via the gamma-ratio construction
func (s *StrategySampler) sampleBeta(alpha, beta float64) float64 {
	if alpha <= 0 || beta <= 0 {
		return s.random.Float64()
	}

	x := s.sampleGamma(alpha)
	y := s.sampleGamma(beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma uses Marsaglia and Tsang's method for shape >= 1, with the
// standard boost transformation below 1.
func (s *StrategySampler) sampleGamma(shape float64) float64 {
	if shape < 1.0 {
		return s.sampleGamma(shape+1.0) * math.Pow(s.random.Float64(), 1.0/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)

	for {
		x := s.random.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}

		v = v * v * v
		u := s.random.Float64()

		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
