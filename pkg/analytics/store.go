// Package analytics maintains rolling statistical profiles per request
// type. The store is the engine's only shared mutable state: writes to
// different request types proceed independently across shards, writes
// within a type are serialized by the shard lock.
package analytics

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optiq-labs/optiq/pkg/models"
)

const shardCount = 32

// Store is a sharded, thread-safe collection of per-request-type profiles
type Store struct {
	shards [shardCount]*shard

	errorRateAlpha float64
	historySize    int

	logger *logrus.Logger
}

type shard struct {
	mu       sync.RWMutex
	profiles map[string]*profileState
}

// profileState is the mutable aggregate behind a RequestTypeProfile
// snapshot. Only the owning shard mutates it, under its lock.
type profileState struct {
	sampleCount int64

	// Welford running statistics over duration, in seconds
	meanSeconds float64
	m2Seconds   float64

	// Error rate as an exponential moving average of the failure indicator
	errorRate float64
	errorInit bool

	// Incremental means for resource counters
	meanMemoryDelta   float64
	meanDatabaseCalls float64
	meanExternalCalls float64

	concurrencyHighWater int

	// Ring buffer of recent access timestamps, oldest overwritten first
	accesses    []time.Time
	accessHead  int
	accessCount int

	firstSeen time.Time
	lastSeen  time.Time
}

// NewStore creates an empty store. errorRateAlpha is the EWMA smoothing
// factor for the failure indicator; historySize bounds the per-type ring
// of recent access timestamps.
func NewStore(errorRateAlpha float64, historySize int, logger *logrus.Logger) *Store {
	if errorRateAlpha <= 0 || errorRateAlpha > 1 {
		errorRateAlpha = 0.1
	}
	if historySize < 2 {
		historySize = 2
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Store{
		errorRateAlpha: errorRateAlpha,
		historySize:    historySize,
		logger:         logger,
	}
	for i := range s.shards {
		s.shards[i] = &shard{profiles: make(map[string]*profileState)}
	}
	return s
}

func (s *Store) shardFor(requestType string) *shard {
	h := fnv.New32a()
	h.Write([]byte(requestType))
	return s.shards[h.Sum32()%shardCount]
}

// Record ingests one execution sample. It never fails; malformed samples
// are dropped with a warning so instrumentation bugs cannot take down the
// caller's request path.
func (s *Store) Record(sample models.ExecutionSample) {
	if err := sample.Validate(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"request_type": sample.RequestType,
			"error":        err,
		}).Warn("dropping invalid execution sample")
		return
	}

	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	sh := s.shardFor(sample.RequestType)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	p, ok := sh.profiles[sample.RequestType]
	if !ok {
		p = &profileState{
			accesses:  make([]time.Time, s.historySize),
			firstSeen: ts,
		}
		sh.profiles[sample.RequestType] = p
	}

	p.sampleCount++
	n := float64(p.sampleCount)

	// Welford incremental mean/variance
	seconds := sample.Duration.Seconds()
	delta := seconds - p.meanSeconds
	p.meanSeconds += delta / n
	p.m2Seconds += delta * (seconds - p.meanSeconds)

	// Failure indicator EWMA
	failure := 0.0
	if !sample.Success {
		failure = 1.0
	}
	if !p.errorInit {
		p.errorRate = failure
		p.errorInit = true
	} else {
		p.errorRate = s.errorRateAlpha*failure + (1-s.errorRateAlpha)*p.errorRate
	}

	// Incremental means for resource counters
	p.meanMemoryDelta += (float64(sample.MemoryDelta) - p.meanMemoryDelta) / n
	p.meanDatabaseCalls += (float64(sample.DatabaseCalls) - p.meanDatabaseCalls) / n
	p.meanExternalCalls += (float64(sample.ExternalCalls) - p.meanExternalCalls) / n

	if sample.ConcurrentCount > p.concurrencyHighWater {
		p.concurrencyHighWater = sample.ConcurrentCount
	}

	p.accesses[p.accessHead] = ts
	p.accessHead = (p.accessHead + 1) % len(p.accesses)
	if p.accessCount < len(p.accesses) {
		p.accessCount++
	}

	if ts.After(p.lastSeen) {
		p.lastSeen = ts
	}
}

// Snapshot returns a consistent point-in-time copy of the profile for a
// request type. The second return value is false if the type has never
// been observed.
func (s *Store) Snapshot(requestType string) (models.RequestTypeProfile, bool) {
	sh := s.shardFor(requestType)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	p, ok := sh.profiles[requestType]
	if !ok {
		return models.RequestTypeProfile{RequestType: requestType}, false
	}
	return s.snapshotLocked(requestType, p), true
}

// SnapshotAll returns snapshots for every tracked request type
func (s *Store) SnapshotAll() []models.RequestTypeProfile {
	var out []models.RequestTypeProfile
	for _, sh := range s.shards {
		sh.mu.RLock()
		for rt, p := range sh.profiles {
			out = append(out, s.snapshotLocked(rt, p))
		}
		sh.mu.RUnlock()
	}
	return out
}

// snapshotLocked builds a read-only copy; the caller holds the shard lock
func (s *Store) snapshotLocked(requestType string, p *profileState) models.RequestTypeProfile {
	variance := 0.0
	if p.sampleCount > 1 {
		variance = p.m2Seconds / float64(p.sampleCount-1)
	}
	stdDev := math.Sqrt(variance)

	// Unroll the ring buffer oldest-first
	recent := make([]time.Time, 0, p.accessCount)
	if p.accessCount > 0 {
		start := 0
		if p.accessCount == len(p.accesses) {
			start = p.accessHead
		}
		for i := 0; i < p.accessCount; i++ {
			recent = append(recent, p.accesses[(start+i)%len(p.accesses)])
		}
	}

	return models.RequestTypeProfile{
		RequestType:          requestType,
		SampleCount:          p.sampleCount,
		MeanDuration:         time.Duration(p.meanSeconds * float64(time.Second)),
		DurationVariance:     variance,
		DurationStdDev:       time.Duration(stdDev * float64(time.Second)),
		ErrorRate:            p.errorRate,
		MeanMemoryDelta:      p.meanMemoryDelta,
		MeanDatabaseCalls:    p.meanDatabaseCalls,
		MeanExternalCalls:    p.meanExternalCalls,
		ConcurrencyHighWater: p.concurrencyHighWater,
		RecentAccesses:       recent,
		FirstSeen:            p.firstSeen,
		LastSeen:             p.lastSeen,
	}
}

// TrackedTypes returns the request types with at least one sample
func (s *Store) TrackedTypes() []string {
	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for rt := range sh.profiles {
			out = append(out, rt)
		}
		sh.mu.RUnlock()
	}
	return out
}

// TotalSamples returns the sample count summed across all types
func (s *Store) TotalSamples() int64 {
	var total int64
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, p := range sh.profiles {
			total += p.sampleCount
		}
		sh.mu.RUnlock()
	}
	return total
}

// Reset atomically clears every profile. Used for test isolation and
// operator-triggered resets.
func (s *Store) Reset() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.profiles = make(map[string]*profileState)
		sh.mu.Unlock()
	}
}
