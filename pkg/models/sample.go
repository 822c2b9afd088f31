package models

import (
	"time"
)

// ExecutionSample represents one observed call for a request type.
// Samples are immutable once created; the analytics store owns them
// after ingestion.
type ExecutionSample struct {
	RequestType string        `json:"request_type"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`

	// Resource footprint
	MemoryDelta int64 `json:"memory_delta"` // Bytes allocated during the call

	// Downstream interaction counts
	DatabaseCalls int `json:"database_calls"`
	ExternalCalls int `json:"external_calls"`

	// Concurrent in-flight requests of the same type at observation time
	ConcurrentCount int `json:"concurrent_count"`
}

// Validate validates the execution sample
func (s ExecutionSample) Validate() error {
	var errors ValidationErrors

	errors.AddIf(s.RequestType == "", "RequestType", s.RequestType,
		"RequestType cannot be empty")
	errors.AddIf(s.Duration < 0, "Duration", s.Duration,
		"Duration must be non-negative")
	errors.AddIf(s.DatabaseCalls < 0, "DatabaseCalls", s.DatabaseCalls,
		"DatabaseCalls must be non-negative")
	errors.AddIf(s.ExternalCalls < 0, "ExternalCalls", s.ExternalCalls,
		"ExternalCalls must be non-negative")
	errors.AddIf(s.ConcurrentCount < 0, "ConcurrentCount", s.ConcurrentCount,
		"ConcurrentCount must be non-negative")

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// AccessPattern represents one ordered access event, used by the caching
// analysis service to reason about interval regularity and key reuse.
type AccessPattern struct {
	Timestamp time.Time `json:"timestamp"`
	// KeyShape is a stable descriptor of the request's key dimension,
	// e.g. a normalized parameter fingerprint. Identical shapes indicate
	// a cache hit opportunity.
	KeyShape string `json:"key_shape"`
}

// SystemLoadMetrics represents a point-in-time view of host load,
// supplied by the instrumentation layer for batch-size recommendations.
type SystemLoadMetrics struct {
	CPUUtilization float64   `json:"cpu_utilization"` // Fraction [0,1]
	QueueDepth     int       `json:"queue_depth"`
	Throughput     float64   `json:"throughput"` // Requests per second
	Timestamp      time.Time `json:"timestamp"`
}

// Validate validates the system load metrics
func (m SystemLoadMetrics) Validate() error {
	var errors ValidationErrors

	errors.AddIf(m.CPUUtilization < 0 || m.CPUUtilization > 1, "CPUUtilization",
		m.CPUUtilization, "CPUUtilization must be in range [0,1]")
	errors.AddIf(m.QueueDepth < 0, "QueueDepth", m.QueueDepth,
		"QueueDepth must be non-negative")
	errors.AddIf(m.Throughput < 0, "Throughput", m.Throughput,
		"Throughput must be non-negative")

	if errors.HasErrors() {
		return errors
	}
	return nil
}
