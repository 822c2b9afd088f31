package models

import (
	"fmt"
)

// Strategy represents an optimization strategy the engine can recommend
type Strategy string

const (
	StrategyNone                 Strategy = "none"
	StrategyEnableCaching        Strategy = "enable_caching"
	StrategyBatchProcessing      Strategy = "batch_processing"
	StrategyParallelProcessing   Strategy = "parallel_processing"
	StrategyMemoryPooling        Strategy = "memory_pooling"
	StrategyDatabaseOptimization Strategy = "database_optimization"
	StrategyCircuitBreaker       Strategy = "circuit_breaker"
)

// ValidStrategies returns all strategies the engine can recommend
func ValidStrategies() []Strategy {
	return []Strategy{
		StrategyNone,
		StrategyEnableCaching,
		StrategyBatchProcessing,
		StrategyParallelProcessing,
		StrategyMemoryPooling,
		StrategyDatabaseOptimization,
		StrategyCircuitBreaker,
	}
}

// IsValid checks if a Strategy is valid
func (s Strategy) IsValid() bool {
	for _, valid := range ValidStrategies() {
		if s == valid {
			return true
		}
	}
	return false
}

// String returns the string representation of Strategy
func (s Strategy) String() string {
	return string(s)
}

// PriorityTier represents how urgently a recommendation should be considered
type PriorityTier string

const (
	PriorityLow      PriorityTier = "low"
	PriorityMedium   PriorityTier = "medium"
	PriorityHigh     PriorityTier = "high"
	PriorityCritical PriorityTier = "critical"
)

// RiskTier represents the risk of applying a recommendation
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// IsValid checks if a RiskTier is valid
func (r RiskTier) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// rank orders tiers from low to high; unknown tiers rank above high so
// they are never treated as safe.
func (r RiskTier) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return 3
}

// Exceeds reports whether r is riskier than the given ceiling
func (r RiskTier) Exceeds(ceiling RiskTier) bool {
	return r.rank() > ceiling.rank()
}

// CacheScope represents where a recommended cache should live
type CacheScope string

const (
	CacheScopeInstance    CacheScope = "instance"
	CacheScopeDistributed CacheScope = "distributed"
)

// KeyStrategy represents how cache keys should be derived
type KeyStrategy string

const (
	KeyStrategyExact      KeyStrategy = "exact"
	KeyStrategyNormalized KeyStrategy = "normalized"
)

// Confidence represents statistical support for a recommendation (0.0-1.0)
type Confidence float64

// IsValid checks if a Confidence is valid
func (c Confidence) IsValid() bool {
	return c >= 0.0 && c <= 1.0
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s",
		ve.Field, ve.Value, ve.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", ve[0].Error(), len(ve)-1)
}

// HasErrors returns true if there are validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field string, value interface{}, message string) {
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// AddIf adds a validation error if the condition is true
func (ve *ValidationErrors) AddIf(condition bool, field string, value interface{}, message string) {
	if condition {
		ve.Add(field, value, message)
	}
}
