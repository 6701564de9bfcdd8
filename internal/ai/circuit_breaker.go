package ai

import (
	"fmt"

	"github.com/sony/gobreaker/v2"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
)

// CircuitBreaker guards generation calls for one task kind. A nil breaker
// passes calls straight through.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[*Reply]
}

// NewCircuitBreaker creates a circuit breaker for operation, or nil when disabled
func NewCircuitBreaker(operation string, cfg *config.CircuitBreakerConfig, logger *errors.Logger) *CircuitBreaker {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("AI-%s", operation),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests &&
				failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Info("Circuit breaker state changed",
				"name", name,
				"operation", operation,
				"from", from.String(),
				"to", to.String(),
				"max_requests", cfg.MaxRequests,
				"failure_threshold", cfg.FailureThreshold)
		},
	}

	return &CircuitBreaker{
		cb: gobreaker.NewCircuitBreaker[*Reply](settings),
	}
}

// Execute runs fn under circuit breaker protection. While the breaker is open
// fn is not called and gobreaker.ErrOpenState is returned.
func (cb *CircuitBreaker) Execute(fn func() (*Reply, error)) (*Reply, error) {
	if cb == nil || cb.cb == nil {
		return fn()
	}
	return cb.cb.Execute(fn)
}

// Stats returns circuit breaker statistics
func (cb *CircuitBreaker) Stats() map[string]any {
	if cb == nil || cb.cb == nil {
		return map[string]any{
			"enabled": false,
		}
	}

	return map[string]any{
		"name":    cb.cb.Name(),
		"state":   cb.cb.State().String(),
		"counts":  cb.cb.Counts(),
		"enabled": true,
	}
}

// IsHealthy returns true if the circuit breaker is in closed state
func (cb *CircuitBreaker) IsHealthy() bool {
	if cb == nil || cb.cb == nil {
		return true
	}
	return cb.cb.State() == gobreaker.StateClosed
}
