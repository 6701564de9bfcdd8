package ai

import (
	"fmt"
	"testing"
	"time"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
)

func breakerConfig(minRequests uint32, threshold float64) *config.CircuitBreakerConfig {
	return &config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          60 * time.Second,
		MinRequests:      minRequests,
		FailureThreshold: threshold,
	}
}

func TestIndependentCircuitBreakers(t *testing.T) {
	generateCB := NewCircuitBreaker("generate", breakerConfig(3, 0.6), nil)
	analyzeCB := NewCircuitBreaker("analyze", breakerConfig(2, 0.5), nil)

	for _, tc := range []struct {
		cb       *CircuitBreaker
		expected string
	}{
		{generateCB, "AI-generate"},
		{analyzeCB, "AI-analyze"},
	} {
		stats := tc.cb.Stats()
		name, ok := stats["name"].(string)
		if !ok {
			t.Fatal("Circuit breaker name not found")
		}
		if name != tc.expected {
			t.Errorf("Expected circuit breaker name '%s', got '%s'", tc.expected, name)
		}
		if state := stats["state"]; state != "closed" {
			t.Errorf("Expected initial state 'closed', got '%v'", state)
		}
		if enabled, _ := stats["enabled"].(bool); !enabled {
			t.Error("Circuit breaker should be enabled")
		}
	}

	// tripping one kind leaves the other closed
	for range 2 {
		_, _ = analyzeCB.Execute(func() (*Reply, error) { return nil, fmt.Errorf("boom") })
	}
	if analyzeCB.IsHealthy() {
		t.Error("Analyze circuit breaker should be open after repeated failures")
	}
	if !generateCB.IsHealthy() {
		t.Error("Generate circuit breaker should be unaffected")
	}
}

func TestCircuitBreakerOpenSkipsCall(t *testing.T) {
	cb := NewCircuitBreaker("generate", breakerConfig(1, 1.0), errors.Discard())

	_, err := cb.Execute(func() (*Reply, error) { return nil, fmt.Errorf("upstream down") })
	if err == nil {
		t.Fatal("Expected the first failure to be returned")
	}

	calls := 0
	_, err = cb.Execute(func() (*Reply, error) {
		calls++
		return &Reply{}, nil
	})
	if calls != 0 {
		t.Errorf("Expected no call while open, got %d", calls)
	}

	classified := classifyTransportError("anthropic", err)
	if errors.KindOf(classified) != errors.KindTransportFailed {
		t.Errorf("Expected TransportFailed, got %s", errors.KindOf(classified))
	}
	if !errors.HasCode(classified, errors.ErrCodeCircuitOpen) {
		t.Errorf("Expected %s, got %v", errors.ErrCodeCircuitOpen, classified)
	}
}

func TestCircuitBreakerDisabled(t *testing.T) {
	if cb := NewCircuitBreaker("disabled", &config.CircuitBreakerConfig{Enabled: false}, nil); cb != nil {
		t.Fatal("Circuit breaker should be nil when disabled")
	}
	if cb := NewCircuitBreaker("missing", nil, nil); cb != nil {
		t.Fatal("Circuit breaker should be nil without configuration")
	}

	var cb *CircuitBreaker
	reply, err := cb.Execute(func() (*Reply, error) { return &Reply{Model: "m"}, nil })
	if err != nil || reply.Model != "m" {
		t.Errorf("Nil breaker should pass calls through, got %v, %v", reply, err)
	}
	if !cb.IsHealthy() {
		t.Error("Nil breaker should report healthy")
	}
	if enabled := cb.Stats()["enabled"]; enabled != false {
		t.Errorf("Expected enabled=false, got %v", enabled)
	}
}
