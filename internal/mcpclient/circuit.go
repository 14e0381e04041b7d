package mcpclient

import (
	"sync"
	"time"

	"mcp-tools-bridge/internal/metrics"
)

// CircuitState is the data this subsystem tracks per endpoint. It is a
// binary breaker (closed/open with a cooldown), not the three-state
// closed/open/half-open breaker glyphoxa's resilience package implements —
// deliberately: this subsystem has no probe-call budget field to model a
// half-open state, so one was not added.
type CircuitState struct {
	FailureCount    uint
	LastFailureAt   time.Time
	BreakerOpen     bool
	BreakerOpenedAt time.Time
}

// CircuitBreaker guards a single endpoint. Crossing the failure threshold
// opens the breaker; ShouldRetry reports false until the reset cooldown has
// elapsed, at which point the breaker closes again for the next attempt
// (there is no separate probe-limited phase: the very next ShouldRetry==true
// attempt is a normal, fully-weighted attempt).
type CircuitBreaker struct {
	endpoint   string
	threshold  int
	resetAfter time.Duration

	mu    sync.Mutex
	state CircuitState
}

func newCircuitBreaker(endpoint string, threshold int, resetAfter time.Duration) *CircuitBreaker {
	return &CircuitBreaker{endpoint: endpoint, threshold: threshold, resetAfter: resetAfter}
}

// ShouldRetry reports whether an attempt against this endpoint may proceed.
func (cb *CircuitBreaker) ShouldRetry() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.state.BreakerOpen {
		return true
	}
	if time.Since(cb.state.BreakerOpenedAt) >= cb.resetAfter {
		cb.state.BreakerOpen = false
		cb.state.FailureCount = 0
		metrics.CircuitTransitions.WithLabelValues(cb.endpoint, "closed").Inc()
		return true
	}
	return false
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is crossed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.FailureCount++
	cb.state.LastFailureAt = time.Now()
	if !cb.state.BreakerOpen && int(cb.state.FailureCount) >= cb.threshold {
		cb.state.BreakerOpen = true
		cb.state.BreakerOpenedAt = cb.state.LastFailureAt
		metrics.CircuitTransitions.WithLabelValues(cb.endpoint, "opened").Inc()
	}
}

// RecordSuccess clears the failure count and closes the breaker. Called
// after a successful connect.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.FailureCount = 0
	cb.state.BreakerOpen = false
}

// Reset is the explicit operator escape hatch (spec.md §9), grounded on
// glyphoxa's resilience.CircuitBreaker.Reset.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitState{}
	metrics.CircuitTransitions.WithLabelValues(cb.endpoint, "reset").Inc()
}

// Snapshot returns a copy of the current state for inspection/tests.
func (cb *CircuitBreaker) Snapshot() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitRegistry is the process-wide, endpoint-keyed map of breakers
// (spec.md §9: "process-wide map keyed by endpoint string; per-entry
// locking"). The first For call for a given key wins the
// threshold/resetAfter tuning; later calls with different tuning for the
// same endpoint key reuse the existing breaker rather than silently
// reconfiguring live state (undocumented in spec.md — recorded as a
// decision in DESIGN.md rather than guessed at).
type CircuitRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewCircuitRegistry() *CircuitRegistry {
	return &CircuitRegistry{breakers: make(map[string]*CircuitBreaker)}
}

// For returns the breaker for endpointKey, creating it with the supplied
// tuning if it doesn't exist yet.
func (r *CircuitRegistry) For(endpointKey string, threshold int, resetAfter time.Duration) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[endpointKey]; ok {
		return cb
	}
	cb := newCircuitBreaker(endpointKey, threshold, resetAfter)
	r.breakers[endpointKey] = cb
	return cb
}

// Reset resets the breaker for endpointKey, if one exists.
func (r *CircuitRegistry) Reset(endpointKey string) {
	r.mu.Lock()
	cb, ok := r.breakers[endpointKey]
	r.mu.Unlock()
	if ok {
		cb.Reset()
	}
}
