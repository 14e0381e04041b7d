package mcpclient

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mcp-tools-bridge/internal/metrics"
)

// supervisor is the Session's single background activity: a health-check
// loop that, on detecting connection loss, drives a backoff-governed
// reconnect sequence up to cfg.MaxRetries attempts. Exactly one supervisor
// goroutine runs per Session at a time (invariant: at most one health-check
// activity per Session).
type supervisor struct {
	session *Session

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func newSupervisor(s *Session) *supervisor {
	return &supervisor{session: s}
}

// start launches the health loop if it isn't already running. Safe to call
// repeatedly (e.g. after every successful (re)connect).
func (sv *supervisor) start() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.running {
		return
	}
	if sv.session.cfg.HealthCheckInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(sv.session.baseCtx)
	sv.ctx = ctx
	sv.cancel = cancel
	sv.done = make(chan struct{})
	sv.running = true
	go sv.loop(ctx, sv.done)
}

func (sv *supervisor) stop() {
	sv.mu.Lock()
	if !sv.running {
		sv.mu.Unlock()
		return
	}
	cancel := sv.cancel
	done := sv.done
	sv.running = false
	sv.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (sv *supervisor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	s := sv.session
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.State() != StateConnected {
				continue
			}
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn != nil && conn.IsOpen() {
				continue
			}

			s.log.Warn("health check detected connection loss")
			s.setState(StateReconnecting)
			sv.reconnectLoop(ctx)
			if s.State() != StateConnected {
				sv.mu.Lock()
				sv.running = false
				sv.mu.Unlock()
				return
			}
		}
	}
}

// reconnectLoop drives up to cfg.MaxRetries reconnect attempts with
// exponential backoff, honoring the circuit breaker between attempts. It
// transitions the Session to Connected on success or Failed once retries
// (or the circuit) are exhausted.
func (sv *supervisor) reconnectLoop(ctx context.Context) {
	s := sv.session
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if !s.circuit.ShouldRetry() {
			s.log.Warn("circuit open, aborting reconnect sequence")
			break
		}

		if !sv.sleepBackoff(ctx, attempt) {
			return
		}

		err := s.connectOnce(ctx)
		if err == nil {
			metrics.ReconnectAttempts.WithLabelValues(s.endpoint.Key(), "success").Inc()
			s.log.Info("reconnected", "attempt", attempt)
			return
		}
		metrics.ReconnectAttempts.WithLabelValues(s.endpoint.Key(), "failure").Inc()
		s.log.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
	}
	s.setState(StateFailed)
}

// jitterFactor bounds the additive jitter added on top of the computed
// backoff: up to jitterFactor*delay extra wait, never less.
const jitterFactor = 0.5

// sleepBackoff waits for the computed backoff duration for attempt, or
// returns false if ctx was cancelled first. Jitter is additive so the
// measured wait is never less than min(baseDelay*2^(attempt-1), maxRetryDelay).
func (sv *supervisor) sleepBackoff(ctx context.Context, attempt int) bool {
	s := sv.session
	delay := s.cfg.BaseRetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > s.cfg.MaxRetryDelay {
		delay = s.cfg.MaxRetryDelay
	}
	if s.cfg.RetryJitter && delay > 0 {
		delay += time.Duration(rand.Float64() * float64(delay) * jitterFactor)
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
