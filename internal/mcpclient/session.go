package mcpclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mcp-tools-bridge/internal/metrics"
)

// SessionState is one of the five states the state machine defined in
// spec.md §3 can be in.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionConfig holds the Session construction parameters spec.md §6 lists:
// retry/backoff tuning, health check cadence, capability negotiation
// timeout, and the client identity sent during initialize.
type SessionConfig struct {
	MaxRetries            int
	BaseRetryDelay        time.Duration
	MaxRetryDelay         time.Duration
	HealthCheckInterval   time.Duration // 0 disables health checks
	CapabilityTimeout     time.Duration
	RetryJitter           bool
	CircuitThreshold      int
	CircuitReset          time.Duration
	ClientName          string
	ClientVersion       string
}

// DefaultSessionConfig returns the spec.md §6 defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxRetries:          3,
		BaseRetryDelay:      1 * time.Second,
		MaxRetryDelay:       30 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		CapabilityTimeout:   5 * time.Second,
		RetryJitter:         true,
		CircuitThreshold:    5,
		CircuitReset:        60 * time.Second,
		ClientName:          "mcp-tools-bridge",
		ClientVersion:       "0.1.0",
	}
}

// OnStateChange is invoked (from the Session's own goroutines, never
// concurrently) whenever the state machine transitions.
type OnStateChange func(old, new SessionState)

// Session is a single connection-with-lifecycle to one MCP endpoint. It owns
// the state machine, the reconnect supervisor, and the shared circuit
// breaker for its endpoint.
type Session struct {
	endpoint Endpoint
	factory  ConnectionFactory
	cfg      SessionConfig
	circuit  *CircuitBreaker
	log      *slog.Logger

	OnStateChange OnStateChange

	baseCtx context.Context
	cancel  context.CancelFunc

	connectGroup singleflight.Group

	mu         sync.Mutex
	state      SessionState
	conn       Connection
	serverInfo InitializeResult

	supervisor *supervisor
}

// NewSession constructs a Session in the Disconnected state. Connect must be
// called before any tool invocation.
func NewSession(ep Endpoint, factory ConnectionFactory, cfg SessionConfig, circuits *CircuitRegistry) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		endpoint: ep,
		factory:  factory,
		cfg:      cfg,
		circuit:  circuits.For(ep.Key(), cfg.CircuitThreshold, cfg.CircuitReset),
		log:      slog.With("endpoint", ep.String()),
		baseCtx:  ctx,
		cancel:   cancel,
		state:    StateDisconnected,
	}
	s.supervisor = newSupervisor(s)
	return s
}

func (s *Session) setState(new SessionState) {
	s.mu.Lock()
	old := s.state
	s.state = new
	s.mu.Unlock()
	if old == new {
		return
	}
	metrics.SessionState.WithLabelValues(s.endpoint.Key(), old.String()).Set(0)
	metrics.SessionState.WithLabelValues(s.endpoint.Key(), new.String()).Set(1)
	s.log.Info("session state transition", "from", old.String(), "to", new.String())
	if s.OnStateChange != nil {
		s.OnStateChange(old, new)
	}
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected is a convenience check used by callers before invoking a tool.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.conn != nil && s.conn.IsOpen()
}

// ServerInfo returns the negotiated initialize result from the last
// successful handshake.
func (s *Session) ServerInfo() InitializeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Connect dials the endpoint and performs the initialize handshake.
// Concurrent callers coalesce onto a single connect attempt via
// singleflight, following the teacher's requestGroup.Do pattern. Calling
// Connect while already Connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	if s.IsConnected() {
		return nil
	}
	_, err, _ := s.connectGroup.Do("connect", func() (any, error) {
		if s.IsConnected() {
			return nil, nil
		}
		return nil, s.connectOnce(ctx)
	})
	return err
}

// connectOnce performs exactly one dial+handshake attempt and updates state
// accordingly. It does not retry — retrying is the supervisor's job.
func (s *Session) connectOnce(ctx context.Context) error {
	if !s.circuit.ShouldRetry() {
		return TransportError(CodeCircuitOpen, "circuit breaker open for endpoint", true, nil,
			map[string]string{"endpoint": s.endpoint.Key()})
	}

	s.setState(StateConnecting)

	conn, err := s.factory.Connect(ctx, s.endpoint, ConnectOptions{Headers: s.endpoint.Headers, Token: s.endpoint.Token})
	if err != nil {
		s.circuit.RecordFailure()
		s.setState(StateFailed)
		return err
	}

	negCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.CapabilityTimeout > 0 {
		negCtx, cancel = context.WithTimeout(ctx, s.cfg.CapabilityTimeout)
		defer cancel()
	}

	result, err := s.doInitialize(negCtx, conn)
	if err != nil {
		conn.Close()
		// Capability/protocol handshake failures do not count against the
		// transport circuit breaker — the transport itself connected fine.
		if asErr, ok := err.(*Error); !ok || asErr.Kind == KindTransport {
			s.circuit.RecordFailure()
		}
		s.setState(StateFailed)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.serverInfo = result
	s.mu.Unlock()

	s.circuit.RecordSuccess()
	s.setState(StateConnected)
	s.supervisor.start()
	return nil
}

func (s *Session) doInitialize(ctx context.Context, conn Connection) (InitializeResult, error) {
	params := buildInitializeParams(s.cfg.ClientName, s.cfg.ClientVersion)
	raw, err := conn.Call(ctx, "initialize", params)
	if err != nil {
		return InitializeResult{}, err
	}
	result, err := negotiate(raw)
	if err != nil {
		return InitializeResult{}, err
	}
	if err := conn.Notify(ctx, "notifications/initialized", nil); err != nil {
		return InitializeResult{}, err
	}
	return result, nil
}

// Call forwards a JSON-RPC call through the current connection. It does not
// retry or reconnect; a transport failure is returned to the caller, and
// reconnection is left to the supervisor's health loop.
func (s *Session) Call(ctx context.Context, method string, params any) ([]byte, error) {
	s.mu.Lock()
	state := s.state
	conn := s.conn
	s.mu.Unlock()

	if state != StateConnected || conn == nil {
		return nil, TransportError(CodeNotConnected, "session is not connected", true, nil,
			map[string]string{"state": state.String()})
	}
	return conn.Call(ctx, method, params)
}

// Close tears down the supervisor, closes the connection, and cancels the
// Session's background context.
func (s *Session) Close() error {
	s.supervisor.stop()
	s.cancel()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}
