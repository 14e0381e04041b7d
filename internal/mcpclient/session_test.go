package mcpclient

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConnection is a hand-rolled Connection double, in the teacher's
// MockConnection/MockTransport style: a struct with function fields the
// test configures, rather than a generated mock.
type fakeConnection struct {
	mu   sync.Mutex
	open bool

	callFunc func(ctx context.Context, method string, params any) (json.RawMessage, error)
}

func (f *fakeConnection) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if f.callFunc != nil {
		return f.callFunc(ctx, method, params)
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeConnection) Notify(ctx context.Context, method string, params any) error { return nil }

func (f *fakeConnection) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	return nil
}

func successfulInitializeResponse() json.RawMessage {
	return json.RawMessage(`{
		"capabilities": {"tools": {"supported": true}},
		"serverInfo": {"name": "fake-server", "version": "1.0"},
		"protocolVersion": "2025-06-18"
	}`)
}

// fakeFactory counts how many times Connect is invoked, to assert
// singleflight coalescing the way the teacher's TestMCPClient_Concurrency
// asserts exactly one transport creation under concurrent callers.
type fakeFactory struct {
	connectCount int32
	delay        time.Duration
	fail         bool
}

func (f *fakeFactory) Connect(ctx context.Context, ep Endpoint, opts ConnectOptions) (Connection, error) {
	atomic.AddInt32(&f.connectCount, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail {
		return nil, TransportError(CodeConnectFailed, "dial failed", true, nil, nil)
	}
	conn := &fakeConnection{open: true}
	conn.callFunc = func(ctx context.Context, method string, params any) (json.RawMessage, error) {
		if method == "initialize" {
			return successfulInitializeResponse(), nil
		}
		return json.RawMessage(`{}`), nil
	}
	return conn, nil
}

func testEndpoint() Endpoint {
	return Endpoint{Kind: TransportHTTP, URL: "http://fake-mcp.local"}
}

func fastSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.BaseRetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	cfg.HealthCheckInterval = 0 // tests drive reconnection directly, not via the health loop
	cfg.CapabilityTimeout = time.Second
	return cfg
}

func TestSession_ConnectSucceeds(t *testing.T) {
	factory := &fakeFactory{}
	s := NewSession(testEndpoint(), factory, fastSessionConfig(), NewCircuitRegistry())
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("expected successful connect, got %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("expected StateConnected, got %s", s.State())
	}
	if s.ServerInfo().ServerName != "fake-server" {
		t.Errorf("expected negotiated serverInfo to be recorded")
	}
}

func TestSession_ConnectIsNoOpWhenAlreadyConnected(t *testing.T) {
	factory := &fakeFactory{}
	s := NewSession(testEndpoint(), factory, fastSessionConfig(), NewCircuitRegistry())
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("expected no-op connect to succeed, got %v", err)
	}
	if atomic.LoadInt32(&factory.connectCount) != 1 {
		t.Errorf("expected exactly 1 dial, got %d", factory.connectCount)
	}
}

func TestSession_ConnectFailureSetsFailedState(t *testing.T) {
	factory := &fakeFactory{fail: true}
	s := NewSession(testEndpoint(), factory, fastSessionConfig(), NewCircuitRegistry())
	defer s.Close()

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if s.State() != StateFailed {
		t.Errorf("expected StateFailed, got %s", s.State())
	}
}

func TestSession_ConcurrentConnectCoalesces(t *testing.T) {
	factory := &fakeFactory{delay: 50 * time.Millisecond}
	s := NewSession(testEndpoint(), factory, fastSessionConfig(), NewCircuitRegistry())
	defer s.Close()

	const concurrency = 20
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			_ = s.Connect(context.Background())
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&factory.connectCount); got != 1 {
		t.Errorf("expected exactly 1 dial under concurrent Connect callers, got %d", got)
	}
}

func TestSession_CallFailsWhenNotConnected(t *testing.T) {
	factory := &fakeFactory{}
	s := NewSession(testEndpoint(), factory, fastSessionConfig(), NewCircuitRegistry())
	defer s.Close()

	_, err := s.Call(context.Background(), "tools/list", nil)
	if err == nil {
		t.Fatal("expected error calling an unconnected session")
	}
	var cerr *Error
	if !asMcpErr(err, &cerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if cerr.Code != CodeNotConnected {
		t.Errorf("expected %s, got %s", CodeNotConnected, cerr.Code)
	}
}

func TestSession_CircuitOpensAfterRepeatedConnectFailures(t *testing.T) {
	factory := &fakeFactory{fail: true}
	cfg := fastSessionConfig()
	cfg.CircuitThreshold = 2
	registry := NewCircuitRegistry()
	s := NewSession(testEndpoint(), factory, cfg, registry)
	defer s.Close()

	for i := 0; i < 2; i++ {
		if err := s.Connect(context.Background()); err == nil {
			t.Fatalf("expected failure on attempt %d", i+1)
		}
	}

	start := time.Now()
	err := s.Connect(context.Background())
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected circuit-open rejection")
	}
	if elapsed > 10*time.Millisecond {
		t.Errorf("expected fast circuit-breaker rejection, took %v", elapsed)
	}
}

func TestSession_BackoffRespectsContextCancellation(t *testing.T) {
	s := NewSession(testEndpoint(), &fakeFactory{}, SessionConfig{
		BaseRetryDelay: time.Hour,
		MaxRetryDelay:  time.Hour,
		RetryJitter:    false,
	}, NewCircuitRegistry())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	ok := s.supervisor.sleepBackoff(ctx, 1)
	if ok {
		t.Error("expected sleepBackoff to report cancellation")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("backoff did not respect context cancellation")
	}
}

// asMcpErr is a tiny errors.As wrapper kept local to this test file so each
// test reads as a single assertion line.
func asMcpErr(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
