// Manager is the supplemented multi-endpoint owner spec.md doesn't name
// directly but implies ("a caller constructs a Session against an
// endpoint"). It mirrors the shape of step-chen-agent-sets' MCPClient
// (which owns multiple endpointInfo/session pairs) and
// Jint8888-Pocket-Omega's mcp.Manager (which owns multiple *Client plus
// their ToolRouter registrations), generalized to this subsystem's stricter
// state machine and per-strategy Binder instead of those repos'
// product-specific extensions (security scanning, per_call lifecycle),
// which spec.md never mentions and which are excluded here.
package mcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ManagedServer is one configured endpoint's Session+Binder pair.
type ManagedServer struct {
	Name     string
	Endpoint Endpoint
	Session  *Session
	Binder   *Binder
}

// Manager owns one Session+Binder pair per configured Endpoint, all sharing
// one ToolRouter and one process-wide CircuitRegistry.
type Manager struct {
	router   ToolRouter
	circuits *CircuitRegistry

	mu      sync.Mutex
	servers map[string]*ManagedServer
}

func NewManager(router ToolRouter) *Manager {
	return &Manager{
		router:   router,
		circuits: NewCircuitRegistry(),
		servers:  make(map[string]*ManagedServer),
	}
}

func dispatchFactory(ep Endpoint) ConnectionFactory {
	switch ep.Kind {
	case TransportSubprocess:
		return StdioConnectionFactory{}
	default:
		return HTTPConnectionFactory{}
	}
}

// AddServer registers a new endpoint under name, connects it, and binds its
// tool catalog into the shared router. The ManagedServer is tracked (and
// its Session left in whatever state the connect attempt produced) even if
// Connect returns an error, so a later ConnectAll can retry it.
func (m *Manager) AddServer(ctx context.Context, name string, ep Endpoint, cfg SessionConfig, strategy FailureStrategy) error {
	session := NewSession(ep, dispatchFactory(ep), cfg, m.circuits)
	binder := NewBinder(session, m.router, strategy)

	m.mu.Lock()
	m.servers[name] = &ManagedServer{Name: name, Endpoint: ep, Session: session, Binder: binder}
	m.mu.Unlock()

	return session.Connect(ctx)
}

// ConnectAll attempts to connect every currently-registered server that
// isn't already connected, collecting (not short-circuiting on) per-server
// errors.
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.Lock()
	servers := make([]*ManagedServer, 0, len(m.servers))
	for _, ms := range m.servers {
		servers = append(servers, ms)
	}
	m.mu.Unlock()

	var errs []error
	for _, ms := range servers {
		if ms.Session.IsConnected() {
			continue
		}
		if err := ms.Session.Connect(ctx); err != nil {
			slog.Error("connect failed", "server", ms.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ms.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("connect all: %d of %d servers failed: %v", len(errs), len(servers), errs)
	}
	return nil
}

// Get returns the ManagedServer registered under name.
func (m *Manager) Get(name string) (*ManagedServer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.servers[name]
	return ms, ok
}

// RemoveServer unregisters name's tools and tears down its Session.
func (m *Manager) RemoveServer(name string) error {
	m.mu.Lock()
	ms, ok := m.servers[name]
	delete(m.servers, name)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("server not registered: %s", name)
	}
	ms.Binder.UnregisterAll()
	return ms.Session.Close()
}

// CloseAll tears down every managed server. Errors are logged, not
// returned — Close is meant to run during shutdown where there's no
// meaningful recovery for a single server's close failure.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	servers := make([]*ManagedServer, 0, len(m.servers))
	for name, ms := range m.servers {
		servers = append(servers, ms)
		delete(m.servers, name)
	}
	m.mu.Unlock()

	for _, ms := range servers {
		ms.Binder.UnregisterAll()
		if err := ms.Session.Close(); err != nil {
			slog.Error("close server failed", "server", ms.Name, "error", err)
		}
	}
}
