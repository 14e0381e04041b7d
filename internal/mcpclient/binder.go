package mcpclient

import (
	"context"
	"log/slog"
	"sync"

	"mcp-tools-bridge/internal/metrics"
)

// FailureStrategy selects what a Binder does with its registrations when
// its Session leaves the Connected state.
type FailureStrategy string

const (
	// StrategyImmediateUnregister removes every mcp_* registration the
	// moment the Session leaves Connected, and re-discovers/re-registers on
	// reconnect.
	StrategyImmediateUnregister FailureStrategy = "immediate_unregister"

	// StrategyMarkUnavailable leaves registrations in place; the wrapped
	// handler fails fast with a ConnectionLost-flavored error (carrying
	// {"strategy":"mark_unavailable"} in its context) while the Session is
	// not Connected.
	StrategyMarkUnavailable FailureStrategy = "mark_unavailable"
)

// Binder owns the set of host-visible mcp_* registrations for one Session
// and keeps them in sync with the Session's lifecycle. Which failure
// strategy it applies is fixed at construction.
//
// Reconnection re-registration: spec.md §9 leaves open whether, under
// mark_unavailable, a reconnect should skip re-registration entirely
// (because the binder still "remembers" the tools) or re-discover and diff.
// This implementation always re-discovers and diffs on (re)connect for both
// strategies — it adds newly-advertised tools and drops ones the server no
// longer lists, which keeps the host router's mcp_* set accurate even if
// the remote tool catalog changed across a reconnect. See DESIGN.md.
type Binder struct {
	session     *Session
	router      ToolRouter
	strategy    FailureStrategy
	endpointKey string
	log         *slog.Logger

	mu         sync.Mutex
	registered map[string]HostToolDescriptor // host name -> descriptor
	remoteName map[string]string             // host name -> original remote name
}

func NewBinder(session *Session, router ToolRouter, strategy FailureStrategy) *Binder {
	b := &Binder{
		session:     session,
		router:      router,
		strategy:    strategy,
		endpointKey: session.endpoint.Key(),
		log:         slog.With("endpoint", session.endpoint.String()),
		registered:  make(map[string]HostToolDescriptor),
		remoteName:  make(map[string]string),
	}
	session.OnStateChange = b.onSessionStateChange
	return b
}

// onSessionStateChange is wired as the Session's OnStateChange hook.
func (b *Binder) onSessionStateChange(old, new SessionState) {
	switch new {
	case StateReconnecting, StateDisconnected, StateFailed:
		if b.strategy == StrategyImmediateUnregister {
			b.UnregisterAll()
		}
	case StateConnected:
		if err := b.Reconcile(context.Background()); err != nil {
			b.log.Error("reconcile after connect failed", "error", err)
		}
	}
}

// Reconcile discovers the current remote tool set and diffs it against what
// is currently registered: new tools are registered, tools no longer
// advertised are unregistered.
func (b *Binder) Reconcile(ctx context.Context) error {
	descs, err := ListRemote(ctx, b.session)
	if err != nil {
		return err
	}

	wanted := make(map[string]HostToolDescriptor, len(descs))
	var translateErrs int
	for _, d := range descs {
		host, err := Translate(d)
		if err != nil {
			translateErrs++
			b.log.Warn("skipping tool with invalid descriptor", "tool", d.Name, "error", err)
			continue
		}
		wanted[host.Name] = host
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for hostName := range b.registered {
		if _, ok := wanted[hostName]; !ok {
			b.router.Unregister(hostName)
			delete(b.registered, hostName)
			delete(b.remoteName, hostName)
		}
	}

	var registrationErrs int
	for hostName, host := range wanted {
		if _, ok := b.registered[hostName]; ok {
			continue
		}
		remoteName := ReverseTranslate(host).Name
		handler := b.makeHandler(remoteName)
		if err := b.router.Register(hostName, host, handler); err != nil {
			registrationErrs++
			b.log.Warn("tool registration failed", "tool", hostName, "error", err)
			continue
		}
		b.registered[hostName] = host
		b.remoteName[hostName] = remoteName
	}

	metrics.RegisteredTools.WithLabelValues(b.endpointKey).Set(float64(len(b.registered)))

	if len(wanted) > 0 && len(b.registered) == 0 && (translateErrs > 0 || registrationErrs > 0) {
		return ToolError(CodeToolRegistrationFailed, "no tools could be registered", false, nil,
			map[string]string{"endpoint": b.endpointKey})
	}
	return nil
}

// UnregisterAll removes every tool this Binder currently owns from the
// router.
func (b *Binder) UnregisterAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for hostName := range b.registered {
		b.router.Unregister(hostName)
	}
	b.registered = make(map[string]HostToolDescriptor)
	b.remoteName = make(map[string]string)
	metrics.RegisteredTools.WithLabelValues(b.endpointKey).Set(0)
}

func (b *Binder) makeHandler(remoteName string) ToolHandler {
	return func(ctx context.Context, arguments map[string]any) (InvokeResult, error) {
		if b.strategy == StrategyMarkUnavailable && !b.session.IsConnected() {
			return InvokeResult{}, TransportError(CodeMarkedUnavailable,
				"tool unavailable: session not connected", true, nil,
				map[string]string{"strategy": string(StrategyMarkUnavailable), "tool": remoteName})
		}
		return Invoke(ctx, b.session, remoteName, arguments)
	}
}
