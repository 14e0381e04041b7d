// Package toolrouter provides a thread-safe, name-keyed registry of
// host-visible tools, the reference implementation of
// mcpclient.ToolRouter used by cmd/mcpdemo and by tests. It is grounded on
// Jint8888-Pocket-Omega's internal/tool.Registry: a simple mutex-guarded map
// with Register/Unregister/Get/List, minus that repo's parent/view chaining
// (WithExtra), which exists there to let a per-request agent overlay extra
// tools on a shared root registry — a concern this subsystem's Binder
// doesn't have, since each Binder owns a disjoint mcp_* namespace slice.
package toolrouter

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mcp-tools-bridge/internal/mcpclient"
)

// Entry is one registered tool: its host-visible descriptor plus the
// handler that executes it.
type Entry struct {
	Descriptor mcpclient.HostToolDescriptor
	Handler    mcpclient.ToolHandler
}

// Registry is a thread-safe map[string]Entry satisfying mcpclient.ToolRouter.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds name to the registry. A name collision is rejected rather
// than silently overwritten — two Binders racing to register the same
// mcp_<name> (e.g. two servers exposing a tool with the same original name)
// is a configuration error the caller should see, not a coin flip about
// which handler wins.
func (r *Registry) Register(name string, descriptor mcpclient.HostToolDescriptor, handler mcpclient.ToolHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("toolrouter: tool already registered: %s", name)
	}
	r.entries[name] = Entry{Descriptor: descriptor, Handler: handler}
	slog.Debug("tool registered", "name", name)
	return nil
}

// Unregister removes name, if present. Removing an absent name is a no-op,
// matching the idempotent unregister semantics Binder relies on during
// reconcile.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
	slog.Debug("tool unregistered", "name", name)
	return nil
}

func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Get returns the Entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// List returns every registered tool's descriptor, sorted by name.
func (r *Registry) List() []mcpclient.HostToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcpclient.HostToolDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
