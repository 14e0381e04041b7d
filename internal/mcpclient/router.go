package mcpclient

import "context"

// ToolHandler is the function a Binder registers in the host ToolRouter for
// one tool. The host calls it with the raw arguments object it received
// from its own caller (an LLM, typically).
type ToolHandler func(ctx context.Context, arguments map[string]any) (InvokeResult, error)

// ToolRouter is the external capability contract this subsystem consumes
// but does not own, grounded on Pocket-Omega's internal/tool.Registry: a
// thread-safe name -> (descriptor, handler) map the rest of the host uses to
// dispatch LLM tool calls. internal/toolrouter provides a concrete
// implementation; tests may substitute a fake.
type ToolRouter interface {
	Register(name string, descriptor HostToolDescriptor, handler ToolHandler) error
	Unregister(name string) error
	HasTool(name string) bool
}
