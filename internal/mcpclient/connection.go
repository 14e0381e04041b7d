package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Connection is the minimal transport-agnostic contract a ConnectionFactory
// hands back to a Session. It deliberately exposes only call/notify/close —
// everything about how bytes get from here to the server (HTTP POST,
// subprocess stdin/stdout) lives behind the factory.
type Connection interface {
	// Call sends a JSON-RPC request and blocks for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	// Notify sends a JSON-RPC notification (no id, no response expected).
	Notify(ctx context.Context, method string, params any) error
	// IsOpen reports whether the connection still believes it is usable.
	// It flips to false once a transport-level failure has been observed or
	// after Close.
	IsOpen() bool
	Close() error
}

// ConnectOptions carries the per-dial tuning a ConnectionFactory needs
// beyond the endpoint identity itself. Deadline/cancellation are carried by
// the ctx.Context passed to Connect instead of duplicated here.
type ConnectOptions struct {
	Headers map[string]string
	Token   string
}

// ConnectionFactory dials a fresh Connection to an Endpoint.
type ConnectionFactory interface {
	Connect(ctx context.Context, ep Endpoint, opts ConnectOptions) (Connection, error)
}

// RPCError is the error returned by a Connection when the server's JSON-RPC
// response carried an "error" object. It is intentionally unclassified —
// the taxonomy mapping (ToolNotFound vs ToolInvalidParams vs a generic
// protocol error) depends on which method was being called, which only the
// caller knows; invoker.go maps it for tools/call.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// JSON-RPC wire envelope. Request ids are UUIDs: the spec leaves id
// uniqueness to "the transport", and every repo in the pack that needs a
// unique id reaches for google/uuid.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func newRequestID() string {
	return uuid.NewString()
}
