package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"mcp-tools-bridge/internal/metrics"
)

// ContentItem is one element of a tools/call result's content array.
type ContentItem struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
}

// InvokeResult is the normalized result of a tool invocation, following the
// content-array normalization rules in spec.md §4.5:
//   - zero content items  -> Result is nil
//   - exactly one text item -> Result is that item's Text (a string)
//   - exactly one non-text item -> Result is the ContentItem itself
//   - two or more items -> Result is the full []ContentItem slice
type InvokeResult struct {
	IsError bool
	Result  any
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type toolCallResultWire struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// Invoke calls the named remote tool through the Session and classifies
// every failure mode per spec.md §4.5/§7: a closed Session fails fast, a
// JSON-RPC error is mapped by code (-32601 -> ToolNotFound, -32602 ->
// ToolInvalidParams, anything else -> ToolExecutionFailed), and a raw
// transport failure is wrapped as ToolExecutionFailed citing the transport
// error as its cause.
func Invoke(ctx context.Context, s *Session, toolName string, args map[string]any) (InvokeResult, error) {
	endpoint := s.endpoint.Key()

	if !s.IsConnected() {
		metrics.MCPToolCalls.WithLabelValues(endpoint, toolName, "not_connected").Inc()
		return InvokeResult{}, TransportError(CodeNotConnected, "session is not connected", true, nil,
			map[string]string{"tool": toolName})
	}

	raw, err := s.Call(ctx, "tools/call", toolCallParams{Name: toolName, Arguments: args})
	if err != nil {
		status := "error"
		if asErr, ok := err.(*Error); ok && asErr.Code == CodeCircuitOpen {
			status = "circuit_breaker_rejected"
		}
		metrics.MCPToolCalls.WithLabelValues(endpoint, toolName, status).Inc()
		return InvokeResult{}, classifyInvokeError(toolName, err)
	}

	var wire toolCallResultWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		metrics.MCPToolCalls.WithLabelValues(endpoint, toolName, "error").Inc()
		return InvokeResult{}, ProtocolError(CodeProtocolMalformed, "malformed tools/call result: "+err.Error(), err,
			map[string]string{"tool": toolName})
	}

	if wire.IsError {
		metrics.MCPToolCalls.WithLabelValues(endpoint, toolName, "error").Inc()
		return InvokeResult{}, ToolError(CodeToolExecutionFailed, toolErrorText(wire.Content), true, nil,
			map[string]string{"tool": toolName})
	}

	metrics.MCPToolCalls.WithLabelValues(endpoint, toolName, "success").Inc()
	return InvokeResult{IsError: wire.IsError, Result: normalizeContent(wire.Content)}, nil
}

// toolErrorText concatenates the text of every text-type content item, per
// spec.md §4.5 rule 5's requirement to surface the server's error message.
func toolErrorText(items []ContentItem) string {
	var b strings.Builder
	for _, item := range items {
		if item.Type != "text" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(item.Text)
	}
	return b.String()
}

func classifyInvokeError(toolName string, err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case -32601:
			return ToolError(CodeToolNotFound, "tool not found: "+rpcErr.Message, false, err, map[string]string{"tool": toolName})
		case -32602:
			return ToolError(CodeToolInvalidParams, "invalid tool parameters: "+rpcErr.Message, false, err, map[string]string{"tool": toolName})
		default:
			return ToolError(CodeToolExecutionFailed, rpcErr.Message, true, err, map[string]string{"tool": toolName})
		}
	}

	var coreErr *Error
	if errors.As(err, &coreErr) && coreErr.Kind == KindTransport {
		return ToolError(CodeToolExecutionFailed, "transport failure during tool call", true, err, map[string]string{"tool": toolName})
	}
	return err
}

func normalizeContent(items []ContentItem) any {
	switch len(items) {
	case 0:
		return nil
	case 1:
		if items[0].Type == "text" {
			return items[0].Text
		}
		return items[0]
	default:
		return items
	}
}
