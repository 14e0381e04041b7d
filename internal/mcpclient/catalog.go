package mcpclient

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// RemoteToolDescriptor is one entry of a server's "tools/list" response.
type RemoteToolDescriptor struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// HostToolDescriptor is the host-side view of a tool: same shape as
// RemoteToolDescriptor, with the crucial invariant that Name is always
// "mcp_<originalName>" — a single underscore, no server qualifier. This
// diverges deliberately from Pocket-Omega's own adapter.go, which qualifies
// by server ("mcp_<server>__<tool>"); spec.md §3 invariant 2 names the
// unqualified form explicitly, so that rule wins here.
type HostToolDescriptor struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
}

const hostToolPrefix = "mcp_"

var defaultInputSchema = json.RawMessage(`{"type":"object","properties":{},"required":[]}`)

// toolNamePattern restricts the original tool name to the characters the
// prefixed host name can safely round-trip through.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ListRemote calls tools/list and returns the server's advertised tools.
func ListRemote(ctx context.Context, s *Session) ([]RemoteToolDescriptor, error) {
	raw, err := s.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, ToolError(CodeToolDiscoveryFailed, "tools/list failed: "+err.Error(), true, err, nil)
	}
	var wire struct {
		Tools []RemoteToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, ToolError(CodeToolDiscoveryFailed, "malformed tools/list response: "+err.Error(), false, err, nil)
	}
	return wire.Tools, nil
}

// Translate converts one RemoteToolDescriptor into its host-visible form.
// Per spec.md §4.4, it copies name and description, defaults a missing or
// empty inputSchema to a permissive empty-object schema, and rejects names
// that would produce an ambiguous or unsafe host identifier.
func Translate(d RemoteToolDescriptor) (HostToolDescriptor, error) {
	if d.Name == "" || !toolNamePattern.MatchString(d.Name) {
		return HostToolDescriptor{}, ToolError(CodeToolDiscoveryFailed,
			"tool name is empty or contains characters unsafe for host registration",
			false, nil, map[string]string{"tool": d.Name})
	}
	schema := d.InputSchema
	if len(schema) == 0 || string(schema) == "null" {
		schema = defaultInputSchema
	}
	return HostToolDescriptor{
		Name:         hostToolPrefix + d.Name,
		Description:  d.Description,
		InputSchema:  schema,
		OutputSchema: d.OutputSchema,
	}, nil
}

// ReverseTranslate inverts Translate for the host-visible descriptor shape.
// For any descriptor produced by Translate from a pure JSON Schema
// inputSchema, Translate(ReverseTranslate(h)) reproduces h byte-for-byte —
// the round-trip property spec.md §4.4 requires.
func ReverseTranslate(h HostToolDescriptor) RemoteToolDescriptor {
	return RemoteToolDescriptor{
		Name:         strings.TrimPrefix(h.Name, hostToolPrefix),
		Description:  h.Description,
		InputSchema:  h.InputSchema,
		OutputSchema: h.OutputSchema,
	}
}
