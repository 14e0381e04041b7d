package mcpclient

import "encoding/json"

const protocolVersion = "2025-06-18"

// CapabilityDescriptor is the {"supported": bool, ...} shape this subsystem
// expects from a server's initialize response. Unknown sibling fields are
// preserved in raw but never inspected — the negotiator only cares whether
// "supported" was present and true.
type CapabilityDescriptor struct {
	Supported bool
	raw       json.RawMessage
	isObject  bool
	hasField  bool
}

func (d *CapabilityDescriptor) UnmarshalJSON(data []byte) error {
	d.raw = append(json.RawMessage(nil), data...)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		// Not a JSON object — leave Supported false, isObject false. The
		// negotiator treats this the same as "absent".
		return nil
	}
	d.isObject = true
	if supRaw, ok := obj["supported"]; ok {
		var b bool
		if err := json.Unmarshal(supRaw, &b); err == nil {
			d.hasField = true
			d.Supported = b
		}
	}
	return nil
}

func (d CapabilityDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]bool{"supported": d.Supported})
}

// ServerCapabilities is the capabilities object returned by a server's
// initialize response, keyed by capability name ("tools", "prompts",
// "resources", and whatever else the server advertises).
type ServerCapabilities map[string]CapabilityDescriptor

// ClientCapabilities is the fixed capability set this subsystem advertises:
// tools supported, prompts and resources explicitly not.
type ClientCapabilities struct {
	Tools     CapabilityDescriptor `json:"tools"`
	Prompts   CapabilityDescriptor `json:"prompts"`
	Resources CapabilityDescriptor `json:"resources"`
}

func defaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Tools:     CapabilityDescriptor{Supported: true, isObject: true, hasField: true},
		Prompts:   CapabilityDescriptor{Supported: false, isObject: true, hasField: true},
		Resources: CapabilityDescriptor{Supported: false, isObject: true, hasField: true},
	}
}

// InitializeParams is sent as the params of the "initialize" JSON-RPC call.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      clientInfoWire     `json:"clientInfo"`
}

type clientInfoWire struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func buildInitializeParams(clientName, clientVersion string) InitializeParams {
	return InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    defaultClientCapabilities(),
		ClientInfo:      clientInfoWire{Name: clientName, Version: clientVersion},
	}
}

// initializeResultWire mirrors the raw initialize response so presence of
// top-level fields can be distinguished from zero values before the typed
// InitializeResult is built.
type initializeResultWire struct {
	Capabilities    *ServerCapabilities `json:"capabilities"`
	ServerInfo      *clientInfoWire     `json:"serverInfo"`
	ProtocolVersion *string             `json:"protocolVersion"`
}

// InitializeResult is the validated, typed view of a server's initialize
// response.
type InitializeResult struct {
	Capabilities    ServerCapabilities
	ServerName      string
	ServerVersion   string
	ProtocolVersion string
}

// knownCapabilityNames is the set of capability keys this subsystem
// recognizes. Anything else with supported == true trips
// CodeUnsupportedExtra (invariant 4, §3).
var knownCapabilityNames = map[string]bool{
	"tools":     true,
	"prompts":   true,
	"resources": true,
}

// negotiate parses and validates a raw initialize response per the ordered
// rules in spec.md §4.2: all three top-level fields must be present; tools
// must be present and supported==true; prompts/resources, if present with
// supported==true, fail the handshake; any other capability with
// supported==true fails the handshake too.
func negotiate(raw json.RawMessage) (InitializeResult, error) {
	var wire initializeResultWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return InitializeResult{}, CapabilityError(CodeCapabilityMalformed,
			"initialize response is not valid JSON: "+err.Error(), nil)
	}
	if wire.Capabilities == nil || wire.ServerInfo == nil || wire.ProtocolVersion == nil {
		return InitializeResult{}, CapabilityError(CodeCapabilityMalformed,
			"initialize response missing capabilities, serverInfo, or protocolVersion", nil)
	}

	caps := *wire.Capabilities
	tools, ok := caps["tools"]
	if !ok || !tools.hasField || !tools.Supported {
		return InitializeResult{}, CapabilityError(CodeToolsNotSupported,
			"server does not advertise tools capability", nil)
	}

	if prompts, ok := caps["prompts"]; ok && prompts.hasField && prompts.Supported {
		return InitializeResult{}, CapabilityError(CodePromptsNotSupported,
			"server requires prompts capability, which this client does not support", nil)
	}
	if resources, ok := caps["resources"]; ok && resources.hasField && resources.Supported {
		return InitializeResult{}, CapabilityError(CodeResourcesNotSupported,
			"server requires resources capability, which this client does not support", nil)
	}
	for name, desc := range caps {
		if knownCapabilityNames[name] {
			continue
		}
		if desc.hasField && desc.Supported {
			return InitializeResult{}, CapabilityError(CodeUnsupportedExtra,
				"server requires unsupported capability: "+name, map[string]string{"capability": name})
		}
	}

	return InitializeResult{
		Capabilities:    caps,
		ServerName:      wire.ServerInfo.Name,
		ServerVersion:   wire.ServerInfo.Version,
		ProtocolVersion: *wire.ProtocolVersion,
	}, nil
}
