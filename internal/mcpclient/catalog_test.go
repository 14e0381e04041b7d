package mcpclient

import (
	"encoding/json"
	"testing"
)

func TestTranslate_PrefixesName(t *testing.T) {
	d := RemoteToolDescriptor{Name: "get_weather", Description: "fetches weather", InputSchema: json.RawMessage(`{"type":"object"}`)}
	host, err := Translate(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host.Name != "mcp_get_weather" {
		t.Errorf("expected mcp_get_weather, got %s", host.Name)
	}
	if host.Description != d.Description {
		t.Errorf("expected description copied verbatim")
	}
}

func TestTranslate_DefaultsEmptySchema(t *testing.T) {
	d := RemoteToolDescriptor{Name: "ping"}
	host, err := Translate(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(host.InputSchema) == 0 {
		t.Error("expected a default permissive schema, got empty")
	}
}

func TestTranslate_RejectsEmptyName(t *testing.T) {
	_, err := Translate(RemoteToolDescriptor{Name: ""})
	if err == nil {
		t.Error("expected error for empty tool name")
	}
}

func TestTranslate_RejectsUnsafeName(t *testing.T) {
	_, err := Translate(RemoteToolDescriptor{Name: "weird name!"})
	if err == nil {
		t.Error("expected error for name with unsafe characters")
	}
}

func TestRoundTrip_TranslateReverseTranslate(t *testing.T) {
	d := RemoteToolDescriptor{
		Name:        "list_files",
		Description: "lists files in a directory",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`),
	}
	host, err := Translate(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back := ReverseTranslate(host)
	if back.Name != d.Name {
		t.Errorf("expected round-trip name %s, got %s", d.Name, back.Name)
	}
	if back.Description != d.Description {
		t.Errorf("expected round-trip description preserved")
	}
	if string(back.InputSchema) != string(d.InputSchema) {
		t.Errorf("expected round-trip schema preserved, got %s", back.InputSchema)
	}
}
