package mcpclient_test

import (
	"testing"
	"time"

	"mcp-tools-bridge/internal/mcpclient"
)

func TestSink_RecordAndReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := mcpclient.NewSink(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now()
	if err := sink.Record("get_weather", map[string]any{"city": "lisbon"}, now); err != nil {
		t.Fatalf("unexpected error recording call: %v", err)
	}
	if err := sink.Record("get_weather", map[string]any{"city": "porto"}, now.Add(time.Second)); err != nil {
		t.Fatalf("unexpected error recording second call: %v", err)
	}

	reader, err := mcpclient.NewReader(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reader.WasCalled("get_weather") {
		t.Error("expected get_weather to have been recorded")
	}
	if reader.WasCalled("unrelated_tool") {
		t.Error("expected unrelated_tool to not have been recorded")
	}
	if got := reader.CallCount("get_weather"); got != 2 {
		t.Errorf("expected 2 recorded calls, got %d", got)
	}

	calls := reader.CallsFor("get_weather")
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Arguments["city"] != "lisbon" || calls[1].Arguments["city"] != "porto" {
		t.Errorf("expected calls preserved in recorded order, got %+v", calls)
	}
}

func TestReader_NoMatchingDirectoryErrors(t *testing.T) {
	_, err := mcpclient.NewReader(t.TempDir() + "/does-not-exist-*")
	if err == nil {
		t.Error("expected an error when no directory matches the glob")
	}
}

func TestSink_NewSinkCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/telemetry"
	if _, err := mcpclient.NewSink(dir); err != nil {
		t.Fatalf("unexpected error creating nested dir: %v", err)
	}
}
