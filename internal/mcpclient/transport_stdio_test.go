package mcpclient

import (
	"context"
	"testing"
	"time"
)

// echoScript is a minimal shell "MCP server": for every JSON-RPC request
// line it reads on stdin, it extracts the id and writes back a trivial
// success response on stdout. Good enough to exercise the stdio transport's
// framing and demultiplexing without depending on a real MCP binary.
const echoScript = `while IFS= read -r line; do
  id=$(echo "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  printf '{"jsonrpc":"2.0","id":"%s","result":{"ok":true}}\n' "$id"
done`

func TestStdioConnection_CallRoundTrip(t *testing.T) {
	factory := StdioConnectionFactory{}
	ep := Endpoint{Kind: TransportSubprocess, Command: "sh", Args: []string{"-c", echoScript}}
	conn, err := factory.Connect(context.Background(), ep, ConnectOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := conn.Call(ctx, "ping", nil)
	if err != nil {
		t.Fatalf("unexpected call error: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("unexpected result: %s", raw)
	}
}

func TestStdioConnection_CallRespectsContextCancellation(t *testing.T) {
	factory := StdioConnectionFactory{}
	// "cat" never answers with a matching jsonrpc response, so Call should
	// only return once ctx is cancelled.
	ep := Endpoint{Kind: TransportSubprocess, Command: "cat"}
	conn, err := factory.Connect(context.Background(), ep, ConnectOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = conn.Call(ctx, "ping", nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > time.Second {
		t.Error("expected Call to return promptly on context cancellation")
	}
}

func TestStdioConnection_RejectsNonSubprocessEndpoint(t *testing.T) {
	factory := StdioConnectionFactory{}
	_, err := factory.Connect(context.Background(), Endpoint{Kind: TransportHTTP, URL: "http://x"}, ConnectOptions{})
	if err == nil {
		t.Error("expected StdioConnectionFactory to reject an http endpoint")
	}
}

func TestStdioConnection_CloseTerminatesSubprocess(t *testing.T) {
	factory := StdioConnectionFactory{}
	ep := Endpoint{Kind: TransportSubprocess, Command: "sh", Args: []string{"-c", echoScript}}
	conn, err := factory.Connect(context.Background(), ep, ConnectOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("unexpected error closing connection: %v", err)
	}
	if conn.IsOpen() {
		t.Error("expected connection to report closed after Close")
	}
}
