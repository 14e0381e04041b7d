package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPConnection_CallRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer token injected, got %q", got)
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"echo":"ok"}`)}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	factory := HTTPConnectionFactory{}
	conn, err := factory.Connect(context.Background(), Endpoint{Kind: TransportHTTP, URL: srv.URL}, ConnectOptions{Token: "test-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	raw, err := conn.Call(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("unexpected call error: %v", err)
	}
	if string(raw) != `{"echo":"ok"}` {
		t.Errorf("unexpected result: %s", raw)
	}
}

func TestHTTPConnection_RPCErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found"}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	factory := HTTPConnectionFactory{}
	conn, _ := factory.Connect(context.Background(), Endpoint{Kind: TransportHTTP, URL: srv.URL}, ConnectOptions{})
	defer conn.Close()

	_, err := conn.Call(context.Background(), "nonexistent", nil)
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("expected code -32601, got %d", rpcErr.Code)
	}
}

func TestHTTPConnection_ServerErrorClosesConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	factory := HTTPConnectionFactory{}
	conn, _ := factory.Connect(context.Background(), Endpoint{Kind: TransportHTTP, URL: srv.URL}, ConnectOptions{})

	if _, err := conn.Call(context.Background(), "ping", nil); err == nil {
		t.Fatal("expected error for 5xx response")
	}
	if conn.IsOpen() {
		t.Error("expected connection marked closed after a 5xx response")
	}
}

func TestHTTPConnection_CancelledContextSurfacesAsCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	factory := HTTPConnectionFactory{}
	conn, _ := factory.Connect(context.Background(), Endpoint{Kind: TransportHTTP, URL: srv.URL}, ConnectOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := conn.Call(ctx, "ping", nil)
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != KindCancelled {
		t.Fatalf("expected KindCancelled for a caller-cancelled request, got %v", err)
	}
	if !conn.IsOpen() {
		t.Error("expected connection to remain open on cancellation, not marked closed like a transport failure")
	}
}

func TestHTTPConnection_RejectsNonHTTPEndpoint(t *testing.T) {
	factory := HTTPConnectionFactory{}
	_, err := factory.Connect(context.Background(), Endpoint{Kind: TransportSubprocess, Command: "x"}, ConnectOptions{})
	if err == nil {
		t.Error("expected HTTPConnectionFactory to reject a subprocess endpoint")
	}
}
