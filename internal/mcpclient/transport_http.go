package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// TokenRoundTripper injects a bearer (or custom-header) token into every
// outgoing request. One call per request; no persistent connection.
type TokenRoundTripper struct {
	Base       http.RoundTripper
	Token      string
	AuthHeader string
}

func (t *TokenRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Token != "" {
		if t.AuthHeader != "" {
			req.Header.Set(t.AuthHeader, t.Token)
		} else {
			req.Header.Set("Authorization", "Bearer "+t.Token)
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// HTTPConnectionFactory dials MCP servers reachable over plain HTTP POST:
// one request per JSON-RPC call, no persistent socket.
type HTTPConnectionFactory struct {
	// Timeout bounds every individual POST. Zero means no per-request
	// timeout beyond whatever the caller's ctx carries.
	Timeout time.Duration
}

func (f HTTPConnectionFactory) Connect(ctx context.Context, ep Endpoint, opts ConnectOptions) (Connection, error) {
	if ep.Kind != TransportHTTP {
		return nil, TransportError(CodeConnectFailed, "HTTPConnectionFactory given a non-http endpoint", false, nil, nil)
	}
	client := &http.Client{
		Transport: &TokenRoundTripper{Token: opts.Token},
		Timeout:   f.Timeout,
	}
	return &httpConnection{
		url:     ep.URL,
		headers: opts.Headers,
		client:  client,
		open:    true,
	}, nil
}

type httpConnection struct {
	url     string
	headers map[string]string
	client  *http.Client

	mu   sync.Mutex
	open bool
}

func (c *httpConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *httpConnection) markClosed() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

func (c *httpConnection) Close() error {
	c.markClosed()
	return nil
}

func (c *httpConnection) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, TransportError(CodeConnectFailed, err.Error(), false, err, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, CancelledError(map[string]string{"url": c.url})
		}
		c.markClosed()
		return nil, TransportError(CodeConnectionLost, err.Error(), true, err, map[string]string{"url": c.url})
	}
	return resp, nil
}

func (c *httpConnection) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.IsOpen() {
		return nil, TransportError(CodeNotConnected, "connection is closed", false, nil, nil)
	}
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: newRequestID(), Method: method, Params: params})
	if err != nil {
		return nil, ProtocolError(CodeProtocolMalformed, err.Error(), err, nil)
	}
	resp, err := c.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.markClosed()
		return nil, TransportError(CodeConnectionLost, err.Error(), true, err, nil)
	}
	if resp.StatusCode >= 500 {
		c.markClosed()
		return nil, TransportError(CodeConnectionLost,
			fmt.Sprintf("server returned status %d", resp.StatusCode), true, nil, map[string]string{"url": c.url})
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, ProtocolError(CodeProtocolMalformed, "malformed jsonrpc response: "+err.Error(), err, nil)
	}
	if rpcResp.Error != nil {
		return nil, &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message, Data: rpcResp.Error.Data}
	}
	return rpcResp.Result, nil
}

func (c *httpConnection) Notify(ctx context.Context, method string, params any) error {
	if !c.IsOpen() {
		return TransportError(CodeNotConnected, "connection is closed", false, nil, nil)
	}
	body, err := json.Marshal(rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return ProtocolError(CodeProtocolMalformed, err.Error(), err, nil)
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
