package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// StdioConnectionFactory dials MCP servers run as a local subprocess,
// talking line-delimited JSON-RPC over stdin/stdout.
type StdioConnectionFactory struct{}

func (f StdioConnectionFactory) Connect(ctx context.Context, ep Endpoint, opts ConnectOptions) (Connection, error) {
	if ep.Kind != TransportSubprocess {
		return nil, TransportError(CodeConnectFailed, "StdioConnectionFactory given a non-subprocess endpoint", false, nil, nil)
	}

	cmd := exec.Command(ep.Command, ep.Args...)
	if opts.Token != "" {
		cmd.Env = append(cmd.Environ(), "MCP_TOKEN="+opts.Token)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, TransportError(CodeConnectFailed, err.Error(), false, err, nil)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, TransportError(CodeConnectFailed, err.Error(), false, err, nil)
	}
	if err := cmd.Start(); err != nil {
		return nil, TransportError(CodeConnectFailed, err.Error(), false, err, nil)
	}

	c := &stdioConnection{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		pending: make(map[string]chan rpcResponse),
		open:    true,
	}
	go c.readLoop()
	return c, nil
}

type stdioConnection struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan rpcResponse
	open    bool
}

func (c *stdioConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// readLoop demultiplexes stdout lines to whichever Call is waiting on that
// response id. Lines with no id (or no matching waiter), and lines that carry
// neither a result nor an error (requests and notifications), are dropped —
// this subsystem's subprocess servers never push unsolicited notifications.
func (c *stdioConnection) readLoop() {
	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Result == nil && resp.Error == nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	c.markClosed()
}

func (c *stdioConnection) markClosed() {
	c.mu.Lock()
	c.open = false
	pending := c.pending
	c.pending = make(map[string]chan rpcResponse)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

func (c *stdioConnection) writeLine(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		c.markClosed()
		return TransportError(CodeConnectionLost, err.Error(), true, err, nil)
	}
	return nil
}

func (c *stdioConnection) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.IsOpen() {
		return nil, TransportError(CodeNotConnected, "connection is closed", false, nil, nil)
	}
	id := newRequestID()
	ch := make(chan rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ProtocolError(CodeProtocolMalformed, err.Error(), err, nil)
	}
	if err := c.writeLine(body); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, TransportError(CodeConnectionLost, "subprocess closed before responding", true, nil, nil)
		}
		if resp.Error != nil {
			return nil, &RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, CancelledError(map[string]string{"method": method})
	}
}

func (c *stdioConnection) Notify(ctx context.Context, method string, params any) error {
	if !c.IsOpen() {
		return TransportError(CodeNotConnected, "connection is closed", false, nil, nil)
	}
	body, err := json.Marshal(rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return ProtocolError(CodeProtocolMalformed, err.Error(), err, nil)
	}
	return c.writeLine(body)
}

// Close terminates the subprocess: SIGTERM first, SIGKILL after a 5s grace
// period if it hasn't exited.
func (c *stdioConnection) Close() error {
	c.markClosed()
	c.stdin.Close()
	if c.cmd.Process == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	c.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		c.cmd.Process.Kill()
		<-done
		return nil
	}
}
