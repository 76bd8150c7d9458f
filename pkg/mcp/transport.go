package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// TransportStatus surfaces a transport's connection and traffic counters.
// Grounded on original_source/src/mcp/transport.rs's TransportStatus.
type TransportStatus struct {
	Type         string
	Connected    bool
	MessagesSent uint64
	MessagesRecv uint64
	LastActivity time.Time
	ErrorCount   uint64
}

// Transport is the abstraction both the stdio and WebSocket variants
// implement, matching original_source/src/mcp/transport.rs's Transport
// trait.
type Transport interface {
	Send(ctx context.Context, req *Request) error
	Inbound() <-chan InboundMessage
	Status() TransportStatus
	Close() error
}

// InboundMessage carries either a successfully parsed Response/Request or a
// parse error; parse failures surface here rather than killing the
// transport, per SPEC_FULL §4.F.
type InboundMessage struct {
	Response     *Response
	Notification *Request
	Err          error
}

// StdioTransport spawns a child process and speaks line-delimited JSON-RPC
// over its stdin/stdout, draining stderr as log lines. Grounded on
// original_source/src/mcp/transport.go's StdioTransport (spawn, background
// reader, background stderr drain, kill-on-drop), re-expressed with
// os/exec.Cmd + bufio.Scanner, the teacher's own idiom for subprocess
// plumbing.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	inbox  chan InboundMessage

	mu        sync.Mutex
	writeMu   sync.Mutex
	connected bool
	sent      atomic.Uint64
	recv      atomic.Uint64
	errCount  atomic.Uint64
	lastActivity atomic.Int64

	done chan struct{}
}

// NewStdioTransport spawns command with args/env/cwd and wires its pipes.
func NewStdioTransport(ctx context.Context, command string, args []string, env []string, cwd string) (*StdioTransport, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	if len(env) > 0 {
		cmd.Env = env
	}
	if cwd != "" {
		cmd.Dir = cwd
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: spawn server process: %w", err)
	}

	t := &StdioTransport{
		cmd:   cmd,
		stdin: stdin,
		inbox: make(chan InboundMessage, 64),
		done:  make(chan struct{}),
	}
	t.connected = true
	t.lastActivity.Store(time.Now().UnixNano())

	go t.readLoop(stdout)
	go t.drainStderr(stderr)

	return t, nil
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		t.recv.Add(1)
		t.lastActivity.Store(time.Now().UnixNano())

		var envelope struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.Unmarshal(line, &envelope); err != nil {
			t.errCount.Add(1)
			t.deliver(InboundMessage{Err: fmt.Errorf("mcp: parse error: %w", err)})
			continue
		}

		if envelope.Method != "" {
			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				t.errCount.Add(1)
				t.deliver(InboundMessage{Err: err})
				continue
			}
			t.deliver(InboundMessage{Notification: &req})
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.errCount.Add(1)
			t.deliver(InboundMessage{Err: err})
			continue
		}
		t.deliver(InboundMessage{Response: &resp})
	}

	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	close(t.done)
}

func (t *StdioTransport) deliver(msg InboundMessage) {
	select {
	case t.inbox <- msg:
	default:
		// Inbox full: drop rather than block the reader goroutine forever.
		t.errCount.Add(1)
	}
}

func (t *StdioTransport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		t.errCount.Add(1)
	}
}

func (t *StdioTransport) Send(ctx context.Context, req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	type result struct{ err error }
	ch := make(chan result, 1)
	go func() {
		_, werr := t.stdin.Write(data)
		ch <- result{werr}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("mcp: write to server stdin: %w", r.err)
		}
		t.sent.Add(1)
		t.lastActivity.Store(time.Now().UnixNano())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *StdioTransport) Inbound() <-chan InboundMessage { return t.inbox }

func (t *StdioTransport) Status() TransportStatus {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	return TransportStatus{
		Type:         "stdio",
		Connected:    connected,
		MessagesSent: t.sent.Load(),
		MessagesRecv: t.recv.Load(),
		LastActivity: time.Unix(0, t.lastActivity.Load()),
		ErrorCount:   t.errCount.Load(),
	}
}

// Close signals readers to stop, closes stdin, and attempts a graceful
// SIGTERM before escalating to SIGKILL, matching §4.F's shutdown sequence.
func (t *StdioTransport) Close() error {
	_ = t.stdin.Close()

	if t.cmd.Process != nil {
		_ = t.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-t.done:
	case <-time.After(5 * time.Second):
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		<-t.done
	}

	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}
