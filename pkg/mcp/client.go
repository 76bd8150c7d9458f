package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"llmrelay/pkg/llmerrors"
	"llmrelay/pkg/resilience/retry"
)

// pendingEntry is one in-flight request awaiting correlation to its
// response, keyed on the request's string id. Grounded on
// original_source/src/mcp/client.rs's PendingRequest, widened to carry a
// completion channel since Go has no async task to resume directly.
type pendingEntry struct {
	sink      chan *Response
	createdAt time.Time
}

// ClientConfig configures a Client.
type ClientConfig struct {
	RequestTimeout   time.Duration
	ValidationConfig ValidationConfig
	RetryPolicy      retry.Policy
}

// DefaultClientConfig matches original_source/src/mcp/client.rs's defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout:   30 * time.Second,
		ValidationConfig: DefaultValidationConfig(),
		RetryPolicy:      retry.NewPolicy(retry.DefaultConfig, retry.ShouldRetryDefault),
	}
}

// Client is the high-level MCP client: list_tools, call_tool, resources,
// and prompts operations over a Manager's supervised servers. Grounded on
// original_source/src/mcp/client.rs's MCPClient.
type Client struct {
	manager   *Manager
	validator *Validator
	cfg       ClientConfig

	mu      sync.Mutex
	pending map[string]*pendingEntry

	dispatchOnce sync.Once
	stopSweep    chan struct{}
}

// NewClient builds a Client over manager and starts the stale-entry
// sweeper. Responses are routed only for servers passed to WatchServer.
func NewClient(manager *Manager, cfg ClientConfig) *Client {
	c := &Client{
		manager:   manager,
		validator: NewValidator(cfg.ValidationConfig),
		cfg:       cfg,
		pending:   make(map[string]*pendingEntry),
		stopSweep: make(chan struct{}),
	}
	go c.sweepStale()
	return c
}

// WatchServer starts a goroutine routing inbound responses for sup's
// transport into the client's correlation table. Call once per server
// after Supervisor.Start succeeds.
func (c *Client) WatchServer(sup *Supervisor) {
	go func() {
		transport := sup.Transport()
		if transport == nil {
			return
		}
		for msg := range transport.Inbound() {
			if msg.Response != nil {
				c.resolve(msg.Response)
			}
			// Notifications (msg.Notification) are server push events
			// (tools/list_changed etc.); no subscriber mechanism is wired
			// here since SPEC_FULL's synchronous client API has no
			// consumer for them yet.
		}
	}()
}

func (c *Client) resolve(resp *Response) {
	id := IDString(resp.ID)
	c.mu.Lock()
	entry, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case entry.sink <- resp:
	default:
	}
}

func (c *Client) sweepStale() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-c.timeout())
			c.mu.Lock()
			for id, entry := range c.pending {
				if entry.createdAt.Before(cutoff) {
					delete(c.pending, id)
				}
			}
			c.mu.Unlock()
		case <-c.stopSweep:
			return
		}
	}
}

// Close stops the background sweeper.
func (c *Client) Close() {
	c.dispatchOnce.Do(func() { close(c.stopSweep) })
}

func (c *Client) timeout() time.Duration {
	if c.cfg.RequestTimeout > 0 {
		return c.cfg.RequestTimeout
	}
	return 30 * time.Second
}

// call sends method/params to the named server and waits for a correlated
// response, retrying per the configured retry.Policy on transient errors
// (the Classifier governs which errors are worth a second attempt).
func (c *Client) call(ctx context.Context, serverName, method string, params any) (*Response, error) {
	policy := c.cfg.RetryPolicy
	if policy.Config.MaxAttempts <= 0 {
		policy = retry.NewPolicy(retry.DefaultConfig, retry.ShouldRetryDefault)
	}

	var resp *Response
	var err error
	for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if sleepErr := retry.Sleep(ctx, policy.CalculateDelay(attempt)); sleepErr != nil {
				return nil, llmerrors.NewWithCause(llmerrors.KindTimeout, sleepErr, "MCP request to "+serverName+" cancelled during retry backoff")
			}
		}
		resp, err = c.callOnce(ctx, serverName, method, params)
		if err == nil || !policy.ShouldRetry(err) {
			return resp, err
		}
	}
	return resp, err
}

// callOnce sends method/params to the named server and waits for a
// correlated response, per §4.H's five-step sequence.
func (c *Client) callOnce(ctx context.Context, serverName, method string, params any) (*Response, error) {
	sup, err := c.manager.Get(serverName)
	if err != nil {
		return nil, err
	}
	if st, msg := sup.State(); st != StateReady {
		return nil, llmerrors.New(llmerrors.KindTransport, "server "+serverName+" not ready: "+st.String()+" "+msg)
	}
	transport := sup.Transport()
	if transport == nil {
		return nil, llmerrors.New(llmerrors.KindTransport, "server "+serverName+" has no active transport")
	}

	id := uuid.NewString()
	req, err := NewRequest(id, method, params)
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to build MCP request")
	}

	entry := &pendingEntry{sink: make(chan *Response, 1), createdAt: time.Now()}
	c.mu.Lock()
	c.pending[id] = entry
	c.mu.Unlock()
	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := transport.Send(ctx, req); err != nil {
		cleanup()
		return nil, llmerrors.NewWithCause(llmerrors.KindTransport, err, "failed to send MCP request")
	}

	select {
	case resp := <-entry.sink:
		return resp, nil
	case <-time.After(c.timeout()):
		cleanup()
		return nil, llmerrors.New(llmerrors.KindTimeout, "MCP request to "+serverName+" timed out")
	case <-ctx.Done():
		cleanup()
		return nil, llmerrors.NewWithCause(llmerrors.KindTimeout, ctx.Err(), "MCP request to "+serverName+" cancelled")
	}
}

func resultOrErr(resp *Response, serverName string) (json.RawMessage, error) {
	if resp.Error != nil {
		return nil, llmerrors.New(llmerrors.KindProtocol, "server "+serverName+" returned error: "+resp.Error.Message)
	}
	return resp.Result, nil
}

// ListToolsFrom lists tools exposed by one server.
func (c *Client) ListToolsFrom(ctx context.Context, serverName string) ([]Tool, error) {
	resp, err := c.call(ctx, serverName, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	raw, err := resultOrErr(resp, serverName)
	if err != nil {
		return nil, err
	}
	var result ToolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindProtocol, err, "failed to parse tools from server "+serverName)
	}
	return result.Tools, nil
}

// ListTools lists tools from every Ready server, tolerating per-server
// failures (reported as an empty slice for that server), per
// original_source/src/mcp/client.rs's list_tools.
func (c *Client) ListTools(ctx context.Context) map[string][]Tool {
	out := make(map[string][]Tool)
	for _, sup := range c.manager.All() {
		if st, _ := sup.State(); st != StateReady {
			continue
		}
		tools, err := c.ListToolsFrom(ctx, sup.Name)
		if err != nil {
			out[sup.Name] = nil
			continue
		}
		out[sup.Name] = tools
	}
	return out
}

// CallTool validates arguments, then invokes name on serverName. clientID,
// if non-empty, is subject to the validator's per-client rate limit.
func (c *Client) CallTool(ctx context.Context, serverName, name string, arguments map[string]any, clientID string) (*ToolCallResult, error) {
	if err := c.validator.ValidateToolInput(name, arguments, clientID); err != nil {
		return nil, err
	}

	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}

	resp, err := c.call(ctx, serverName, "tools/call", params)
	if err != nil {
		return nil, err
	}
	raw, err := resultOrErr(resp, serverName)
	if err != nil {
		return nil, err
	}
	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindProtocol, err, "failed to parse tool call result")
	}
	return &result, nil
}

// ListResources lists resources exposed by one server.
func (c *Client) ListResources(ctx context.Context, serverName string) ([]Resource, error) {
	resp, err := c.call(ctx, serverName, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	raw, err := resultOrErr(resp, serverName)
	if err != nil {
		return nil, err
	}
	var result ResourcesListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindProtocol, err, "failed to parse resources")
	}
	return result.Resources, nil
}

// ReadResource reads one resource by URI from serverName.
func (c *Client) ReadResource(ctx context.Context, serverName, uri string) (*ResourceReadResult, error) {
	resp, err := c.call(ctx, serverName, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	raw, err := resultOrErr(resp, serverName)
	if err != nil {
		return nil, err
	}
	var result ResourceReadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindProtocol, err, "failed to parse resource content")
	}
	return &result, nil
}

// ListPrompts lists prompt templates exposed by one server.
func (c *Client) ListPrompts(ctx context.Context, serverName string) ([]Prompt, error) {
	resp, err := c.call(ctx, serverName, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	raw, err := resultOrErr(resp, serverName)
	if err != nil {
		return nil, err
	}
	var result PromptsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindProtocol, err, "failed to parse prompts")
	}
	return result.Prompts, nil
}

// GetPrompt renders one prompt template with arguments.
func (c *Client) GetPrompt(ctx context.Context, serverName, name string, arguments map[string]any) (*PromptGetResult, error) {
	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}
	resp, err := c.call(ctx, serverName, "prompts/get", params)
	if err != nil {
		return nil, err
	}
	raw, err := resultOrErr(resp, serverName)
	if err != nil {
		return nil, err
	}
	var result PromptGetResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindProtocol, err, "failed to parse prompt")
	}
	return &result, nil
}
