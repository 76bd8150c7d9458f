package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"llmrelay/pkg/llmerrors"
)

// TransportKind selects which Transport a ServerConfig's server uses.
type TransportKind int

const (
	TransportStdio TransportKind = iota
	TransportWebSocket
)

// ServerConfig describes one configured MCP server, per SPEC_FULL §6's
// mcp_servers.<name> table.
type ServerConfig struct {
	Name            string
	Command         string
	Args            []string
	EnvVars         map[string]string
	Transport       TransportKind
	WebSocketURL    string
	Enabled         bool
	AutoStart       bool
	TimeoutSeconds  int
}

// State is a server supervisor's lifecycle state, per SPEC_FULL §3/§4.G.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateInitializing
	StateReady
	StateError
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Health is a supervisor's most recent health-check outcome.
type Health struct {
	Healthy             bool
	LastCheck           time.Time
	ConsecutiveFailures int
	LastError           string
	ResponseTime        time.Duration
}

// Supervisor owns one MCP server's lifecycle: spawn, initialize handshake,
// periodic health probe, and shutdown. Grounded on
// original_source/src/mcp/server_manager.rs's MCPServerInstance, with
// thresholded auto-restart deliberately NOT implemented per SPEC_FULL §4.G's
// "must not be inferred" instruction (Resolved Open Question 1).
type Supervisor struct {
	Name   string
	Config ServerConfig

	mu          sync.RWMutex
	state       State
	errMsg      string
	transport   Transport
	health      Health
	capabilities *ServerCapabilities
	tools       []Tool
	resources   []Resource
	prompts     []Prompt

	healthInterval time.Duration
	stopHealth     chan struct{}
}

// NewSupervisor builds a Supervisor in state NotStarted.
func NewSupervisor(name string, cfg ServerConfig) *Supervisor {
	return &Supervisor{
		Name:           name,
		Config:         cfg,
		state:          StateNotStarted,
		healthInterval: 30 * time.Second,
	}
}

func (s *Supervisor) setState(st State, errMsg string) {
	s.mu.Lock()
	s.state = st
	s.errMsg = errMsg
	s.mu.Unlock()
}

// State returns the current lifecycle state and, if State() == StateError,
// the associated message.
func (s *Supervisor) State() (State, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.errMsg
}

// Start spawns the transport and runs the initialize handshake. It moves to
// Starting, spawns the transport without holding the state lock, and moves
// to Initializing only once the transport exists; any failure moves the
// state to Error.
func (s *Supervisor) Start(ctx context.Context) error {
	s.setState(StateStarting, "")

	var transport Transport
	var err error
	switch s.Config.Transport {
	case TransportStdio:
		var env []string
		for k, v := range s.Config.EnvVars {
			env = append(env, k+"="+v)
		}
		transport, err = NewStdioTransport(ctx, s.Config.Command, s.Config.Args, env, "")
	case TransportWebSocket:
		transport, err = NewWebSocketTransport(DefaultWebSocketConfig(s.Config.WebSocketURL))
	default:
		err = fmt.Errorf("mcp: unknown transport kind for server %s", s.Name)
	}
	if err != nil {
		s.setState(StateError, err.Error())
		return llmerrors.NewWithCause(llmerrors.KindTransport, err, "failed to start MCP server "+s.Name)
	}

	s.mu.Lock()
	s.transport = transport
	s.mu.Unlock()

	s.setState(StateInitializing, "")

	if err := s.initialize(ctx); err != nil {
		s.setState(StateError, err.Error())
		return err
	}

	s.setState(StateReady, "")
	return nil
}

func (s *Supervisor) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{Sampling: &struct{}{}},
		ClientInfo:      Implementation{Name: "llmrelay", Version: "0.1.0"},
	}

	req, err := NewRequest("init-"+s.Name, "initialize", params)
	if err != nil {
		return llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to build initialize request")
	}

	s.mu.RLock()
	transport := s.transport
	s.mu.RUnlock()

	if err := transport.Send(ctx, req); err != nil {
		return llmerrors.NewWithCause(llmerrors.KindTransport, err, "failed to send initialize request")
	}

	timeout := 30 * time.Second
	if s.Config.TimeoutSeconds > 0 {
		timeout = time.Duration(s.Config.TimeoutSeconds) * time.Second
	}
	select {
	case msg := <-transport.Inbound():
		if msg.Err != nil {
			return llmerrors.NewWithCause(llmerrors.KindProtocol, msg.Err, "invalid initialize response")
		}
		if msg.Response == nil {
			return llmerrors.New(llmerrors.KindProtocol, "expected response to initialize request")
		}
		if msg.Response.Error != nil {
			return llmerrors.New(llmerrors.KindProtocol, "initialize failed: "+msg.Response.Error.Message)
		}
		var result InitializeResult
		if err := json.Unmarshal(msg.Response.Result, &result); err != nil {
			return llmerrors.NewWithCause(llmerrors.KindProtocol, err, "invalid initialize response payload")
		}
		s.mu.Lock()
		s.capabilities = &result.Capabilities
		s.mu.Unlock()
	case <-time.After(timeout):
		return llmerrors.New(llmerrors.KindTimeout, "no response received for initialize request")
	case <-ctx.Done():
		return llmerrors.NewWithCause(llmerrors.KindTimeout, ctx.Err(), "initialize cancelled")
	}

	notif, err := NewNotification("notifications/initialized", nil)
	if err != nil {
		return llmerrors.NewWithCause(llmerrors.KindInternal, err, "failed to build initialized notification")
	}
	if err := transport.Send(ctx, notif); err != nil {
		return llmerrors.NewWithCause(llmerrors.KindTransport, err, "failed to send initialized notification")
	}
	return nil
}

// Stop closes the transport and clears cached capabilities/tools/etc.
func (s *Supervisor) Stop() error {
	s.setState(StateStopping, "")

	s.mu.Lock()
	transport := s.transport
	s.transport = nil
	s.capabilities = nil
	s.tools = nil
	s.resources = nil
	s.prompts = nil
	s.mu.Unlock()

	if transport != nil {
		if err := transport.Close(); err != nil {
			s.setState(StateError, err.Error())
			return err
		}
	}

	s.setState(StateStopped, "")
	return nil
}

// Restart stops, pauses briefly, then starts again, per §4.G.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return s.Start(ctx)
}

// Transport returns the live transport, or nil if not started.
func (s *Supervisor) Transport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

// Capabilities returns the server's advertised capabilities, if initialized.
func (s *Supervisor) Capabilities() *ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

// Health returns the most recent health snapshot.
func (s *Supervisor) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// CheckHealth probes transport connectivity and updates the health snapshot.
// Auto-restart on repeated failure is intentionally not performed here.
func (s *Supervisor) CheckHealth() error {
	start := time.Now()
	s.mu.RLock()
	transport := s.transport
	s.mu.RUnlock()

	if transport == nil {
		s.mu.Lock()
		s.health.Healthy = false
		s.health.ConsecutiveFailures++
		s.health.LastError = "no transport available"
		s.health.LastCheck = time.Now()
		s.mu.Unlock()
		return llmerrors.New(llmerrors.KindTransport, "no transport available for health check")
	}

	connected := transport.Status().Connected
	elapsed := time.Since(start)

	s.mu.Lock()
	s.health.LastCheck = time.Now()
	s.health.ResponseTime = elapsed
	if connected {
		s.health.Healthy = true
		s.health.ConsecutiveFailures = 0
		s.health.LastError = ""
	} else {
		s.health.Healthy = false
		s.health.ConsecutiveFailures++
		s.health.LastError = "transport not connected"
	}
	s.mu.Unlock()

	if !connected {
		return llmerrors.New(llmerrors.KindTransport, "server "+s.Name+" not healthy")
	}
	return nil
}

// StartHealthMonitoring runs CheckHealth on s.healthInterval until ctx is
// cancelled or StopHealthMonitoring is called.
func (s *Supervisor) StartHealthMonitoring(ctx context.Context) {
	s.mu.Lock()
	if s.stopHealth != nil {
		s.mu.Unlock()
		return
	}
	s.stopHealth = make(chan struct{})
	stop := s.stopHealth
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = s.CheckHealth()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopHealthMonitoring halts the background health-check loop, if running.
func (s *Supervisor) StopHealthMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopHealth != nil {
		close(s.stopHealth)
		s.stopHealth = nil
	}
}

// Manager owns a set of named Supervisors.
type Manager struct {
	mu    sync.RWMutex
	byName map[string]*Supervisor
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{byName: make(map[string]*Supervisor)}
}

// Add registers a new Supervisor for cfg, keyed by name.
func (m *Manager) Add(name string, cfg ServerConfig) *Supervisor {
	sup := NewSupervisor(name, cfg)
	m.mu.Lock()
	m.byName[name] = sup
	m.mu.Unlock()
	return sup
}

// Remove stops (if running) and forgets the named server.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	sup, ok := m.byName[name]
	delete(m.byName, name)
	m.mu.Unlock()
	if !ok {
		return llmerrors.New(llmerrors.KindNotFound, "MCP server not found: "+name)
	}
	return sup.Stop()
}

// Get returns the named Supervisor.
func (m *Manager) Get(name string) (*Supervisor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sup, ok := m.byName[name]
	if !ok {
		return nil, llmerrors.New(llmerrors.KindNotFound, "MCP server not found: "+name)
	}
	return sup, nil
}

// All returns every registered Supervisor.
func (m *Manager) All() []*Supervisor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Supervisor, 0, len(m.byName))
	for _, sup := range m.byName {
		out = append(out, sup)
	}
	return out
}

// StartAll starts every registered, enabled server, continuing past
// individual failures rather than aborting the batch.
func (m *Manager) StartAll(ctx context.Context) []error {
	var errs []error
	for _, sup := range m.All() {
		if !sup.Config.Enabled {
			continue
		}
		if err := sup.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", sup.Name, err))
		}
	}
	return errs
}

// StopAll stops every registered server, continuing past individual
// failures rather than aborting the batch.
func (m *Manager) StopAll() []error {
	var errs []error
	for _, sup := range m.All() {
		if err := sup.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", sup.Name, err))
		}
	}
	return errs
}
