package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrelay/pkg/llmerrors"
)

func TestManagerAddGetAndAll(t *testing.T) {
	m := NewManager()
	m.Add("fs", ServerConfig{Name: "fs", Enabled: true})
	m.Add("git", ServerConfig{Name: "git", Enabled: false})

	sup, err := m.Get("fs")
	require.NoError(t, err)
	assert.Equal(t, "fs", sup.Name)
	assert.Len(t, m.All(), 2)
}

func TestManagerGetUnknownServerReturnsNotFound(t *testing.T) {
	m := NewManager()
	_, err := m.Get("missing")
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindNotFound, llmerrors.KindOf(err))
}

func TestManagerRemoveStopsAndForgetsServer(t *testing.T) {
	m := NewManager()
	m.Add("fs", ServerConfig{Name: "fs"})

	require.NoError(t, m.Remove("fs"))
	_, err := m.Get("fs")
	assert.Error(t, err)
}

func TestManagerRemoveUnknownServerReturnsNotFound(t *testing.T) {
	m := NewManager()
	err := m.Remove("missing")
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindNotFound, llmerrors.KindOf(err))
}

func TestManagerStartAllSkipsDisabledServers(t *testing.T) {
	m := NewManager()
	m.Add("disabled", ServerConfig{Name: "disabled", Enabled: false, Command: "/nonexistent-binary-llmrelay-test"})

	errs := m.StartAll(context.Background())
	assert.Empty(t, errs, "a disabled server must never be started")

	sup, _ := m.Get("disabled")
	st, _ := sup.State()
	assert.Equal(t, StateNotStarted, st)
}

func TestManagerStartAllContinuesPastIndividualFailures(t *testing.T) {
	m := NewManager()
	m.Add("bad-one", ServerConfig{Name: "bad-one", Enabled: true, Command: "/nonexistent-binary-llmrelay-test-1"})
	m.Add("bad-two", ServerConfig{Name: "bad-two", Enabled: true, Command: "/nonexistent-binary-llmrelay-test-2"})

	errs := m.StartAll(context.Background())
	assert.Len(t, errs, 2, "both invalid servers must fail, but StartAll must not stop after the first")
}

func TestSupervisorStartWithInvalidCommandTransitionsToError(t *testing.T) {
	sup := NewSupervisor("bad", ServerConfig{Name: "bad", Command: "/nonexistent-binary-llmrelay-test"})

	err := sup.Start(context.Background())
	require.Error(t, err)

	st, msg := sup.State()
	assert.Equal(t, StateError, st)
	assert.NotEmpty(t, msg)
}

func TestSupervisorCheckHealthWithNoTransportReportsUnhealthy(t *testing.T) {
	sup := NewSupervisor("idle", ServerConfig{Name: "idle"})

	err := sup.CheckHealth()
	require.Error(t, err)

	health := sup.Health()
	assert.False(t, health.Healthy)
	assert.Equal(t, 1, health.ConsecutiveFailures)
}

func TestSupervisorCheckHealthAccumulatesConsecutiveFailures(t *testing.T) {
	sup := NewSupervisor("idle", ServerConfig{Name: "idle"})

	_ = sup.CheckHealth()
	_ = sup.CheckHealth()
	_ = sup.CheckHealth()

	assert.Equal(t, 3, sup.Health().ConsecutiveFailures)
}

func TestSupervisorStartHealthMonitoringIsIdempotentAndStoppable(t *testing.T) {
	sup := NewSupervisor("idle", ServerConfig{Name: "idle"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartHealthMonitoring(ctx)
	sup.StartHealthMonitoring(ctx) // must not start a second loop or panic on double-close

	sup.StopHealthMonitoring()
	sup.StopHealthMonitoring() // must not panic on double-stop
}

func TestSupervisorStopBeforeStartTransitionsToStopped(t *testing.T) {
	sup := NewSupervisor("idle", ServerConfig{Name: "idle"})

	require.NoError(t, sup.Stop())
	st, _ := sup.State()
	assert.Equal(t, StateStopped, st)
}

func TestSupervisorStartWithUnknownTransportKindFails(t *testing.T) {
	sup := NewSupervisor("weird", ServerConfig{Name: "weird", Transport: TransportKind(99)})

	err := sup.Start(context.Background())
	require.Error(t, err)
	st, _ := sup.State()
	assert.Equal(t, StateError, st)
}

func TestSupervisorInitializeTimesOutWhenServerNeverResponds(t *testing.T) {
	sup := NewSupervisor("quiet", ServerConfig{
		Name:           "quiet",
		Command:        "sleep",
		Args:           []string{"5"},
		TimeoutSeconds: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := sup.Start(ctx)
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindTimeout, llmerrors.KindOf(err))
}
