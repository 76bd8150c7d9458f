package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/llmerrors"
)

func TestSendWithFallbackSucceedsOnFirstCandidate(t *testing.T) {
	registry := NewRegistry()
	desc := testDescriptor("primary", 10)
	client := newFakeClient(desc)
	client.responses = []llm.CompletionResponse{{Content: "hello"}}
	registry.Register(desc, client)

	orch := NewOrchestrator(registry, NewCapabilityDetector(registry), DefaultFallbackConfig())
	resp, attempts, err := orch.SendWithFallback(context.Background(), llm.NewRequest("", []llm.Message{llm.UserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
}

func TestSendWithFallbackFallsBackToSecondCandidate(t *testing.T) {
	registry := NewRegistry()
	failing := testDescriptor("primary", 10)
	failing.Performance.QualityScore = 0.99 // balanced confidence ignores this; both tie and "primary" stays first by its higher priority
	failingClient := newFakeClient(failing)
	failingClient.errs = []error{llmerrors.New(llmerrors.KindProviderServerError, "boom")}
	registry.Register(failing, failingClient)

	ok := testDescriptor("secondary", 5)
	ok.Performance.QualityScore = 0.5
	okClient := newFakeClient(ok)
	okClient.responses = []llm.CompletionResponse{{Content: "recovered"}}
	registry.Register(ok, okClient)

	cfg := DefaultFallbackConfig()
	cfg.RetryDelay = 0
	orch := NewOrchestrator(registry, NewCapabilityDetector(registry), cfg)
	resp, attempts, err := orch.SendWithFallback(context.Background(), llm.NewRequest("", []llm.Message{llm.UserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].Success)
	assert.True(t, attempts[1].Success)
}

func TestSendWithFallbackDisabledTriesOnlyFirstCandidate(t *testing.T) {
	registry := NewRegistry()
	failing := testDescriptor("primary", 10)
	failing.Performance.QualityScore = 0.99
	failingClient := newFakeClient(failing)
	failingClient.errs = []error{llmerrors.New(llmerrors.KindProviderServerError, "boom")}
	registry.Register(failing, failingClient)

	ok := testDescriptor("secondary", 5)
	ok.Performance.QualityScore = 0.5
	okClient := newFakeClient(ok)
	okClient.responses = []llm.CompletionResponse{{Content: "recovered"}}
	registry.Register(ok, okClient)

	cfg := DefaultFallbackConfig()
	cfg.Enabled = false
	orch := NewOrchestrator(registry, NewCapabilityDetector(registry), cfg)
	_, attempts, err := orch.SendWithFallback(context.Background(), llm.NewRequest("", []llm.Message{llm.UserMessage("hi")}))
	require.Error(t, err)
	assert.Len(t, attempts, 1, "disabling fallback must stop after the first candidate")
}

func TestSendWithFallbackStopsOnNonFallbackKind(t *testing.T) {
	registry := NewRegistry()
	auth := testDescriptor("primary", 10)
	auth.Performance.QualityScore = 0.99
	authClient := newFakeClient(auth)
	authClient.errs = []error{llmerrors.New(llmerrors.KindProviderAuth, "bad key")}
	registry.Register(auth, authClient)

	ok := testDescriptor("secondary", 5)
	ok.Performance.QualityScore = 0.5
	okClient := newFakeClient(ok)
	okClient.responses = []llm.CompletionResponse{{Content: "recovered"}}
	registry.Register(ok, okClient)

	cfg := DefaultFallbackConfig()
	cfg.FallbackOnError = false
	orch := NewOrchestrator(registry, NewCapabilityDetector(registry), cfg)
	_, attempts, err := orch.SendWithFallback(context.Background(), llm.NewRequest("", []llm.Message{llm.UserMessage("hi")}))
	require.Error(t, err)
	assert.Len(t, attempts, 1, "an error kind the config doesn't permit falling back on must stop the loop")
}

func TestSendWithFallbackNoProvidersAvailable(t *testing.T) {
	registry := NewRegistry()
	orch := NewOrchestrator(registry, NewCapabilityDetector(registry), DefaultFallbackConfig())
	_, attempts, err := orch.SendWithFallback(context.Background(), llm.NewRequest("", []llm.Message{llm.UserMessage("hi")}))
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindNotFound, llmerrors.KindOf(err))
	assert.Empty(t, attempts)
}
