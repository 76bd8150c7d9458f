package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/provider/descriptor"
)

type recordingClient struct {
	desc        descriptor.ProviderDescriptor
	completeErr error
	streamErr   error
	calls       int
}

func (c *recordingClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls++
	if c.completeErr != nil {
		return llm.CompletionResponse{}, c.completeErr
	}
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (c *recordingClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	c.calls++
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (c *recordingClient) HealthCheck(ctx context.Context) llm.HealthStatus {
	return llm.HealthStatus{Healthy: true}
}

func (c *recordingClient) Descriptor() descriptor.ProviderDescriptor { return c.desc }

func TestMiddlewareRejectsCompleteWhenBreakerOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Second})
	b.ForceOpen()

	next := &recordingClient{}
	wrapped := Middleware(b)(next)

	_, err := wrapped.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	var circuitErr *Error
	require.True(t, errors.As(err, &circuitErr))
	assert.Equal(t, Open, circuitErr.State)
	assert.Equal(t, 0, next.calls, "next must never be invoked while the breaker is open")
}

func TestMiddlewareRejectsStreamWhenBreakerOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Second})
	b.ForceOpen()

	next := &recordingClient{}
	wrapped := Middleware(b)(next)

	_, err := wrapped.Stream(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	var circuitErr *Error
	require.True(t, errors.As(err, &circuitErr))
	assert.Equal(t, 0, next.calls)
}

func TestMiddlewareRecordsSuccessOnAllowedCall(t *testing.T) {
	b := New(DefaultConfig)
	next := &recordingClient{}
	wrapped := Middleware(b)(next)

	resp, err := wrapped.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int64(0), b.FailureCount(), "a successful call must not register as a failure")
}

func TestMiddlewareRecordsFailureOnAllowedCall(t *testing.T) {
	b := New(DefaultConfig)
	next := &recordingClient{completeErr: errors.New("boom")}
	wrapped := Middleware(b)(next)

	_, err := wrapped.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, int64(1), b.FailureCount())
}

func TestMiddlewareOpensBreakerAfterThresholdFailures(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 1, RecoveryTimeout: time.Second})
	next := &recordingClient{completeErr: errors.New("boom")}
	wrapped := Middleware(b)(next)

	_, _ = wrapped.Complete(context.Background(), llm.CompletionRequest{})
	_, _ = wrapped.Complete(context.Background(), llm.CompletionRequest{})

	assert.Equal(t, Open, b.GetState())

	_, err := wrapped.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 2, next.calls, "the third call must be rejected by the breaker, not reach next")
}

func TestMiddlewareRecordsSuccessOnAllowedStream(t *testing.T) {
	b := New(DefaultConfig)
	next := &recordingClient{}
	wrapped := Middleware(b)(next)

	_, err := wrapped.Stream(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.FailureCount())
}

func TestMiddlewareRecordsFailureOnAllowedStream(t *testing.T) {
	b := New(DefaultConfig)
	next := &recordingClient{streamErr: errors.New("boom")}
	wrapped := Middleware(b)(next)

	_, err := wrapped.Stream(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, int64(1), b.FailureCount())
}
