package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrelay/pkg/llmerrors"
)

func TestShouldRetryDefaultRejectsContextCancelled(t *testing.T) {
	assert.False(t, ShouldRetryDefault(context.Canceled))
}

func TestShouldRetryDefaultRespectsErrorKindBlocklist(t *testing.T) {
	assert.False(t, ShouldRetryDefault(llmerrors.New(llmerrors.KindProviderAuth, "bad key")))
	assert.True(t, ShouldRetryDefault(llmerrors.New(llmerrors.KindTimeout, "timed out")))
}

func TestShouldRetryDefaultRetriesUnclassifiedErrors(t *testing.T) {
	assert.True(t, ShouldRetryDefault(errors.New("some plain error")))
}

func TestCalculateDelayIsZeroForFirstAttempt(t *testing.T) {
	p := NewPolicy(Config{InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2.0}, nil)
	assert.Equal(t, time.Duration(0), p.CalculateDelay(1))
}

func TestCalculateDelayGrowsExponentiallyAndCapsAtMaxDelay(t *testing.T) {
	p := NewPolicy(Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2.0, Jitter: false}, nil)
	assert.Equal(t, time.Second, p.CalculateDelay(2))
	assert.Equal(t, 2*time.Second, p.CalculateDelay(3))
	assert.Equal(t, 3*time.Second, p.CalculateDelay(4), "delay must be capped at MaxDelay")
}

func TestNewPolicyDefaultsToShouldRetryDefaultClassifier(t *testing.T) {
	p := NewPolicy(DefaultConfig, nil)
	assert.False(t, p.ShouldRetry(context.Canceled))
}

func TestSleepReturnsNilAfterDelayElapses(t *testing.T) {
	err := Sleep(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
}

func TestSleepReturnsContextErrorOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
