package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAcquireAndReleaseFreesConcurrencySlot(t *testing.T) {
	cfg := DefaultConfig
	cfg.MaxConcurrent = 1
	l := New("anthropic", cfg)

	permit, err := l.Acquire(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.Stats().ActiveRequests)

	permit.Release()
	assert.Equal(t, int64(0), l.Stats().ActiveRequests)
}

func TestLimiterReleaseIsIdempotent(t *testing.T) {
	l := New("anthropic", DefaultConfig)
	permit, err := l.Acquire(context.Background(), 10)
	require.NoError(t, err)

	permit.Release()
	permit.Release()
	assert.Equal(t, int64(0), l.Stats().ActiveRequests, "calling Release twice must not double-decrement")
}

func TestLimiterConcurrencyLimitRejectsAfterContextDeadline(t *testing.T) {
	cfg := DefaultConfig
	cfg.MaxConcurrent = 1
	l := New("anthropic", cfg)

	held, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, 1)
	assert.Error(t, err, "a second acquire while the only slot is held must eventually fail")
}

func TestLimiterAcquireIncrementsDailyRequestCount(t *testing.T) {
	l := New("anthropic", DefaultConfig)
	permit, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer permit.Release()

	assert.Equal(t, int64(1), l.Stats().DailyRequestCount)
}

func TestLimiterRateExhaustionReturnsRateLimitError(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		TokensPerMinute:   1, // nearly nothing refills; first request drains the bucket
		MaxConcurrent:     5,
		BurstMultiplier:   1.0,
		BackoffBaseDelay:  10 * time.Millisecond,
		BackoffMaxDelay:   20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	l := New("anthropic", cfg)

	first, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer first.Release()

	_, err = l.Acquire(context.Background(), 1000000)
	assert.Error(t, err, "requesting far more tokens than the bucket can ever hold must fail")
}
