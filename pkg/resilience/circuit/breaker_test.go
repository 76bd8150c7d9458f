package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTimeout: 100 * time.Millisecond})

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
		b.Record(false)
	}

	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow(), "fourth call must be rejected without touching the backend")
}

func TestBreakerHalfOpenRecoversToClosed(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTimeout: 100 * time.Millisecond})
	for i := 0; i < 3; i++ {
		b.Allow()
		b.Record(false)
	}
	require.Equal(t, Open, b.GetState())

	time.Sleep(120 * time.Millisecond)

	require.True(t, b.Allow(), "probe after recovery timeout must be admitted")
	assert.Equal(t, HalfOpen, b.GetState())
	b.Record(true)
	assert.Equal(t, Closed, b.GetState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTimeout: 50 * time.Millisecond})
	for i := 0; i < 3; i++ {
		b.Allow()
		b.Record(false)
	}
	time.Sleep(60 * time.Millisecond)
	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.GetState())
}

func TestDefaultConfigClosesOnSingleSuccessAfterRecovery(t *testing.T) {
	cfg := DefaultConfig
	cfg.RecoveryTimeout = 100 * time.Millisecond
	b := New(cfg)

	for i := 0; i < cfg.FailureThreshold; i++ {
		b.Allow()
		b.Record(false)
	}
	require.Equal(t, Open, b.GetState())

	time.Sleep(120 * time.Millisecond)
	require.True(t, b.Allow(), "probe after recovery timeout must be admitted")
	assert.Equal(t, HalfOpen, b.GetState())

	b.Record(true)
	assert.Equal(t, Closed, b.GetState(), "DefaultConfig must close the breaker after exactly one HalfOpen success, per the single post-recovery call in the spec's worked scenario")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTimeout: time.Second})
	b.Allow()
	b.Record(false)
	b.Allow()
	b.Record(false)
	require.Equal(t, int64(2), b.FailureCount())

	b.Allow()
	b.Record(true)
	assert.Equal(t, int64(0), b.FailureCount())
	assert.Equal(t, Closed, b.GetState())
}
