package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketStartsFull(t *testing.T) {
	b := NewTokenBucket(10, 1)
	assert.Equal(t, 10.0, b.Available())
}

func TestTokenBucketTryConsumeDrainsAndRejectsOverdraft(t *testing.T) {
	b := NewTokenBucket(5, 1)
	assert.True(t, b.TryConsume(3))
	assert.False(t, b.TryConsume(3), "only 2 tokens remain, a 3-token request must be rejected")
	assert.True(t, b.TryConsume(2))
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	b := NewTokenBucket(10, 100) // 100 tokens/sec
	assert.True(t, b.TryConsume(10))
	assert.False(t, b.TryConsume(1))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, b.TryConsume(1), "50ms at 100 tokens/sec must refill at least one token")
}

func TestTokenBucketRefillCapsAtCapacity(t *testing.T) {
	b := NewTokenBucket(5, 1000)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 5.0, b.Available(), "refill must never exceed capacity")
}

func TestTokenBucketCreditRefundsConsumedTokens(t *testing.T) {
	b := NewTokenBucket(5, 0)
	assert.True(t, b.TryConsume(5))
	assert.False(t, b.TryConsume(1))
	b.Credit(5)
	assert.Equal(t, 5.0, b.Available())
}

func TestTokenBucketCreditCapsAtCapacity(t *testing.T) {
	b := NewTokenBucket(5, 0)
	b.Credit(100)
	assert.Equal(t, 5.0, b.Available())
}
