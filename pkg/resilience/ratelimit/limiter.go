package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"llmrelay/pkg/llmerrors"
)

// Config tunes one provider's RateLimiterState, mirroring SPEC_FULL.md §6's
// `rate_limiting` section.
type Config struct {
	RequestsPerMinute   int
	TokensPerMinute     int
	MaxConcurrent       int
	BurstMultiplier     float64
	BackoffBaseDelay    time.Duration
	BackoffMaxDelay     time.Duration
	BackoffMultiplier   float64
}

// DefaultConfig matches the teacher's rate-limiting defaults.
var DefaultConfig = Config{
	RequestsPerMinute: 60,
	TokensPerMinute:   90000,
	MaxConcurrent:     5,
	BurstMultiplier:   2.0,
	BackoffBaseDelay:  100 * time.Millisecond,
	BackoffMaxDelay:   2 * time.Second,
	BackoffMultiplier: 2.0,
}

// Permit is returned by Acquire and owns one concurrency slot. Callers
// MUST call Release exactly once (§8 I6).
type Permit struct {
	limiter *Limiter
	released atomic.Bool
}

// Release returns the concurrency slot. Safe to call more than once; only
// the first call has effect.
func (p *Permit) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.limiter.concurrentRequests.Add(-1)
	}
}

// Limiter is one provider's RateLimiterState (SPEC_FULL.md §3).
type Limiter struct {
	provider string
	cfg      Config

	requestBucket *TokenBucket
	tokenBucket   *TokenBucket

	concurrentRequests       atomic.Int64
	dailyRequestCount        atomic.Int64
	dailyResetAtMs           atomic.Int64
	consecutiveRateLimitHits atomic.Int64
	lastRequestAtMs          atomic.Int64
}

// New creates a Limiter for one provider.
func New(provider string, cfg Config) *Limiter {
	rpm := float64(cfg.RequestsPerMinute)
	tpm := float64(cfg.TokensPerMinute)
	l := &Limiter{
		provider:      provider,
		cfg:           cfg,
		requestBucket: NewTokenBucket(rpm*cfg.BurstMultiplier, rpm/60.0),
		tokenBucket:   NewTokenBucket(tpm*cfg.BurstMultiplier, tpm/60.0),
	}
	l.dailyResetAtMs.Store(time.Now().Add(24 * time.Hour).UnixMilli())
	return l
}

func (l *Limiter) maybeResetDailyWindow() {
	now := time.Now().UnixMilli()
	reset := l.dailyResetAtMs.Load()
	if now < reset {
		return
	}
	if l.dailyResetAtMs.CompareAndSwap(reset, now+24*60*60*1000) {
		l.dailyRequestCount.Store(0)
	}
}

// Acquire implements §4.B's acquire_permit algorithm: daily window reset,
// concurrency-slot CAS with bounded retry, then dual-bucket rate slot with
// exponential backoff, in that order. Returns a Permit whose concurrency
// slot the caller must Release.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int) (*Permit, error) {
	l.maybeResetDailyWindow()

	if err := l.acquireConcurrencySlot(ctx); err != nil {
		return nil, err
	}

	permit := &Permit{limiter: l}

	if err := l.acquireRateSlot(ctx, estimatedTokens); err != nil {
		permit.Release()
		return nil, err
	}

	l.consecutiveRateLimitHits.Store(0)
	l.lastRequestAtMs.Store(time.Now().UnixMilli())
	l.dailyRequestCount.Add(1)
	return permit, nil
}

func (l *Limiter) acquireConcurrencySlot(ctx context.Context) error {
	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		for {
			cur := l.concurrentRequests.Load()
			if cur >= int64(l.cfg.MaxConcurrent) {
				break
			}
			if l.concurrentRequests.CompareAndSwap(cur, cur+1) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return llmerrors.New(llmerrors.KindRateLimit, fmt.Sprintf("provider %s: concurrency limit exceeded", l.provider))
}

func (l *Limiter) acquireRateSlot(ctx context.Context, estimatedTokens int) error {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if l.requestBucket.TryConsume(1) {
			if l.tokenBucket.TryConsume(float64(estimatedTokens)) {
				return nil
			}
			// Request-token spent but tokens unavailable: refund the
			// request slot since this attempt did not actually proceed.
			l.requestBucket.Credit(1)
		}
		l.consecutiveRateLimitHits.Add(1)
		delay := backoffDelay(l.cfg, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return llmerrors.New(llmerrors.KindRateLimit, fmt.Sprintf("provider %s: rate limit exhausted after retries", l.provider))
}

func backoffDelay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.BackoffBaseDelay)
	for i := 0; i < attempt; i++ {
		d *= cfg.BackoffMultiplier
	}
	if d > float64(cfg.BackoffMaxDelay) {
		d = float64(cfg.BackoffMaxDelay)
	}
	return time.Duration(d)
}

// Stats reports a snapshot for observability.
type Stats struct {
	Provider                 string
	AvailableRequestTokens   float64
	AvailableTokens          float64
	MaxConcurrency           int
	ActiveRequests           int64
	DailyRequestCount        int64
	ConsecutiveRateLimitHits int64
}

func (l *Limiter) Stats() Stats {
	return Stats{
		Provider:                 l.provider,
		AvailableRequestTokens:   l.requestBucket.Available(),
		AvailableTokens:          l.tokenBucket.Available(),
		MaxConcurrency:           l.cfg.MaxConcurrent,
		ActiveRequests:           l.concurrentRequests.Load(),
		DailyRequestCount:        l.dailyRequestCount.Load(),
		ConsecutiveRateLimitHits: l.consecutiveRateLimitHits.Load(),
	}
}
