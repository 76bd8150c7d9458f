// Package retry implements the exponential-backoff retry policy behind the
// MCP Client's request retry. Adapted from
// pkg/agent/middleware/resilience/retry/policy.go.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"llmrelay/pkg/llmerrors"
)

// Config tunes backoff timing.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

var DefaultConfig = Config{
	MaxAttempts:   5,
	InitialDelay:  time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier decides whether an error should be retried.
type Classifier func(error) bool

// ShouldRetryDefault never retries context cancellation, never retries
// errors llmerrors has classified as non-retryable, and otherwise allows
// retry. A context.DeadlineExceeded is deliberately retryable here: a
// per-request timeout wraps it, and only repeated expiry should surface
// a terminal error.
func ShouldRetryDefault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var classified *llmerrors.Error
	if errors.As(err, &classified) {
		return classified.IsRetryable()
	}
	return true
}

// Policy pairs a Config with a Classifier.
type Policy struct {
	Config     Config
	Classifier Classifier
}

func NewPolicy(cfg Config, classifier Classifier) Policy {
	if classifier == nil {
		classifier = ShouldRetryDefault
	}
	return Policy{Config: cfg, Classifier: classifier}
}

func (p Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// CalculateDelay returns the backoff delay before attempt number `attempt`
// (1-indexed: the delay before the 2nd attempt is CalculateDelay(2)).
func (p Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(p.Config.InitialDelay) * pow(p.Config.BackoffFactor, attempt-2)
	if delay > float64(p.Config.MaxDelay) {
		delay = float64(p.Config.MaxDelay)
	}
	if p.Config.Jitter {
		jitter := (rand.Float64()*2 - 1) * 0.1 * delay
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Sleep waits for the given delay or ctx cancellation, whichever first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
