// Package circuit implements the per-provider failure gate described in
// SPEC_FULL.md §4.A: a Closed/Open/HalfOpen latch that stops calling a
// failing dependency until a recovery timeout has elapsed.
//
// Grounded on pkg/agent/middleware/resilience/circuit/breaker.go, reworked
// onto atomics for the failure counter and state word per §5's explicit
// "failure_count atomic with release/acquire semantics" requirement.
package circuit

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is one of Closed, Open, or HalfOpen.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes breaker behavior.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultConfig matches §4.A/§8.1: a single post-recovery success closes
// the breaker. The teacher's own default required three consecutive
// HalfOpen successes; SuccessThreshold is kept configurable for callers
// who want that steadier recovery, but the shipped default follows the
// spec's one-success-closes rule.
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 1,
	RecoveryTimeout:  30 * time.Second,
}

// Error is returned by Allow when the circuit rejects a call.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return "circuit breaker is " + e.State.String()
}

// Breaker is the public contract the circuit middleware consumes.
type Breaker interface {
	Allow() bool
	Record(success bool)
	GetState() State
	FailureCount() int64
	Reset()
	ForceOpen()
	ForceClose()
}

// breaker implements Breaker. state and failureCount are atomics so reads
// from Allow()/GetState() never take a lock; transitions that must be
// linearizable (the Open→HalfOpen probe admission, and any write to
// openedAt) are still serialized under mu, matching §5's "transitions are
// linearizable" requirement without forcing every read through the lock.
type breaker struct {
	cfg Config

	mu       sync.Mutex
	state    atomic.Int32
	failures atomic.Int64
	successesInHalfOpen atomic.Int64
	openedAt time.Time
}

// New creates a Breaker in the Closed state.
func New(cfg Config) Breaker {
	b := &breaker{cfg: cfg}
	b.state.Store(int32(Closed))
	return b
}

func (b *breaker) GetState() State {
	return State(b.state.Load())
}

func (b *breaker) FailureCount() int64 {
	return b.failures.Load()
}

// Allow reports whether a call may proceed. On an Open breaker whose
// recovery timeout has elapsed, it atomically admits exactly one caller
// into HalfOpen — the rest continue to observe Open (or HalfOpen, both of
// which are spec-legal per §4.A's tie-break clause) until that probe
// resolves.
func (b *breaker) Allow() bool {
	switch State(b.state.Load()) {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		b.mu.Lock()
		defer b.mu.Unlock()
		if State(b.state.Load()) != Open {
			return true
		}
		if time.Since(b.openedAt) < b.cfg.RecoveryTimeout {
			return false
		}
		b.state.Store(int32(HalfOpen))
		b.successesInHalfOpen.Store(0)
		return true
	default:
		return false
	}
}

// Record reports the outcome of a call that Allow() admitted.
func (b *breaker) Record(success bool) {
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *breaker) onSuccess() {
	switch State(b.state.Load()) {
	case HalfOpen:
		n := b.successesInHalfOpen.Add(1)
		if int(n) >= b.cfg.SuccessThreshold {
			b.mu.Lock()
			b.state.Store(int32(Closed))
			b.failures.Store(0)
			b.mu.Unlock()
		}
	default:
		b.failures.Store(0)
	}
}

func (b *breaker) onFailure() {
	switch State(b.state.Load()) {
	case HalfOpen:
		b.trip()
	default:
		n := b.failures.Add(1)
		if int(n) >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.mu.Lock()
	b.state.Store(int32(Open))
	b.openedAt = time.Now()
	b.mu.Unlock()
}

// Reset forces the breaker back to Closed with a zeroed failure count.
func (b *breaker) Reset() {
	b.mu.Lock()
	b.state.Store(int32(Closed))
	b.failures.Store(0)
	b.mu.Unlock()
}

func (b *breaker) ForceOpen() {
	b.mu.Lock()
	b.state.Store(int32(Open))
	b.openedAt = time.Now()
	b.mu.Unlock()
}

func (b *breaker) ForceClose() {
	b.Reset()
}
