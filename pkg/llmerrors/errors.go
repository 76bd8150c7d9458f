// Package llmerrors classifies every error kind the pipeline surfaces to
// callers (SPEC_FULL.md §7) and supplies the retry/backoff defaults the
// resilience middlewares consult. It generalizes the teacher's
// LLM-transport-only error scheme to the full error-kind list the spec
// names, adding the non-LLM kinds as sibling typed errors in the same
// blocklist-retryable idiom.
package llmerrors

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"
)

// Kind is one of the error categories §7 names.
type Kind int8

const (
	KindConfig Kind = iota
	KindTransport
	KindProtocol
	KindValidation
	KindTimeout
	KindRateLimit
	KindCircuitOpen
	KindProviderAuth
	KindProviderInvalid
	KindProviderServerError
	KindProviderUnsupported
	KindSpendingDenied
	KindEmergencyStop
	KindNotFound
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindCircuitOpen:
		return "circuit_open"
	case KindProviderAuth:
		return "provider_auth"
	case KindProviderInvalid:
		return "provider_invalid"
	case KindProviderServerError:
		return "provider_server_error"
	case KindProviderUnsupported:
		return "provider_unsupported"
	case KindSpendingDenied:
		return "spending_denied"
	case KindEmergencyStop:
		return "emergency_stop"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// RetryConfig mirrors the teacher's exponential-backoff configuration
// shape (pkg/agent/llmerrors.RetryConfig).
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfigs gives retryable kinds a default backoff. RetryConfig
// returns a zero config (zero retries) for kinds absent from this map,
// including some that IsRetryable reports as retryable.
var DefaultRetryConfigs = map[Kind]RetryConfig{
	KindTransport: {MaxRetries: 4, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 2.0, Jitter: true},
	KindTimeout:   {MaxRetries: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 2.0, Jitter: true},
	KindRateLimit: {MaxRetries: 6, InitialDelay: 1 * time.Second, MaxDelay: 60 * time.Second, BackoffFactor: 2.0, Jitter: true},
	KindProviderServerError: {
		MaxRetries: 4, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 2.0, Jitter: true,
	},
	KindInternal: {MaxRetries: 1, InitialDelay: 1 * time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2.0, Jitter: true},
}

// Error is the structured error every pipeline stage returns.
type Error struct {
	Err        error
	Message    string
	Kind       Kind
	StatusCode int
	// LimitType and Server/Tool carry the user-visible context §7 requires
	// for SpendingDenied / NotFound errors.
	LimitType string
	Server    string
	Tool      string
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable uses a blocklist: everything is retryable unless explicitly
// excluded, matching the teacher's IsRetryable policy.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindProviderAuth, KindProviderInvalid, KindValidation, KindSpendingDenied, KindEmergencyStop, KindConfig, KindNotFound, KindProviderUnsupported:
		return false
	default:
		return true
	}
}

// RecoversViaFallback reports whether the Fallback Orchestrator may try
// the next candidate on this error, per §7's propagation policy.
func (e *Error) RecoversViaFallback() bool {
	switch e.Kind {
	case KindTransport, KindTimeout, KindRateLimit, KindCircuitOpen, KindProviderServerError:
		return true
	default:
		return false
	}
}

func (e *Error) RetryConfig() RetryConfig {
	if cfg, ok := DefaultRetryConfigs[e.Kind]; ok {
		return cfg
	}
	return RetryConfig{}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewWithStatus(kind Kind, statusCode int, message string) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Message: message}
}

func NewWithCause(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Err: cause, Message: message}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what}
}

func SpendingDenied(reason, limitType string) *Error {
	return &Error{Kind: KindSpendingDenied, Message: reason, LimitType: limitType}
}

// Is reports whether err is a classified Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// SanitizePrompt truncates a long prompt for safe logging, keeping a hash
// for correlation. Grounded on the teacher's SanitizePrompt helper.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}
	half := maxChars / 2
	if half < 100 {
		half = 100
	}
	if half*2 >= len(prompt) {
		return prompt
	}
	hash := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s...[%d chars, hash:%x]...%s", prompt[:half], len(prompt), hash[:8], prompt[len(prompt)-half:])
}
