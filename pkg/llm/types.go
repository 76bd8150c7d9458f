// Package llm provides the uniform chat-completion contract every provider
// adapter implements, plus the middleware-chaining helpers used to wrap
// resilience and observability behavior around it.
package llm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"llmrelay/pkg/provider/descriptor"
)

// Role identifies the speaker of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role
	Content string
}

// TokenUsage reports the token accounting for a completed request.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input+output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CompletionRequest is the canonical chat request the pipeline constructs
// once and passes down through every middleware unchanged.
type CompletionRequest struct {
	ID          string
	Messages    []Message
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	UserID      string
	Stream      bool
}

// CompletionResponse is the canonical chat response every adapter returns.
type CompletionResponse struct {
	ID           string
	RequestID    string
	Model        string
	Content      string
	Role         Role
	CreatedAt    time.Time
	Usage        *TokenUsage
	FinishReason string
	Cost         decimal.Decimal
	Metadata     map[string]any
}

// StreamChunk is one increment of a streamed completion.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
}

// ErrUnsupported is returned by Stream when a backend has no streaming
// support; the Fallback Orchestrator treats it like any other adapter
// failure rather than specially.
var ErrUnsupported = fmt.Errorf("llm: operation not supported by this backend")

// HealthStatus reports the outcome of an adapter's health_check().
type HealthStatus struct {
	Healthy      bool
	CheckedAt    time.Time
	ResponseTime time.Duration
	Error        error
}

// Client is the uniform contract §4.C describes. Every provider adapter,
// and every middleware wrapping one, implements this interface.
type Client interface {
	// Complete sends a chat request synchronously.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a chat request and returns a channel of incremental
	// chunks. Returns ErrUnsupported if the backend has no streaming mode.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// HealthCheck probes backend reachability without consuming a full
	// completion.
	HealthCheck(ctx context.Context) HealthStatus

	// Descriptor returns the adapter's read-only identity, capabilities
	// and pricing. Safe to copy and shared across every caller; adapters
	// are never cloned (see SPEC_FULL.md §9, Resolved Open Question 2).
	Descriptor() descriptor.ProviderDescriptor
}

// StreamToReader adapts a stream channel to an io.Reader, mirroring the
// teacher's llm.StreamToReader helper.
func StreamToReader(stream <-chan StreamChunk) io.Reader {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()
		for chunk := range stream {
			if chunk.Error != nil {
				pw.CloseWithError(chunk.Error)
				return
			}
			if chunk.Content != "" {
				if _, err := pw.Write([]byte(chunk.Content)); err != nil {
					pw.CloseWithError(err)
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()

	return pr
}

// NewRequest builds a CompletionRequest with the pipeline's defaults.
func NewRequest(model string, messages []Message) CompletionRequest {
	return CompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
	}
}

// SystemMessage builds a System-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a User-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// CanonicalizeSystem merges any System messages into a single system
// prompt string and returns the remaining messages unchanged, for
// backends that have no System role of their own (§4.C.1).
func CanonicalizeSystem(messages []Message) (systemPrompt string, rest []Message) {
	var sys []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	if len(sys) == 0 {
		return "", rest
	}
	joined := sys[0]
	for _, s := range sys[1:] {
		joined += "\n\n" + s
	}
	return joined, rest
}
