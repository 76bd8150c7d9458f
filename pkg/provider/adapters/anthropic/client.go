// Package anthropic adapts the Anthropic Claude API to llm.Client.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/llmerrors"
	"llmrelay/pkg/provider/descriptor"
)

// Client wraps the Anthropic SDK client to implement llm.Client. Grounded
// on pkg/agent/internal/llmimpl/anthropic/client.go, trimmed of tool-calling
// and prompt-caching support since the spec's ChatRequest carries neither.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
	desc   descriptor.ProviderDescriptor
}

func New(apiKey string, desc descriptor.ProviderDescriptor) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
		model:  anthropic.Model(desc.DefaultModel),
		desc:   desc,
	}
}

func (c *Client) Descriptor() descriptor.ProviderDescriptor { return c.desc }

func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, rest := llm.CanonicalizeSystem(in.Messages)
	messages, err := toAlternating(rest)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindValidation, fmt.Sprintf("message alternation error: %v", err))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelOrDefault(in.Model, c.model)),
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(in.Temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindProtocol, "received empty response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	usage := &llm.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	cost := c.desc.Pricing.EstimateCost(string(params.Model), usage.InputTokens, usage.OutputTokens)

	return llm.CompletionResponse{
		ID:           in.ID,
		RequestID:    in.ID,
		Model:        string(params.Model),
		Content:      text.String(),
		Role:         llm.RoleAssistant,
		CreatedAt:    time.Now().UTC(),
		Usage:        usage,
		FinishReason: string(resp.StopReason),
		Cost:         cost,
	}, nil
}

func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

func (c *Client) HealthCheck(ctx context.Context) llm.HealthStatus {
	start := time.Now()
	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	status := llm.HealthStatus{CheckedAt: time.Now().UTC(), ResponseTime: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

func modelOrDefault(requested string, fallback anthropic.Model) string {
	if requested != "" {
		return requested
	}
	return string(fallback)
}

// toAlternating merges consecutive user messages and validates strict
// user/assistant alternation ending on a user turn, matching
// ensureAlternation in the teacher adapter (simplified: no tool blocks,
// no cache control, since the spec's Message type carries neither).
// Consecutive assistant messages are not merged and fail the check.
func toAlternating(messages []llm.Message) ([]anthropic.MessageParam, error) {
	if len(messages) == 0 {
		return nil, errors.New("message list cannot be empty")
	}

	var merged []llm.Message
	var currentParts []string
	var currentRole llm.Role = llm.RoleUser

	flush := func() {
		if len(currentParts) > 0 {
			merged = append(merged, llm.Message{Role: llm.RoleUser, Content: strings.Join(currentParts, "\n\n")})
			currentParts = nil
		}
	}

	for _, m := range messages {
		if m.Role == llm.RoleAssistant {
			flush()
			merged = append(merged, m)
			currentRole = llm.RoleAssistant
		} else {
			currentParts = append(currentParts, m.Content)
			currentRole = llm.RoleUser
		}
	}
	flush()
	_ = currentRole

	if len(merged) == 0 {
		return nil, errors.New("must have at least one non-system message")
	}
	if merged[0].Role != llm.RoleUser {
		return nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != llm.RoleUser {
		return nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Role == merged[i-1].Role {
			return nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, merged[i].Role)
		}
	}

	out := make([]anthropic.MessageParam, 0, len(merged))
	for _, m := range merged {
		role := anthropic.MessageParamRoleUser
		if m.Role == llm.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
		})
	}
	return out, nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewWithCause(llmerrors.KindTimeout, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewWithCause(llmerrors.KindTransport, err, "request canceled")
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "unauthorized"):
		return llmerrors.NewWithCause(llmerrors.KindProviderAuth, err, "authentication failed")
	case strings.Contains(errStr, "403"):
		return llmerrors.NewWithCause(llmerrors.KindProviderAuth, err, "permission denied")
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate") || strings.Contains(errStr, "quota"):
		return llmerrors.NewWithCause(llmerrors.KindRateLimit, err, "rate limit exceeded")
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return llmerrors.NewWithCause(llmerrors.KindProviderInvalid, err, "bad request")
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return llmerrors.NewWithCause(llmerrors.KindProviderServerError, err, "server error")
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection") || strings.Contains(errStr, "eof"):
		return llmerrors.NewWithCause(llmerrors.KindTransport, err, "network error")
	default:
		return llmerrors.NewWithCause(llmerrors.KindInternal, err, "unclassified provider error")
	}
}
