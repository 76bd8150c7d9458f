// Package openai adapts the official OpenAI Go SDK to llm.Client.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/llmerrors"
	"llmrelay/pkg/provider/descriptor"
)

// Client wraps the official openai-go SDK's Responses API. Grounded on
// pkg/agent/internal/llmimpl/openaiofficial/client.go; the sashabaranov-based
// adapter (pkg/agent/internal/llmimpl/openai) is dropped in favor of this
// one since carrying both would duplicate the same backend.
type Client struct {
	client openai.Client
	model  string
	desc   descriptor.ProviderDescriptor
}

func New(apiKey string, desc descriptor.ProviderDescriptor) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  desc.DefaultModel,
		desc:   desc,
	}
}

func (c *Client) Descriptor() descriptor.ProviderDescriptor { return c.desc }

func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	var input strings.Builder
	for _, m := range in.Messages {
		switch m.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&input, "System: %s\n\n", m.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&input, "Assistant: %s\n\n", m.Content)
		default:
			input.WriteString(m.Content)
		}
	}

	model := in.Model
	if model == "" {
		model = c.model
	}

	params := responses.ResponseNewParams{
		Model: model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}
	if in.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(in.MaxTokens))
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindProtocol, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	usage := &llm.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	cost := c.desc.Pricing.EstimateCost(model, usage.InputTokens, usage.OutputTokens)

	return llm.CompletionResponse{
		ID:        in.ID,
		RequestID: in.ID,
		Model:     model,
		Content:   content,
		Role:      llm.RoleAssistant,
		CreatedAt: time.Now().UTC(),
		Usage:     usage,
		Cost:      cost,
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
	_, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           c.model,
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String("ping")},
		MaxOutputTokens: openai.Int(1),
	})
	status := llm.HealthStatus{CheckedAt: time.Now().UTC(), ResponseTime: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	return status
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
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate"):
		return llmerrors.NewWithCause(llmerrors.KindRateLimit, err, "rate limit exceeded")
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return llmerrors.NewWithCause(llmerrors.KindProviderInvalid, err, "bad request")
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return llmerrors.NewWithCause(llmerrors.KindProviderServerError, err, "server error")
	default:
		return llmerrors.NewWithCause(llmerrors.KindInternal, err, "unclassified provider error")
	}
}
