// Package ollama adapts a local Ollama server to llm.Client.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/llmerrors"
	"llmrelay/pkg/provider/descriptor"
)

// Client wraps the Ollama API client. Grounded on
// pkg/agent/internal/llmimpl/ollama/client.go, trimmed of tool calling since
// the spec's ChatRequest carries none.
type Client struct {
	client *api.Client
	model  string
	desc   descriptor.ProviderDescriptor
}

// New builds a Client against an Ollama server, falling back to
// http://localhost:11434 on an unparseable hostURL.
func New(hostURL string, desc descriptor.ProviderDescriptor) *Client {
	parsed, err := url.Parse(hostURL)
	if err != nil {
		parsed, _ = url.Parse("http://localhost:11434")
	}
	return &Client{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  desc.DefaultModel,
		desc:   desc,
	}
}

func (c *Client) Descriptor() descriptor.ProviderDescriptor { return c.desc }

func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := toOllamaMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindValidation, "message conversion error: "+err.Error())
	}

	model := in.Model
	if model == "" {
		model = c.model
	}

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var resp api.ChatResponse
	err = c.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	usage := &llm.TokenUsage{
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}
	cost := c.desc.Pricing.EstimateCost(model, usage.InputTokens, usage.OutputTokens)

	return llm.CompletionResponse{
		ID:           in.ID,
		RequestID:    in.ID,
		Model:        model,
		Content:      resp.Message.Content,
		Role:         llm.RoleAssistant,
		CreatedAt:    time.Now().UTC(),
		Usage:        usage,
		FinishReason: stopReason(&resp),
		Cost:         cost,
	}, nil
}

func (c *Client) Stream(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, llmerrors.New(llmerrors.KindProviderUnsupported, "streaming not implemented for Ollama client")
}

func (c *Client) HealthCheck(ctx context.Context) llm.HealthStatus {
	start := time.Now()
	err := c.client.Heartbeat(ctx)
	status := llm.HealthStatus{CheckedAt: time.Now().UTC(), ResponseTime: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

func toOllamaMessages(messages []llm.Message) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, errors.New("message list cannot be empty")
	}
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return out, nil
}

func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewWithCause(llmerrors.KindTransport, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewWithCause(llmerrors.KindProviderInvalid, err, "Ollama model not found")
	case strings.Contains(errStr, "context canceled"):
		return llmerrors.NewWithCause(llmerrors.KindTransport, err, "request canceled")
	case strings.Contains(errStr, "timeout"):
		return llmerrors.NewWithCause(llmerrors.KindTimeout, err, "request timeout")
	default:
		return llmerrors.NewWithCause(llmerrors.KindInternal, err, "Ollama API error")
	}
}
