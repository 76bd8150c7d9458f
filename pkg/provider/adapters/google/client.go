// Package google adapts the Google GenAI SDK (Gemini) to llm.Client.
package google

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/genai"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/llmerrors"
	"llmrelay/pkg/provider/descriptor"
)

// Client wraps the Google GenAI client. Grounded on
// pkg/agent/internal/llmimpl/google/client.go, trimmed of tool calling and
// thought-signature response caching since the spec's ChatRequest carries
// neither.
type Client struct {
	apiKey string
	model  string
	desc   descriptor.ProviderDescriptor

	mu     sync.Mutex
	client *genai.Client
}

func New(apiKey string, desc descriptor.ProviderDescriptor) *Client {
	return &Client{apiKey: apiKey, model: desc.DefaultModel, desc: desc}
}

func (c *Client) Descriptor() descriptor.ProviderDescriptor { return c.desc }

func (c *Client) ensureClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, llmerrors.NewWithCause(llmerrors.KindConfig, err, "failed to create Gemini client")
	}
	c.client = client
	return client, nil
}

func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, systemInstruction, err := toContents(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindValidation, "message conversion error: "+err.Error())
	}

	temp := in.Temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemInstruction != "" {
		genConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}

	model := in.Model
	if model == "" {
		model = c.model
	}

	result, err := client.Models.GenerateContent(ctx, model, contents, genConfig)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindProtocol, "empty response from Gemini API")
	}

	var usage *llm.TokenUsage
	if result.UsageMetadata != nil {
		usage = &llm.TokenUsage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	cost := c.desc.Pricing.EstimateCost(model, 0, 0)
	if usage != nil {
		cost = c.desc.Pricing.EstimateCost(model, usage.InputTokens, usage.OutputTokens)
	}

	return llm.CompletionResponse{
		ID:           in.ID,
		RequestID:    in.ID,
		Model:        model,
		Content:      result.Text(),
		Role:         llm.RoleAssistant,
		CreatedAt:    time.Now().UTC(),
		Usage:        usage,
		FinishReason: "end_turn",
		Cost:         cost,
	}, nil
}

func (c *Client) Stream(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, llmerrors.New(llmerrors.KindProviderUnsupported, "streaming not implemented for Gemini client")
}

func (c *Client) HealthCheck(ctx context.Context) llm.HealthStatus {
	start := time.Now()
	client, err := c.ensureClient(ctx)
	status := llm.HealthStatus{CheckedAt: time.Now().UTC()}
	if err != nil {
		status.Error = err.Error()
		status.ResponseTime = time.Since(start)
		return status
	}
	temp := float32(0)
	_, err = client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: "ping"}}}},
		&genai.GenerateContentConfig{Temperature: &temp, MaxOutputTokens: 1})
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	return status
}

func toContents(messages []llm.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", errors.New("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content

	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + m.Content
			} else {
				systemInstruction = m.Content
			}
			continue
		}

		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		if m.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}

	return contents, systemInstruction, nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewWithCause(llmerrors.KindTimeout, err, "request timeout")
	}
	return llmerrors.NewWithCause(llmerrors.KindProviderServerError, err, "Gemini API call failed")
}
