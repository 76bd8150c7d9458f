package provider

import (
	"context"
	"time"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/provider/descriptor"
)

// fakeClient is a scripted llm.Client test double: each call returns the
// next entry of responses/errs in order, repeating the last entry once
// exhausted.
type fakeClient struct {
	desc      descriptor.ProviderDescriptor
	responses []llm.CompletionResponse
	errs      []error
	calls     int
	healthy   bool
}

func newFakeClient(desc descriptor.ProviderDescriptor) *fakeClient {
	return &fakeClient{desc: desc, healthy: true}
}

func (f *fakeClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return llm.CompletionResponse{}, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return llm.CompletionResponse{Model: f.desc.DefaultModel}, nil
}

func (f *fakeClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, llm.ErrUnsupported
}

func (f *fakeClient) HealthCheck(ctx context.Context) llm.HealthStatus {
	return llm.HealthStatus{Healthy: f.healthy, CheckedAt: time.Now()}
}

func (f *fakeClient) Descriptor() descriptor.ProviderDescriptor {
	return f.desc
}

func testDescriptor(name string, priority int) descriptor.ProviderDescriptor {
	return descriptor.ProviderDescriptor{
		Name:         name,
		Provider:     name,
		DefaultModel: name + "-model",
		Enabled:      true,
		Priority:     priority,
		Capabilities: descriptor.Capabilities{MaxContextTokens: 100000},
		Performance:  descriptor.Performance{AvgResponseMs: 500, SuccessRate: 0.99, QualityScore: 0.9},
	}
}
