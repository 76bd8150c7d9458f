package ratelimit

import (
	"context"
	"time"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/metrics"
)

// Middleware wraps an llm.Client with rate limiting: it estimates token
// usage, acquires a permit from the provider's Limiter before calling
// through, and always releases the permit regardless of outcome.
// Grounded on pkg/agent/middleware/resilience/ratelimit/middleware.go.
func Middleware(limiters *ProviderMap, estimator TokenEstimator, recorder metrics.Recorder) llm.Middleware {
	if estimator == nil {
		estimator = NewDefaultEstimator()
	}
	return func(next llm.Client) llm.Client {
		provider := next.Descriptor().Provider
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				limiter, err := limiters.Get(provider)
				if err != nil {
					recorder.IncThrottle(req.Model, "no_limiter")
					return llm.CompletionResponse{}, err
				}
				waitStart := time.Now()
				estimated := estimator.EstimatePrompt(req)
				permit, err := limiter.Acquire(ctx, estimated)
				recorder.ObserveQueueWait(req.Model, time.Since(waitStart))
				if err != nil {
					recorder.IncThrottle(req.Model, "rate_limit")
					return llm.CompletionResponse{}, err
				}
				defer permit.Release()
				return next.Complete(ctx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				limiter, err := limiters.Get(provider)
				if err != nil {
					recorder.IncThrottle(req.Model, "no_limiter")
					return nil, err
				}
				estimated := estimator.EstimatePrompt(req)
				permit, err := limiter.Acquire(ctx, estimated)
				if err != nil {
					recorder.IncThrottle(req.Model, "rate_limit")
					return nil, err
				}
				ch, err := next.Stream(ctx, req)
				// Streaming responses are unbounded in duration; the permit
				// releases as soon as the stream is established rather than
				// holding a concurrency slot for the stream's lifetime.
				permit.Release()
				return ch, err
			},
			next.HealthCheck,
			next.Descriptor,
		)
	}
}
