package circuit

import (
	"context"

	"llmrelay/pkg/llm"
)

// Middleware returns an llm.Middleware that rejects calls with *Error when
// the breaker is Open, and records the outcome of every admitted call.
// Grounded on pkg/agent/middleware/resilience/circuit/middleware.go.
func Middleware(breaker Breaker) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}
				resp, err := next.Complete(ctx, req)
				breaker.Record(err == nil)
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if !breaker.Allow() {
					return nil, &Error{State: breaker.GetState()}
				}
				ch, err := next.Stream(ctx, req)
				breaker.Record(err == nil)
				return ch, err
			},
			next.HealthCheck,
			next.Descriptor,
		)
	}
}
