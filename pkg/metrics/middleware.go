package metrics

import (
	"context"
	"errors"
	"time"

	"llmrelay/pkg/llm"
	"llmrelay/pkg/llmerrors"
	"llmrelay/pkg/resilience/circuit"
)

// Middleware wraps an llm.Client, timing every Complete call and reporting
// outcome, token usage and cost to the Recorder; a Stream call is reported
// only when it fails to start. Grounded on
// pkg/agent/middleware/metrics/middleware.go's llm.WrapClient composition.
func Middleware(recorder Recorder, agentID string) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				model := req.Model
				state := circuitStateLabel(err)
				if err != nil {
					recorder.ObserveRequest(model, agentID, state, 0, 0, 0, false, errorTypeLabel(err), duration)
					return resp, err
				}
				prompt, completion := 0, 0
				if resp.Usage != nil {
					prompt, completion = resp.Usage.InputTokens, resp.Usage.OutputTokens
				}
				costFloat, _ := resp.Cost.Float64()
				recorder.ObserveRequest(model, agentID, state, prompt, completion, costFloat, true, "", duration)
				return resp, nil
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				ch, err := next.Stream(ctx, req)
				duration := time.Since(start)
				if err != nil {
					recorder.ObserveRequest(req.Model, agentID, circuitStateLabel(err), 0, 0, 0, false, errorTypeLabel(err), duration)
				}
				return ch, err
			},
			next.HealthCheck,
			next.Descriptor,
		)
	}
}

func circuitStateLabel(err error) string {
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return circuitErr.State.String()
	}
	return "closed"
}

func errorTypeLabel(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return "circuit_breaker"
	}
	return llmerrors.KindOf(err).String()
}
