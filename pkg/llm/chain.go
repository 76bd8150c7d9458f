package llm

import (
	"context"

	"llmrelay/pkg/provider/descriptor"
)

// Middleware wraps a Client with additional behavior. Middlewares are
// composed with Chain to build the request pipeline.
type Middleware func(next Client) Client

// clientFunc adapts four plain functions to the Client interface; it is
// the building block every middleware uses to return a new Client without
// declaring a named type for each one.
type clientFunc struct {
	complete func(context.Context, CompletionRequest) (CompletionResponse, error)
	stream   func(context.Context, CompletionRequest) (<-chan StreamChunk, error)
	health   func(context.Context) HealthStatus
	describe func() descriptor.ProviderDescriptor
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f clientFunc) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return f.stream(ctx, req)
}

func (f clientFunc) HealthCheck(ctx context.Context) HealthStatus {
	return f.health(ctx)
}

func (f clientFunc) Descriptor() descriptor.ProviderDescriptor {
	return f.describe()
}

// WrapClient builds a Client from plain function values. Middleware
// implementations use this instead of declaring their own struct type.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (<-chan StreamChunk, error),
	health func(context.Context) HealthStatus,
	describe func() descriptor.ProviderDescriptor,
) Client {
	return clientFunc{complete: complete, stream: stream, health: health, describe: describe}
}

// Chain composes middlewares around a base Client. The first middleware in
// the slice is outermost: Chain(base, mw1, mw2) calls mw1, then mw2, then
// base.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
