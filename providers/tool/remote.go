package tool

import (
	"context"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/providers/observability"
)

// FailureStrategy decides what happens to a remote tool after its backing
// source fails a call.
type FailureStrategy string

const (
	// FailureImmediateUnregister removes the tool from the registry on the
	// first failure.
	FailureImmediateUnregister FailureStrategy = "immediate_unregister"
	// FailureMarkUnavailable keeps the tool registered but stops routing to
	// it. The registration survives so an operator can diagnose it.
	FailureMarkUnavailable FailureStrategy = "mark_unavailable"
)

// ValidFailureStrategy reports whether s is a recognized strategy.
func ValidFailureStrategy(s FailureStrategy) bool {
	return s == FailureImmediateUnregister || s == FailureMarkUnavailable
}

// RemoteSource is a provider of externally-hosted tools, such as an MCP
// server. Discovery returns the definitions the source exposes; Call proxies
// one invocation.
type RemoteSource interface {
	Name() string
	Discover(ctx context.Context) ([]ai.ToolDefinition, error)
	Call(ctx context.Context, name string, input map[string]any) (any, error)
}

// RegisterRemote discovers a source's tools and registers each one wrapped in
// a proxy that applies the failure strategy when the source errors.
func RegisterRemote(ctx context.Context, registry *Registry, source RemoteSource, strategy FailureStrategy) error {
	if !ValidFailureStrategy(strategy) {
		return errdefs.Newf(errdefs.KindValidation, "unknown tool failure strategy %q", strategy)
	}
	defs, err := source.Discover(ctx)
	if err != nil {
		return errdefs.Wrap(errdefs.KindBridge, "discovering remote tools", err).
			WithContext("source", source.Name())
	}
	for _, def := range defs {
		proxy := &remoteTool{def: def, source: source, registry: registry, strategy: strategy}
		if err := registry.Register(ctx, proxy); err != nil {
			return err
		}
	}
	return nil
}

// remoteTool proxies calls to a RemoteSource and applies the failure strategy
// when a call errors.
type remoteTool struct {
	def      ai.ToolDefinition
	source   RemoteSource
	registry *Registry
	strategy FailureStrategy
}

func (t *remoteTool) Definition() ai.ToolDefinition { return t.def }

func (t *remoteTool) Call(ctx context.Context, input map[string]any) (any, error) {
	output, err := t.source.Call(ctx, t.def.Name, input)
	if err == nil {
		return output, nil
	}

	if observer := observability.ObserverFromContext(ctx); observer != nil {
		observer.Warn(ctx, "remote tool failed, applying failure strategy",
			observability.String(observability.AttrToolName, t.def.Name),
			observability.String("tool.failure_strategy", string(t.strategy)),
			observability.Error(err),
		)
	}
	switch t.strategy {
	case FailureImmediateUnregister:
		t.registry.Unregister(t.def.Name)
	case FailureMarkUnavailable:
		t.registry.MarkUnavailable(t.def.Name)
	}
	return nil, err
}
