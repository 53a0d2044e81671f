package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/providers/observability"
)

// Outcome error codes.
const (
	CodeToolNotFound    = "TOOL_NOT_FOUND"
	CodeToolUnavailable = "TOOL_UNAVAILABLE"
	CodeValidationError = "VALIDATION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeExecutionFailed = "EXECUTION_FAILED"
)

// Execution limits.
const (
	MinExecutionTimeout     = 1 * time.Second
	MaxExecutionTimeout     = 300 * time.Second
	DefaultExecutionTimeout = 30 * time.Second

	MinConcurrentTools     = 1
	MaxConcurrentTools     = 10
	DefaultConcurrentTools = 5
)

// RouterConfig bounds tool execution. Out-of-range values are clamped.
type RouterConfig struct {
	ExecutionTimeout time.Duration
	MaxConcurrent    int
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.ExecutionTimeout == 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}
	c.ExecutionTimeout = min(max(c.ExecutionTimeout, MinExecutionTimeout), MaxExecutionTimeout)
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = DefaultConcurrentTools
	}
	c.MaxConcurrent = min(max(c.MaxConcurrent, MinConcurrentTools), MaxConcurrentTools)
	return c
}

// Router validates and executes tool calls against a registry. Every failure
// mode maps to a structured outcome so a broken tool call never aborts the
// surrounding conversation.
type Router struct {
	registry *Registry
	cfg      RouterConfig
	slots    chan struct{}
}

func NewRouter(registry *Registry, cfg RouterConfig) *Router {
	cfg = cfg.withDefaults()
	return &Router{
		registry: registry,
		cfg:      cfg,
		slots:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Execute runs one tool call. Calls beyond the concurrency limit queue until
// a slot frees up; queueing time counts against the caller's context, not the
// per-execution timeout.
func (r *Router) Execute(ctx context.Context, call ai.ToolCall) ai.ToolOutcome {
	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		return failure(call, CodeTimeout, "cancelled while waiting for an execution slot")
	}
	return r.run(ctx, call)
}

// ExecuteAll runs every call from one assistant message, concurrently up to
// the router's limit, and returns outcomes in the original call order.
func (r *Router) ExecuteAll(ctx context.Context, calls []ai.ToolCall) []ai.ToolOutcome {
	outcomes := make([]ai.ToolOutcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ai.ToolCall) {
			defer wg.Done()
			outcomes[i] = r.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return outcomes
}

func (r *Router) run(ctx context.Context, call ai.ToolCall) ai.ToolOutcome {
	observer := observability.ObserverFromContext(ctx)
	start := time.Now()

	var span observability.Span
	if observer != nil {
		ctx, span = observer.StartSpan(ctx, observability.SpanToolExecution,
			observability.String(observability.AttrToolName, call.Name),
			observability.String(observability.AttrToolCallID, call.ID),
		)
		defer span.End()
		span.AddEvent(observability.EventToolExecutionStart)
		defer span.AddEvent(observability.EventToolExecutionEnd)
	}

	outcome := r.dispatch(ctx, call)

	duration := time.Since(start)
	if observer != nil {
		status := "success"
		if !outcome.Success {
			status = outcome.Error.Code
			span.SetStatus(observability.StatusError, outcome.Error.Message)
		}
		span.SetAttributes(
			observability.String(observability.AttrToolStatus, status),
			observability.Duration(observability.AttrToolDuration, duration),
		)
		observer.Counter(observability.MetricToolExecutionCount).Add(ctx, 1,
			observability.String(observability.AttrToolName, call.Name),
			observability.String(observability.AttrToolStatus, status),
		)
		observer.Histogram(observability.MetricToolExecutionDuration).Record(ctx, float64(duration.Milliseconds()),
			observability.String(observability.AttrToolName, call.Name),
		)
	}
	return outcome
}

func (r *Router) dispatch(ctx context.Context, call ai.ToolCall) ai.ToolOutcome {
	e, found := r.registry.lookup(call.Name)
	if !found {
		return failure(call, CodeToolNotFound, fmt.Sprintf("tool %q is not registered", call.Name))
	}
	if !e.available {
		return failure(call, CodeToolUnavailable, fmt.Sprintf("tool %q is unavailable", call.Name))
	}

	params := call.Parameters
	if params == nil {
		params = map[string]any{}
	}
	if err := e.schema.Validate(anyfy(params)); err != nil {
		return failure(call, CodeValidationError, err.Error())
	}

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.ExecutionTimeout)
	defer cancel()

	type result struct {
		output any
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- result{err: fmt.Errorf("tool panicked: %v", recovered)}
			}
		}()
		output, err := e.tool.Call(execCtx, params)
		done <- result{output: output, err: err}
	}()

	select {
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return failure(call, CodeTimeout, "tool execution cancelled")
		}
		return failure(call, CodeTimeout,
			fmt.Sprintf("tool %q exceeded the %s execution timeout", call.Name, r.cfg.ExecutionTimeout))
	case res := <-done:
		if res.err != nil {
			return failure(call, CodeExecutionFailed, res.err.Error())
		}
		return ai.ToolOutcome{CallID: call.ID, Success: true, Output: res.output}
	}
}

// anyfy round-trips structured parameters so the schema validator sees plain
// JSON types (float64 numbers, []any arrays) even when a caller built the
// parameter map with native Go types.
func anyfy(params map[string]any) any {
	encoded, err := json.Marshal(params)
	if err != nil {
		return params
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return params
	}
	return decoded
}

func failure(call ai.ToolCall, code, message string) ai.ToolOutcome {
	return ai.ToolOutcome{
		CallID:  call.ID,
		Success: false,
		Error:   &ai.ToolError{Code: code, Message: message},
	}
}
