package agent

import (
	"context"
	"time"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/providers/observability"
)

// State identifies where a conversation is in the loop's state machine.
type State string

const (
	StateIdle            State = "idle"
	StateIterationActive State = "iteration_active"
	StateInspecting      State = "inspecting"
	StateToolDispatch    State = "tool_dispatch"
	StateTerminated      State = "terminated"
)

// Default loop bounds applied when the caller leaves an option zero.
const (
	DefaultMaxIterations    = 10
	DefaultTimeout          = 10 * time.Minute
	DefaultIterationTimeout = 60 * time.Second

	// MaxIterationsLimit and MaxTimeout bound what a caller may request.
	MaxIterationsLimit = 1000
	MaxTimeout         = 24 * time.Hour
)

// Options bounds one loop run.
type Options struct {
	MaxIterations    int
	Timeout          time.Duration
	IterationTimeout time.Duration
}

// OptionsFromRequest converts the request-level multi-turn options, applying
// defaults for zero values.
func OptionsFromRequest(mt *ai.MultiTurnOptions) Options {
	opts := Options{}
	if mt != nil {
		opts.MaxIterations = mt.MaxIterations
		opts.Timeout = time.Duration(mt.TimeoutMs) * time.Millisecond
		opts.IterationTimeout = time.Duration(mt.IterationTimeoutMs) * time.Millisecond
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.IterationTimeout == 0 {
		o.IterationTimeout = DefaultIterationTimeout
	}
	return o
}

// Validate checks the option ranges: iterations in [1, 1000], timeout at most
// 24h, iteration timeout below the conversation timeout.
func (o Options) Validate() error {
	if o.MaxIterations < 1 || o.MaxIterations > MaxIterationsLimit {
		return errdefs.Newf(errdefs.KindValidation,
			"maxIterations %d outside [1, %d]", o.MaxIterations, MaxIterationsLimit)
	}
	if o.Timeout <= 0 || o.Timeout > MaxTimeout {
		return errdefs.Newf(errdefs.KindValidation,
			"timeout %s outside (0, %s]", o.Timeout, MaxTimeout)
	}
	if o.IterationTimeout <= 0 || o.IterationTimeout >= o.Timeout {
		return errdefs.Newf(errdefs.KindValidation,
			"iterationTimeout %s must be positive and below the conversation timeout %s",
			o.IterationTimeout, o.Timeout)
	}
	return nil
}

// CallFunc performs one model round-trip over the accumulated transcript.
type CallFunc func(ctx context.Context, messages []ai.Message) (*ai.ChatResponse, error)

// DetectFunc classifies a finish reason; satisfied by a plugin's
// DetectTermination.
type DetectFunc func(finishReason string, finished bool, msg *ai.Message) ai.TerminationSignal

// Executor dispatches the tool calls of one assistant message and returns
// outcomes in the original call order. *tool.Router satisfies it.
type Executor interface {
	ExecuteAll(ctx context.Context, calls []ai.ToolCall) []ai.ToolOutcome
}

// Result is the outcome of a completed loop run. Messages holds the full
// transcript including tool messages; Response is the last model response.
type Result struct {
	Response *ai.ChatResponse
	Messages []ai.Message
	Reason   ai.TerminationReason
	Metrics  Metrics
}

// Loop drives a multi-turn conversation.
type Loop struct {
	call     CallFunc
	detect   DetectFunc
	executor Executor
	opts     Options

	state State
}

// NewLoop builds a loop. executor may be nil, in which case tool-requesting
// responses terminate the loop with tool_use_required.
func NewLoop(call CallFunc, detect DetectFunc, executor Executor, opts Options) (*Loop, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Loop{call: call, detect: detect, executor: executor, opts: opts, state: StateIdle}, nil
}

// State returns the loop's current state.
func (l *Loop) State() State { return l.state }

// Run executes the conversation until a termination condition holds. A model
// call error aborts the run and is returned alongside the partial result.
func (l *Loop) Run(ctx context.Context, messages []ai.Message) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	observer := observability.ObserverFromContext(ctx)
	var span observability.Span
	if observer != nil {
		ctx, span = observer.StartSpan(ctx, observability.SpanAgentLoop)
		defer span.End()
	}

	manager := NewManager(l.opts.MaxIterations)
	transcript := append([]ai.Message(nil), messages...)
	var last *ai.ChatResponse

	for manager.CanContinue(ctx) {
		l.state = StateIterationActive
		iteration, err := manager.StartIteration()
		if err != nil {
			return l.finish(manager, transcript, last, span), err
		}
		if observer != nil {
			span.AddEvent(observability.EventAgentIterationStart,
				observability.Int(observability.AttrAgentIteration, iteration))
		}

		resp, err := l.callOnce(ctx, transcript)
		if _, completeErr := manager.CompleteIteration(ctx); completeErr != nil && err == nil {
			err = completeErr
		}
		if observer != nil {
			span.AddEvent(observability.EventAgentIterationEnd,
				observability.Int(observability.AttrAgentIteration, iteration))
		}
		if err != nil {
			manager.Terminate(ai.TerminationError)
			return l.finish(manager, transcript, last, span), err
		}

		last = resp
		transcript = append(transcript, resp.Message)

		l.state = StateInspecting
		toolUses := resp.Message.ToolUses()
		signal := l.detectSignal(resp)
		if len(toolUses) == 0 || l.executor == nil {
			manager.Terminate(terminalReason(signal))
			break
		}

		l.state = StateToolDispatch
		toolMsg := l.dispatch(ctx, toolUses)
		transcript = append(transcript, toolMsg)
	}

	if terminated, _ := manager.Terminated(); !terminated {
		manager.Terminate(manager.DetermineTerminationReason(ctx))
	}
	return l.finish(manager, transcript, last, span), nil
}

func (l *Loop) callOnce(ctx context.Context, transcript []ai.Message) (*ai.ChatResponse, error) {
	iterCtx, cancel := context.WithTimeout(ctx, l.opts.IterationTimeout)
	defer cancel()
	return l.call(iterCtx, transcript)
}

func (l *Loop) detectSignal(resp *ai.ChatResponse) ai.TerminationSignal {
	if l.detect == nil {
		return ai.TerminationSignal{
			ShouldTerminate: true,
			Reason:          ai.TerminationNaturalCompletion,
			Confidence:      ai.ConfidenceLow,
		}
	}
	return l.detect(resp.FinishReason, true, &resp.Message)
}

// dispatch executes every tool call of one assistant message and collates the
// outcomes into a single tool message, in original call order.
func (l *Loop) dispatch(ctx context.Context, uses []ai.ToolUsePart) ai.Message {
	calls := make([]ai.ToolCall, len(uses))
	for i, use := range uses {
		calls[i] = ai.ToolCall{ID: use.ID, Name: use.Name, Parameters: use.Input}
	}
	outcomes := l.executor.ExecuteAll(ctx, calls)

	msg := ai.Message{Role: ai.RoleTool}
	for _, outcome := range outcomes {
		msg.Content = append(msg.Content, ai.ToolResultPart{
			CallID:  outcome.CallID,
			Success: outcome.Success,
			Output:  outcome.Output,
			Error:   outcome.Error,
		})
	}
	return msg
}

func (l *Loop) finish(manager *Manager, transcript []ai.Message, last *ai.ChatResponse, span observability.Span) *Result {
	l.state = StateTerminated
	_, reason := manager.Terminated()
	if span != nil {
		span.SetAttributes(
			observability.String(observability.AttrAgentTermination, string(reason)),
			observability.Int(observability.AttrAgentIterations, manager.Metrics().Iterations),
		)
	}
	return &Result{
		Response: last,
		Messages: transcript,
		Reason:   reason,
		Metrics:  manager.Metrics(),
	}
}

// terminalReason maps a termination signal onto the loop-level reason for a
// response that ends the conversation without tool dispatch.
func terminalReason(signal ai.TerminationSignal) ai.TerminationReason {
	switch signal.Reason {
	case "", ai.TerminationUnknown:
		return ai.TerminationNaturalCompletion
	default:
		return signal.Reason
	}
}
