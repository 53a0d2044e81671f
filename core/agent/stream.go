package agent

import (
	"context"

	"github.com/llmbridge/bridge/providers/ai"
)

// MetaToolResults is the metadata event type of a synthesized delta carrying
// tool outcomes.
const MetaToolResults = "toolResults"

// InterceptToolUse wraps a delta stream so that a response terminating in
// tool_use_required triggers tool execution before the terminal delta reaches
// the caller. The wrapper is a pure transform: deltas pass through unchanged
// and in order, tool-use parts are accumulated as they arrive, and when the
// terminal delta classifies as tool use the accumulated calls are executed and
// a synthesized delta with the results is emitted ahead of the terminal one.
// The underlying stream is never read past its terminal delta.
//
// executor may be nil; the stream then passes through untouched.
func InterceptToolUse(ctx context.Context, stream *ai.DeltaStream, detect DetectFunc, executor Executor) *ai.DeltaStream {
	if executor == nil {
		return stream
	}
	return ai.NewDeltaStream(func(yield func(ai.StreamDelta, error) bool) {
		var uses []ai.ToolUsePart
		var streamID string

		for delta, err := range stream.Iter() {
			if err != nil {
				yield(delta, err)
				return
			}
			if streamID == "" {
				streamID = delta.ID
			}
			uses = append(uses, delta.Delta.ToolUses()...)

			if !delta.Finished {
				if !yield(delta, nil) {
					return
				}
				continue
			}

			if len(uses) > 0 && isToolUseTerminal(detect, delta, uses) {
				results := executeUses(ctx, executor, uses)
				if !yield(ai.StreamDelta{
					ID:       streamID,
					Delta:    ai.Message{Role: ai.RoleTool, Content: results},
					Metadata: map[string]any{ai.MetaEventType: MetaToolResults},
				}, nil) {
					return
				}
			}
			yield(delta, nil)
			return
		}
	})
}

// isToolUseTerminal classifies the terminal delta. A stream that produced
// tool-use parts counts as tool use even when the vendor finish reason alone
// would not say so (Gemini reports STOP).
func isToolUseTerminal(detect DetectFunc, terminal ai.StreamDelta, uses []ai.ToolUsePart) bool {
	if detect == nil {
		return true
	}
	finishReason, _ := terminal.Metadata[ai.MetaFinishReason].(string)
	msg := ai.Message{Role: ai.RoleAssistant}
	for _, use := range uses {
		msg.Content = append(msg.Content, use)
	}
	signal := detect(finishReason, true, &msg)
	return signal.Reason == ai.TerminationToolUse
}

func executeUses(ctx context.Context, executor Executor, uses []ai.ToolUsePart) []ai.ContentPart {
	calls := make([]ai.ToolCall, len(uses))
	for i, use := range uses {
		calls[i] = ai.ToolCall{ID: use.ID, Name: use.Name, Parameters: use.Input}
	}
	outcomes := executor.ExecuteAll(ctx, calls)

	parts := make([]ai.ContentPart, 0, len(outcomes))
	for _, outcome := range outcomes {
		parts = append(parts, ai.ToolResultPart{
			CallID:  outcome.CallID,
			Success: outcome.Success,
			Output:  outcome.Output,
			Error:   outcome.Error,
		})
	}
	return parts
}
