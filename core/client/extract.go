package client

import (
	"context"

	"github.com/llmbridge/bridge/core/parse"
	"github.com/llmbridge/bridge/internal/utils"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/providers/observability"
)

// recoverToolCalls inspects the raw tool_calls a plugin parked in the message
// metadata because their arguments were not valid JSON, attempts lenient
// recovery, and appends every recovered call as a ToolUse part. Calls that
// stay malformed after repair are logged and skipped; they never abort the
// response.
func (c *Client) recoverToolCalls(ctx context.Context, msg *ai.Message) {
	raw, ok := msg.Metadata[ai.MetaToolCalls].([]any)
	if !ok || len(raw) == 0 {
		return
	}

	observer := observability.ObserverFromContext(ctx)
	var unrecovered []any
	for _, entry := range raw {
		use, reason := recoverToolCall(entry)
		if reason != "" {
			if observer != nil {
				observer.Warn(ctx, "skipping malformed tool call",
					observability.String("reason", reason),
					observability.String("call", utils.TruncateString(utils.ToString(entry), 200)),
				)
			}
			unrecovered = append(unrecovered, entry)
			continue
		}
		msg.Content = append(msg.Content, use)
	}

	if len(unrecovered) == 0 {
		delete(msg.Metadata, ai.MetaToolCalls)
		if len(msg.Metadata) == 0 {
			msg.Metadata = nil
		}
		return
	}
	msg.Metadata[ai.MetaToolCalls] = unrecovered
}

// recoverToolCall decodes one raw OpenAI-style tool call entry. It returns a
// non-empty reason when the entry cannot be recovered.
func recoverToolCall(entry any) (ai.ToolUsePart, string) {
	call, ok := entry.(map[string]any)
	if !ok {
		return ai.ToolUsePart{}, "tool call entry is not an object"
	}
	id, _ := call["id"].(string)
	if id == "" {
		return ai.ToolUsePart{}, "tool call has no id"
	}

	function, _ := call["function"].(map[string]any)
	if function == nil {
		return ai.ToolUsePart{}, "tool call has no function object"
	}
	name, _ := function["name"].(string)
	if name == "" {
		return ai.ToolUsePart{}, "tool call has no function name"
	}

	var input map[string]any
	switch args := function["arguments"].(type) {
	case nil:
	case string:
		repaired, err := parse.Object(args)
		if err != nil {
			return ai.ToolUsePart{}, "arguments are not recoverable JSON"
		}
		input = repaired
	case map[string]any:
		input = args
	default:
		return ai.ToolUsePart{}, "arguments have an unsupported type"
	}

	return ai.ToolUsePart{ID: id, Name: name, Input: input}, ""
}
