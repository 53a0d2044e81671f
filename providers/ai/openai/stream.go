package openai

import (
	"context"
	"encoding/json"
	"io"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
	"github.com/llmbridge/bridge/transport/sse"
)

// streamEvent is the payload shape shared by all Responses API SSE events.
type streamEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	Item     *outputItem     `json:"item,omitempty"`
	Response *createResponse `json:"response,omitempty"`
	Error    *wireError      `json:"error,omitempty"`
}

// streamState is the per-stream mutable state: the stable response id, the
// last usage snapshot, and the finish reason pending for the terminal delta.
type streamState struct {
	id           string
	usage        *ai.Usage
	finishReason string
	sawToolCall  bool
}

// ParseStream decodes the SSE response into a delta sequence. Each
// non-terminal delta carries only its chunk's content; the [DONE] sentinel
// (or stream end after response.completed) produces the single terminal
// delta with finished=true, aggregated usage, and the finish reason.
func (p *Plugin) ParseStream(ctx context.Context, resp *transport.Response) *ai.DeltaStream {
	if resp.Status < 200 || resp.Status >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Stream, 64*1024))
		_ = resp.Stream.Close()
		return ai.NewErrorStream(p.NormalizeError(&transport.Response{
			Status: resp.Status, StatusText: resp.StatusText, Header: resp.Header, Body: body,
		}, nil))
	}

	return ai.NewDeltaStream(func(yield func(ai.StreamDelta, error) bool) {
		defer resp.Stream.Close()

		scanner := sse.NewScanner(resp.Stream)
		state := &streamState{id: ai.NewStreamID()}

		for {
			if ctx.Err() != nil {
				yield(ai.StreamDelta{}, ai.NormalizeHostError(PluginID, PluginVersion, ctx.Err()))
				return
			}

			event, err := scanner.Next()
			if err == io.EOF {
				yield(state.terminalDelta(""), nil)
				return
			}
			if err != nil {
				yield(ai.StreamDelta{}, errdefs.Wrap(errdefs.KindStreaming, "reading event stream", err).
					WithProvider(PluginID, PluginVersion))
				return
			}
			if event.Done() {
				yield(state.terminalDelta("[DONE]"), nil)
				return
			}
			if event.Data == "" {
				// Keep-alive.
				continue
			}

			var chunk streamEvent
			if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
				yield(ai.StreamDelta{}, errdefs.Wrap(errdefs.KindStreaming, "malformed stream chunk", err).
					WithProvider(PluginID, PluginVersion).
					WithContext("chunk", event.Data))
				return
			}
			eventType := chunk.Type
			if eventType == "" {
				eventType = event.Type
			}

			delta, failure := state.apply(p, eventType, chunk)
			if failure != nil {
				yield(ai.StreamDelta{}, failure)
				return
			}
			if delta != nil && !yield(*delta, nil) {
				return
			}
		}
	})
}

// apply folds one event into the stream state, returning the delta to emit
// (nil for state-only events) or a terminating error.
func (s *streamState) apply(p *Plugin, eventType string, chunk streamEvent) (*ai.StreamDelta, error) {
	switch eventType {
	case "response.created":
		if chunk.Response != nil && chunk.Response.ID != "" {
			s.id = chunk.Response.ID
		}
		return nil, nil

	case "response.output_text.delta":
		if chunk.Delta == "" {
			return nil, nil
		}
		return &ai.StreamDelta{
			ID: s.id,
			Delta: ai.Message{
				Role:    ai.RoleAssistant,
				Content: []ai.ContentPart{ai.TextPart{Text: chunk.Delta}},
			},
			Metadata: map[string]any{ai.MetaEventType: eventType},
		}, nil

	case "response.output_item.done":
		if chunk.Item == nil || chunk.Item.Type != "function_call" {
			return nil, nil
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(chunk.Item.Arguments), &input); err != nil {
			return nil, errdefs.Wrap(errdefs.KindValidation, "malformed function call arguments", err).
				WithProvider(PluginID, PluginVersion).
				WithContext("chunk", chunk.Item.Arguments)
		}
		s.sawToolCall = true
		return &ai.StreamDelta{
			ID: s.id,
			Delta: ai.Message{
				Role: ai.RoleAssistant,
				Content: []ai.ContentPart{ai.ToolUsePart{
					ID:    chunk.Item.CallID,
					Name:  chunk.Item.Name,
					Input: input,
				}},
			},
			Metadata: map[string]any{ai.MetaEventType: eventType},
		}, nil

	case "response.completed":
		if chunk.Response != nil {
			if chunk.Response.Usage != nil {
				s.usage = &ai.Usage{
					PromptTokens:     chunk.Response.Usage.InputTokens,
					CompletionTokens: chunk.Response.Usage.OutputTokens,
					TotalTokens:      chunk.Response.Usage.TotalTokens,
				}
			}
			s.finishReason = finishReasonFor(*chunk.Response, s.sawToolCall)
		}
		return nil, nil

	case "error":
		resp := &transport.Response{Status: 500}
		var code, message string
		if chunk.Error != nil {
			code, message = chunk.Error.Code, chunk.Error.Message
		}
		return nil, ai.NormalizeHTTPError(PluginID, PluginVersion, resp, code, message)

	default:
		// response.in_progress, deltas for argument fragments, and other
		// housekeeping events carry nothing the unified stream needs.
		return nil, nil
	}
}

// terminalDelta builds the single finished=true delta.
func (s *streamState) terminalDelta(eventType string) ai.StreamDelta {
	if s.finishReason == "" {
		if s.sawToolCall {
			s.finishReason = "tool_calls"
		} else {
			s.finishReason = "stop"
		}
	}
	metadata := map[string]any{ai.MetaFinishReason: s.finishReason}
	if eventType != "" {
		metadata[ai.MetaEventType] = eventType
	}
	return ai.StreamDelta{
		ID:       s.id,
		Delta:    ai.Message{Role: ai.RoleAssistant},
		Finished: true,
		Usage:    s.usage,
		Metadata: metadata,
	}
}
