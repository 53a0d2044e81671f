package anthropic

import (
	"context"
	"encoding/json"
	"io"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
	"github.com/llmbridge/bridge/transport/sse"
)

// streamEvent is the payload shape shared by all Messages API SSE events.
type streamEvent struct {
	Type         string          `json:"type"`
	Index        int             `json:"index,omitempty"`
	Message      *createResponse `json:"message,omitempty"`
	ContentBlock *wireBlock      `json:"content_block,omitempty"`
	Delta        *eventDelta     `json:"delta,omitempty"`
	Usage        *usageDetails   `json:"usage,omitempty"`
	Error        *wireError      `json:"error,omitempty"`
}

// eventDelta carries the incremental payload of content_block_delta and the
// closing fields of message_delta.
type eventDelta struct {
	Type         string `json:"type,omitempty"` // text_delta, input_json_delta
	Text         string `json:"text,omitempty"`
	PartialJSON  string `json:"partial_json,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// blockBuilder accumulates one content block across its start/delta/stop
// events. Tool-use input arrives as partial JSON fragments.
type blockBuilder struct {
	kind     string
	toolID   string
	toolName string
	jsonBuf  []byte
}

type streamState struct {
	id           string
	inputTokens  int
	outputTokens int
	stopReason   string
	stopSequence string
	blocks       map[int]*blockBuilder
}

// ParseStream decodes the SSE response into a delta sequence. The Messages
// API closes streams with message_stop rather than a sentinel; that event
// produces the terminal delta with aggregated usage and the stop reason.
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
		state := &streamState{
			id:     ai.NewStreamID(),
			blocks: map[int]*blockBuilder{},
		}

		for {
			if ctx.Err() != nil {
				yield(ai.StreamDelta{}, ai.NormalizeHostError(PluginID, PluginVersion, ctx.Err()))
				return
			}

			event, err := scanner.Next()
			if err == io.EOF {
				yield(state.terminalDelta("message_stop"), nil)
				return
			}
			if err != nil {
				yield(ai.StreamDelta{}, errdefs.Wrap(errdefs.KindStreaming, "reading event stream", err).
					WithProvider(PluginID, PluginVersion))
				return
			}
			if event.Data == "" || event.Type == "ping" {
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

			delta, done, failure := state.apply(eventType, chunk)
			if failure != nil {
				yield(ai.StreamDelta{}, failure)
				return
			}
			if delta != nil && !yield(*delta, nil) {
				return
			}
			if done {
				return
			}
		}
	})
}

// apply folds one event into the stream state, returning the delta to emit
// (nil for state-only events), whether the stream is over, and a terminating
// error.
func (s *streamState) apply(eventType string, chunk streamEvent) (*ai.StreamDelta, bool, error) {
	switch eventType {
	case "message_start":
		if chunk.Message != nil {
			if chunk.Message.ID != "" {
				s.id = chunk.Message.ID
			}
			if chunk.Message.Usage != nil {
				s.inputTokens = chunk.Message.Usage.InputTokens
			}
		}
		return nil, false, nil

	case "content_block_start":
		if chunk.ContentBlock == nil {
			return nil, false, nil
		}
		builder := &blockBuilder{kind: chunk.ContentBlock.Type}
		if chunk.ContentBlock.Type == "tool_use" {
			builder.toolID = chunk.ContentBlock.ID
			builder.toolName = chunk.ContentBlock.Name
		}
		s.blocks[chunk.Index] = builder
		return nil, false, nil

	case "content_block_delta":
		if chunk.Delta == nil {
			return nil, false, nil
		}
		switch chunk.Delta.Type {
		case "text_delta":
			if chunk.Delta.Text == "" {
				return nil, false, nil
			}
			return &ai.StreamDelta{
				ID: s.id,
				Delta: ai.Message{
					Role:    ai.RoleAssistant,
					Content: []ai.ContentPart{ai.TextPart{Text: chunk.Delta.Text}},
				},
				Metadata: map[string]any{ai.MetaEventType: eventType},
			}, false, nil
		case "input_json_delta":
			if builder := s.blocks[chunk.Index]; builder != nil {
				builder.jsonBuf = append(builder.jsonBuf, chunk.Delta.PartialJSON...)
			}
			return nil, false, nil
		}
		return nil, false, nil

	case "content_block_stop":
		builder := s.blocks[chunk.Index]
		delete(s.blocks, chunk.Index)
		if builder == nil || builder.kind != "tool_use" {
			return nil, false, nil
		}
		input := map[string]any{}
		if len(builder.jsonBuf) > 0 {
			if err := json.Unmarshal(builder.jsonBuf, &input); err != nil {
				return nil, false, errdefs.Wrap(errdefs.KindValidation, "malformed tool input", err).
					WithProvider(PluginID, PluginVersion).
					WithContext("chunk", string(builder.jsonBuf))
			}
		}
		return &ai.StreamDelta{
			ID: s.id,
			Delta: ai.Message{
				Role: ai.RoleAssistant,
				Content: []ai.ContentPart{ai.ToolUsePart{
					ID:    builder.toolID,
					Name:  builder.toolName,
					Input: input,
				}},
			},
			Metadata: map[string]any{ai.MetaEventType: eventType},
		}, false, nil

	case "message_delta":
		if chunk.Delta != nil {
			s.stopReason = chunk.Delta.StopReason
			s.stopSequence = chunk.Delta.StopSequence
		}
		if chunk.Usage != nil {
			s.outputTokens = chunk.Usage.OutputTokens
		}
		return nil, false, nil

	case "message_stop":
		delta := s.terminalDelta(eventType)
		return &delta, true, nil

	case "error":
		resp := &transport.Response{Status: 500}
		var code, message string
		if chunk.Error != nil {
			code, message = chunk.Error.Type, chunk.Error.Message
		}
		return nil, false, ai.NormalizeHTTPError(PluginID, PluginVersion, resp, code, message)

	default:
		return nil, false, nil
	}
}

// terminalDelta builds the single finished=true delta.
func (s *streamState) terminalDelta(eventType string) ai.StreamDelta {
	if s.stopReason == "" {
		s.stopReason = "end_turn"
	}
	metadata := map[string]any{
		ai.MetaFinishReason: s.stopReason,
		ai.MetaEventType:    eventType,
	}
	if s.stopSequence != "" {
		metadata[ai.MetaStopSequence] = s.stopSequence
	}
	return ai.StreamDelta{
		ID:       s.id,
		Delta:    ai.Message{Role: ai.RoleAssistant},
		Finished: true,
		Usage: &ai.Usage{
			PromptTokens:     s.inputTokens,
			CompletionTokens: s.outputTokens,
			TotalTokens:      s.inputTokens + s.outputTokens,
		},
		Metadata: metadata,
	}
}
