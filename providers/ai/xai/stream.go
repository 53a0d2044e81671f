package xai

import (
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
	"github.com/llmbridge/bridge/transport/sse"
)

// streamChunk is one chat.completion.chunk payload.
type streamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *chatUsage    `json:"usage,omitempty"`
	Error   *wireError    `json:"error,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

type chunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []chunkToolCall `json:"tool_calls,omitempty"`
}

// chunkToolCall is the incremental tool-call fragment; id and name arrive on
// the first fragment of an index, arguments accumulate across fragments.
type chunkToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// callBuilder accumulates one streamed tool call across its fragments.
type callBuilder struct {
	id      string
	name    string
	jsonBuf []byte
}

type streamState struct {
	id           string
	usage        *ai.Usage
	finishReason string
	calls        map[int]*callBuilder
}

// ParseStream decodes the chunked SSE response. Tool calls are emitted once
// their fragments are complete, which is only knowable at stream end, so they
// surface just before the terminal delta.
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
			id:    ai.NewStreamID(),
			calls: map[int]*callBuilder{},
		}

		finish := func() {
			delta, err := state.flushCalls()
			if err != nil {
				yield(ai.StreamDelta{}, err)
				return
			}
			if delta != nil && !yield(*delta, nil) {
				return
			}
			yield(state.terminalDelta(), nil)
		}

		for {
			if ctx.Err() != nil {
				yield(ai.StreamDelta{}, ai.NormalizeHostError(PluginID, PluginVersion, ctx.Err()))
				return
			}

			event, err := scanner.Next()
			if err == io.EOF {
				finish()
				return
			}
			if err != nil {
				yield(ai.StreamDelta{}, errdefs.Wrap(errdefs.KindStreaming, "reading event stream", err).
					WithProvider(PluginID, PluginVersion))
				return
			}
			if event.Done() {
				finish()
				return
			}
			if event.Data == "" {
				continue
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
				yield(ai.StreamDelta{}, errdefs.Wrap(errdefs.KindStreaming, "malformed stream chunk", err).
					WithProvider(PluginID, PluginVersion).
					WithContext("chunk", event.Data))
				return
			}
			if chunk.Error != nil {
				yield(ai.StreamDelta{}, ai.NormalizeHTTPError(PluginID, PluginVersion,
					&transport.Response{Status: 500}, chunk.Error.Code, chunk.Error.Message))
				return
			}

			if chunk.ID != "" {
				state.id = chunk.ID
			}
			if chunk.Usage != nil {
				state.usage = &ai.Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				state.finishReason = choice.FinishReason
			}
			for _, fragment := range choice.Delta.ToolCalls {
				builder := state.calls[fragment.Index]
				if builder == nil {
					builder = &callBuilder{}
					state.calls[fragment.Index] = builder
				}
				if fragment.ID != "" {
					builder.id = fragment.ID
				}
				if fragment.Function.Name != "" {
					builder.name = fragment.Function.Name
				}
				builder.jsonBuf = append(builder.jsonBuf, fragment.Function.Arguments...)
			}

			if choice.Delta.Content == "" {
				continue
			}
			if !yield(ai.StreamDelta{
				ID: state.id,
				Delta: ai.Message{
					Role:    ai.RoleAssistant,
					Content: []ai.ContentPart{ai.TextPart{Text: choice.Delta.Content}},
				},
				Metadata: map[string]any{ai.MetaEventType: "chat.completion.chunk"},
			}, nil) {
				return
			}
		}
	})
}

// flushCalls converts accumulated tool-call fragments into a single delta,
// ordered by fragment index.
func (s *streamState) flushCalls() (*ai.StreamDelta, error) {
	if len(s.calls) == 0 {
		return nil, nil
	}

	indexes := make([]int, 0, len(s.calls))
	for i := range s.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var parts []ai.ContentPart
	for _, i := range indexes {
		builder := s.calls[i]
		input := map[string]any{}
		if len(builder.jsonBuf) > 0 {
			if err := json.Unmarshal(builder.jsonBuf, &input); err != nil {
				return nil, errdefs.Wrap(errdefs.KindValidation, "malformed tool call arguments", err).
					WithProvider(PluginID, PluginVersion).
					WithContext("chunk", string(builder.jsonBuf))
			}
		}
		parts = append(parts, ai.ToolUsePart{ID: builder.id, Name: builder.name, Input: input})
	}
	s.calls = map[int]*callBuilder{}

	return &ai.StreamDelta{
		ID:       s.id,
		Delta:    ai.Message{Role: ai.RoleAssistant, Content: parts},
		Metadata: map[string]any{ai.MetaEventType: "chat.completion.chunk"},
	}, nil
}

// terminalDelta builds the single finished=true delta.
func (s *streamState) terminalDelta() ai.StreamDelta {
	if s.finishReason == "" {
		s.finishReason = "stop"
	}
	return ai.StreamDelta{
		ID:       s.id,
		Delta:    ai.Message{Role: ai.RoleAssistant},
		Finished: true,
		Usage:    s.usage,
		Metadata: map[string]any{ai.MetaFinishReason: s.finishReason},
	}
}
