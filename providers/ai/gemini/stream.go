package gemini

import (
	"context"
	"encoding/json"
	"io"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
	"github.com/llmbridge/bridge/transport/sse"
)

// ParseStream decodes the streamGenerateContent SSE response. Each chunk is a
// full generateResponse carrying a slice of the candidate content; the stream
// ends at EOF, after which the terminal delta reports the last seen finish
// reason and usage.
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
		id := ai.NewStreamID()
		var usage *ai.Usage
		var finishReason string

		for {
			if ctx.Err() != nil {
				yield(ai.StreamDelta{}, ai.NormalizeHostError(PluginID, PluginVersion, ctx.Err()))
				return
			}

			event, err := scanner.Next()
			if err == io.EOF {
				if finishReason == "" {
					finishReason = "STOP"
				}
				yield(ai.StreamDelta{
					ID:       id,
					Delta:    ai.Message{Role: ai.RoleAssistant},
					Finished: true,
					Usage:    usage,
					Metadata: map[string]any{ai.MetaFinishReason: finishReason},
				}, nil)
				return
			}
			if err != nil {
				yield(ai.StreamDelta{}, errdefs.Wrap(errdefs.KindStreaming, "reading event stream", err).
					WithProvider(PluginID, PluginVersion))
				return
			}
			if event.Data == "" {
				continue
			}

			var chunk generateResponse
			if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
				yield(ai.StreamDelta{}, errdefs.Wrap(errdefs.KindStreaming, "malformed stream chunk", err).
					WithProvider(PluginID, PluginVersion).
					WithContext("chunk", event.Data))
				return
			}
			if chunk.Error != nil {
				yield(ai.StreamDelta{}, p.NormalizeError(&transport.Response{
					Status: chunk.Error.Code, Body: []byte(event.Data),
				}, nil))
				return
			}
			if len(chunk.Candidates) == 0 {
				continue
			}

			first := chunk.Candidates[0]
			if first.FinishReason != "" {
				finishReason = first.FinishReason
			}
			if chunk.UsageMetadata != nil {
				usage = &ai.Usage{
					PromptTokens:     chunk.UsageMetadata.PromptTokenCount,
					CompletionTokens: chunk.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      chunk.UsageMetadata.TotalTokenCount,
				}
			}
			if first.Content == nil || len(first.Content.Parts) == 0 {
				continue
			}

			delta := ai.Message{Role: ai.RoleAssistant}
			for _, part := range first.Content.Parts {
				appendGenericPart(&delta, part)
			}
			if len(delta.Content) == 0 {
				continue
			}
			if !yield(ai.StreamDelta{
				ID:       id,
				Delta:    delta,
				Metadata: map[string]any{ai.MetaEventType: "generateContentChunk"},
			}, nil) {
				return
			}
		}
	})
}
