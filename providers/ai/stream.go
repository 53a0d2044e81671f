package ai

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StreamDelta is one increment of a streamed response. Non-terminal deltas
// carry only the content produced by their chunk; the terminal delta has
// empty content, Finished=true, the aggregated usage, and the normalized
// finish reason under [MetaFinishReason].
type StreamDelta struct {
	// ID is the stable response id, identical across every delta of one
	// response. Vendor-provided when available, otherwise synthesized via
	// [NewStreamID].
	ID string `json:"id"`
	// Delta is the partial assistant message for this chunk.
	Delta Message `json:"delta"`
	// Finished marks the terminal delta. Exactly one delta per stream has
	// Finished=true and it is the last.
	Finished bool   `json:"finished"`
	Usage    *Usage `json:"usage,omitempty"`
	// Metadata carries finishReason, eventType, and provider-raw
	// termination detail.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewStreamID synthesizes a response id for vendors that do not provide one.
func NewStreamID() string {
	return fmt.Sprintf("stream-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// DeltaStream wraps a lazy delta sequence. It is single-use and not
// rewindable: callers must consume it, either by ranging over [DeltaStream.Iter]
// (breaking out early is fine) or via [DeltaStream.Collect]. Abandoning a
// stream without iterating leaks the underlying response body.
type DeltaStream struct {
	seq iter.Seq2[StreamDelta, error]
}

// NewDeltaStream creates a DeltaStream from a raw iterator. The iterator
// yields deltas with a nil error, or a single non-nil error that terminates
// iteration.
func NewDeltaStream(seq iter.Seq2[StreamDelta, error]) *DeltaStream {
	return &DeltaStream{seq: seq}
}

// NewErrorStream wraps a pre-stream failure as a stream whose first and only
// item is the error. Used when a failure must be observable through the same
// channel that yields deltas.
func NewErrorStream(err error) *DeltaStream {
	return NewDeltaStream(func(yield func(StreamDelta, error) bool) {
		yield(StreamDelta{}, err)
	})
}

// Iter returns the underlying iterator for use with range-over-func loops.
//
//	for delta, err := range stream.Iter() {
//	    if err != nil { ... }
//	}
func (s *DeltaStream) Iter() iter.Seq2[StreamDelta, error] {
	return s.seq
}

// Collect drains the stream and accumulates it into the final ChatResponse:
// text parts are concatenated into a single text part, tool-use parts are
// kept in arrival order, and the terminal delta contributes usage and finish
// reason. A mid-stream error returns the partial accumulation with the error.
func (s *DeltaStream) Collect() (*ChatResponse, error) {
	resp := &ChatResponse{Message: Message{Role: RoleAssistant}}
	var text strings.Builder
	var toolUses []ContentPart

	for delta, err := range s.seq {
		if err != nil {
			flushCollected(resp, text.String(), toolUses)
			return resp, err
		}
		if resp.ID == "" {
			resp.ID = delta.ID
		}
		for _, part := range delta.Delta.Content {
			switch p := part.(type) {
			case TextPart:
				text.WriteString(p.Text)
			case CodePart:
				text.WriteString(p.Text)
			case ToolUsePart:
				toolUses = append(toolUses, p)
			}
		}
		if delta.Usage != nil {
			resp.Usage = delta.Usage
		}
		if delta.Finished {
			if reason, ok := delta.Metadata[MetaFinishReason].(string); ok {
				resp.FinishReason = reason
			}
			if resp.Metadata == nil && delta.Metadata != nil {
				resp.Metadata = delta.Metadata
			}
		}
	}

	flushCollected(resp, text.String(), toolUses)
	return resp, nil
}

func flushCollected(resp *ChatResponse, text string, toolUses []ContentPart) {
	if text != "" {
		resp.Message.Content = append(resp.Message.Content, TextPart{Text: text})
	}
	resp.Message.Content = append(resp.Message.Content, toolUses...)
}
