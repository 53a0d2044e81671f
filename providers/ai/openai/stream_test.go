package openai

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
)

func sseResponse(events ...string) *transport.Response {
	return &transport.Response{
		Status: 200,
		Stream: io.NopCloser(strings.NewReader(strings.Join(events, ""))),
	}
}

func event(data string) string {
	return "data: " + data + "\n\n"
}

func TestParseStreamText(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event(`{"type": "response.created", "response": {"id": "resp_s1"}}`),
		event(`{"type": "response.output_text.delta", "delta": "Hello! I'm Claude, "}`),
		event(`{"type": "response.output_text.delta", "delta": "an AI assistant. "}`),
		event(`{"type": "response.output_text.delta", "delta": "How can I help you today?"}`),
		event(`{"type": "response.completed", "response": {"id": "resp_s1", "status": "completed", "usage": {"input_tokens": 12, "output_tokens": 17, "total_tokens": 29}}}`),
		event(`[DONE]`),
	)

	var deltas []ai.StreamDelta
	for delta, err := range p.ParseStream(context.Background(), resp).Iter() {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		deltas = append(deltas, delta)
	}

	if len(deltas) != 4 {
		t.Fatalf("deltas = %d, want 3 text + 1 terminal", len(deltas))
	}
	for _, d := range deltas {
		if d.ID != "resp_s1" {
			t.Errorf("delta id = %q, want resp_s1", d.ID)
		}
	}
	last := deltas[len(deltas)-1]
	if !last.Finished {
		t.Error("last delta not finished")
	}
	if last.Usage == nil || last.Usage.TotalTokens != 29 {
		t.Errorf("terminal usage = %+v", last.Usage)
	}
	if reason := last.Metadata[ai.MetaFinishReason]; reason != "stop" {
		t.Errorf("finishReason = %v, want stop", reason)
	}
	for _, d := range deltas[:len(deltas)-1] {
		if d.Finished {
			t.Error("non-terminal delta marked finished")
		}
	}
}

func TestParseStreamCollect(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event(`{"type": "response.created", "response": {"id": "resp_s1"}}`),
		event(`{"type": "response.output_text.delta", "delta": "Hello! I'm Claude, an AI assistant. "}`),
		event(`{"type": "response.output_text.delta", "delta": "How can I help you today?"}`),
		event(`{"type": "response.completed", "response": {"status": "completed"}}`),
		event(`[DONE]`),
	)

	collected, err := p.ParseStream(context.Background(), resp).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	want := "Hello! I'm Claude, an AI assistant. How can I help you today?"
	if got := collected.Message.Text(); got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
	if collected.FinishReason != "stop" {
		t.Errorf("finishReason = %q, want stop", collected.FinishReason)
	}
}

func TestParseStreamToolCall(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event(`{"type": "response.created", "response": {"id": "resp_t1"}}`),
		event(`{"type": "response.output_item.added", "item": {"id": "fc_1", "type": "function_call", "call_id": "call_7", "name": "get_weather", "arguments": ""}}`),
		event(`{"type": "response.function_call_arguments.delta", "item_id": "fc_1", "delta": "{\"location\""}`),
		event(`{"type": "response.function_call_arguments.delta", "item_id": "fc_1", "delta": ": \"Paris\"}"}`),
		event(`{"type": "response.output_item.done", "item": {"id": "fc_1", "type": "function_call", "call_id": "call_7", "name": "get_weather", "arguments": "{\"location\": \"Paris\"}"}}`),
		event(`{"type": "response.completed", "response": {"status": "completed"}}`),
		event(`[DONE]`),
	)

	collected, err := p.ParseStream(context.Background(), resp).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	uses := collected.Message.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("tool uses = %d, want 1", len(uses))
	}
	if uses[0].ID != "call_7" || uses[0].Name != "get_weather" || uses[0].Input["location"] != "Paris" {
		t.Errorf("tool use = %+v", uses[0])
	}
	if collected.FinishReason != "tool_calls" {
		t.Errorf("finishReason = %q, want tool_calls", collected.FinishReason)
	}
}

func TestParseStreamTruncatedWithoutSentinel(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event(`{"type": "response.created", "response": {"id": "resp_s1"}}`),
		event(`{"type": "response.output_text.delta", "delta": "partial"}`),
	)

	collected, err := p.ParseStream(context.Background(), resp).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	// The stream closed cleanly without [DONE]; a terminal delta is still
	// synthesized so consumers always observe completion.
	if collected.Message.Text() != "partial" {
		t.Errorf("text = %q", collected.Message.Text())
	}
	if collected.FinishReason != "stop" {
		t.Errorf("finishReason = %q, want stop", collected.FinishReason)
	}
}

func TestParseStreamMalformedChunk(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event(`{"type": "response.output_text.delta", "delta": "ok"}`),
		event(`{not json`),
	)

	collected, err := p.ParseStream(context.Background(), resp).Collect()
	if err == nil {
		t.Fatal("expected a streaming error for a malformed chunk")
	}
	if !errdefs.IsKind(err, errdefs.KindStreaming) {
		t.Errorf("kind = %v, want streaming", err)
	}
	if collected.Message.Text() != "ok" {
		t.Errorf("partial accumulation = %q, want content before the failure", collected.Message.Text())
	}
}

func TestParseStreamErrorEvent(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event(`{"type": "error", "error": {"message": "The server is overloaded", "code": "server_error"}}`),
	)

	_, err := p.ParseStream(context.Background(), resp).Collect()
	if err == nil {
		t.Fatal("expected an error from the error event")
	}
	if !errdefs.IsKind(err, errdefs.KindProvider) {
		t.Errorf("kind = %v, want provider", err)
	}
}

func TestParseStreamNonOKStatus(t *testing.T) {
	p := initializedPlugin(t)
	resp := &transport.Response{
		Status: 429,
		Stream: io.NopCloser(strings.NewReader(`{"error": {"message": "Rate limit reached"}}`)),
	}

	_, err := p.ParseStream(context.Background(), resp).Collect()
	if err == nil {
		t.Fatal("expected an error for a non-2xx streaming response")
	}
	if !errdefs.IsKind(err, errdefs.KindRateLimit) {
		t.Errorf("kind = %v, want rate_limit", err)
	}
}

func TestParseStreamCancelledContext(t *testing.T) {
	p := initializedPlugin(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := sseResponse(event(`{"type": "response.output_text.delta", "delta": "never"}`))
	_, err := p.ParseStream(ctx, resp).Collect()
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errdefs.IsKind(err, errdefs.KindCancelled) {
		t.Errorf("kind = %v, want cancelled", err)
	}
}
