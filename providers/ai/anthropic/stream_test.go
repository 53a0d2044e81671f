package anthropic

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

func event(name, data string) string {
	return "event: " + name + "\ndata: " + data + "\n\n"
}

func TestParseStreamText(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event("message_start", `{"type": "message_start", "message": {"id": "msg_s1", "usage": {"input_tokens": 10}}}`),
		event("content_block_start", `{"type": "content_block_start", "index": 0, "content_block": {"type": "text", "text": ""}}`),
		event("content_block_delta", `{"type": "content_block_delta", "index": 0, "delta": {"type": "text_delta", "text": "Paris "}}`),
		event("content_block_delta", `{"type": "content_block_delta", "index": 0, "delta": {"type": "text_delta", "text": "is the capital."}}`),
		event("content_block_stop", `{"type": "content_block_stop", "index": 0}`),
		event("message_delta", `{"type": "message_delta", "delta": {"stop_reason": "end_turn"}, "usage": {"output_tokens": 6}}`),
		event("message_stop", `{"type": "message_stop"}`),
	)

	collected, err := p.ParseStream(context.Background(), resp).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if collected.ID != "msg_s1" {
		t.Errorf("id = %q, want msg_s1", collected.ID)
	}
	if got := collected.Message.Text(); got != "Paris is the capital." {
		t.Errorf("text = %q", got)
	}
	if collected.FinishReason != "end_turn" {
		t.Errorf("finishReason = %q, want end_turn", collected.FinishReason)
	}
	if collected.Usage == nil || collected.Usage.TotalTokens != 16 {
		t.Errorf("usage = %+v, want total 16", collected.Usage)
	}
}

func TestParseStreamTokenLimit(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event("message_start", `{"type": "message_start", "message": {"id": "msg_s2", "usage": {"input_tokens": 50}}}`),
		event("content_block_start", `{"type": "content_block_start", "index": 0, "content_block": {"type": "text"}}`),
		event("content_block_delta", `{"type": "content_block_delta", "index": 0, "delta": {"type": "text_delta", "text": "A very long answer that was cut"}}`),
		event("content_block_stop", `{"type": "content_block_stop", "index": 0}`),
		event("message_delta", `{"type": "message_delta", "delta": {"stop_reason": "max_tokens"}, "usage": {"output_tokens": 4096}}`),
		event("message_stop", `{"type": "message_stop"}`),
	)

	collected, err := p.ParseStream(context.Background(), resp).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if collected.FinishReason != "max_tokens" {
		t.Errorf("finishReason = %q, want max_tokens", collected.FinishReason)
	}
	if collected.Usage == nil || collected.Usage.CompletionTokens != 4096 {
		t.Errorf("usage = %+v, want completion tokens 4096", collected.Usage)
	}

	signal := p.DetectTermination(collected.FinishReason, true, &collected.Message)
	if signal.Reason != ai.TerminationTokenLimit || signal.Confidence != ai.ConfidenceHigh {
		t.Errorf("termination = %+v, want token limit / high", signal)
	}
}

func TestParseStreamToolUse(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event("message_start", `{"type": "message_start", "message": {"id": "msg_s3", "usage": {"input_tokens": 40}}}`),
		event("content_block_start", `{"type": "content_block_start", "index": 0, "content_block": {"type": "tool_use", "id": "toolu_1", "name": "get_weather"}}`),
		event("content_block_delta", `{"type": "content_block_delta", "index": 0, "delta": {"type": "input_json_delta", "partial_json": "{\"location\": \"San Fra"}}`),
		event("content_block_delta", `{"type": "content_block_delta", "index": 0, "delta": {"type": "input_json_delta", "partial_json": "ncisco, CA\"}"}}`),
		event("content_block_stop", `{"type": "content_block_stop", "index": 0}`),
		event("message_delta", `{"type": "message_delta", "delta": {"stop_reason": "tool_use"}, "usage": {"output_tokens": 15}}`),
		event("message_stop", `{"type": "message_stop"}`),
	)

	collected, err := p.ParseStream(context.Background(), resp).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	uses := collected.Message.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("tool uses = %d, want 1", len(uses))
	}
	if uses[0].ID != "toolu_1" || uses[0].Name != "get_weather" {
		t.Errorf("tool use = %+v", uses[0])
	}
	if uses[0].Input["location"] != "San Francisco, CA" {
		t.Errorf("input = %+v, want joined partial_json fragments", uses[0].Input)
	}
	if collected.FinishReason != "tool_use" {
		t.Errorf("finishReason = %q, want tool_use", collected.FinishReason)
	}
}

func TestParseStreamMalformedToolInput(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event("message_start", `{"type": "message_start", "message": {"id": "msg_bad"}}`),
		event("content_block_start", `{"type": "content_block_start", "index": 0, "content_block": {"type": "tool_use", "id": "toolu_1", "name": "get_weather"}}`),
		event("content_block_delta", `{"type": "content_block_delta", "index": 0, "delta": {"type": "input_json_delta", "partial_json": "{\"location\": "}}`),
		event("content_block_stop", `{"type": "content_block_stop", "index": 0}`),
	)

	_, err := p.ParseStream(context.Background(), resp).Collect()
	if err == nil {
		t.Fatal("expected error for truncated tool input")
	}
	if !errdefs.IsKind(err, errdefs.KindValidation) {
		t.Errorf("kind = %v, want validation", err)
	}
}

func TestParseStreamErrorEvent(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event("error", `{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`),
	)

	_, err := p.ParseStream(context.Background(), resp).Collect()
	if err == nil {
		t.Fatal("expected error from the error event")
	}
	if !errdefs.IsKind(err, errdefs.KindProvider) {
		t.Errorf("kind = %v, want provider", err)
	}
}

func TestParseStreamIgnoresPing(t *testing.T) {
	p := initializedPlugin(t)
	resp := sseResponse(
		event("message_start", `{"type": "message_start", "message": {"id": "msg_p"}}`),
		event("ping", `{"type": "ping"}`),
		event("content_block_delta", `{"type": "content_block_delta", "index": 0, "delta": {"type": "text_delta", "text": "hello"}}`),
		event("message_stop", `{"type": "message_stop"}`),
	)

	collected, err := p.ParseStream(context.Background(), resp).Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if collected.Message.Text() != "hello" {
		t.Errorf("text = %q", collected.Message.Text())
	}
}

func TestParseStreamNonOKStatus(t *testing.T) {
	p := initializedPlugin(t)
	resp := &transport.Response{
		Status: 401,
		Stream: io.NopCloser(strings.NewReader(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`)),
	}

	_, err := p.ParseStream(context.Background(), resp).Collect()
	if err == nil {
		t.Fatal("expected error for non-2xx streaming response")
	}
	if !errdefs.IsKind(err, errdefs.KindAuth) {
		t.Errorf("kind = %v, want auth", err)
	}
}
