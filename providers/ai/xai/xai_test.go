package xai

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/internal/utils"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
)

func initializedPlugin(t *testing.T) *Plugin {
	t.Helper()
	p := New()
	if err := p.Initialize(ai.ProviderConfig{APIKey: "xai-test"}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return p
}

func TestSupportsModel(t *testing.T) {
	p := New()
	tests := []struct {
		model string
		want  bool
	}{
		{"xai:grok-3", true},
		{"grok-3-mini", true},
		{"openai:gpt-4o", false},
		{"gemini-2.0-flash", false},
	}
	for _, tt := range tests {
		if got := p.SupportsModel(tt.model); got != tt.want {
			t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestTranslateRequest(t *testing.T) {
	p := initializedPlugin(t)
	req := ai.ChatRequest{
		Model: "xai:grok-3",
		Messages: []ai.Message{
			ai.NewTextMessage(ai.RoleSystem, "Be helpful."),
			ai.NewTextMessage(ai.RoleUser, "hello"),
		},
		Temperature:      utils.Ptr(0.9),
		FrequencyPenalty: utils.Ptr(0.5),
		Tools: []ai.ToolDefinition{{
			Name:        "get_weather",
			InputSchema: map[string]any{"type": "object"},
		}},
	}

	hreq, err := p.TranslateRequest(req, &ai.Capabilities{Temperature: true, Streaming: true, Tools: true})
	if err != nil {
		t.Fatalf("TranslateRequest() error = %v", err)
	}
	if want := "https://api.x.ai/v1/chat/completions"; hreq.URL != want {
		t.Errorf("url = %q, want %q", hreq.URL, want)
	}
	if got := hreq.Header.Get("Authorization"); got != "Bearer xai-test" {
		t.Errorf("authorization = %q", got)
	}

	var body chatRequest
	if err := json.Unmarshal(hreq.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Model != "grok-3" {
		t.Errorf("model = %q, want bare name", body.Model)
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", body.Messages)
	}
	if body.FrequencyPenalty == nil || *body.FrequencyPenalty != 0.5 {
		t.Errorf("frequency_penalty = %v, want 0.5", body.FrequencyPenalty)
	}
	if len(body.Tools) != 1 || body.Tools[0].Function.Name != "get_weather" {
		t.Errorf("tools = %+v", body.Tools)
	}
}

func TestTranslateToolHistory(t *testing.T) {
	p := initializedPlugin(t)
	req := ai.ChatRequest{
		Model: "xai:grok-3",
		Messages: []ai.Message{
			ai.NewTextMessage(ai.RoleUser, "weather?"),
			{Role: ai.RoleAssistant, Content: []ai.ContentPart{
				ai.ToolUsePart{ID: "call_1", Name: "get_weather", Input: map[string]any{"location": "Paris"}},
			}},
			{Role: ai.RoleTool, Content: []ai.ContentPart{
				ai.ToolResultPart{CallID: "call_1", Success: true, Output: "18C"},
			}},
		},
	}
	hreq, err := p.TranslateRequest(req, nil)
	if err != nil {
		t.Fatalf("TranslateRequest() error = %v", err)
	}
	var body chatRequest
	if err := json.Unmarshal(hreq.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(body.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(body.Messages))
	}
	assistant := body.Messages[1]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant tool calls = %+v", assistant.ToolCalls)
	}
	tool := body.Messages[2]
	if tool.Role != "tool" || tool.ToolCallID != "call_1" || tool.Content != "18C" {
		t.Errorf("tool message = %+v", tool)
	}
}

func TestParseResponseText(t *testing.T) {
	p := initializedPlugin(t)
	body := `{
	  "id": "cmpl-1",
	  "object": "chat.completion",
	  "model": "grok-3",
	  "choices": [
	    {"index": 0, "message": {"role": "assistant", "content": "Hello there."}, "finish_reason": "stop"}
	  ],
	  "usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
	}`
	resp, err := p.ParseResponse(&transport.Response{Status: 200, Body: []byte(body)})
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if resp.Message.Text() != "Hello there." {
		t.Errorf("text = %q", resp.Message.Text())
	}
	if resp.FinishReason != "stop" {
		t.Errorf("finishReason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 8 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestParseResponseToolCalls(t *testing.T) {
	p := initializedPlugin(t)
	body := `{
	  "id": "cmpl-2",
	  "model": "grok-3",
	  "choices": [
	    {"index": 0,
	     "message": {"role": "assistant", "tool_calls": [
	       {"id": "call_1", "type": "function",
	        "function": {"name": "get_weather", "arguments": "{\"location\": \"Paris\"}"}},
	       {"id": "call_2", "type": "function",
	        "function": {"name": "get_weather", "arguments": "{\"location\": \"Berlin\""}}
	     ]},
	     "finish_reason": "tool_calls"}
	  ]
	}`
	resp, err := p.ParseResponse(&transport.Response{Status: 200, Body: []byte(body)})
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	uses := resp.Message.ToolUses()
	if len(uses) != 1 || uses[0].ID != "call_1" {
		t.Fatalf("tool uses = %+v, want only the well-formed call", uses)
	}
	raw, ok := resp.Message.Metadata[ai.MetaToolCalls].([]any)
	if !ok || len(raw) != 1 {
		t.Errorf("metadata[%s] = %+v, want the malformed call preserved raw", ai.MetaToolCalls, resp.Message.Metadata[ai.MetaToolCalls])
	}
}

func TestNormalizeError(t *testing.T) {
	p := initializedPlugin(t)
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind errdefs.Kind
	}{
		{
			name:     "unauthorized",
			status:   401,
			body:     `{"error": {"message": "Invalid API key", "type": "authentication_error"}}`,
			wantKind: errdefs.KindAuth,
		},
		{
			name:     "rate limited",
			status:   429,
			body:     `{"error": {"message": "Too many requests"}}`,
			wantKind: errdefs.KindRateLimit,
		},
		{
			name:     "flat envelope",
			status:   400,
			body:     `{"code": "invalid_request", "error_message": "bad request"}`,
			wantKind: errdefs.KindProvider,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.NormalizeError(&transport.Response{Status: tt.status, Header: http.Header{}, Body: []byte(tt.body)}, nil)
			if !errdefs.IsKind(err, tt.wantKind) {
				t.Fatalf("kind of %v, want %v", err, tt.wantKind)
			}
		})
	}
}

func TestDetectTermination(t *testing.T) {
	p := New()
	tests := []struct {
		finishReason string
		wantReason   ai.TerminationReason
	}{
		{"stop", ai.TerminationNaturalCompletion},
		{"length", ai.TerminationTokenLimit},
		{"tool_calls", ai.TerminationToolUse},
		{"content_filter", ai.TerminationContentFiltered},
	}
	for _, tt := range tests {
		signal := p.DetectTermination(tt.finishReason, true, nil)
		if signal.Reason != tt.wantReason {
			t.Errorf("DetectTermination(%q) = %s, want %s", tt.finishReason, signal.Reason, tt.wantReason)
		}
	}
}
