package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/llmbridge/bridge/core/errdefs"
)

func redactionPair(t *testing.T, cfg RedactionConfig) (RequestInterceptor, ResponseInterceptor) {
	t.Helper()
	req, resp, err := NewRedactionInterceptors(cfg)
	if err != nil {
		t.Fatalf("NewRedactionInterceptors: %v", err)
	}
	return req, resp
}

func TestRedaction_DisabledIsIdentity(t *testing.T) {
	reqI, respI := redactionPair(t, RedactionConfig{Enabled: false})

	ic := NewInterceptorContext(Request{
		Method: http.MethodPost,
		URL:    "https://api.example.com",
		Header: http.Header{"Authorization": {"Bearer sk-secret"}},
		Body:   []byte(`{"api_key":"sk-secret"}`),
	}, 0)

	out, err := reqI(context.Background(), ic)
	if err != nil {
		t.Fatalf("request interceptor: %v", err)
	}
	if out.Request.Header.Get("Authorization") != "Bearer sk-secret" {
		t.Error("disabled redaction must not touch headers")
	}
	if string(out.Request.Body) != `{"api_key":"sk-secret"}` {
		t.Error("disabled redaction must not touch the body")
	}

	resp := &Response{Status: 200, Header: http.Header{"Set-Cookie": {"s=1"}}}
	got, err := respI(context.Background(), ic, resp)
	if err != nil {
		t.Fatalf("response interceptor: %v", err)
	}
	if got != resp {
		t.Error("disabled response redaction must return the identical object")
	}
}

func TestRedaction_RequestHeaders(t *testing.T) {
	reqI, _ := redactionPair(t, RedactionConfig{Enabled: true})

	ic := NewInterceptorContext(Request{
		Method: http.MethodPost,
		URL:    "https://api.example.com",
		Header: http.Header{
			"Authorization": {"Bearer sk-secret"},
			"X-Api-Key":     {"AIzaSecret"},
			"Cookie":        {"session=abc"},
			"Content-Type":  {"application/json"},
		},
	}, 0)

	out, err := reqI(context.Background(), ic)
	if err != nil {
		t.Fatalf("request interceptor: %v", err)
	}
	for _, name := range []string{"Authorization", "X-Api-Key", "Cookie"} {
		if got := out.Request.Header.Get(name); got != "***" {
			t.Errorf("%s = %q, want masked", name, got)
		}
	}
	if got := out.Request.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want passthrough", got)
	}
}

func TestRedaction_JSONFieldsRecursive(t *testing.T) {
	reqI, _ := redactionPair(t, RedactionConfig{Enabled: true})

	body := map[string]any{
		"model":   "gpt-4o",
		"api_key": "sk-secret",
		"nested": map[string]any{
			"password": "hunter2",
			"keep":     "visible",
		},
		"list": []any{
			map[string]any{"token": "t0ken", "n": float64(1)},
		},
	}
	encoded, _ := json.Marshal(body)

	ic := NewInterceptorContext(Request{Method: http.MethodPost, URL: "https://x.example", Body: encoded}, 0)
	out, err := reqI(context.Background(), ic)
	if err != nil {
		t.Fatalf("request interceptor: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out.Request.Body, &decoded); err != nil {
		t.Fatalf("redacted body is not valid JSON: %v", err)
	}
	want := map[string]any{
		"model":   "gpt-4o",
		"api_key": "***",
		"nested": map[string]any{
			"password": "***",
			"keep":     "visible",
		},
		"list": []any{
			map[string]any{"token": "***", "n": float64(1)},
		},
	}
	if !reflect.DeepEqual(decoded, want) {
		t.Errorf("redacted = %#v\nwant %#v", decoded, want)
	}
}

func TestRedaction_TextBodyPatterns(t *testing.T) {
	reqI, _ := redactionPair(t, RedactionConfig{
		Enabled:      true,
		BodyPatterns: []string{`sk-[A-Za-z0-9]+`},
	})

	ic := NewInterceptorContext(Request{
		Method: http.MethodPost,
		URL:    "https://x.example",
		Body:   []byte("key=sk-abc123 other=fine"),
	}, 0)
	out, err := reqI(context.Background(), ic)
	if err != nil {
		t.Fatalf("request interceptor: %v", err)
	}
	if got := string(out.Request.Body); got != "key=*** other=fine" {
		t.Errorf("body = %q", got)
	}
}

func TestRedaction_BinaryBodyPassthrough(t *testing.T) {
	reqI, _ := redactionPair(t, RedactionConfig{Enabled: true, BodyPatterns: []string{"secret"}})

	binary := []byte{0xff, 0xfe, 0x00, 0x81, 's', 'e', 'c', 'r', 'e', 't'}
	ic := NewInterceptorContext(Request{Method: http.MethodPost, URL: "https://x.example", Body: binary}, 0)
	out, err := reqI(context.Background(), ic)
	if err != nil {
		t.Fatalf("request interceptor: %v", err)
	}
	if !bytes.Equal(out.Request.Body, binary) {
		t.Error("binary bodies must pass through untouched")
	}
}

func TestRedaction_ResponsePreservesStream(t *testing.T) {
	_, respI := redactionPair(t, RedactionConfig{Enabled: true})

	stream := io.NopCloser(strings.NewReader("data: x\n\n"))
	resp := &Response{
		Status: 200,
		Header: http.Header{"Set-Cookie": {"session=abc"}, "Content-Type": {"text/event-stream"}},
		Stream: stream,
	}

	out, err := respI(context.Background(), testContext(), resp)
	if err != nil {
		t.Fatalf("response interceptor: %v", err)
	}
	if out.Stream != stream {
		t.Error("stream reference must be preserved verbatim")
	}
	if got := out.Header.Get("Set-Cookie"); got != "***" {
		t.Errorf("Set-Cookie = %q, want masked", got)
	}
	// The original response headers are not mutated.
	if resp.Header.Get("Set-Cookie") != "session=abc" {
		t.Error("input response must not be mutated")
	}
}

func TestRedaction_Idempotent(t *testing.T) {
	reqI, _ := redactionPair(t, RedactionConfig{
		Enabled:      true,
		BodyPatterns: []string{`sk-[A-Za-z0-9]+`},
	})

	ic := NewInterceptorContext(Request{
		Method: http.MethodPost,
		URL:    "https://x.example",
		Header: http.Header{"Authorization": {"Bearer tok"}},
		Body:   []byte(`{"api_key":"sk-abc","text":"hello"}`),
	}, 0)

	once, err := reqI(context.Background(), ic)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := reqI(context.Background(), once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if !bytes.Equal(once.Request.Body, twice.Request.Body) {
		t.Errorf("redaction not idempotent: %s vs %s", once.Request.Body, twice.Request.Body)
	}
	if !reflect.DeepEqual(once.Request.Header, twice.Request.Header) {
		t.Errorf("header redaction not idempotent")
	}
}

func TestRedaction_InvalidPattern(t *testing.T) {
	_, _, err := NewRedactionInterceptors(RedactionConfig{Enabled: true, BodyPatterns: []string{"("}})
	if !errdefs.IsKind(err, errdefs.KindValidation) {
		t.Errorf("err = %v, want Validation", err)
	}
}
