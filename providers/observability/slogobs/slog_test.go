package slogobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/llmbridge/bridge/providers/observability"
)

func newCaptured(t *testing.T, opts ...Option) (*Observer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("BRIDGE_LOG_FORMAT", "")
	var buf bytes.Buffer
	return New(append([]Option{WithOutput(&buf)}, opts...)...), &buf
}

func TestLevelFiltering(t *testing.T) {
	o, buf := newCaptured(t, WithLevel(slog.LevelWarn))
	ctx := context.Background()

	o.Info(ctx, "routine")
	o.Warn(ctx, "suspicious", observability.String("reason", "testing"))

	out := buf.String()
	if strings.Contains(out, "routine") {
		t.Errorf("info record emitted below the configured level:\n%s", out)
	}
	if !strings.Contains(out, "suspicious") || !strings.Contains(out, "reason=testing") {
		t.Errorf("warn record missing:\n%s", out)
	}
}

func TestTraceLevelNamed(t *testing.T) {
	t.Setenv("BRIDGE_LOG_LEVEL", "")
	o, buf := newCaptured(t, WithLevel(LevelTrace))
	o.Trace(context.Background(), "frame received")

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("trace record should carry level=TRACE:\n%s", out)
	}

	// Default level keeps trace quiet.
	o2, buf2 := newCaptured(t)
	o2.Trace(context.Background(), "frame received")
	if buf2.Len() != 0 {
		t.Errorf("trace emitted at default level:\n%s", buf2.String())
	}
}

func TestSpanEndRecordsDuration(t *testing.T) {
	o, buf := newCaptured(t, WithLevel(slog.LevelDebug))

	_, span := o.StartSpan(context.Background(), "client.chat",
		observability.String("llm.provider", "openai"))
	span.SetStatus(observability.StatusOK, "")
	span.End()

	out := buf.String()
	if !strings.Contains(out, "span end") || !strings.Contains(out, "span=client.chat") {
		t.Fatalf("span end record missing:\n%s", out)
	}
	if !strings.Contains(out, "duration=") {
		t.Errorf("span end should carry its duration:\n%s", out)
	}
	if !strings.Contains(out, "llm.provider=openai") || !strings.Contains(out, "status=ok") {
		t.Errorf("span attributes missing:\n%s", out)
	}
}

func TestSpanRecordError(t *testing.T) {
	o, buf := newCaptured(t)
	_, span := o.StartSpan(context.Background(), "client.chat")
	span.RecordError(errors.New("upstream overloaded"))

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "upstream overloaded") {
		t.Errorf("recorded error not logged:\n%s", out)
	}

	buf.Reset()
	span.RecordError(nil)
	if buf.Len() != 0 {
		t.Errorf("nil error should not log:\n%s", buf.String())
	}
}

func TestCounterAccumulates(t *testing.T) {
	o, buf := newCaptured(t, WithLevel(slog.LevelDebug))
	ctx := context.Background()

	c := o.Counter("bridge.client.tokens.total")
	c.Add(ctx, 3)
	c.Add(ctx, 4)

	if !strings.Contains(buf.String(), "total=7") {
		t.Errorf("counter should accumulate across calls:\n%s", buf.String())
	}
	if o.Counter("bridge.client.tokens.total") != c {
		t.Error("same name should return the same counter")
	}
}

func TestHistogramCounts(t *testing.T) {
	o, buf := newCaptured(t, WithLevel(slog.LevelDebug))
	ctx := context.Background()

	h := o.Histogram("bridge.request.duration")
	h.Record(ctx, 0.25)
	h.Record(ctx, 0.75)

	if !strings.Contains(buf.String(), "count=2") {
		t.Errorf("histogram should count observations:\n%s", buf.String())
	}
	if o.Histogram("bridge.request.duration") != h {
		t.Error("same name should return the same histogram")
	}
}

func TestWithJSON(t *testing.T) {
	o, buf := newCaptured(t, WithJSON())
	o.Info(context.Background(), "hello", observability.Int("n", 1))

	out := buf.String()
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"n":1`) {
		t.Errorf("expected a JSON record:\n%s", out)
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	o := New(WithLogger(logger))

	o.Info(context.Background(), "through custom logger")
	if !strings.Contains(buf.String(), "through custom logger") {
		t.Errorf("record should flow through the provided logger:\n%s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
