package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

// collect drains the scanner into a slice, failing the test on unexpected errors.
func collect(t *testing.T, input string) []Event {
	t.Helper()
	s := NewScanner(strings.NewReader(input))
	var events []Event
	for {
		event, err := s.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		events = append(events, event)
	}
}

func TestScanner_SingleEvent(t *testing.T) {
	events := collect(t, "data: {\"text\":\"hi\"}\n\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != `{"text":"hi"}` {
		t.Errorf("Data = %q", events[0].Data)
	}
}

func TestScanner_AllFields(t *testing.T) {
	input := "event: message_start\nid: ev_1\nretry: 3000\ndata: {}\n\n"
	events := collect(t, input)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Type != "message_start" || e.ID != "ev_1" || e.Retry != "3000" || e.Data != "{}" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestScanner_MultiLineData(t *testing.T) {
	input := "data: line one\ndata: line two\ndata: line three\n\n"
	events := collect(t, input)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := "line one\nline two\nline three"
	if events[0].Data != want {
		t.Errorf("Data = %q, want %q", events[0].Data, want)
	}
}

func TestScanner_CRLFTolerated(t *testing.T) {
	input := "event: delta\r\ndata: chunk\r\n\r\n"
	events := collect(t, input)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != "delta" || events[0].Data != "chunk" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestScanner_SkipsCommentsAndBlankRuns(t *testing.T) {
	input := ": keep-alive\n\n\n: another comment\ndata: real\n\n"
	events := collect(t, input)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "real" {
		t.Errorf("Data = %q", events[0].Data)
	}
}

func TestScanner_DoneSentinel(t *testing.T) {
	input := "data: {\"n\":1}\n\ndata: [DONE]\n\ndata: {\"n\":2}\n\n"
	s := NewScanner(strings.NewReader(input))

	first, err := s.Next()
	if err != nil {
		t.Fatalf("first Next() error: %v", err)
	}
	if first.Done() {
		t.Error("first event should not be the sentinel")
	}

	sentinel, err := s.Next()
	if err != nil {
		t.Fatalf("sentinel Next() error: %v", err)
	}
	if !sentinel.Done() {
		t.Errorf("expected sentinel event, got %+v", sentinel)
	}

	// Iteration stops after the sentinel; trailing events are never seen.
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after sentinel: err = %v, want io.EOF", err)
	}
}

func TestScanner_MidEventCloseFlushesBuffered(t *testing.T) {
	// Stream ends without the dispatching blank line.
	input := "event: delta\ndata: partial"
	events := collect(t, input)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != "delta" || events[0].Data != "partial" {
		t.Errorf("unexpected flushed event: %+v", events[0])
	}
}

func TestScanner_EmptyStream(t *testing.T) {
	if events := collect(t, ""); len(events) != 0 {
		t.Errorf("got %d events from empty stream, want 0", len(events))
	}
}

func TestScanner_UnknownFieldIgnored(t *testing.T) {
	input := "weird: stuff\ndata: ok\n\n"
	events := collect(t, input)
	if len(events) != 1 || events[0].Data != "ok" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestScanner_DataWithoutLeadingSpace(t *testing.T) {
	events := collect(t, "data:tight\n\n")
	if len(events) != 1 || events[0].Data != "tight" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestScanner_LineTooLong(t *testing.T) {
	big := "data: " + strings.Repeat("x", maxLineSize+1) + "\n\n"
	s := NewScanner(strings.NewReader(big))

	_, err := s.Next()
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("err = %v, want bufio.ErrTooLong", err)
	}

	// The error is sticky.
	if _, err2 := s.Next(); !errors.Is(err2, bufio.ErrTooLong) {
		t.Errorf("second call err = %v, want sticky bufio.ErrTooLong", err2)
	}
}

// encode renders events in canonical SSE framing. Decoding the encoded form
// must reproduce the original events (framing is a left inverse of encoding).
func encode(events []Event) string {
	var b strings.Builder
	for _, e := range events {
		if e.Type != "" {
			b.WriteString("event: " + e.Type + "\n")
		}
		if e.ID != "" {
			b.WriteString("id: " + e.ID + "\n")
		}
		if e.Retry != "" {
			b.WriteString("retry: " + e.Retry + "\n")
		}
		for _, line := range strings.Split(e.Data, "\n") {
			b.WriteString("data: " + line + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestScanner_RoundTrip(t *testing.T) {
	original := []Event{
		{Type: "response.created", Data: `{"id":"resp_1"}`},
		{Data: "first\nsecond"},
		{ID: "42", Type: "content_block_delta", Data: `{"delta":{"text":"hey"}}`},
		{Retry: "1500", Data: "{}"},
	}

	decoded := collect(t, encode(original))
	if len(decoded) != len(original) {
		t.Fatalf("got %d events, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("event %d: got %+v, want %+v", i, decoded[i], original[i])
		}
	}
}
