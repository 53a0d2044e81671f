// Package sse decodes Server-Sent Events from a byte stream.
//
// The scanner is line-oriented and tolerant of CRLF endings. A blank line
// dispatches the accumulated event; consecutive data: lines are joined with
// newlines; event:, id: and retry: set the matching field. The OpenAI-style
// "data: [DONE]" sentinel is surfaced as a distinguished event, after which
// iteration ends. Data payloads are passed through verbatim; JSON validation
// belongs to the downstream provider parser.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DoneSentinel is the payload vendors send to mark the end of a stream.
const DoneSentinel = "[DONE]"

// maxLineSize is the maximum size of a single SSE line (1 MB).
// The default bufio.Scanner limit is 64 KiB, which is too small for
// large SSE events such as tool-call arguments or long completions.
// If a line exceeds this limit Next returns a wrapped bufio.ErrTooLong.
const maxLineSize = 1 * 1024 * 1024

// Event is a single decoded server-sent event.
type Event struct {
	// ID is the value of the last id: field, if any.
	ID string
	// Type is the value of the last event: field, if any.
	Type string
	// Data is the payload: all data: lines joined with "\n".
	Data string
	// Retry is the raw value of the retry: field, if any. It is carried
	// through untouched; reconnection is not this package's concern.
	Retry string
}

// Done reports whether the event is the [DONE] sentinel.
func (e Event) Done() bool {
	return e.Data == DoneSentinel
}

// Scanner reads SSE events from an io.Reader.
type Scanner struct {
	scanner *bufio.Scanner
	done    bool
	err     error
}

// NewScanner creates a Scanner that decodes events from reader.
// Individual lines may be up to 1 MB.
func NewScanner(reader io.Reader) *Scanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Scanner{scanner: scanner}
}

// Next returns the next event. It returns io.EOF once the stream is
// exhausted or after the [DONE] sentinel event has been delivered.
// The sentinel itself is returned as a normal event so callers can
// observe it; check [Event.Done].
//
// If the underlying stream closes mid-event, the already-buffered event
// is returned before io.EOF.
func (s *Scanner) Next() (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	if s.done {
		return Event{}, io.EOF
	}

	var event Event
	var dataLines []string

	dispatch := func() Event {
		event.Data = strings.Join(dataLines, "\n")
		return event
	}
	pending := func() bool {
		return len(dataLines) > 0 || event.ID != "" || event.Type != "" || event.Retry != ""
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line ends the current event.
		if line == "" {
			if pending() {
				return dispatch(), nil
			}
			continue
		}

		// Comment line.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		// The SSE grammar strips exactly one leading space from the value.
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if strings.TrimSpace(value) == DoneSentinel {
				s.done = true
				event.Data = ""
				dataLines = nil
				return Event{ID: event.ID, Type: event.Type, Data: DoneSentinel}, nil
			}
			dataLines = append(dataLines, value)
		case "event":
			event.Type = value
		case "id":
			event.ID = value
		case "retry":
			event.Retry = value
		default:
			// Unknown fields are ignored per the SSE grammar.
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("sse: read: %w", err)
		return Event{}, s.err
	}

	// Stream closed. Flush a partially accumulated event, if any.
	s.done = true
	if pending() {
		return dispatch(), nil
	}
	return Event{}, io.EOF
}
