package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader parses SSE events from an upstream byte stream. It buffers
// internally, so the framing is independent of how the transport chunks the
// bytes: an event split mid-line across reads is reassembled, and two events
// arriving in one read are returned one at a time.
type Reader struct {
	scanner *bufio.Scanner

	// current accumulates fields for the event being built in the current scan.
	current *Event
	hasData bool
}

// NewReader returns a Reader over src. The scanner buffer is sized for
// provider streams that pack whole search-result payloads into one data line.
func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
		current: &Event{},
	}
}

// Next returns the next parsed SSE event. It blocks until a complete event is
// available (terminated by a blank line in the stream). Next returns nil, nil
// when the source is exhausted.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := strings.TrimSuffix(r.scanner.Text(), "\r")

		// A blank line signals the end of the current event.
		if raw == "" {
			if r.hasData {
				ev := r.current
				r.reset()
				return ev, nil
			}

			// Blank line with no accumulated fields: skip (leading blank
			// lines, keep-alive newlines).
			continue
		}

		// Lines starting with ':' are comments. Skip them.
		if strings.HasPrefix(raw, ":") {
			continue
		}

		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Source exhausted without a trailing blank line: yield the in-progress
	// event rather than dropping it.
	if r.hasData {
		ev := r.current
		r.reset()
		return ev, nil
	}

	return nil, nil
}

// parseLine processes a single non-empty, non-comment SSE line and
// accumulates the field into the current event.
//
// Per the SSE spec, a line has the form "field:value" where the first
// space after the colon is optional and stripped if present.
func (r *Reader) parseLine(line string) {
	var field, value string

	if before, after, ok := strings.Cut(line, ":"); ok {
		field = before
		value = strings.TrimPrefix(after, " ")
	} else {
		// Line with no colon: the entire line is the field name with
		// an empty value.
		field = line
	}

	switch field {
	case "data":
		if r.hasData && r.current.Data != "" {
			// Multiple data fields are joined with "\n".
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
		r.hasData = true
	case "id":
		r.current.ID = value
		r.hasData = true
	default:
		// "retry" and unknown fields are ignored per the SSE spec.
	}
}

func (r *Reader) reset() {
	r.current = &Event{}
	r.hasData = false
}
