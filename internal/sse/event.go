// Package sse implements the Server-Sent Events plumbing of the gateway:
// a frame reader tolerant of arbitrary chunk splits for consuming upstream
// provider streams, and a guarded writer for producing the downstream stream.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DoneSentinel terminates a stream: "data: [DONE]".
const DoneSentinel = "[DONE]"

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}

// Done reports whether the event carries the termination sentinel.
func (e *Event) Done() bool {
	return e != nil && e.Data == DoneSentinel
}
