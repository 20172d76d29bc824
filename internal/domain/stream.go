package domain

import "encoding/json"

// StreamEventKind enumerates the normalized event vocabulary of the gateway.
type StreamEventKind string

const (
	// StreamContent is an incremental text delta.
	StreamContent StreamEventKind = "content"
	// StreamSearchResults carries the citation list of a search-augmented reply.
	StreamSearchResults StreamEventKind = "search_results"
	// StreamStatus is a transient progress note ("searching...").
	StreamStatus StreamEventKind = "status"
	// StreamError is a terminal provider error surfaced to the client.
	StreamError StreamEventKind = "error"
)

// StreamEvent is one normalized event of an upstream generation stream.
// Text holds the delta for content events, the message for status and error
// events. Results holds the verbatim payload of search_results events.
type StreamEvent struct {
	Kind    StreamEventKind
	Text    string
	Results json.RawMessage
}

// EventSink receives normalized events in upstream order. Emit reports false
// when the sink can no longer accept events (downstream gone); the producer
// must stop emitting but may keep draining its source.
type EventSink interface {
	Emit(ev StreamEvent) bool
}
