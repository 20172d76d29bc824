package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// State is the lifecycle of a Writer. Transitions are one-way:
// Open -> Closing (downstream write failed) -> Closed (Close called),
// or Open -> Closed directly.
type State int

const (
	// StateOpen accepts sends.
	StateOpen State = iota
	// StateClosing rejects sends after a downstream write failure.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

// Writer produces the downstream SSE stream with guarded writes: once the
// client is gone or Close was called, every further send is a silent no-op.
// Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	state   State
}

// NewWriter prepares w for event streaming: sets the SSE headers and returns
// a guarded writer. Fails when the ResponseWriter cannot flush, since an
// unflushable stream buffers deltas instead of delivering them.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher, state: StateOpen}, nil
}

// NewWriterTo wraps a plain io.Writer. For tests and non-HTTP sinks.
func NewWriterTo(w io.Writer) *Writer {
	return &Writer{w: w, state: StateOpen}
}

// Send marshals v and writes one "data: <json>" frame, flushing immediately.
// It reports false without error when the writer is no longer open; a failed
// OS-level write flips the writer to Closing so later sends become no-ops.
func (w *Writer) Send(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		// Marshal failures are programming errors; drop the frame, keep the stream.
		return w.State() == StateOpen
	}
	return w.sendRaw(string(payload))
}

// SendDone writes the termination sentinel frame under the same guard.
func (w *Writer) SendDone() bool {
	return w.sendRaw(DoneSentinel)
}

func (w *Writer) sendRaw(data string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateOpen {
		return false
	}

	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		w.state = StateClosing
		return false
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return true
}

// Close marks the stream finished. Idempotent: closing a Closing or Closed
// writer is a no-op and never an error.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateClosed
}

// State returns the current lifecycle state.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
