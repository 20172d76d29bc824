package chi

import (
	"encoding/json"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/sse"
)

// eventFrame is the downstream wire shape of one normalized event.
type eventFrame struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
}

// writerSink adapts a guarded SSE writer to the event sink contract. Emit
// reports false once the downstream write fails, which tells the relay to
// keep draining without emitting.
type writerSink struct {
	w *sse.Writer
}

func (s *writerSink) Emit(ev domain.StreamEvent) bool {
	frame := eventFrame{Type: string(ev.Kind)}
	switch ev.Kind {
	case domain.StreamContent:
		frame.Content = ev.Text
	case domain.StreamStatus:
		frame.Message = ev.Text
	case domain.StreamError:
		frame.Error = ev.Text
	case domain.StreamSearchResults:
		frame.Results = ev.Results
	}
	return s.w.Send(frame)
}
