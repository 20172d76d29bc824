// Package relay normalizes an upstream provider's SSE stream into the
// gateway event vocabulary and feeds it to a downstream sink in real time.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/metrics"
	"github.com/kailas-cloud/llmgate/internal/sse"
)

// Outcome names how a relay ended, for metrics and the canonical log line.
type Outcome string

const (
	OutcomeDone          Outcome = "done"
	OutcomeUpstreamEnd   Outcome = "upstream_end"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeCanceled      Outcome = "canceled"
)

// Summary describes one finished relay. Content is the concatenation of all
// content deltas; SearchResults the verbatim payload of the last
// search_results frame, nil when none arrived.
type Summary struct {
	Outcome       Outcome
	Events        int
	Content       string
	SearchResults json.RawMessage
	UpstreamError string
}

// Normalizer converts upstream frames into normalized events. One instance
// per stream; not safe for concurrent use.
type Normalizer struct {
	searchMode bool
	logger     *zap.Logger
}

// New creates a normalizer. In search mode the search_results and status
// events are honored; outside it they are dropped as foreign frames.
func New(searchMode bool, logger *zap.Logger) *Normalizer {
	return &Normalizer{searchMode: searchMode, logger: logger}
}

// upstreamFrame is the provider payload superset. Which fields are set
// depends on the frame type.
type upstreamFrame struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Results json.RawMessage `json:"results"`
}

// Relay reads upstream until the DONE sentinel, upstream end, an error frame
// or cancellation, whichever comes first, emitting normalized events into
// sink. A sink that stops accepting does not abort the read loop; the
// upstream is drained to its own termination point so provider connections
// shut down cleanly. The returned error is non-nil only for transport
// failures while reading; a provider-reported error frame ends the relay
// normally with OutcomeUpstreamError.
func (n *Normalizer) Relay(ctx context.Context, upstream io.Reader, sink domain.EventSink) (Summary, error) {
	start := time.Now()
	summary, err := n.relay(ctx, upstream, sink)

	metrics.StreamsTotal.WithLabelValues(string(summary.Outcome)).Inc()
	metrics.StreamDuration.Observe(time.Since(start).Seconds())
	return summary, err
}

func (n *Normalizer) relay(ctx context.Context, upstream io.Reader, sink domain.EventSink) (Summary, error) {
	reader := sse.NewReader(upstream)
	var content strings.Builder
	summary := Summary{Outcome: OutcomeUpstreamEnd}
	emitting := true

	for {
		// Cancellation is checked per parsed frame, not per transport chunk.
		if ctx.Err() != nil {
			summary.Outcome = OutcomeCanceled
			summary.Content = content.String()
			return summary, nil
		}

		frame, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				// Read failure caused by our own cancellation closing the body.
				summary.Outcome = OutcomeCanceled
				summary.Content = content.String()
				return summary, nil
			}
			summary.Content = content.String()
			return summary, fmt.Errorf("read upstream frame: %w", err)
		}
		if frame == nil {
			summary.Content = content.String()
			return summary, nil
		}
		if frame.Done() {
			summary.Outcome = OutcomeDone
			summary.Content = content.String()
			return summary, nil
		}

		ev, ok := n.classify(frame.Data)
		if !ok {
			continue
		}

		if emitting {
			summary.Events++
			metrics.StreamEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
			if !sink.Emit(ev) {
				// Downstream is gone. Stop emitting but keep draining so the
				// upstream connection ends at its natural termination point.
				emitting = false
			}
		}

		switch ev.Kind {
		case domain.StreamContent:
			content.WriteString(ev.Text)
		case domain.StreamSearchResults:
			summary.SearchResults = ev.Results
		case domain.StreamError:
			summary.Outcome = OutcomeUpstreamError
			summary.UpstreamError = ev.Text
			summary.Content = content.String()
			return summary, nil
		}
	}
}

// classify maps one raw frame payload onto the event vocabulary. Reports
// false for frames to drop: malformed JSON, unknown types, and search-only
// events outside search mode.
func (n *Normalizer) classify(data string) (domain.StreamEvent, bool) {
	var frame upstreamFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		n.logger.Warn("Dropping malformed upstream frame",
			zap.Int("bytes", len(data)), zap.Error(err))
		return domain.StreamEvent{}, false
	}

	switch frame.Type {
	case "content":
		return domain.StreamEvent{Kind: domain.StreamContent, Text: frame.Content}, true
	case "":
		// Bare {"content": "..."} frames from older providers.
		if frame.Content != "" {
			return domain.StreamEvent{Kind: domain.StreamContent, Text: frame.Content}, true
		}
		if frame.Error != "" {
			return domain.StreamEvent{Kind: domain.StreamError, Text: frame.Error}, true
		}
		return domain.StreamEvent{}, false
	case "search_results":
		if !n.searchMode {
			return domain.StreamEvent{}, false
		}
		return domain.StreamEvent{Kind: domain.StreamSearchResults, Results: frame.Results}, true
	case "status":
		if !n.searchMode {
			return domain.StreamEvent{}, false
		}
		return domain.StreamEvent{Kind: domain.StreamStatus, Text: frame.Message}, true
	case "error":
		return domain.StreamEvent{Kind: domain.StreamError, Text: frame.Error}, true
	default:
		n.logger.Debug("Dropping unknown upstream frame type",
			zap.String("type", frame.Type))
		return domain.StreamEvent{}, false
	}
}
