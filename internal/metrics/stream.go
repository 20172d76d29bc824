package metrics

import "github.com/prometheus/client_golang/prometheus"

// Streaming and fallback Prometheus metrics.
var (
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Name:      "stream_events_total",
			Help:      "Normalized stream events relayed downstream",
		},
		[]string{"kind"},
	)

	StreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Name:      "streams_total",
			Help:      "Completed streams by outcome",
		},
		[]string{"outcome"}, // "done" / "upstream_error" / "client_gone" / "canceled"
	)

	StreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llmgate",
			Name:      "stream_duration_seconds",
			Help:      "Wall time from first upstream byte to stream end",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	FallbackDegradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Name:      "fallback_degradations_total",
			Help:      "Primary tier failures that triggered the secondary tier",
		},
		[]string{"operation", "reason"},
	)

	FallbackExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Name:      "fallback_exhausted_total",
			Help:      "Operations where both tiers failed",
		},
		[]string{"operation"},
	)
)

var streamMetricsRegistered bool

// RegisterStreamMetrics registers Prometheus streaming metrics. Must be called once from main.
func RegisterStreamMetrics() {
	if streamMetricsRegistered {
		return
	}
	prometheus.MustRegister(StreamEventsTotal)
	prometheus.MustRegister(StreamsTotal)
	prometheus.MustRegister(StreamDuration)
	prometheus.MustRegister(FallbackDegradationsTotal)
	prometheus.MustRegister(FallbackExhaustedTotal)
	streamMetricsRegistered = true
}
