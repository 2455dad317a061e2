package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the runtime's prometheus collectors. One instance is
// shared process-wide; all fields are safe for concurrent use.
type Metrics struct {
	TurnsStarted    prometheus.Counter
	TurnsCompleted  *prometheus.CounterVec // label: outcome (final, error, cancelled)
	ToolCalls       *prometheus.CounterVec // labels: tool, outcome
	ToolDuration    *prometheus.HistogramVec
	TransferAttempt *prometheus.CounterVec // label: status (allowed, denied)
	HAReconnects    prometheus.Counter
	EventTruncated  prometheus.Counter
	WSFrameBytes    prometheus.Histogram
}

// NewMetrics registers all collectors against reg (pass prometheus.
// DefaultRegisterer in production, a fresh registry in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_turns_started_total",
			Help: "Number of turns accepted by the session runner.",
		}),
		TurnsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_turns_completed_total",
			Help: "Number of turns that reached a terminal outcome.",
		}, []string{"outcome"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tool_calls_total",
			Help: "Number of tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_tool_duration_seconds",
			Help:    "Tool handler execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		TransferAttempt: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_transfer_attempts_total",
			Help: "Agent transfer attempts by outcome.",
		}, []string{"status"}),
		HAReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_ha_reconnects_total",
			Help: "Home Assistant WebSocket client reconnect attempts.",
		}),
		EventTruncated: factory.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_event_truncations_total",
			Help: "Events whose text was truncated for payload bounding.",
		}),
		WSFrameBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_ws_frame_bytes",
			Help:    "Size in bytes of frames delivered to clients.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}),
	}
}
