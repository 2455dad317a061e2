package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TurnsStarted.Inc()
	m.TurnsCompleted.WithLabelValues("final").Inc()
	m.ToolCalls.WithLabelValues("get_current_time", "ok").Inc()
	m.ToolDuration.WithLabelValues("get_current_time").Observe(0.01)
	m.TransferAttempt.WithLabelValues("denied").Inc()
	m.HAReconnects.Inc()
	m.EventTruncated.Inc()
	m.WSFrameBytes.Observe(512)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	for _, name := range []string{
		"orchestrator_turns_started_total",
		"orchestrator_turns_completed_total",
		"orchestrator_tool_calls_total",
		"orchestrator_tool_duration_seconds",
		"orchestrator_transfer_attempts_total",
		"orchestrator_ha_reconnects_total",
		"orchestrator_event_truncations_total",
		"orchestrator_ws_frame_bytes",
	} {
		if _, ok := byName[name]; !ok {
			t.Errorf("expected metric family %q to be registered", name)
		}
	}
}

func TestNewMetricsTurnsStartedCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TurnsStarted.Add(3)

	var out dto.Metric
	if err := m.TurnsStarted.Write(&out); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := out.GetCounter().GetValue(); got != 3 {
		t.Fatalf("TurnsStarted = %v, want 3", got)
	}
}
