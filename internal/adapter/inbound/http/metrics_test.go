package http

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/toolbridge/toolbridge/internal/domain/session"
	"github.com/toolbridge/toolbridge/internal/service"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, name string) (float64, bool) {
	t.Helper()
	fams, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range fams {
		if fam.GetName() != name {
			continue
		}
		m := fam.GetMetric()[0]
		switch fam.GetType() {
		case dto.MetricType_COUNTER:
			return m.GetCounter().GetValue(), true
		case dto.MetricType_GAUGE:
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := service.NewRouter(session.NewRegistry(), testLogger())
	m := NewMetrics(reg, router)

	m.MessagesIngested.Inc()
	m.MessagesIngested.Inc()
	m.FramesPushed.Inc()

	if v, ok := gatherValue(t, reg, "toolbridge_messages_ingested_total"); !ok || v != 2 {
		t.Errorf("expected ingest counter 2, got %v (found %v)", v, ok)
	}
	if v, ok := gatherValue(t, reg, "toolbridge_frames_pushed_total"); !ok || v != 1 {
		t.Errorf("expected frames counter 1, got %v (found %v)", v, ok)
	}
}

func TestMetricsGaugesTrackRelay(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry := session.NewRegistry()
	router := service.NewRouter(registry, testLogger())
	NewMetrics(reg, router)

	if v, _ := gatherValue(t, reg, "toolbridge_active_sessions"); v != 0 {
		t.Errorf("expected 0 sessions, got %v", v)
	}

	registry.AttachProvider("team", &session.Peer{ID: "p1", Role: session.RoleProvider, Sink: nopSink{}})

	if v, _ := gatherValue(t, reg, "toolbridge_active_sessions"); v != 1 {
		t.Errorf("expected 1 session after attach, got %v", v)
	}
	if v, _ := gatherValue(t, reg, "toolbridge_active_peers"); v != 1 {
		t.Errorf("expected 1 peer after attach, got %v", v)
	}
}

type nopSink struct{}

func (nopSink) Push([]byte) bool { return true }
func (nopSink) Close()           {}
