package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.PollTick()
	m.FetchFailed()
	m.AlertMatched("Tornado Warning")
	m.Sequence("started")
	m.NotifyFailed("admin")
	m.SetPending(1)
	m.AssistantRequest("start", "ok")
}

func TestMetricsRegisterAndGather(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PollTick()
	m.PollTick()
	m.Sequence("started")
	m.SetPending(1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				found[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				found[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	if found["stormguard_poll_ticks_total"] != 2 {
		t.Errorf("poll ticks = %v", found["stormguard_poll_ticks_total"])
	}
	if found["stormguard_shutdown_sequences_total"] != 1 {
		t.Errorf("sequences = %v", found["stormguard_shutdown_sequences_total"])
	}
	if found["stormguard_pending_sequences"] != 1 {
		t.Errorf("pending = %v", found["stormguard_pending_sequences"])
	}
}
