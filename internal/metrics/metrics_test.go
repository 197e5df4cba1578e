package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Redirect("afk")
	m.RedirectFailed("afk", "unknown")
	m.Triggered("afk")
	m.Command("afk", "allowed")
	m.Transfer("afk")
	m.Correction("afk", "confine")
	m.SetOccupancy(map[string]int{"afk": 1})
}

// gathered maps family name to the value of each series, keyed by the
// series' first label in sorted label order.
func gathered(t *testing.T, reg *prometheus.Registry) map[string]map[string]float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	out := make(map[string]map[string]float64)
	for _, family := range families {
		series := make(map[string]float64)
		for _, metric := range family.GetMetric() {
			key := ""
			if labels := metric.GetLabel(); len(labels) > 0 {
				key = labels[0].GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				series[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				series[key] = metric.GetGauge().GetValue()
			}
		}
		out[family.GetName()] = series
	}
	return out
}

func TestCountersAndOccupancy(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Redirect("afk")
	m.Redirect("afk")
	m.Command("auth", "disabled")
	m.SetOccupancy(map[string]int{"afk": 3, "auth": 1})
	m.SetOccupancy(map[string]int{"auth": 2})

	got := gathered(t, reg)

	if v := got["limbogate_redirects_total"]["afk"]; v != 2 {
		t.Fatalf("expected 2 redirects, got %v", v)
	}
	if v := got["limbogate_commands_total"]["disabled"]; v != 1 {
		t.Fatalf("expected 1 command, got %v", v)
	}

	occupancy := got["limbogate_session_players"]
	if len(occupancy) != 1 || occupancy["auth"] != 2 {
		t.Fatalf("expected only auth=2 in occupancy, got %v", occupancy)
	}
}
