package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "limbogate"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	redirects   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	triggers    *prometheus.CounterVec
	commands    *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	corrections *prometheus.CounterVec
	occupancy   *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Players placed into a holding session.",
		}, []string{"session"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirect_failures_total",
			Help:      "Redirects that could not be completed.",
		}, []string{"session", "reason"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Redirects grouped by what caused them.",
		}, []string{"trigger"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands typed inside holding sessions by outcome.",
		}, []string{"session", "outcome"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Players handed from a holding session to a backend.",
		}, []string{"session"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_corrections_total",
			Help:      "Corrective teleports issued by movement policies.",
		}, []string{"session", "policy"}),
		occupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_players",
			Help:      "Players currently bound to each holding session.",
		}, []string{"session"}),
	}

	if reg != nil {
		reg.MustRegister(m.redirects, m.failures, m.triggers, m.commands, m.transfers, m.corrections, m.occupancy)
	}
	return m
}

func (m *Metrics) Redirect(session string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(session).Inc()
}

func (m *Metrics) RedirectFailed(session, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(session, reason).Inc()
}

func (m *Metrics) Triggered(trigger string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Command(session, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(session, outcome).Inc()
}

func (m *Metrics) Transfer(session string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(session).Inc()
}

func (m *Metrics) Correction(session, policy string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(session, policy).Inc()
}

// SetOccupancy replaces the occupancy gauge with the given snapshot.
func (m *Metrics) SetOccupancy(counts map[string]int) {
	if m == nil {
		return
	}
	m.occupancy.Reset()
	for session, n := range counts {
		m.occupancy.WithLabelValues(session).Set(float64(n))
	}
}
