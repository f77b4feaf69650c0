package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds lead lifecycle counters.
type Metrics struct {
	created     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// New creates and registers lead metrics.
func New() *Metrics {
	return &Metrics{
		created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_leads_created_total",
			Help: "Leads created, by source and channel.",
		}, []string{"source", "channel"}),
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_lead_transitions_total",
			Help: "Lead status transitions.",
		}, []string{"to"}),
	}
}

func (m *Metrics) IncCreated(source, channel string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "manual"
	}
	m.created.WithLabelValues(source, channel).Inc()
}

func (m *Metrics) IncTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}
