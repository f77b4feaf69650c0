// Package metrics exposes Prometheus collectors for message delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds message delivery counters.
type Metrics struct {
	sent     *prometheus.CounterVec
	failed   *prometheus.CounterVec
	received *prometheus.CounterVec
	receipts *prometheus.CounterVec
}

// New creates and registers message metrics.
func New() *Metrics {
	return &Metrics{
		sent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_messages_sent_total",
			Help: "Outbound messages accepted by the provider, by channel.",
		}, []string{"channel"}),
		failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_messages_failed_total",
			Help: "Outbound messages the provider rejected, by channel.",
		}, []string{"channel"}),
		received: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_messages_received_total",
			Help: "Inbound messages recorded, by channel.",
		}, []string{"channel"}),
		receipts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_delivery_receipts_total",
			Help: "Delivery receipts processed, by resulting status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncSent(channel string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncFailed(channel string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncReceived(channel string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncReceipt(status string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(status).Inc()
}
