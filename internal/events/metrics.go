package events

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const flushTimeout = 5 * time.Second

// Metrics tracks the event pipeline.
type Metrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	consumed  *prometheus.CounterVec
}

// NewMetrics creates and registers event pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_events_published_total",
			Help: "Events successfully produced to Kafka.",
		}, []string{"topic"}),
		failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_events_failed_total",
			Help: "Events that failed to produce.",
		}, []string{"topic"}),
		dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_events_dropped_total",
			Help: "Events shed before produce (full buffer or open circuit).",
		}, []string{"topic", "reason"}),
		consumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "globalreach_events_consumed_total",
			Help: "Events consumed from Kafka.",
		}, []string{"topic"}),
	}
}

func (m *Metrics) IncPublished(topic string)       { m.published.WithLabelValues(topic).Inc() }
func (m *Metrics) IncFailed(topic string)          { m.failed.WithLabelValues(topic).Inc() }
func (m *Metrics) IncDropped(topic, reason string) { m.dropped.WithLabelValues(topic, reason).Inc() }
func (m *Metrics) IncConsumed(topic string)        { m.consumed.WithLabelValues(topic).Inc() }
