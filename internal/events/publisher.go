package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"globalreach/pkg/platform/circuit"
)

// Publisher is the producing side consumed by domain services.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close()
}

// producer is the subset of *kgo.Client the publisher needs. Narrowed for
// tests.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaPublisher drains an in-memory inbox into Kafka on a background
// goroutine. A circuit breaker sheds events while the broker misbehaves so
// request latency stays flat.
type KafkaPublisher struct {
	client  producer
	inbox   chan Event
	done    chan struct{}
	logger  *slog.Logger
	breaker *circuit.Breaker
	metrics *Metrics
}

// Option configures the KafkaPublisher.
type Option func(*KafkaPublisher)

// WithBufferSize overrides the inbox capacity.
func WithBufferSize(n int) Option {
	return func(p *KafkaPublisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *KafkaPublisher) { p.metrics = m }
}

// NewKafkaPublisher creates a publisher over an established kgo client and
// starts its drain goroutine.
func NewKafkaPublisher(client *kgo.Client, logger *slog.Logger, opts ...Option) *KafkaPublisher {
	return newKafkaPublisher(client, logger, opts...)
}

func newKafkaPublisher(client producer, logger *slog.Logger, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		client:  client,
		inbox:   make(chan Event, 1024),
		done:    make(chan struct{}),
		logger:  logger,
		breaker: circuit.New("kafka-publisher", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Publish enqueues the event. Full inbox or open circuit drops the event
// with a counter bump; callers never see an error.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if p.breaker.IsOpen() {
		// Let a trickle through so the breaker can observe recovery.
		select {
		case p.inbox <- event:
			return
		default:
		}
		p.drop(ctx, event, "circuit_open")
		return
	}
	select {
	case p.inbox <- event:
	default:
		p.drop(ctx, event, "buffer_full")
	}
}

func (p *KafkaPublisher) drop(ctx context.Context, event Event, reason string) {
	if p.metrics != nil {
		p.metrics.IncDropped(event.Topic, reason)
	}
	p.logger.WarnContext(ctx, "event dropped",
		"topic", event.Topic,
		"type", event.Type,
		"reason", reason,
	)
}

func (p *KafkaPublisher) run() {
	for event := range p.inbox {
		p.produce(event)
	}
	close(p.done)
}

func (p *KafkaPublisher) produce(event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("event marshal failed", "topic", event.Topic, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: event.Topic,
		Key:   []byte(event.Key),
		Value: value,
	}
	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			if p.metrics != nil {
				p.metrics.IncFailed(event.Topic)
			}
			if _, change := p.breaker.RecordFailure(); change.Opened {
				p.logger.Error("kafka publisher circuit opened", "topic", event.Topic, "error", err)
			}
			return
		}
		if p.metrics != nil {
			p.metrics.IncPublished(event.Topic)
		}
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.Info("kafka publisher circuit closed")
		}
	})
}

// Close drains the inbox, flushes in-flight produces and closes the client.
func (p *KafkaPublisher) Close() {
	close(p.inbox)
	<-p.done
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}

// NopPublisher drops every event at debug level. Used when Kafka is not
// configured.
type NopPublisher struct {
	Logger *slog.Logger
}

func (n NopPublisher) Publish(ctx context.Context, event Event) {
	if n.Logger != nil {
		n.Logger.DebugContext(ctx, "event discarded (kafka not configured)",
			"topic", event.Topic,
			"type", event.Type,
		)
	}
}

func (NopPublisher) Close() {}
