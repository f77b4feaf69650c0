package events

import (
	"context"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// TopicHandler handles messages from a specific topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *Message) error
}

// TopicHandlerFunc adapts a function to TopicHandler.
type TopicHandlerFunc func(ctx context.Context, msg *Message) error

func (f TopicHandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Router dispatches messages to topic-specific handlers.
type Router struct {
	handlers map[string]TopicHandler
	logger   *slog.Logger
}

// NewRouter creates a topic router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		logger:   logger,
	}
}

// Register adds a handler for a specific topic.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Topics lists the registered topics.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	return topics
}

// Handle routes the message to the appropriate topic handler. Unroutable
// messages are skipped so the group keeps advancing.
func (r *Router) Handle(ctx context.Context, msg *Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		r.logger.Warn("no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil
	}
	return handler.Handle(ctx, msg)
}

// Consumer polls a kgo group client and feeds records through the router.
type Consumer struct {
	client  *kgo.Client
	router  *Router
	logger  *slog.Logger
	metrics *Metrics
}

// NewConsumer wraps an established group client.
func NewConsumer(client *kgo.Client, router *Router, logger *slog.Logger, metrics *Metrics) *Consumer {
	return &Consumer{client: client, router: router, logger: logger, metrics: metrics}
}

// Run polls until ctx is canceled. Handler errors are logged, not fatal:
// the topics carry operational events where redelivery storms hurt more
// than a lost record.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if fetches.IsClientClosed() {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			msg := &Message{Topic: record.Topic, Key: record.Key, Value: record.Value}
			if err := c.router.Handle(ctx, msg); err != nil {
				c.logger.Error("event handler failed",
					"topic", record.Topic,
					"key", string(record.Key),
					"error", err,
				)
				return
			}
			if c.metrics != nil {
				c.metrics.IncConsumed(record.Topic)
			}
		})
	}
}

// Close closes the underlying client, which unblocks Run.
func (c *Consumer) Close() {
	c.client.Close()
}
