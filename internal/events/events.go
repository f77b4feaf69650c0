// Package events publishes domain events to Kafka and consumes the topics
// other replicas publish to.
//
// Publishing is fail-open: business operations never block on, or fail
// because of, the broker. Events are dropped (and counted) when the inbox
// is full or the circuit is open.
package events

import (
	"encoding/json"
	"time"
)

// Topics the service produces and consumes.
const (
	TopicMessagingInbound  = "messaging.inbound"
	TopicMessagingOutbound = "messaging.outbound"
	TopicMessagingStatus   = "messaging.status"
	TopicLeads             = "crm.leads"
)

// AllTopics lists every topic for idempotent creation at startup.
func AllTopics() []string {
	return []string{
		TopicMessagingInbound,
		TopicMessagingOutbound,
		TopicMessagingStatus,
		TopicLeads,
	}
}

// Event is one domain event bound for a topic. Key selects the partition
// (lead id for CRM events, provider message id for messaging events).
type Event struct {
	Topic      string          `json:"-"`
	Key        string          `json:"-"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEvent marshals payload and stamps the event.
func NewEvent(topic, key, eventType string, occurredAt time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Topic:      topic,
		Key:        key,
		Type:       eventType,
		OccurredAt: occurredAt,
		Payload:    raw,
	}, nil
}
