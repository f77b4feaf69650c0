// Package models defines the Message aggregate.
package models

import (
	"strings"
	"time"

	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
)

// Direction distinguishes operator-sent from lead-sent messages.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusReceived  Status = "received" // inbound, terminal
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// statusRank orders the outbound delivery states so out-of-order provider
// receipts never regress a message.
var statusRank = map[Status]int{
	StatusQueued:    0,
	StatusSending:   1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusRead:      4,
}

// ParseStatus validates a raw provider status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusReceived, StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return Status(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown message status %q", s)
}

// Message is one inbound or outbound message on a lead's channel.
//
// Invariants:
//   - LeadID is set
//   - Direction is inbound or outbound
//   - Inbound messages are created in received and never transition
//   - Outbound delivery states only move forward; failed is terminal
type Message struct {
	ID        id.MessageID `json:"id"`
	LeadID    id.LeadID    `json:"lead_id"`
	Channel   id.Channel   `json:"channel"`
	Direction Direction    `json:"direction"`
	Body      string       `json:"body,omitempty"`
	MediaType string       `json:"media_type,omitempty"`
	MediaURL  string       `json:"media_url,omitempty"`
	// ProviderMessageID is the platform-side id (WhatsApp wamid, WeChat
	// MsgId, SMTP message id). Delivery receipts correlate on it.
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Status            Status    `json:"status"`
	ErrorCode         string    `json:"error_code,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewOutbound constructs an outbound message in queued state.
func NewOutbound(messageID id.MessageID, leadID id.LeadID, channel id.Channel, body string, now time.Time) (*Message, error) {
	if leadID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "lead id is required")
	}
	if !channel.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", channel)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "message body cannot be empty")
	}
	return &Message{
		ID:        messageID,
		LeadID:    leadID,
		Channel:   channel,
		Direction: DirectionOutbound,
		Body:      body,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewInbound constructs an inbound message in received state.
func NewInbound(messageID id.MessageID, leadID id.LeadID, channel id.Channel, providerMessageID, body string, now time.Time) (*Message, error) {
	if leadID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "lead id is required")
	}
	if !channel.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", channel)
	}
	return &Message{
		ID:                messageID,
		LeadID:            leadID,
		Channel:           channel,
		Direction:         DirectionInbound,
		Body:              body,
		ProviderMessageID: providerMessageID,
		Status:            StatusReceived,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ApplyStatus advances the delivery state. Regressions and receipts on
// terminal states are reported as stale so callers can skip them quietly.
func (m *Message) ApplyStatus(next Status, errorCode string, now time.Time) (applied bool, err error) {
	if m.Direction != DirectionOutbound {
		return false, dErrors.New(dErrors.CodeInvariantViolation, "delivery receipts only apply to outbound messages")
	}
	if m.Status == StatusFailed {
		return false, nil
	}
	if next == StatusFailed {
		m.Status = StatusFailed
		m.ErrorCode = errorCode
		m.UpdatedAt = now
		return true, nil
	}
	nextRank, ok := statusRank[next]
	if !ok {
		return false, dErrors.Newf(dErrors.CodeBadRequest, "invalid delivery status %q", next)
	}
	if nextRank <= statusRank[m.Status] {
		return false, nil
	}
	m.Status = next
	m.UpdatedAt = now
	return true, nil
}
