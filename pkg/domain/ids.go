// Package domain defines typed identifiers shared across verticals.
//
// Each ID is a distinct type over uuid.UUID so a LeadID cannot be passed
// where a MessageID is expected. Stores and handlers parse raw strings at
// the boundary and hand typed IDs to services.
package domain

import (
	"github.com/google/uuid"
)

// LeadID identifies a CRM lead.
type LeadID uuid.UUID

// MessageID identifies a message record.
type MessageID uuid.UUID

// ConnectionID identifies an OAuth provider connection.
type ConnectionID uuid.UUID

// ChannelConfigID identifies a messaging channel configuration.
type ChannelConfigID uuid.UUID

func NewLeadID() LeadID                   { return LeadID(uuid.New()) }
func NewMessageID() MessageID             { return MessageID(uuid.New()) }
func NewConnectionID() ConnectionID       { return ConnectionID(uuid.New()) }
func NewChannelConfigID() ChannelConfigID { return ChannelConfigID(uuid.New()) }

func (id LeadID) String() string          { return uuid.UUID(id).String() }
func (id MessageID) String() string       { return uuid.UUID(id).String() }
func (id ConnectionID) String() string    { return uuid.UUID(id).String() }
func (id ChannelConfigID) String() string { return uuid.UUID(id).String() }

func (id LeadID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ConnectionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ChannelConfigID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseLeadID parses a lead ID from its string form.
func ParseLeadID(s string) (LeadID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return LeadID{}, err
	}
	return LeadID(u), nil
}

// ParseMessageID parses a message ID from its string form.
func ParseMessageID(s string) (MessageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, err
	}
	return MessageID(u), nil
}

// ParseConnectionID parses a connection ID from its string form.
func ParseConnectionID(s string) (ConnectionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ConnectionID{}, err
	}
	return ConnectionID(u), nil
}

// ParseChannelConfigID parses a channel config ID from its string form.
func ParseChannelConfigID(s string) (ChannelConfigID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChannelConfigID{}, err
	}
	return ChannelConfigID(u), nil
}
