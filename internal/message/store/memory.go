// Package store persists messages.
package store

import (
	"context"
	"sort"
	"sync"

	"globalreach/internal/message/models"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded message store.
type InMemory struct {
	mu         sync.RWMutex
	messages   map[id.MessageID]*models.Message
	byProvider map[string]id.MessageID
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		messages:   make(map[id.MessageID]*models.Message),
		byProvider: make(map[string]id.MessageID),
	}
}

// Create inserts the message.
func (s *InMemory) Create(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	s.messages[msg.ID] = &cp
	if msg.ProviderMessageID != "" {
		s.byProvider[msg.ProviderMessageID] = msg.ID
	}
	return nil
}

// Update replaces an existing message.
func (s *InMemory) Update(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	if msg.ProviderMessageID != "" {
		s.byProvider[msg.ProviderMessageID] = msg.ID
	}
	return nil
}

// FindByID returns the message with the given id.
func (s *InMemory) FindByID(_ context.Context, messageID id.MessageID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

// FindByProviderMessageID correlates a delivery receipt with its message.
func (s *InMemory) FindByProviderMessageID(_ context.Context, providerMessageID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messageID, ok := s.byProvider[providerMessageID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.messages[messageID]
	return &cp, nil
}

// ListByLead returns a lead's messages, oldest first.
func (s *InMemory) ListByLead(_ context.Context, leadID id.LeadID, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Message
	for _, msg := range s.messages {
		if msg.LeadID == leadID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}
