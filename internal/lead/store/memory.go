// Package store persists leads. Memory and Postgres variants share the
// same sentinel error contract.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"globalreach/internal/lead/models"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
)

// Filter narrows List results.
type Filter struct {
	Status  models.LeadStatus
	Channel id.Channel
	Limit   int
	Offset  int
}

// InMemory is a mutex-guarded lead store.
type InMemory struct {
	mu    sync.RWMutex
	leads map[id.LeadID]*models.Lead
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{leads: make(map[id.LeadID]*models.Lead)}
}

// Create inserts the lead, rejecting duplicate (channel, phone) pairs.
func (s *InMemory) Create(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lead.Phone != "" {
		for _, existing := range s.leads {
			if existing.Channel == lead.Channel && existing.Phone == lead.Phone {
				return sentinel.ErrAlreadyUsed
			}
		}
	}
	cp := *lead
	s.leads[lead.ID] = &cp
	return nil
}

// Update replaces an existing lead.
func (s *InMemory) Update(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[lead.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *lead
	s.leads[lead.ID] = &cp
	return nil
}

// FindByID returns the lead with the given id.
func (s *InMemory) FindByID(_ context.Context, leadID id.LeadID) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *lead
	return &cp, nil
}

// FindByHandle looks a lead up by normalized phone or lowercased email on a
// channel. Used by webhook receivers to attach inbound messages.
func (s *InMemory) FindByHandle(_ context.Context, channel id.Channel, handle string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle = strings.ToLower(models.NormalizePhone(handle))
	for _, lead := range s.leads {
		if lead.Channel != channel {
			continue
		}
		if (lead.Phone != "" && strings.ToLower(lead.Phone) == handle) ||
			(lead.Email != "" && lead.Email == handle) {
			cp := *lead
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// List returns leads matching the filter, newest first.
func (s *InMemory) List(_ context.Context, filter Filter) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Lead
	for _, lead := range s.leads {
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && lead.Channel != filter.Channel {
			continue
		}
		cp := *lead
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete removes the lead.
func (s *InMemory) Delete(_ context.Context, leadID id.LeadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[leadID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.leads, leadID)
	return nil
}
