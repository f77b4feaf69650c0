// Package store persists channel configurations. The in-memory variant
// backs unit tests and Postgres-less development; production uses the
// Postgres variant.
package store

import (
	"context"
	"sync"

	"globalreach/internal/channelcfg/models"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded channel config store.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.ChannelConfigID]*models.ChannelConfig
	byChan  map[id.Channel]id.ChannelConfigID
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.ChannelConfigID]*models.ChannelConfig),
		byChan: make(map[id.Channel]id.ChannelConfigID),
	}
}

// Create inserts the config if its channel is not already configured.
func (s *InMemory) Create(_ context.Context, cfg *models.ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byChan[cfg.Channel]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *cfg
	s.byID[cfg.ID] = &cp
	s.byChan[cfg.Channel] = cfg.ID
	return nil
}

// Update replaces an existing config.
func (s *InMemory) Update(_ context.Context, cfg *models.ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[cfg.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Channel != cfg.Channel {
		return sentinel.ErrInvalidState
	}
	cp := *cfg
	s.byID[cfg.ID] = &cp
	return nil
}

// FindByID returns the config with the given id.
func (s *InMemory) FindByID(_ context.Context, configID id.ChannelConfigID) (*models.ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.byID[configID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

// FindByChannel returns the config for the given channel.
func (s *InMemory) FindByChannel(_ context.Context, channel id.Channel) (*models.ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configID, ok := s.byChan[channel]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[configID]
	return &cp, nil
}

// List returns every config.
func (s *InMemory) List(_ context.Context) ([]*models.ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ChannelConfig, 0, len(s.byID))
	for _, cfg := range s.byID {
		cp := *cfg
		out = append(out, &cp)
	}
	return out, nil
}

// Delete removes the config.
func (s *InMemory) Delete(_ context.Context, configID id.ChannelConfigID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.byID[configID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byChan, cfg.Channel)
	delete(s.byID, configID)
	return nil
}
