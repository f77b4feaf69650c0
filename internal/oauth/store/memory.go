package store

import (
	"context"
	"sort"
	"sync"

	"globalreach/internal/oauth/models"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded connection store.
type InMemory struct {
	mu          sync.RWMutex
	connections map[id.ConnectionID]*models.Connection
	byProvider  map[string]id.ConnectionID
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		connections: make(map[id.ConnectionID]*models.Connection),
		byProvider:  make(map[string]id.ConnectionID),
	}
}

// Upsert replaces the provider's connection; reconnecting overwrites the
// previous grant.
func (s *InMemory) Upsert(_ context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if previousID, ok := s.byProvider[conn.Provider]; ok && previousID != conn.ID {
		delete(s.connections, previousID)
	}
	cp := *conn
	s.connections[conn.ID] = &cp
	s.byProvider[conn.Provider] = conn.ID
	return nil
}

// Update replaces an existing connection in place (token refresh).
func (s *InMemory) Update(_ context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.connections[conn.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *conn
	s.connections[conn.ID] = &cp
	return nil
}

// FindByID returns the connection with the given id.
func (s *InMemory) FindByID(_ context.Context, connectionID id.ConnectionID) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connections[connectionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *conn
	return &cp, nil
}

// FindByProvider returns the provider's current connection.
func (s *InMemory) FindByProvider(_ context.Context, provider string) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connectionID, ok := s.byProvider[provider]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.connections[connectionID]
	return &cp, nil
}

// List returns all connections ordered by provider name.
func (s *InMemory) List(_ context.Context) ([]*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		cp := *conn
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// Delete removes a connection.
func (s *InMemory) Delete(_ context.Context, connectionID id.ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[connectionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byProvider, conn.Provider)
	delete(s.connections, connectionID)
	return nil
}
