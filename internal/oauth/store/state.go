// Package store persists OAuth flow state and connections.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"globalreach/pkg/platform/sentinel"
)

// StateStore holds pending OAuth states. Consume is single-use: the state
// is gone after the first read so a replayed callback cannot redeem it.
type StateStore interface {
	Put(ctx context.Context, state, provider string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (provider string, err error)
}

// RedisState keeps states in Redis so any replica can finish a flow
// another replica started.
type RedisState struct {
	client *redis.Client
}

// NewRedisState creates a Redis-backed state store.
func NewRedisState(client *redis.Client) *RedisState {
	return &RedisState{client: client}
}

func stateKey(state string) string { return "oauth:state:" + state }

func (s *RedisState) Put(ctx context.Context, state, provider string, ttl time.Duration) error {
	if err := s.client.Set(ctx, stateKey(state), provider, ttl).Err(); err != nil {
		return fmt.Errorf("store oauth state: %w", err)
	}
	return nil
}

// Consume reads and deletes atomically via GETDEL.
func (s *RedisState) Consume(ctx context.Context, state string) (string, error) {
	provider, err := s.client.GetDel(ctx, stateKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrExpired
	}
	if err != nil {
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	return provider, nil
}

type memoryState struct {
	provider  string
	expiresAt time.Time
}

// InMemoryState is the single-process fallback when Redis is not
// configured.
type InMemoryState struct {
	mu     sync.Mutex
	states map[string]memoryState
	now    func() time.Time
}

// NewInMemoryState creates an empty in-memory state store.
func NewInMemoryState() *InMemoryState {
	return &InMemoryState{states: make(map[string]memoryState), now: time.Now}
}

func (s *InMemoryState) Put(_ context.Context, state, provider string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = memoryState{provider: provider, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryState) Consume(_ context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	if !ok {
		return "", sentinel.ErrExpired
	}
	delete(s.states, state)
	if s.now().After(entry.expiresAt) {
		return "", sentinel.ErrExpired
	}
	return entry.provider, nil
}
