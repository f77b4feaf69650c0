// Package store persists the relay's forwarding target.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"globalreach/pkg/platform/sentinel"
)

// TargetStore holds the base URL callbacks are forwarded to.
type TargetStore interface {
	Set(ctx context.Context, baseURL string) error
	Get(ctx context.Context) (string, error)
}

const targetKey = "relay:target"

// RedisTarget shares the target across relay replicas.
type RedisTarget struct {
	client *redis.Client
}

// NewRedisTarget creates a Redis-backed target store.
func NewRedisTarget(client *redis.Client) *RedisTarget {
	return &RedisTarget{client: client}
}

func (s *RedisTarget) Set(ctx context.Context, baseURL string) error {
	if err := s.client.Set(ctx, targetKey, baseURL, 0).Err(); err != nil {
		return fmt.Errorf("store relay target: %w", err)
	}
	return nil
}

func (s *RedisTarget) Get(ctx context.Context) (string, error) {
	target, err := s.client.Get(ctx, targetKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load relay target: %w", err)
	}
	return target, nil
}

// InMemoryTarget is the single-process fallback.
type InMemoryTarget struct {
	mu     sync.RWMutex
	target string
}

// NewInMemoryTarget creates an empty in-memory target store.
func NewInMemoryTarget() *InMemoryTarget {
	return &InMemoryTarget{}
}

func (s *InMemoryTarget) Set(_ context.Context, baseURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = baseURL
	return nil
}

func (s *InMemoryTarget) Get(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.target == "" {
		return "", sentinel.ErrNotFound
	}
	return s.target, nil
}
