package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"globalreach/pkg/platform/sentinel"
)

func TestInMemoryStateSingleUse(t *testing.T) {
	s := NewInMemoryState()
	ctx := context.Background()

	if err := s.Put(ctx, "state-1", "google", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	provider, err := s.Consume(ctx, "state-1")
	if err != nil || provider != "google" {
		t.Fatalf("consume: got (%q, %v)", provider, err)
	}

	if _, err := s.Consume(ctx, "state-1"); !errors.Is(err, sentinel.ErrExpired) {
		t.Fatalf("second consume: expected ErrExpired, got %v", err)
	}
}

func TestInMemoryStateTTL(t *testing.T) {
	s := NewInMemoryState()
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Put(ctx, "state-1", "meta", 10*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	now = now.Add(11 * time.Minute)
	if _, err := s.Consume(ctx, "state-1"); !errors.Is(err, sentinel.ErrExpired) {
		t.Fatalf("expected ErrExpired after ttl, got %v", err)
	}
}
