// Package dedupe suppresses webhook re-deliveries. Providers retry until
// they see a 2xx, so the same event can arrive many times and, with
// several replicas behind one load balancer, on different processes.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is how long a provider event id is remembered. WhatsApp retries
// for up to a day, so anything shorter lets duplicates through.
const Window = 24 * time.Hour

// Deduper answers whether an event id was already processed, marking it
// in the same call.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Redis dedupes across replicas with SETNX and a TTL.
type Redis struct {
	client *redis.Client
	window time.Duration
}

// NewRedis creates a Redis-backed deduper.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, window: Window}
}

func (d *Redis) Seen(ctx context.Context, key string) (bool, error) {
	set, err := d.client.SetNX(ctx, "webhook:seen:"+key, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return !set, nil
}

// InMemory is the single-process fallback. Entries are pruned lazily on
// access.
type InMemory struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

// NewInMemory creates an empty in-memory deduper.
func NewInMemory() *InMemory {
	return &InMemory{seen: make(map[string]time.Time), window: Window, now: time.Now}
}

func (d *InMemory) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return true, nil
	}
	for k, expiry := range d.seen {
		if !now.Before(expiry) {
			delete(d.seen, k)
		}
	}
	d.seen[key] = now.Add(d.window)
	return false, nil
}
