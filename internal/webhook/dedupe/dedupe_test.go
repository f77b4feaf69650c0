package dedupe

import (
	"context"
	"testing"
	"time"
)

func TestInMemorySeen(t *testing.T) {
	d := NewInMemory()
	ctx := context.Background()

	seen, err := d.Seen(ctx, "wamid.A")
	if err != nil || seen {
		t.Fatalf("first sighting: got (%v, %v)", seen, err)
	}
	seen, err = d.Seen(ctx, "wamid.A")
	if err != nil || !seen {
		t.Fatalf("second sighting: got (%v, %v)", seen, err)
	}
	seen, _ = d.Seen(ctx, "wamid.B")
	if seen {
		t.Fatal("different key must not be seen")
	}
}

func TestInMemoryWindowExpiry(t *testing.T) {
	d := NewInMemory()
	now := time.Date(2026, 8, 4, 8, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if seen, _ := d.Seen(ctx, "wamid.A"); seen {
		t.Fatal("fresh key reported seen")
	}

	now = now.Add(Window + time.Minute)
	if seen, _ := d.Seen(ctx, "wamid.A"); seen {
		t.Fatal("expired key reported seen")
	}
}
