//go:build integration

package dedupe_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"globalreach/internal/webhook/dedupe"
	"globalreach/pkg/testutil/containers"
)

func TestRedisSeen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	d := dedupe.NewRedis(rc.Client)

	seen, err := d.Seen(ctx, "wamid.first")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = d.Seen(ctx, "wamid.first")
	require.NoError(t, err)
	require.True(t, seen, "redelivery must be flagged")

	seen, err = d.Seen(ctx, "wamid.second")
	require.NoError(t, err)
	require.False(t, seen, "distinct ids never collide")
}
