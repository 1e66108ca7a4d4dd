package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server; set DISPATCH_TEST_REDIS_ADDR to enable.
func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("DISPATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DISPATCH_TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDeduplicatorMarksAndExpires(t *testing.T) {
	client := newTestClient(t)
	dedup := NewDeduplicator(client, time.Second)
	ctx := context.Background()
	id := uuid.NewString()

	seen, err := dedup.Seen(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, dedup.Mark(ctx, id))
	seen, err = dedup.Seen(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := client.TTL(ctx, keyPrefix+id).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestDeduplicatorIgnoresEmptyIDs(t *testing.T) {
	dedup := NewDeduplicator(nil, time.Minute)
	seen, err := dedup.Seen(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.NoError(t, dedup.Mark(context.Background(), " "))
}
