//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-storebridge/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a reachable Redis server at REDIS_ADDR.
func TestRedisCache_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	cfg := &cache.RedisConfig{
		Addr:      addr,
		KeyPrefix: "storebridge-test-" + uuid.NewString() + ":",
		CacheTTL:  time.Minute,
	}
	c, err := cache.NewRedisCache[string, cache.Entry](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	t.Run("Set and Get", func(t *testing.T) {
		entry := cache.NewEntry([]byte(`{"schema_version":1}`))
		require.NoError(t, c.WriteToCache(ctx, "session", entry))

		got, err := c.FetchFromCache(ctx, "session")
		require.NoError(t, err)
		assert.Equal(t, entry.Data, got.Data)
		assert.WithinDuration(t, entry.UpdatedAt, got.UpdatedAt, time.Second)
	})

	t.Run("Miss and invalidate", func(t *testing.T) {
		require.NoError(t, c.Invalidate(ctx, "session"))
		_, err := c.FetchFromCache(ctx, "session")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})
}
