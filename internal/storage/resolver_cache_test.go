package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupResolverCache creates a ResolverCache backed by a test Redis instance.
func setupResolverCache(t *testing.T, ttl time.Duration) (*ResolverCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewResolverCache(NewRedisCacheFromClient(client), ttl), mr
}

func TestResolverCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss on empty cache", func(t *testing.T) {
		cache, _ := setupResolverCache(t, time.Hour)

		gameID, hit, err := cache.Get(ctx, "400", "portal", "steam")
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Zero(t, gameID)
	})

	t.Run("positive result round trips", func(t *testing.T) {
		cache, _ := setupResolverCache(t, time.Hour)

		require.NoError(t, cache.Put(ctx, "400", "portal", "steam", 17))

		gameID, hit, err := cache.Get(ctx, "400", "portal", "steam")
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, int64(17), gameID)
	})

	t.Run("negative result is a hit with zero id", func(t *testing.T) {
		cache, _ := setupResolverCache(t, time.Hour)

		require.NoError(t, cache.Put(ctx, "", "unknown game", "gog", 0))

		gameID, hit, err := cache.Get(ctx, "", "unknown game", "gog")
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Zero(t, gameID)
	})

	t.Run("distinct inputs use distinct keys", func(t *testing.T) {
		cache, _ := setupResolverCache(t, time.Hour)

		require.NoError(t, cache.Put(ctx, "400", "portal", "steam", 17))

		_, hit, err := cache.Get(ctx, "400", "portal", "gog")
		require.NoError(t, err)
		assert.False(t, hit)

		_, hit, err = cache.Get(ctx, "", "portal", "steam")
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("entries expire", func(t *testing.T) {
		cache, mr := setupResolverCache(t, time.Minute)

		require.NoError(t, cache.Put(ctx, "400", "portal", "steam", 17))

		mr.FastForward(2 * time.Minute)

		_, hit, err := cache.Get(ctx, "400", "portal", "steam")
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("invalidate drops every lookup for the game", func(t *testing.T) {
		cache, _ := setupResolverCache(t, time.Hour)

		require.NoError(t, cache.Put(ctx, "400", "portal", "steam", 17))
		require.NoError(t, cache.Put(ctx, "", "portal", "gog", 17))
		require.NoError(t, cache.Put(ctx, "620", "portal 2", "steam", 18))

		require.NoError(t, cache.InvalidateGame(ctx, 17))

		_, hit, err := cache.Get(ctx, "400", "portal", "steam")
		require.NoError(t, err)
		assert.False(t, hit)

		_, hit, err = cache.Get(ctx, "", "portal", "gog")
		require.NoError(t, err)
		assert.False(t, hit)

		// unrelated game survives
		gameID, hit, err := cache.Get(ctx, "620", "portal 2", "steam")
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, int64(18), gameID)
	})

	t.Run("invalidate with no cached lookups is a no-op", func(t *testing.T) {
		cache, _ := setupResolverCache(t, time.Hour)
		assert.NoError(t, cache.InvalidateGame(ctx, 99))
	})

	t.Run("negative results are not tagged", func(t *testing.T) {
		cache, _ := setupResolverCache(t, time.Hour)

		require.NoError(t, cache.Put(ctx, "", "unknown game", "gog", 0))
		require.NoError(t, cache.InvalidateGame(ctx, 0))

		// the negative entry is keyed on the lookup, not the game tag
		_, hit, err := cache.Get(ctx, "", "unknown game", "gog")
		require.NoError(t, err)
		assert.True(t, hit)
	})
}
