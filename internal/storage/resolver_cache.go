package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResolverCache caches game-resolution outcomes in Redis. Each cached key is
// also recorded in a per-game tag set so a game merge can invalidate every
// lookup that resolved to it.
type ResolverCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewResolverCache creates a new resolver cache
func NewResolverCache(cache *RedisCache, ttl time.Duration) *ResolverCache {
	return &ResolverCache{cache: cache, ttl: ttl}
}

// resolveKey derives the cache key from the raw lookup inputs
func resolveKey(appID, name, storeSlug string) string {
	sum := sha1.Sum([]byte(appID + "|" + name + "|" + storeSlug))
	return "resolve:" + hex.EncodeToString(sum[:])
}

func gameTagKey(gameID int64) string {
	return "resolve:game:" + strconv.FormatInt(gameID, 10)
}

// Get returns the cached game id for a lookup. The second return reports a
// cache hit; a cached miss (lookup known to resolve to nothing) is returned
// as (0, true, nil).
func (c *ResolverCache) Get(ctx context.Context, appID, name, storeSlug string) (int64, bool, error) {
	value, err := c.cache.Get(ctx, resolveKey(appID, name, storeSlug))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read resolver cache: %w", err)
	}

	gameID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse cached game id: %w", err)
	}

	return gameID, true, nil
}

// Put caches a resolution outcome. gameID 0 records a negative result. A
// positive result is added to the game's tag set so InvalidateGame can find
// it later.
func (c *ResolverCache) Put(ctx context.Context, appID, name, storeSlug string, gameID int64) error {
	key := resolveKey(appID, name, storeSlug)

	if err := c.cache.Set(ctx, key, strconv.FormatInt(gameID, 10), c.ttl); err != nil {
		return fmt.Errorf("failed to write resolver cache: %w", err)
	}

	if gameID != 0 {
		tag := gameTagKey(gameID)
		if err := c.cache.SAdd(ctx, tag, key); err != nil {
			return fmt.Errorf("failed to tag resolver cache entry: %w", err)
		}
		// the tag set outlives its members slightly so invalidation still
		// finds keys written near the end of the TTL
		if err := c.cache.Expire(ctx, tag, c.ttl*2); err != nil {
			return fmt.Errorf("failed to expire resolver tag set: %w", err)
		}
	}

	return nil
}

// InvalidateGame drops every cached lookup that resolved to the game. Called
// after a merge redirects the game elsewhere.
func (c *ResolverCache) InvalidateGame(ctx context.Context, gameID int64) error {
	tag := gameTagKey(gameID)

	keys, err := c.cache.SMembers(ctx, tag)
	if err != nil {
		return fmt.Errorf("failed to read resolver tag set: %w", err)
	}

	if len(keys) > 0 {
		if err := c.cache.Del(ctx, keys...); err != nil {
			return fmt.Errorf("failed to invalidate resolver cache: %w", err)
		}
	}

	if err := c.cache.Del(ctx, tag); err != nil {
		return fmt.Errorf("failed to drop resolver tag set: %w", err)
	}

	return nil
}
