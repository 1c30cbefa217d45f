// Package resolver maps raw external game references onto canonical catalog
// games.
package resolver

import (
	"context"
	"fmt"
	"log"

	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/storage"
)

// Catalog is the lookup surface the resolver needs from the game store
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*models.Game, error)
	FindByStoreID(ctx context.Context, storeSlug, externalID string) (*models.Game, error)
	FindBySynonym(ctx context.Context, name string) ([]*models.Game, error)
	FindByName(ctx context.Context, name string, byRussian bool) (*models.Game, error)
	GetRedirect(ctx context.Context, oldSlug string) (*models.GameRedirect, error)
}

// Cache is the resolution cache surface. Implemented by storage.ResolverCache.
type Cache interface {
	Get(ctx context.Context, appID, name, storeSlug string) (int64, bool, error)
	Put(ctx context.Context, appID, name, storeSlug string, gameID int64) error
}

// Resolver resolves one external game reference to zero-or-one catalog game.
//
// Lookup priority, stopping at the first hit: store-id mapping, then synonym,
// then exact canonical name, then exact Russian name, then a slug redirect
// left behind by a duplicate-game merge. Store-id matches always win because
// the external id is the least ambiguous signal; the name-based fallbacks
// additionally filter out unreleased games and games with no sync-eligible
// store so a name collision cannot attach a user's copy to an unrelated
// listing.
type Resolver struct {
	catalog Catalog
	cache   Cache
}

// Config holds resolver dependencies
type Config struct {
	Catalog Catalog
	Cache   Cache
}

// New creates a new resolver
func New(cfg Config) (*Resolver, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	return &Resolver{catalog: cfg.Catalog, cache: cfg.Cache}, nil
}

// Resolve maps (appID, rawName, storeSlug) to a catalog game, or nil when the
// reference has no catalog equivalent. The normalized name is returned either
// way so callers can record what was actually compared. A nil game with a nil
// error is a valid outcome, not a failure.
func (r *Resolver) Resolve(ctx context.Context, appID, rawName, storeSlug string) (*models.Game, string, error) {
	store := CanonicalStore(storeSlug)
	normalized := Normalize(store, rawName)

	if r.cache != nil {
		gameID, hit, err := r.cache.Get(ctx, appID, normalized, store)
		if err != nil {
			// cache trouble degrades to a database lookup
			log.Printf("[Resolver] cache read failed for %q: %v", normalized, err)
		} else if hit {
			if gameID == 0 {
				return nil, normalized, nil
			}
			game, err := r.catalog.GetByID(ctx, gameID)
			if err != nil {
				return nil, normalized, fmt.Errorf("failed to load cached game %d: %w", gameID, err)
			}
			if game != nil {
				return game, normalized, nil
			}
			// cached id no longer exists (merged away); fall through to a
			// fresh lookup
		}
	}

	game, err := r.lookup(ctx, appID, normalized, store)
	if err != nil {
		return nil, normalized, err
	}

	if r.cache != nil {
		var gameID int64
		if game != nil {
			gameID = game.ID
		}
		if err := r.cache.Put(ctx, appID, normalized, store, gameID); err != nil {
			log.Printf("[Resolver] cache write failed for %q: %v", normalized, err)
		}
	}

	return game, normalized, nil
}

func (r *Resolver) lookup(ctx context.Context, appID, normalized, store string) (*models.Game, error) {
	if appID != "" {
		game, err := r.catalog.FindByStoreID(ctx, store, appID)
		if err != nil {
			return nil, fmt.Errorf("store-id lookup failed: %w", err)
		}
		if game != nil {
			return game, nil
		}
	}

	if normalized == "" {
		return nil, nil
	}

	candidates, err := r.catalog.FindBySynonym(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("synonym lookup failed: %w", err)
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}

	game, err := r.catalog.FindByName(ctx, normalized, false)
	if err != nil {
		return nil, fmt.Errorf("name lookup failed: %w", err)
	}
	if game != nil {
		return game, nil
	}

	game, err = r.catalog.FindByName(ctx, normalized, true)
	if err != nil {
		return nil, fmt.Errorf("russian name lookup failed: %w", err)
	}
	if game != nil {
		return game, nil
	}

	// a merged-away game keeps resolving through the redirect its merge wrote
	slug := Slugify(normalized)
	if slug == "" {
		return nil, nil
	}
	redirect, err := r.catalog.GetRedirect(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("redirect lookup failed: %w", err)
	}
	if redirect != nil {
		game, err := r.catalog.GetByID(ctx, redirect.GameID)
		if err != nil {
			return nil, fmt.Errorf("failed to load redirect target %d: %w", redirect.GameID, err)
		}
		return game, nil
	}

	return nil, nil
}

var _ Catalog = (*storage.GameRepository)(nil)
