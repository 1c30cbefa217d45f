package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-sync/internal/models"
)

// fakeCatalog serves fixed games keyed by lookup kind and records which
// lookups ran.
type fakeCatalog struct {
	byID      map[int64]*models.Game
	byStoreID map[string]*models.Game // store + "/" + externalID
	bySynonym map[string][]*models.Game
	byName    map[string]*models.Game
	byNameRu  map[string]*models.Game
	redirects map[string]*models.GameRedirect
	calls     []string
}

func (f *fakeCatalog) GetByID(_ context.Context, id int64) (*models.Game, error) {
	f.calls = append(f.calls, "id")
	return f.byID[id], nil
}

func (f *fakeCatalog) FindByStoreID(_ context.Context, storeSlug, externalID string) (*models.Game, error) {
	f.calls = append(f.calls, "store")
	return f.byStoreID[storeSlug+"/"+externalID], nil
}

func (f *fakeCatalog) FindBySynonym(_ context.Context, name string) ([]*models.Game, error) {
	f.calls = append(f.calls, "synonym")
	return f.bySynonym[name], nil
}

func (f *fakeCatalog) FindByName(_ context.Context, name string, byRussian bool) (*models.Game, error) {
	if byRussian {
		f.calls = append(f.calls, "name_ru")
		return f.byNameRu[name], nil
	}
	f.calls = append(f.calls, "name")
	return f.byName[name], nil
}

func (f *fakeCatalog) GetRedirect(_ context.Context, oldSlug string) (*models.GameRedirect, error) {
	f.calls = append(f.calls, "redirect")
	return f.redirects[oldSlug], nil
}

// fakeCache is an always-available in-memory Cache
type fakeCache struct {
	entries map[string]int64
}

func cacheKey(appID, name, storeSlug string) string {
	return appID + "|" + name + "|" + storeSlug
}

func (f *fakeCache) Get(_ context.Context, appID, name, storeSlug string) (int64, bool, error) {
	id, ok := f.entries[cacheKey(appID, name, storeSlug)]
	return id, ok, nil
}

func (f *fakeCache) Put(_ context.Context, appID, name, storeSlug string, gameID int64) error {
	if f.entries == nil {
		f.entries = make(map[string]int64)
	}
	f.entries[cacheKey(appID, name, storeSlug)] = gameID
	return nil
}

func newResolver(t *testing.T, catalog Catalog, cache Cache) *Resolver {
	t.Helper()
	r, err := New(Config{Catalog: catalog, Cache: cache})
	require.NoError(t, err)
	return r
}

func TestResolverRequiresCatalog(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestResolveLookupPriority(t *testing.T) {
	ctx := context.Background()

	portalByStore := &models.Game{ID: 1, Name: "Portal"}
	portalBySynonym := &models.Game{ID: 2, Name: "Portal"}
	portalByName := &models.Game{ID: 3, Name: "Portal"}

	t.Run("store id beats synonym and name", func(t *testing.T) {
		catalog := &fakeCatalog{
			byStoreID: map[string]*models.Game{"steam/400": portalByStore},
			bySynonym: map[string][]*models.Game{"portal": {portalBySynonym}},
			byName:    map[string]*models.Game{"portal": portalByName},
		}

		game, normalized, err := newResolver(t, catalog, nil).Resolve(ctx, "400", "Portal", "steam")
		require.NoError(t, err)
		require.NotNil(t, game)
		assert.Equal(t, int64(1), game.ID)
		assert.Equal(t, "portal", normalized)
		assert.Equal(t, []string{"store"}, catalog.calls)
	})

	t.Run("synonym beats name", func(t *testing.T) {
		catalog := &fakeCatalog{
			bySynonym: map[string][]*models.Game{"portal": {portalBySynonym}},
			byName:    map[string]*models.Game{"portal": portalByName},
		}

		game, _, err := newResolver(t, catalog, nil).Resolve(ctx, "400", "Portal", "steam")
		require.NoError(t, err)
		require.NotNil(t, game)
		assert.Equal(t, int64(2), game.ID)
		assert.Equal(t, []string{"store", "synonym"}, catalog.calls)
	})

	t.Run("russian name is the last fallback", func(t *testing.T) {
		catalog := &fakeCatalog{
			byNameRu: map[string]*models.Game{"портал": {ID: 4}},
		}

		game, _, err := newResolver(t, catalog, nil).Resolve(ctx, "", "Портал", "steam")
		require.NoError(t, err)
		require.NotNil(t, game)
		assert.Equal(t, int64(4), game.ID)
		assert.Equal(t, []string{"synonym", "name", "name_ru"}, catalog.calls)
	})

	t.Run("no app id skips store lookup", func(t *testing.T) {
		catalog := &fakeCatalog{
			byName: map[string]*models.Game{"portal": portalByName},
		}

		game, _, err := newResolver(t, catalog, nil).Resolve(ctx, "", "Portal", "steam")
		require.NoError(t, err)
		require.NotNil(t, game)
		assert.Equal(t, []string{"synonym", "name"}, catalog.calls)
	})

	t.Run("merged-away name resolves through its redirect", func(t *testing.T) {
		survivor := &models.Game{ID: 5, Name: "Portal", Slug: "portal"}
		catalog := &fakeCatalog{
			byID: map[int64]*models.Game{5: survivor},
			redirects: map[string]*models.GameRedirect{
				"portal-classic": {OldSlug: "portal-classic", NewSlug: "portal", GameID: 5},
			},
		}

		game, _, err := newResolver(t, catalog, nil).Resolve(ctx, "", "Portal Classic", "steam")
		require.NoError(t, err)
		require.NotNil(t, game)
		assert.Equal(t, int64(5), game.ID)
		assert.Equal(t, []string{"synonym", "name", "name_ru", "redirect", "id"}, catalog.calls)
	})

	t.Run("nothing matches", func(t *testing.T) {
		catalog := &fakeCatalog{}

		game, normalized, err := newResolver(t, catalog, nil).Resolve(ctx, "999", "Unknown Game", "gog")
		require.NoError(t, err)
		assert.Nil(t, game)
		assert.Equal(t, "unknown game", normalized)
	})

	t.Run("empty normalized name stops after store lookup", func(t *testing.T) {
		catalog := &fakeCatalog{}

		game, normalized, err := newResolver(t, catalog, nil).Resolve(ctx, "", "™", "steam")
		require.NoError(t, err)
		assert.Nil(t, game)
		assert.Empty(t, normalized)
		assert.Empty(t, catalog.calls)
	})
}

func TestResolveCaching(t *testing.T) {
	ctx := context.Background()
	portal := &models.Game{ID: 1, Name: "Portal"}

	t.Run("hit skips catalog lookups", func(t *testing.T) {
		catalog := &fakeCatalog{
			byID:      map[int64]*models.Game{1: portal},
			byStoreID: map[string]*models.Game{"steam/400": portal},
		}
		cache := &fakeCache{}
		r := newResolver(t, catalog, cache)

		_, _, err := r.Resolve(ctx, "400", "Portal", "steam")
		require.NoError(t, err)

		catalog.calls = nil
		game, _, err := r.Resolve(ctx, "400", "Portal", "steam")
		require.NoError(t, err)
		require.NotNil(t, game)
		assert.Equal(t, int64(1), game.ID)
		assert.Equal(t, []string{"id"}, catalog.calls)
	})

	t.Run("negative result is cached", func(t *testing.T) {
		catalog := &fakeCatalog{}
		cache := &fakeCache{}
		r := newResolver(t, catalog, cache)

		_, _, err := r.Resolve(ctx, "", "Unknown Game", "gog")
		require.NoError(t, err)

		catalog.calls = nil
		game, _, err := r.Resolve(ctx, "", "Unknown Game", "gog")
		require.NoError(t, err)
		assert.Nil(t, game)
		assert.Empty(t, catalog.calls)
	})

	t.Run("stale cached id falls back to a fresh lookup", func(t *testing.T) {
		// cached game 9 no longer exists, the fresh lookup finds the survivor
		catalog := &fakeCatalog{
			byStoreID: map[string]*models.Game{"steam/400": portal},
		}
		cache := &fakeCache{entries: map[string]int64{
			cacheKey("400", "portal", "steam"): 9,
		}}

		game, _, err := newResolver(t, catalog, cache).Resolve(ctx, "400", "Portal", "steam")
		require.NoError(t, err)
		require.NotNil(t, game)
		assert.Equal(t, int64(1), game.ID)
	})
}
