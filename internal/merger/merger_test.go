package merger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/types"
)

func TestApply(t *testing.T) {
	t.Run("never changes status", func(t *testing.T) {
		entry := &models.UserGame{
			Status:       types.StatusBeaten,
			StatusManual: true,
			Playtime:     600,
			Platforms:    []string{"pc"},
		}

		Apply(entry, types.RawGame{Playtime: 700, Status: types.StatusOwned}, "steam")

		assert.Equal(t, types.StatusBeaten, entry.Status)
		assert.True(t, entry.StatusManual)
	})

	t.Run("playtime only grows", func(t *testing.T) {
		entry := &models.UserGame{Playtime: 600}

		Apply(entry, types.RawGame{Playtime: 700}, "steam")
		assert.Equal(t, 700, entry.Playtime)

		Apply(entry, types.RawGame{Playtime: 100}, "gog")
		assert.Equal(t, 700, entry.Playtime)
	})

	t.Run("platform set only gains members", func(t *testing.T) {
		entry := &models.UserGame{Platforms: []string{"pc"}}

		Apply(entry, types.RawGame{}, "steam")
		assert.Equal(t, []string{"pc", "steam"}, entry.Platforms)

		Apply(entry, types.RawGame{}, "steam")
		assert.Equal(t, []string{"pc", "steam"}, entry.Platforms)
	})

	t.Run("last played only advances", func(t *testing.T) {
		older := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		newer := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

		entry := &models.UserGame{}

		Apply(entry, types.RawGame{LastPlayed: older}, "steam")
		assert.NotNil(t, entry.LastPlayed)
		assert.Equal(t, older, *entry.LastPlayed)

		Apply(entry, types.RawGame{LastPlayed: newer}, "gog")
		assert.Equal(t, newer, *entry.LastPlayed)

		Apply(entry, types.RawGame{LastPlayed: older}, "xbox")
		assert.Equal(t, newer, *entry.LastPlayed)
	})

	t.Run("zero last played leaves entry untouched", func(t *testing.T) {
		played := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
		entry := &models.UserGame{LastPlayed: &played}

		Apply(entry, types.RawGame{}, "steam")

		assert.Equal(t, played, *entry.LastPlayed)
	})

	t.Run("idempotent", func(t *testing.T) {
		played := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		raw := types.RawGame{Playtime: 300, LastPlayed: played}

		entry := &models.UserGame{Status: types.StatusOwned, Platforms: []string{"pc"}}
		Apply(entry, raw, "steam")

		first := *entry
		firstPlatforms := append([]string(nil), entry.Platforms...)

		Apply(entry, raw, "steam")

		assert.Equal(t, first.Playtime, entry.Playtime)
		assert.Equal(t, firstPlatforms, entry.Platforms)
		assert.Equal(t, *first.LastPlayed, *entry.LastPlayed)
	})
}
