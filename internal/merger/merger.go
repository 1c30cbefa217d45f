// Package merger reconciles one network's fetched games into a user's
// library.
package merger

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jackc/pgx/v5"

	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/types"
)

// largeLibraryThreshold is the library size above which entries are processed
// in randomized order, so a timed-out import makes progress across the whole
// library on retry instead of stalling on the same prefix.
const largeLibraryThreshold = 3000

// GameResolver resolves one raw external game reference to a catalog game
type GameResolver interface {
	Resolve(ctx context.Context, appID, rawName, storeSlug string) (*models.Game, string, error)
}

// LibraryStore is the user-library persistence surface the merger writes
// through. One transaction per entry keeps lock duration short and allows
// partial progress when an import is interrupted.
type LibraryStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetTx(ctx context.Context, tx pgx.Tx, userID, gameID int64) (*models.UserGame, error)
	CreateTx(ctx context.Context, tx pgx.Tx, entry *models.UserGame) error
	UpdateTx(ctx context.Context, tx pgx.Tx, entry *models.UserGame) error
}

// Hooks receives the downstream recomputation triggers a merge queues. All
// hooks are fire-and-forget: the merge result never depends on them.
type Hooks interface {
	QueueStatsRecalc(userID int64)
	QueueRecommendations(userID int64)
}

// NopHooks discards all hook calls
type NopHooks struct{}

func (NopHooks) QueueStatsRecalc(int64)     {}
func (NopHooks) QueueRecommendations(int64) {}

// Result is the outcome of merging one network's library
type Result struct {
	Status      types.ImportStatus
	SyncedGames []types.SyncedGame
	Skipped     int // raw entries with no catalog equivalent
}

// Merger applies one network's raw games to a user's library
type Merger struct {
	resolver GameResolver
	store    LibraryStore
	hooks    Hooks
	logger   *logging.Logger
}

// Config holds merger dependencies
type Config struct {
	Resolver GameResolver
	Store    LibraryStore
	Hooks    Hooks
}

// New creates a new merger
func New(cfg Config) (*Merger, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("library store is required")
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Merger{
		resolver: cfg.Resolver,
		store:    cfg.Store,
		hooks:    hooks,
		logger:   logging.GetGlobalLogger().WithField("component", "merger"),
	}, nil
}

// MergeLibrary resolves and merges one network's raw games into the user's
// library. Raw entries with no catalog equivalent are skipped silently;
// external libraries always contain DLC, tools and delisted titles with no
// catalog row.
func (m *Merger) MergeLibrary(ctx context.Context, userID int64, rawGames []types.RawGame, network types.NetworkID) (*Result, error) {
	games := rawGames
	if len(games) > largeLibraryThreshold {
		games = make([]types.RawGame, len(rawGames))
		copy(games, rawGames)
		rand.Shuffle(len(games), func(i, j int) {
			games[i], games[j] = games[j], games[i]
		})
	}

	result := &Result{Status: types.ImportReady}
	seen := make(map[int64]bool, len(games))

	for _, raw := range games {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		game, _, err := m.resolver.Resolve(ctx, raw.AppID, raw.Name, raw.StoreSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %q: %w", raw.Name, err)
		}
		if game == nil {
			result.Skipped++
			continue
		}
		// two store entries can resolve to one catalog game; merge once
		if seen[game.ID] {
			continue
		}
		seen[game.ID] = true

		status, err := m.mergeEntry(ctx, userID, game.ID, raw, network)
		if err != nil {
			return nil, fmt.Errorf("failed to merge game %d: %w", game.ID, err)
		}

		result.SyncedGames = append(result.SyncedGames, types.SyncedGame{
			GameID: game.ID,
			Status: status,
		})
	}

	m.logger.WithFields(map[string]interface{}{
		"user":    userID,
		"network": string(network),
		"merged":  len(result.SyncedGames),
		"skipped": result.Skipped,
	}).Info("library merged")

	m.hooks.QueueStatsRecalc(userID)
	m.hooks.QueueRecommendations(userID)

	return result, nil
}

// mergeEntry upserts one library entry in its own transaction
func (m *Merger) mergeEntry(ctx context.Context, userID, gameID int64, raw types.RawGame, network types.NetworkID) (types.GameStatus, error) {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	platform := network.StoreSlug()

	existing, err := m.store.GetTx(ctx, tx, userID, gameID)
	if err != nil {
		return "", err
	}

	if existing == nil {
		entry := &models.UserGame{
			UserID:    userID,
			GameID:    gameID,
			Status:    importedStatus(raw),
			Playtime:  raw.Playtime,
			Platforms: []string{platform},
		}
		if !raw.LastPlayed.IsZero() {
			played := raw.LastPlayed
			entry.LastPlayed = &played
		}
		if err := m.store.CreateTx(ctx, tx, entry); err != nil {
			return "", err
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("failed to commit entry: %w", err)
		}
		return entry.Status, nil
	}

	Apply(existing, raw, platform)

	if err := m.store.UpdateTx(ctx, tx, existing); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit entry: %w", err)
	}
	return existing.Status, nil
}

// Apply folds one network's observation into an existing library entry.
// The status is never changed: a user-set status must survive every import,
// and an import-derived status was already chosen when the entry was created.
// Playtime only grows (the max across networks), the platform set only gains
// members, and last-played only advances.
func Apply(entry *models.UserGame, raw types.RawGame, platform string) {
	if raw.Playtime > entry.Playtime {
		entry.Playtime = raw.Playtime
	}
	if !entry.HasPlatform(platform) {
		entry.Platforms = append(entry.Platforms, platform)
	}
	if !raw.LastPlayed.IsZero() {
		if entry.LastPlayed == nil || raw.LastPlayed.After(*entry.LastPlayed) {
			played := raw.LastPlayed
			entry.LastPlayed = &played
		}
	}
}

// importedStatus derives the initial status for a newly created entry from
// the source data
func importedStatus(raw types.RawGame) types.GameStatus {
	if raw.Status != "" {
		return raw.Status
	}
	return types.StatusOwned
}
