package achievements

import (
	"context"

	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/platform"
	"github.com/library-sync/internal/types"
)

// Resolver is the game-resolution surface the syncer needs
type Resolver interface {
	Resolve(ctx context.Context, appID, rawName, storeSlug string) (*models.Game, string, error)
}

// Syncer pulls a user's achievement unlocks for the games observed during an
// import and feeds them through the ingester. Per-game fetch trouble is
// logged and skipped: achievements are best-effort decoration on an import,
// never the reason it fails.
type Syncer struct {
	resolver Resolver
	ingester *Ingester
	logger   *logging.Logger
}

// NewSyncer creates a new achievement syncer
func NewSyncer(resolver Resolver, ingester *Ingester) *Syncer {
	return &Syncer{
		resolver: resolver,
		ingester: ingester,
		logger:   logging.GetGlobalLogger().WithField("component", "achievement-sync"),
	}
}

// SyncLibrary ingests unlocks for every raw game in one network's fetched
// library. Returns how many unlocks were recorded.
func (s *Syncer) SyncLibrary(ctx context.Context, userID int64, client platform.Client, accountRef string, rawGames []types.RawGame) (int, error) {
	recorded := 0
	network := client.Network()

	for _, raw := range rawGames {
		if err := ctx.Err(); err != nil {
			return recorded, err
		}

		unlocks, err := client.GetAchievements(ctx, raw.AppID, accountRef)
		if err != nil {
			// a permanent failure (account gone private mid-import) will repeat
			// for every remaining game; stop fetching instead of hammering
			if !syncerrors.IsRetryable(err) {
				s.logger.WithError(err).WithField("network", string(network)).
					Warn("achievement fetch failed permanently, stopping")
				return recorded, nil
			}
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"network": string(network),
				"app":     raw.AppID,
			}).Warn("achievement fetch failed, skipping game")
			continue
		}
		if len(unlocks) == 0 {
			continue
		}

		game, _, err := s.resolver.Resolve(ctx, raw.AppID, raw.Name, raw.StoreSlug)
		if err != nil {
			return recorded, err
		}

		var gameID *int64
		if game != nil {
			gameID = &game.ID
		}

		for _, unlock := range unlocks {
			achievement, err := s.ingester.Ingest(ctx, unlock, game, raw.Name, network)
			if err != nil {
				return recorded, err
			}
			if err := s.ingester.RecordUnlock(ctx, userID, achievement, gameID, unlock.Achieved); err != nil {
				return recorded, err
			}
			recorded++
		}
	}

	return recorded, nil
}
