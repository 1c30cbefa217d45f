package achievements

import (
	"context"
	"fmt"
	"math"

	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/storage"
)

// Recalculator recomputes percent-unlocked statistics for dirty achievements
// and parent achievements, out of the import hot path.
//
// A computed percent above 100 means the owner count was stale when the
// unlock rows were written (typically after a game merge); the whole game's
// achievement set is marked dirty and recounted on the next pass instead of
// publishing a bad value. The recount converges, but the pass count is capped
// so a persistent inconsistency cannot loop forever.
type Recalculator struct {
	achievements *storage.AchievementRepository
	userGames    *storage.UserGameRepository
	maxPasses    int
	batchSize    int
	logger       *logging.Logger
}

// RecalcConfig holds recalculator dependencies and bounds
type RecalcConfig struct {
	Achievements *storage.AchievementRepository
	UserGames    *storage.UserGameRepository
	MaxPasses    int
	BatchSize    int
}

// NewRecalculator creates a new percent recalculator
func NewRecalculator(cfg RecalcConfig) (*Recalculator, error) {
	if cfg.Achievements == nil {
		return nil, fmt.Errorf("achievement repository is required")
	}
	if cfg.UserGames == nil {
		return nil, fmt.Errorf("user game repository is required")
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Recalculator{
		achievements: cfg.Achievements,
		userGames:    cfg.UserGames,
		maxPasses:    cfg.MaxPasses,
		batchSize:    cfg.BatchSize,
		logger:       logging.GetGlobalLogger().WithField("component", "recalc"),
	}, nil
}

// Run processes dirty achievements and parents until the dirty set drains or
// the pass cap is hit. Returns the number of rows updated.
func (r *Recalculator) Run(ctx context.Context) (int, error) {
	updated := 0

	for pass := 1; pass <= r.maxPasses; pass++ {
		n, requeued, err := r.runPass(ctx)
		if err != nil {
			return updated, err
		}
		updated += n

		r.logger.WithFields(map[string]interface{}{
			"pass":     pass,
			"updated":  n,
			"requeued": requeued,
		}).Info("recalculation pass complete")

		if requeued == 0 && n < r.batchSize {
			break
		}
	}

	return updated, nil
}

func (r *Recalculator) runPass(ctx context.Context) (updated, requeued int, err error) {
	dirty, err := r.achievements.ListDirtyAchievements(ctx, r.batchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, a := range dirty {
		if err := ctx.Err(); err != nil {
			return updated, requeued, err
		}

		gameID, err := r.achievements.GetParentGame(ctx, a.ParentID)
		if err != nil {
			return updated, requeued, err
		}

		percent, ok, err := r.percentFor(ctx, gameID, func() (int64, error) {
			return r.achievements.CountUnlockers(ctx, a.ID)
		})
		if err != nil {
			return updated, requeued, err
		}
		if !ok {
			// inconsistent owner count; recount the whole game next pass
			if gameID != nil {
				if err := r.achievements.MarkGameDirty(ctx, *gameID); err != nil {
					return updated, requeued, err
				}
			}
			requeued++
			continue
		}

		if err := r.achievements.SetPercent(ctx, a.ID, percent); err != nil {
			return updated, requeued, err
		}
		updated++
	}

	dirtyParents, err := r.achievements.ListDirtyParents(ctx, r.batchSize)
	if err != nil {
		return updated, requeued, err
	}

	for _, p := range dirtyParents {
		if err := ctx.Err(); err != nil {
			return updated, requeued, err
		}

		percent, ok, err := r.percentFor(ctx, p.GameID, func() (int64, error) {
			return r.achievements.CountParentUnlockers(ctx, p.ID)
		})
		if err != nil {
			return updated, requeued, err
		}
		if !ok {
			if p.GameID != nil {
				if err := r.achievements.MarkGameDirty(ctx, *p.GameID); err != nil {
					return updated, requeued, err
				}
			}
			requeued++
			continue
		}

		if err := r.achievements.SetParentPercent(ctx, p.ID, percent); err != nil {
			return updated, requeued, err
		}
		updated++
	}

	return updated, requeued, nil
}

// percentFor computes unlockers/owners*100 rounded to 2 decimals. ok is false
// when the value exceeds 100, the signature of a stale owner count.
func (r *Recalculator) percentFor(ctx context.Context, gameID *int64, countUnlockers func() (int64, error)) (float64, bool, error) {
	unlockers, err := countUnlockers()
	if err != nil {
		return 0, false, err
	}

	if gameID == nil {
		// unresolved game: no owner denominator exists, publish zero rather
		// than a made-up ratio
		return 0, true, nil
	}

	owners, err := r.userGames.CountOwners(ctx, *gameID)
	if err != nil {
		return 0, false, err
	}
	if owners == 0 {
		return 0, true, nil
	}

	percent := math.Round(float64(unlockers)/float64(owners)*100*100) / 100
	if percent > 100 {
		return 0, false, nil
	}

	return percent, true, nil
}
