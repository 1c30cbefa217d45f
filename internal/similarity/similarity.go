// Package similarity detects probable duplicate catalog games by name and
// merges a confirmed pair into a single survivor.
package similarity

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/storage"
)

// threshold both the quick ratio and the full ratio must exceed for a pair
// to be flagged as candidate duplicates
const threshold = 0.85

// AreSimilar reports whether two game names are close enough to be duplicate
// listings. The quick ratio is the cheap upper bound; the full ratio only
// runs when the quick ratio already clears the bar.
func AreSimilar(a, b string) bool {
	first := strings.Split(strings.ToLower(a), "")
	second := strings.Split(strings.ToLower(b), "")

	m := difflib.NewMatcher(first, second)
	if m.QuickRatio() <= threshold {
		return false
	}
	return m.Ratio() > threshold
}

// Detector sweeps the catalog for candidate duplicate pairs
type Detector struct {
	games   *storage.GameRepository
	similar *storage.SimilarGameRepository
	logger  *logging.Logger
}

// NewDetector creates a new duplicate detector
func NewDetector(games *storage.GameRepository, similar *storage.SimilarGameRepository) *Detector {
	return &Detector{
		games:   games,
		similar: similar,
		logger:  logging.GetGlobalLogger().WithField("component", "similarity"),
	}
}

// Sweep compares every pair of visible catalog names and records candidate
// pairs. Existing pairs (including ignored ones) are not duplicated; the
// repository's get-or-create tolerates races with a concurrent sweep.
func (d *Detector) Sweep(ctx context.Context) (int, error) {
	names, err := d.games.ListNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list catalog names: %w", err)
	}

	found := 0
	for i := 0; i < len(names); i++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		for j := i + 1; j < len(names); j++ {
			if !AreSimilar(names[i].Name, names[j].Name) {
				continue
			}
			_, created, err := d.similar.GetOrCreate(ctx, names[i].ID, names[j].ID)
			if err != nil {
				return found, fmt.Errorf("failed to record candidate pair: %w", err)
			}
			if created {
				found++
			}
		}
	}

	d.logger.WithFields(map[string]interface{}{
		"games": len(names),
		"new":   found,
	}).Info("similarity sweep complete")

	return found, nil
}

// CacheInvalidator drops cached game resolutions; implemented by
// storage.ResolverCache
type CacheInvalidator interface {
	InvalidateGame(ctx context.Context, gameID int64) error
}

// MergeService executes a confirmed duplicate merge
type MergeService struct {
	games   *storage.GameRepository
	similar *storage.SimilarGameRepository
	cache   CacheInvalidator
	logger  *logging.Logger
}

// NewMergeService creates a new merge service
func NewMergeService(games *storage.GameRepository, similar *storage.SimilarGameRepository, cache CacheInvalidator) *MergeService {
	return &MergeService{
		games:   games,
		similar: similar,
		cache:   cache,
		logger:  logging.GetGlobalLogger().WithField("component", "similarity"),
	}
}

// Merge folds the losing game into the survivor: dependents are reassigned
// in one transaction, a slug redirect is written, the loser is deleted, and
// both games' cached resolutions are invalidated.
func (s *MergeService) Merge(ctx context.Context, pair *models.SimilarGame) error {
	if pair.SelectedGameID == nil {
		return fmt.Errorf("pair %d/%d has no selected survivor", pair.FirstGameID, pair.SecondGameID)
	}

	survivorID := *pair.SelectedGameID
	loserID := pair.FirstGameID
	if survivorID == loserID {
		loserID = pair.SecondGameID
	}
	if survivorID != pair.FirstGameID && survivorID != pair.SecondGameID {
		return fmt.Errorf("selected game %d is not part of pair %d/%d", survivorID, pair.FirstGameID, pair.SecondGameID)
	}

	if err := s.games.MergeGames(ctx, survivorID, loserID); err != nil {
		return fmt.Errorf("failed to merge games: %w", err)
	}

	if s.cache != nil {
		for _, id := range []int64{survivorID, loserID} {
			if err := s.cache.InvalidateGame(ctx, id); err != nil {
				s.logger.WithError(err).Warnf("failed to invalidate cache for game %d", id)
			}
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"survivor": survivorID,
		"loser":    loserID,
	}).Info("games merged")

	return nil
}
