// Package achievements ingests per-network achievement unlocks, maintaining
// the shared parent-achievement records and the percent-unlocked statistics.
package achievements

import (
	"context"
	"fmt"
	"time"

	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/storage"
	"github.com/library-sync/internal/types"
)

// Ingester records achievement unlocks observed during an import.
//
// Parent upserts are optimistic: concurrent ingestions may race to create the
// same parent, and the duplicate is detected and repaired on the next lookup
// rather than prevented with a lock. The repair itself is computed by
// PlanRepair and applied atomically.
type Ingester struct {
	achievements *storage.AchievementRepository
	logger       *logging.Logger
}

// NewIngester creates a new achievement ingester
func NewIngester(achievements *storage.AchievementRepository) *Ingester {
	return &Ingester{
		achievements: achievements,
		logger:       logging.GetGlobalLogger().WithField("component", "achievements"),
	}
}

// Ingest upserts the parent and network achievement for one raw unlock
// observation and returns the network achievement. game is nil when the
// owning game is unresolved; the parent is then keyed by game name.
func (i *Ingester) Ingest(ctx context.Context, raw types.RawAchievement, game *models.Game, gameName string, network types.NetworkID) (*models.Achievement, error) {
	parent, err := i.upsertParent(ctx, raw, game, gameName)
	if err != nil {
		return nil, err
	}

	achievement := &models.Achievement{
		ParentID:    parent.ID,
		UID:         raw.UID,
		Network:     network,
		Name:        raw.Name,
		Description: raw.Description,
		Icon:        raw.Icon,
		Hidden:      raw.Hidden,
	}

	achievement, _, err = i.achievements.GetOrCreateAchievement(ctx, achievement)
	if err != nil {
		return nil, err
	}

	return achievement, nil
}

// RecordUnlock records a user's unlock of an achievement and marks the
// affected aggregates dirty. The first unlock of a game+network combination
// marks the whole game dirty (scaling the percents up from zero needs a full
// recount); later unlocks mark just the one achievement.
func (i *Ingester) RecordUnlock(ctx context.Context, userID int64, achievement *models.Achievement, gameID *int64, achieved time.Time) error {
	created, err := i.achievements.GetOrCreateUnlock(ctx, userID, achievement.ID, achieved)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	if gameID != nil {
		total, err := i.achievements.CountUnlocksForGame(ctx, *gameID, achievement.Network)
		if err != nil {
			return err
		}
		if total == 1 {
			return i.achievements.MarkGameDirty(ctx, *gameID)
		}
	}

	return i.achievements.MarkDirty(ctx, achievement.ID)
}

// upsertParent looks up or creates the owning parent, repairing duplicate
// parents left behind by a creation race before returning the survivor.
func (i *Ingester) upsertParent(ctx context.Context, raw types.RawAchievement, game *models.Game, gameName string) (*models.ParentAchievement, error) {
	var gameID *int64
	if game != nil {
		gameID = &game.ID
		gameName = game.Name
	}

	parents, err := i.achievements.FindParents(ctx, raw.Name, gameID, gameName)
	if err != nil {
		return nil, err
	}

	switch len(parents) {
	case 0:
		parent := &models.ParentAchievement{
			Name:     raw.Name,
			GameID:   gameID,
			GameName: gameName,
			Hidden:   raw.Hidden,
		}
		// deliberately no unique key here: a concurrent ingestion may create
		// the same parent, and the duplicate is repaired on the next lookup
		if err := i.achievements.CreateParent(ctx, parent); err != nil {
			return nil, err
		}
		return parent, nil
	case 1:
		return parents[0], nil
	default:
		plan := PlanRepair(parents)
		i.logger.WithFields(map[string]interface{}{
			"name":     raw.Name,
			"survivor": plan.SurvivorID,
			"losers":   len(plan.LoserIDs),
		}).Warn("repairing duplicate parent achievements")

		if err := i.achievements.ReassignChildren(ctx, plan.SurvivorID, plan.LoserIDs); err != nil {
			return nil, fmt.Errorf("failed to repair duplicate parents: %w", err)
		}

		for _, p := range parents {
			if p.ID == plan.SurvivorID {
				return p, nil
			}
		}
		return parents[0], nil
	}
}

// RepairSweep collapses duplicate parent groups across the whole table.
// Invoked periodically; the inline repair in upsertParent handles the hot
// path.
func (i *Ingester) RepairSweep(ctx context.Context, limit int) (int, error) {
	groups, err := i.achievements.ListDuplicateParentGroups(ctx, limit)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, group := range groups {
		plan := PlanRepair(group)
		if !plan.NeedsRepair() {
			continue
		}
		if err := i.achievements.ReassignChildren(ctx, plan.SurvivorID, plan.LoserIDs); err != nil {
			return repaired, fmt.Errorf("failed to repair parent group: %w", err)
		}
		repaired++
	}

	return repaired, nil
}
