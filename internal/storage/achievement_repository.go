package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/types"
)

// AchievementRepository handles parent achievements, network-specific
// achievements and per-user unlocks
type AchievementRepository struct {
	db *PostgresDB
}

// NewAchievementRepository creates a new achievement repository
func NewAchievementRepository(db *PostgresDB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

const parentColumns = `id, name, game_id, game_name, percent, recalculate, hidden, created_at`

func scanParent(row pgx.Row) (*models.ParentAchievement, error) {
	var parent models.ParentAchievement
	err := row.Scan(
		&parent.ID,
		&parent.Name,
		&parent.GameID,
		&parent.GameName,
		&parent.Percent,
		&parent.Recalculate,
		&parent.Hidden,
		&parent.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

// FindParents returns all parents matching (name, gameID) when the game is
// resolved, else (name, gameName), ordered by id. More than one row means a
// creation race left duplicates behind; the caller repairs them.
func (r *AchievementRepository) FindParents(ctx context.Context, name string, gameID *int64, gameName string) ([]*models.ParentAchievement, error) {
	var query string
	var args []interface{}

	if gameID != nil {
		query = `SELECT ` + parentColumns + ` FROM parent_achievements WHERE name = $1 AND game_id = $2 ORDER BY id`
		args = []interface{}{name, *gameID}
	} else {
		query = `SELECT ` + parentColumns + ` FROM parent_achievements WHERE name = $1 AND game_id IS NULL AND game_name = $2 ORDER BY id`
		args = []interface{}{name, gameName}
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find parent achievements: %w", err)
	}
	defer rows.Close()

	var parents []*models.ParentAchievement
	for rows.Next() {
		parent, err := scanParent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parent achievement: %w", err)
		}
		parents = append(parents, parent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parent achievements: %w", err)
	}

	return parents, nil
}

// CreateParent inserts a new parent achievement
func (r *AchievementRepository) CreateParent(ctx context.Context, parent *models.ParentAchievement) error {
	parent.CreatedAt = time.Now()

	query := `
		INSERT INTO parent_achievements (name, game_id, game_name, hidden, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.Pool().QueryRow(ctx, query,
		parent.Name,
		parent.GameID,
		parent.GameName,
		parent.Hidden,
		parent.CreatedAt,
	).Scan(&parent.ID)
	if err != nil {
		return fmt.Errorf("failed to create parent achievement: %w", err)
	}

	return nil
}

// ReassignChildren moves all achievements from the named parents onto the
// survivor and deletes the losing parents, marking the survivor dirty. Used
// by the duplicate-parent repair.
func (r *AchievementRepository) ReassignChildren(ctx context.Context, survivorID int64, loserIDs []int64) error {
	if len(loserIDs) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin repair transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx,
		`UPDATE achievements SET parent_id = $1, recalculate = true WHERE parent_id = ANY($2)`,
		survivorID, loserIDs,
	); err != nil {
		return fmt.Errorf("failed to reassign achievements: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE parent_achievements SET recalculate = true WHERE id = $1`,
		survivorID,
	); err != nil {
		return fmt.Errorf("failed to mark survivor dirty: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM parent_achievements WHERE id = ANY($1)`,
		loserIDs,
	); err != nil {
		return fmt.Errorf("failed to delete duplicate parents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit repair: %w", err)
	}

	return nil
}

const achievementColumns = `id, parent_id, uid, network, name, description, icon, percent, recalculate, hidden, created_at`

func scanAchievement(row pgx.Row) (*models.Achievement, error) {
	var a models.Achievement
	err := row.Scan(
		&a.ID,
		&a.ParentID,
		&a.UID,
		&a.Network,
		&a.Name,
		&a.Description,
		&a.Icon,
		&a.Percent,
		&a.Recalculate,
		&a.Hidden,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetOrCreateAchievement upserts a network-specific achievement by
// (uid, network). An insert racing on the unique key falls back to the read.
func (r *AchievementRepository) GetOrCreateAchievement(ctx context.Context, a *models.Achievement) (*models.Achievement, bool, error) {
	getQuery := `SELECT ` + achievementColumns + ` FROM achievements WHERE uid = $1 AND network = $2`

	existing, err := scanAchievement(r.db.Pool().QueryRow(ctx, getQuery, a.UID, a.Network))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to get achievement: %w", err)
	}

	a.CreatedAt = time.Now()
	insertQuery := `
		INSERT INTO achievements (parent_id, uid, network, name, description, icon, hidden, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err = r.db.Pool().QueryRow(ctx, insertQuery,
		a.ParentID,
		a.UID,
		a.Network,
		a.Name,
		a.Description,
		a.Icon,
		a.Hidden,
		a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		if syncerrors.IsUniqueViolation(err) {
			existing, getErr := scanAchievement(r.db.Pool().QueryRow(ctx, getQuery, a.UID, a.Network))
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to re-read achievement after race: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create achievement: %w", err)
	}

	return a, true, nil
}

// GetOrCreateUnlock records a user's unlock, reporting whether the row was
// newly created
func (r *AchievementRepository) GetOrCreateUnlock(ctx context.Context, userID, achievementID int64, achieved time.Time) (bool, error) {
	query := `
		INSERT INTO user_achievements (user_id, achievement_id, achieved, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, achievementID, achieved, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to record unlock: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// CountUnlocksForGame returns how many unlock rows exist for the game on the
// given network. A result of 1 right after an insert means the insert was the
// first unlock of that game+network combination.
func (r *AchievementRepository) CountUnlocksForGame(ctx context.Context, gameID int64, network types.NetworkID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		JOIN parent_achievements p ON p.id = a.parent_id
		WHERE p.game_id = $1 AND a.network = $2
	`

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, gameID, network).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count game unlocks: %w", err)
	}

	return count, nil
}

// CountUnlockers returns how many users unlocked the achievement
func (r *AchievementRepository) CountUnlockers(ctx context.Context, achievementID int64) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM user_achievements WHERE achievement_id = $1`

	if err := r.db.Pool().QueryRow(ctx, query, achievementID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unlockers: %w", err)
	}

	return count, nil
}

// CountParentUnlockers returns how many distinct users unlocked any child of
// the parent achievement
func (r *AchievementRepository) CountParentUnlockers(ctx context.Context, parentID int64) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT ua.user_id)
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE a.parent_id = $1
	`

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, parentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count parent unlockers: %w", err)
	}

	return count, nil
}

// MarkDirty flags a single achievement for recalculation
func (r *AchievementRepository) MarkDirty(ctx context.Context, achievementID int64) error {
	query := `UPDATE achievements SET recalculate = true WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, achievementID); err != nil {
		return fmt.Errorf("failed to mark achievement dirty: %w", err)
	}
	return nil
}

// MarkGameDirty flags every achievement and parent for a game
func (r *AchievementRepository) MarkGameDirty(ctx context.Context, gameID int64) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx,
		`UPDATE parent_achievements SET recalculate = true WHERE game_id = $1`,
		gameID,
	); err != nil {
		return fmt.Errorf("failed to mark parents dirty: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE achievements SET recalculate = true
		 WHERE parent_id IN (SELECT id FROM parent_achievements WHERE game_id = $1)`,
		gameID,
	); err != nil {
		return fmt.Errorf("failed to mark achievements dirty: %w", err)
	}

	return tx.Commit(ctx)
}

// ListDirtyAchievements returns achievements flagged for recalculation
func (r *AchievementRepository) ListDirtyAchievements(ctx context.Context, limit int) ([]*models.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements WHERE recalculate ORDER BY id LIMIT $1`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dirty achievements: %w", err)
	}
	defer rows.Close()

	var achievements []*models.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		achievements = append(achievements, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}

	return achievements, nil
}

// ListDirtyParents returns parent achievements flagged for recalculation
func (r *AchievementRepository) ListDirtyParents(ctx context.Context, limit int) ([]*models.ParentAchievement, error) {
	query := `SELECT ` + parentColumns + ` FROM parent_achievements WHERE recalculate ORDER BY id LIMIT $1`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dirty parents: %w", err)
	}
	defer rows.Close()

	var parents []*models.ParentAchievement
	for rows.Next() {
		parent, err := scanParent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parent achievement: %w", err)
		}
		parents = append(parents, parent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parent achievements: %w", err)
	}

	return parents, nil
}

// SetPercent writes a recalculated percent and clears the dirty flag
func (r *AchievementRepository) SetPercent(ctx context.Context, achievementID int64, percent float64) error {
	query := `UPDATE achievements SET percent = $2, recalculate = false WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, achievementID, percent); err != nil {
		return fmt.Errorf("failed to set achievement percent: %w", err)
	}
	return nil
}

// SetParentPercent writes a recalculated parent percent and clears the dirty flag
func (r *AchievementRepository) SetParentPercent(ctx context.Context, parentID int64, percent float64) error {
	query := `UPDATE parent_achievements SET percent = $2, recalculate = false WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, parentID, percent); err != nil {
		return fmt.Errorf("failed to set parent percent: %w", err)
	}
	return nil
}

// ListDuplicateParentGroups returns groups of parents sharing the same
// identity key, for the periodic repair sweep
func (r *AchievementRepository) ListDuplicateParentGroups(ctx context.Context, limit int) ([][]*models.ParentAchievement, error) {
	query := `
		SELECT ` + parentColumns + `
		FROM parent_achievements
		WHERE (name, COALESCE(game_id, -1), game_name) IN (
			SELECT name, COALESCE(game_id, -1), game_name
			FROM parent_achievements
			GROUP BY name, COALESCE(game_id, -1), game_name
			HAVING COUNT(*) > 1
			LIMIT $1
		)
		ORDER BY name, game_name, id
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate parents: %w", err)
	}
	defer rows.Close()

	groups := make(map[string][]*models.ParentAchievement)
	var order []string
	for rows.Next() {
		parent, err := scanParent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parent achievement: %w", err)
		}
		key := parent.Name + "\x00" + parent.GameName
		if parent.GameID != nil {
			key = fmt.Sprintf("%s\x00%d", parent.Name, *parent.GameID)
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], parent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate parents: %w", err)
	}

	out := make([][]*models.ParentAchievement, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out, nil
}

// GetParentGame returns the game id a parent is attached to, if resolved
func (r *AchievementRepository) GetParentGame(ctx context.Context, parentID int64) (*int64, error) {
	var gameID *int64
	query := `SELECT game_id FROM parent_achievements WHERE id = $1`

	if err := r.db.Pool().QueryRow(ctx, query, parentID).Scan(&gameID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("parent achievement not found: %d", parentID)
		}
		return nil, fmt.Errorf("failed to get parent game: %w", err)
	}

	return gameID, nil
}
