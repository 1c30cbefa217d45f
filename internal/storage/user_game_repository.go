package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/library-sync/internal/models"
)

// UserGameRepository handles per-user library entries.
//
// The merger wraps each entry's read-modify-write in its own transaction so
// interrupted imports keep their partial progress and row locks stay short;
// the *Tx variants exist for that.
type UserGameRepository struct {
	db *PostgresDB
}

// NewUserGameRepository creates a new user game repository
func NewUserGameRepository(db *PostgresDB) *UserGameRepository {
	return &UserGameRepository{db: db}
}

// BeginTx starts a new transaction
func (r *UserGameRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Pool().Begin(ctx)
}

const userGameColumns = `user_id, game_id, status, status_manual, playtime, platforms, last_played, created_at, updated_at`

func scanUserGame(row pgx.Row) (*models.UserGame, error) {
	var entry models.UserGame
	err := row.Scan(
		&entry.UserID,
		&entry.GameID,
		&entry.Status,
		&entry.StatusManual,
		&entry.Playtime,
		&entry.Platforms,
		&entry.LastPlayed,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetTx retrieves a user's entry for a game within a transaction, locking
// the row for update. Returns nil when no entry exists.
func (r *UserGameRepository) GetTx(ctx context.Context, tx pgx.Tx, userID, gameID int64) (*models.UserGame, error) {
	query := `
		SELECT ` + userGameColumns + `
		FROM user_games
		WHERE user_id = $1 AND game_id = $2
		FOR UPDATE
	`

	entry, err := scanUserGame(tx.QueryRow(ctx, query, userID, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user game: %w", err)
	}
	return entry, nil
}

// CreateTx inserts a new entry within a transaction
func (r *UserGameRepository) CreateTx(ctx context.Context, tx pgx.Tx, entry *models.UserGame) error {
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	query := `
		INSERT INTO user_games (user_id, game_id, status, status_manual, playtime, platforms, last_played, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := tx.Exec(ctx, query,
		entry.UserID,
		entry.GameID,
		entry.Status,
		entry.StatusManual,
		entry.Playtime,
		entry.Platforms,
		entry.LastPlayed,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user game: %w", err)
	}

	return nil
}

// UpdateTx updates an existing entry within a transaction
func (r *UserGameRepository) UpdateTx(ctx context.Context, tx pgx.Tx, entry *models.UserGame) error {
	entry.UpdatedAt = time.Now()

	query := `
		UPDATE user_games
		SET status = $3, status_manual = $4, playtime = $5, platforms = $6, last_played = $7, updated_at = $8
		WHERE user_id = $1 AND game_id = $2
	`

	result, err := tx.Exec(ctx, query,
		entry.UserID,
		entry.GameID,
		entry.Status,
		entry.StatusManual,
		entry.Playtime,
		entry.Platforms,
		entry.LastPlayed,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user game: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user game not found: user=%d game=%d", entry.UserID, entry.GameID)
	}

	return nil
}

// Get retrieves a user's entry for a game outside a transaction
func (r *UserGameRepository) Get(ctx context.Context, userID, gameID int64) (*models.UserGame, error) {
	query := `
		SELECT ` + userGameColumns + `
		FROM user_games
		WHERE user_id = $1 AND game_id = $2
	`

	entry, err := scanUserGame(r.db.Pool().QueryRow(ctx, query, userID, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user game: %w", err)
	}
	return entry, nil
}

// CountOwners returns how many users have the game in their library.
// Used as the denominator for achievement percent recalculation.
func (r *UserGameRepository) CountOwners(ctx context.Context, gameID int64) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM user_games WHERE game_id = $1`

	if err := r.db.Pool().QueryRow(ctx, query, gameID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count game owners: %w", err)
	}

	return count, nil
}
