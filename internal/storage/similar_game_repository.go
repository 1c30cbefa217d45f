package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/models"
)

// SimilarGameRepository handles candidate duplicate pairs
type SimilarGameRepository struct {
	db *PostgresDB
}

// NewSimilarGameRepository creates a new similar game repository
func NewSimilarGameRepository(db *PostgresDB) *SimilarGameRepository {
	return &SimilarGameRepository{db: db}
}

// GetOrCreate records a candidate pair in canonical order (lower id first)
// so (a,b) and (b,a) never yield two rows. A concurrent insert racing on the
// unique constraint is treated as already-recorded.
func (r *SimilarGameRepository) GetOrCreate(ctx context.Context, gameA, gameB int64) (*models.SimilarGame, bool, error) {
	if gameA == gameB {
		return nil, false, fmt.Errorf("cannot pair game %d with itself", gameA)
	}

	first, second := gameA, gameB
	if first > second {
		first, second = second, first
	}

	existing, err := r.get(ctx, first, second)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	query := `
		INSERT INTO similar_games (first_game_id, second_game_id)
		VALUES ($1, $2)
		RETURNING id, first_game_id, second_game_id, is_ignored, selected_game_id, created_at
	`

	var pair models.SimilarGame
	err = r.db.Pool().QueryRow(ctx, query, first, second).Scan(
		&pair.ID,
		&pair.FirstGameID,
		&pair.SecondGameID,
		&pair.IsIgnored,
		&pair.SelectedGameID,
		&pair.CreatedAt,
	)
	if err != nil {
		if syncerrors.IsUniqueViolation(err) {
			// Lost the race; the row exists now
			existing, getErr := r.get(ctx, first, second)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create similar game pair: %w", err)
	}

	return &pair, true, nil
}

func (r *SimilarGameRepository) get(ctx context.Context, first, second int64) (*models.SimilarGame, error) {
	query := `
		SELECT id, first_game_id, second_game_id, is_ignored, selected_game_id, created_at
		FROM similar_games
		WHERE first_game_id = $1 AND second_game_id = $2
	`

	var pair models.SimilarGame
	err := r.db.Pool().QueryRow(ctx, query, first, second).Scan(
		&pair.ID,
		&pair.FirstGameID,
		&pair.SecondGameID,
		&pair.IsIgnored,
		&pair.SelectedGameID,
		&pair.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get similar game pair: %w", err)
	}

	return &pair, nil
}

// ListPending returns pairs awaiting a merge decision
func (r *SimilarGameRepository) ListPending(ctx context.Context, limit int) ([]*models.SimilarGame, error) {
	query := `
		SELECT id, first_game_id, second_game_id, is_ignored, selected_game_id, created_at
		FROM similar_games
		WHERE NOT is_ignored AND selected_game_id IS NULL
		ORDER BY id
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending pairs: %w", err)
	}
	defer rows.Close()

	var pairs []*models.SimilarGame
	for rows.Next() {
		var pair models.SimilarGame
		err := rows.Scan(
			&pair.ID,
			&pair.FirstGameID,
			&pair.SecondGameID,
			&pair.IsIgnored,
			&pair.SelectedGameID,
			&pair.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, &pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pairs: %w", err)
	}

	return pairs, nil
}

// ListDecided returns pairs with a chosen survivor that have not been
// merged yet. Merging deletes the pair row, so a decided pair only shows
// up here once.
func (r *SimilarGameRepository) ListDecided(ctx context.Context, limit int) ([]*models.SimilarGame, error) {
	query := `
		SELECT id, first_game_id, second_game_id, is_ignored, selected_game_id, created_at
		FROM similar_games
		WHERE NOT is_ignored AND selected_game_id IS NOT NULL
		ORDER BY id
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decided pairs: %w", err)
	}
	defer rows.Close()

	var pairs []*models.SimilarGame
	for rows.Next() {
		var pair models.SimilarGame
		err := rows.Scan(
			&pair.ID,
			&pair.FirstGameID,
			&pair.SecondGameID,
			&pair.IsIgnored,
			&pair.SelectedGameID,
			&pair.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, &pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pairs: %w", err)
	}

	return pairs, nil
}

// SelectSurvivor records the chosen surviving game for a pair
func (r *SimilarGameRepository) SelectSurvivor(ctx context.Context, pairID, survivorID int64) error {
	query := `UPDATE similar_games SET selected_game_id = $2 WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, pairID, survivorID)
	if err != nil {
		return fmt.Errorf("failed to select survivor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("similar game pair not found: %d", pairID)
	}

	return nil
}

// Ignore marks a pair as a confirmed non-duplicate
func (r *SimilarGameRepository) Ignore(ctx context.Context, pairID int64) error {
	query := `UPDATE similar_games SET is_ignored = true WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, pairID)
	if err != nil {
		return fmt.Errorf("failed to ignore pair: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("similar game pair not found: %d", pairID)
	}

	return nil
}
