package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/library-sync/internal/models"
)

// GameRepository handles catalog game lookups and the duplicate-game merge
type GameRepository struct {
	db *PostgresDB
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *PostgresDB) *GameRepository {
	return &GameRepository{db: db}
}

const gameColumns = `id, name, name_ru, slug, released, hidden`

func scanGame(row pgx.Row) (*models.Game, error) {
	var game models.Game
	err := row.Scan(
		&game.ID,
		&game.Name,
		&game.NameRu,
		&game.Slug,
		&game.Released,
		&game.Hidden,
	)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// GetByID retrieves a game by id
func (r *GameRepository) GetByID(ctx context.Context, id int64) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	game, err := scanGame(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

// FindByStoreID looks up a game by its per-store external id. This is the
// least ambiguous resolution signal and is not subject to the
// store-eligibility or release-date filters.
func (r *GameRepository) FindByStoreID(ctx context.Context, storeSlug, externalID string) (*models.Game, error) {
	query := `
		SELECT g.` + gameColumnsAliased("g") + `
		FROM games g
		JOIN game_stores gs ON gs.game_id = g.id
		WHERE gs.store_slug = $1 AND gs.external_id = $2
		LIMIT 1
	`

	game, err := scanGame(r.db.Pool().QueryRow(ctx, query, storeSlug, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find game by store id: %w", err)
	}
	return game, nil
}

// FindBySynonym returns catalog games carrying the lowercased name as a
// synonym, excluding games with no sync-eligible store and games not yet
// released. The filters keep a synonym hit from attaching a user's copy to
// an unrelated listing with no importable store.
func (r *GameRepository) FindBySynonym(ctx context.Context, name string) ([]*models.Game, error) {
	query := `
		SELECT DISTINCT g.` + gameColumnsAliased("g") + `
		FROM games g
		JOIN game_synonyms syn ON syn.game_id = g.id
		WHERE syn.name = lower($1)
		  AND NOT g.hidden
		  AND (g.released IS NULL OR g.released <= now())
		  AND EXISTS (
			SELECT 1 FROM game_stores gs
			WHERE gs.game_id = g.id AND gs.store_slug = ANY($2)
		  )
		ORDER BY g.id
	`

	rows, err := r.db.Pool().Query(ctx, query, name, models.SyncEligibleStores)
	if err != nil {
		return nil, fmt.Errorf("failed to find games by synonym: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, game)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	return games, nil
}

// FindByName finds a game by exact canonical name, with the same
// store-eligibility filter as FindBySynonym. When byRussian is set the
// Russian canonical name is matched instead.
func (r *GameRepository) FindByName(ctx context.Context, name string, byRussian bool) (*models.Game, error) {
	column := "name"
	if byRussian {
		column = "name_ru"
	}

	query := `
		SELECT g.` + gameColumnsAliased("g") + `
		FROM games g
		WHERE lower(g.` + column + `) = lower($1)
		  AND NOT g.hidden
		  AND (g.released IS NULL OR g.released <= now())
		  AND EXISTS (
			SELECT 1 FROM game_stores gs
			WHERE gs.game_id = g.id AND gs.store_slug = ANY($2)
		  )
		ORDER BY g.id
		LIMIT 1
	`

	game, err := scanGame(r.db.Pool().QueryRow(ctx, query, name, models.SyncEligibleStores))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find game by name: %w", err)
	}
	return game, nil
}

// CreateSynonym records an alternate lowercase name for a game, ignoring
// duplicates
func (r *GameRepository) CreateSynonym(ctx context.Context, gameID int64, name string) error {
	query := `
		INSERT INTO game_synonyms (game_id, name)
		VALUES ($1, lower($2))
		ON CONFLICT (game_id, name) DO NOTHING
	`

	if _, err := r.db.Pool().Exec(ctx, query, gameID, name); err != nil {
		return fmt.Errorf("failed to create synonym: %w", err)
	}
	return nil
}

// GameName is a minimal projection for the similarity sweep
type GameName struct {
	ID   int64
	Name string
}

// ListNames returns id+name for every visible catalog game
func (r *GameRepository) ListNames(ctx context.Context) ([]GameName, error) {
	query := `SELECT id, name FROM games WHERE NOT hidden ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list game names: %w", err)
	}
	defer rows.Close()

	var names []GameName
	for rows.Next() {
		var gn GameName
		if err := rows.Scan(&gn.ID, &gn.Name); err != nil {
			return nil, fmt.Errorf("failed to scan game name: %w", err)
		}
		names = append(names, gn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game names: %w", err)
	}

	return names, nil
}

// MergeGames combines the loser game into the survivor in one transaction:
// every dependent row is reassigned, the loser's name becomes a synonym of
// the survivor, a slug redirect is written, and the loser row is deleted.
// Resolver-cache invalidation for both ids is the caller's responsibility.
func (r *GameRepository) MergeGames(ctx context.Context, survivorID, loserID int64) error {
	if survivorID == loserID {
		return fmt.Errorf("cannot merge game %d into itself", survivorID)
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	var survivorSlug, loserSlug, loserName string
	err = tx.QueryRow(ctx,
		`SELECT s.slug, l.slug, l.name FROM games s, games l WHERE s.id = $1 AND l.id = $2`,
		survivorID, loserID,
	).Scan(&survivorSlug, &loserSlug, &loserName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("merge games %d/%d: one side not found", survivorID, loserID)
		}
		return fmt.Errorf("failed to load merge games: %w", err)
	}

	// Reassign dependents. Rows that would collide with an existing
	// survivor-side row on a unique key are dropped instead of reassigned.
	reassign := []struct {
		query string
	}{
		{`UPDATE game_stores SET game_id = $1
		  WHERE game_id = $2 AND NOT EXISTS (
			SELECT 1 FROM game_stores e WHERE e.game_id = $1 AND e.store_slug = game_stores.store_slug
		  )`},
		{`DELETE FROM game_stores WHERE game_id = $2`},
		{`UPDATE game_synonyms SET game_id = $1
		  WHERE game_id = $2 AND NOT EXISTS (
			SELECT 1 FROM game_synonyms e WHERE e.game_id = $1 AND e.name = game_synonyms.name
		  )`},
		{`DELETE FROM game_synonyms WHERE game_id = $2`},
		{`UPDATE user_games SET game_id = $1
		  WHERE game_id = $2 AND NOT EXISTS (
			SELECT 1 FROM user_games e WHERE e.game_id = $1 AND e.user_id = user_games.user_id
		  )`},
		{`DELETE FROM user_games WHERE game_id = $2`},
		{`UPDATE parent_achievements SET game_id = $1, recalculate = true WHERE game_id = $2`},
		{`UPDATE game_redirects SET game_id = $1 WHERE game_id = $2`},
		{`DELETE FROM similar_games WHERE first_game_id = $2 OR second_game_id = $2`},
	}

	for _, step := range reassign {
		if _, err := tx.Exec(ctx, step.query, survivorID, loserID); err != nil {
			return fmt.Errorf("failed to reassign dependents: %w", err)
		}
	}

	// The loser's name keeps resolving through the synonym table
	_, err = tx.Exec(ctx,
		`INSERT INTO game_synonyms (game_id, name) VALUES ($1, lower($2)) ON CONFLICT (game_id, name) DO NOTHING`,
		survivorID, loserName,
	)
	if err != nil {
		return fmt.Errorf("failed to record loser name synonym: %w", err)
	}

	// Old links 301 through the redirect table
	_, err = tx.Exec(ctx,
		`INSERT INTO game_redirects (old_slug, new_slug, game_id, created_at) VALUES ($1, $2, $3, $4)`,
		loserSlug, survivorSlug, survivorID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write redirect: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM games WHERE id = $1`, loserID); err != nil {
		return fmt.Errorf("failed to delete merged game: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}

	return nil
}

// GetRedirect returns the redirect for an old slug, if any
func (r *GameRepository) GetRedirect(ctx context.Context, oldSlug string) (*models.GameRedirect, error) {
	query := `
		SELECT id, old_slug, new_slug, game_id, created_at
		FROM game_redirects
		WHERE old_slug = $1
	`

	var redirect models.GameRedirect
	err := r.db.Pool().QueryRow(ctx, query, oldSlug).Scan(
		&redirect.ID,
		&redirect.OldSlug,
		&redirect.NewSlug,
		&redirect.GameID,
		&redirect.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get redirect: %w", err)
	}

	return &redirect, nil
}

// gameColumnsAliased prefixes the game column list with a table alias
func gameColumnsAliased(alias string) string {
	return "id, " + alias + ".name, " + alias + ".name_ru, " + alias + ".slug, " + alias + ".released, " + alias + ".hidden"
}
