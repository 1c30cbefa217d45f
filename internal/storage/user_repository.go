package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/types"
)

// UserRepository handles the sync-relevant slice of the user record
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, language, steam_id, gog_username, xbox_gamertag, psn_online_id,
	steam_sync_status, gog_sync_status, xbox_sync_status, psn_sync_status,
	subscribe_mail_sync, last_visit, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Language,
		&user.SteamID,
		&user.GOGUsername,
		&user.XboxGamertag,
		&user.PSNOnlineID,
		&user.SteamSyncStatus,
		&user.GOGSyncStatus,
		&user.XboxSyncStatus,
		&user.PSNSyncStatus,
		&user.SubscribeMailSync,
		&user.LastVisit,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID retrieves a user by ID. Returns (nil, nil) when the user no longer
// exists so callers can skip deleted accounts instead of aborting a batch.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListDueForSync returns users active inside the window, ordered by id,
// starting from fromID. The ordering is what makes the sync sweep resumable:
// after an error the batch restarts with fromID = last processed id.
func (r *UserRepository) ListDueForSync(ctx context.Context, activeSince time.Time, fromID int64) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE last_visit >= $1 AND id >= $2
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query, activeSince, fromID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users due for sync: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// ApplySyncResultTx writes per-network account id and status fields inside a
// transaction; used by Finish so the whole outcome lands atomically
func (r *UserRepository) ApplySyncResultTx(ctx context.Context, tx pgx.Tx, userID int64, network types.NetworkID, accountID string, status types.ImportStatus) error {
	var accountColumn, statusColumn string
	switch network {
	case types.NetworkSteam:
		accountColumn, statusColumn = "steam_id", "steam_sync_status"
	case types.NetworkXbox:
		accountColumn, statusColumn = "xbox_gamertag", "xbox_sync_status"
	case types.NetworkPlayStation:
		accountColumn, statusColumn = "psn_online_id", "psn_sync_status"
	case types.NetworkGOG:
		accountColumn, statusColumn = "gog_username", "gog_sync_status"
	default:
		return fmt.Errorf("unknown network: %s", network)
	}

	query := `UPDATE users SET ` + accountColumn + ` = $2, ` + statusColumn + ` = $3, updated_at = $4 WHERE id = $1`

	result, err := tx.Exec(ctx, query, userID, accountID, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("failed to apply sync result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %d", userID)
	}

	return nil
}

// BeginTx starts a new transaction
func (r *UserRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Pool().Begin(ctx)
}
