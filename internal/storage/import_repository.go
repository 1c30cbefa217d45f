package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/models"
)

// ErrAlreadyQueued is returned when a not-started Import for the same
// (user, is_sync) pair already exists
var ErrAlreadyQueued = errors.New("import already queued for user")

// ErrNoJob is returned when no claimable job exists for this partition
var ErrNoJob = errors.New("no import job due")

// ImportRepository handles the import job queue
type ImportRepository struct {
	db *PostgresDB
}

// NewImportRepository creates a new import repository
func NewImportRepository(db *PostgresDB) *ImportRepository {
	return &ImportRepository{db: db}
}

// Enqueue inserts a new import job. The partial unique index on
// (user_id, is_sync) WHERE NOT is_started enforces at most one pending job
// per pair; a second enqueue surfaces as ErrAlreadyQueued.
func (r *ImportRepository) Enqueue(ctx context.Context, imp *models.Import) error {
	if imp.ScheduledAt.IsZero() {
		imp.ScheduledAt = time.Now()
	}

	query := `
		INSERT INTO imports (user_id, scheduled_at, is_sync, is_fast, is_old, is_manual)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		imp.UserID,
		imp.ScheduledAt,
		imp.IsSync,
		imp.IsFast,
		imp.IsOld,
		imp.IsManual,
	).Scan(&imp.ID, &imp.CreatedAt)

	if err != nil {
		if syncerrors.IsUniqueViolation(err) {
			return ErrAlreadyQueued
		}
		return fmt.Errorf("failed to enqueue import: %w", err)
	}

	return nil
}

// ClaimNext claims the next due job owned by worker processNum of
// processCount. Ownership is determined purely by the partition function
// (id + retries) mod processCount; the UPDATE's is_started guard makes the
// claim itself idempotent under at-least-once execution.
func (r *ImportRepository) ClaimNext(ctx context.Context, processNum, processCount int) (*models.Import, error) {
	selectQuery := `
		SELECT id, user_id, scheduled_at, is_sync, is_fast, is_old, is_manual, is_started, retries, created_at
		FROM imports
		WHERE NOT is_started
		  AND scheduled_at <= now()
		  AND (id + retries) % $2 = $1
		ORDER BY id
		LIMIT 1
	`

	var imp models.Import
	err := r.db.Pool().QueryRow(ctx, selectQuery, processNum, processCount).Scan(
		&imp.ID,
		&imp.UserID,
		&imp.ScheduledAt,
		&imp.IsSync,
		&imp.IsFast,
		&imp.IsOld,
		&imp.IsManual,
		&imp.IsStarted,
		&imp.Retries,
		&imp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("failed to select import job: %w", err)
	}

	claimQuery := `UPDATE imports SET is_started = true WHERE id = $1 AND NOT is_started`

	result, err := r.db.Pool().Exec(ctx, claimQuery, imp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim import job: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Claimed between select and update. With a correct partition the
		// other claimant was this same process on a previous crash; treat the
		// row as gone.
		return nil, ErrNoJob
	}

	imp.IsStarted = true
	return &imp, nil
}

// Reschedule pushes a job back into the queue after a transient failure,
// incrementing the retry counter and moving scheduled_at forward. The new
// retries value changes the job's partition key, deliberately allowing the
// retry to land on a different worker process.
func (r *ImportRepository) Reschedule(ctx context.Context, id int64, retries int, delay time.Duration) error {
	query := `
		UPDATE imports
		SET is_started = false, retries = $2, scheduled_at = now() + $3
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, retries, delay)
	if err != nil {
		return fmt.Errorf("failed to reschedule import: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("import not found: %d", id)
	}

	return nil
}

// Delete removes a completed job from the queue
func (r *ImportRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM imports WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete import: %w", err)
	}

	return nil
}

// PendingForUser returns the user's not-started sync job, if any
func (r *ImportRepository) PendingForUser(ctx context.Context, userID int64, isSync bool) (*models.Import, error) {
	query := `
		SELECT id, user_id, scheduled_at, is_sync, is_fast, is_old, is_manual, is_started, retries, created_at
		FROM imports
		WHERE user_id = $1 AND is_sync = $2 AND NOT is_started
	`

	var imp models.Import
	err := r.db.Pool().QueryRow(ctx, query, userID, isSync).Scan(
		&imp.ID,
		&imp.UserID,
		&imp.ScheduledAt,
		&imp.IsSync,
		&imp.IsFast,
		&imp.IsOld,
		&imp.IsManual,
		&imp.IsStarted,
		&imp.Retries,
		&imp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending import: %w", err)
	}

	return &imp, nil
}

// QueuePosition estimates a job's place in the queue:
// ceil(pending sync jobs with id <= this job's id / processCount). Only sync
// jobs count; the wait estimate describes the sync queue.
func (r *ImportRepository) QueuePosition(ctx context.Context, jobID int64, processCount int) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM imports
		WHERE NOT is_started AND is_sync AND id <= $1
	`

	var ahead int
	if err := r.db.Pool().QueryRow(ctx, query, jobID).Scan(&ahead); err != nil {
		return 0, fmt.Errorf("failed to count queue position: %w", err)
	}

	if processCount < 1 {
		processCount = 1
	}
	return (ahead + processCount - 1) / processCount, nil
}

// CountPending returns the number of not-started jobs in the queue
func (r *ImportRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM imports WHERE NOT is_started`

	if err := r.db.Pool().QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending imports: %w", err)
	}

	return count, nil
}

// Abandoned lists jobs stuck in is_started longer than the given age.
// These indicate a worker died mid-job past its hard timeout; they are
// surfaced for alerting rather than silently reclaimed.
func (r *ImportRepository) Abandoned(ctx context.Context, olderThan time.Duration) ([]*models.Import, error) {
	query := `
		SELECT id, user_id, scheduled_at, is_sync, is_fast, is_old, is_manual, is_started, retries, created_at
		FROM imports
		WHERE is_started AND scheduled_at < now() - $1
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned imports: %w", err)
	}
	defer rows.Close()

	var imports []*models.Import
	for rows.Next() {
		var imp models.Import
		err := rows.Scan(
			&imp.ID,
			&imp.UserID,
			&imp.ScheduledAt,
			&imp.IsSync,
			&imp.IsFast,
			&imp.IsOld,
			&imp.IsManual,
			&imp.IsStarted,
			&imp.Retries,
			&imp.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		imports = append(imports, &imp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating imports: %w", err)
	}

	return imports, nil
}
