package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/types"
)

// ImportLogRepository appends import audit rows to ClickHouse and serves the
// per-network duration statistics used for queue ETAs
type ImportLogRepository struct {
	db *ClickHouseDB
}

// NewImportLogRepository creates a new import log repository
func NewImportLogRepository(db *ClickHouseDB) *ImportLogRepository {
	return &ImportLogRepository{db: db}
}

// Append writes one audit row per finished network attempt. Rows are never
// updated or deleted.
func (r *ImportLogRepository) Append(ctx context.Context, logs []*models.ImportLog) error {
	if len(logs) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO import_logs (id, user_id, network, account_id, status, duration_ms, is_sync, created_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare import log batch: %w", err)
	}

	now := time.Now()
	for _, entry := range logs {
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		err := batch.Append(
			entry.ID,
			entry.UserID,
			string(entry.Network),
			entry.AccountID,
			string(entry.Status),
			entry.Duration.Milliseconds(),
			entry.IsSync,
			entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append import log row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send import log batch: %w", err)
	}

	return nil
}

// AvgDurations returns the average successful import duration per network
// over the trailing window
func (r *ImportLogRepository) AvgDurations(ctx context.Context, window time.Duration) (map[types.NetworkID]time.Duration, error) {
	query := `
		SELECT network, avg(duration_ms)
		FROM import_logs
		WHERE status = 'ready' AND created_at >= now() - INTERVAL ? SECOND
		GROUP BY network
	`

	rows, err := r.db.Conn().Query(ctx, query, int64(window.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to query avg durations: %w", err)
	}
	defer rows.Close()

	out := make(map[types.NetworkID]time.Duration)
	for rows.Next() {
		var network string
		var avgMs float64
		if err := rows.Scan(&network, &avgMs); err != nil {
			return nil, fmt.Errorf("failed to scan avg duration: %w", err)
		}
		out[types.NetworkID(network)] = time.Duration(avgMs) * time.Millisecond
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating avg durations: %w", err)
	}

	return out, nil
}

// MaxAvgDuration returns the slowest network's trailing average, used as the
// per-slot estimate when computing a user's queue wait
func (r *ImportLogRepository) MaxAvgDuration(ctx context.Context, window time.Duration) (time.Duration, error) {
	averages, err := r.AvgDurations(ctx, window)
	if err != nil {
		return 0, err
	}

	var max time.Duration
	for _, avg := range averages {
		if avg > max {
			max = avg
		}
	}
	return max, nil
}

// CountRecent returns how many network attempts a user accumulated within the
// window, feeding the manual-import throttle
func (r *ImportLogRepository) CountRecent(ctx context.Context, userID int64, window time.Duration) (uint64, error) {
	query := `
		SELECT count()
		FROM import_logs
		WHERE user_id = ? AND created_at >= now() - INTERVAL ? SECOND
	`

	var count uint64
	err := r.db.Conn().QueryRow(ctx, query, userID, int64(window.Seconds())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent imports: %w", err)
	}

	return count, nil
}
