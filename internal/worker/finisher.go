package worker

import (
	"context"
	"fmt"

	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/notify"
	"github.com/library-sync/internal/storage"
	"github.com/library-sync/internal/types"
)

// Finisher applies a completed set of per-network outcomes onto a user. The
// import worker and the sync sweep both funnel through it, so the two paths
// produce state transitions indistinguishable to downstream consumers.
type Finisher struct {
	users      *storage.UserRepository
	networks   *storage.NetworkRepository
	importLogs *storage.ImportLogRepository
	notifier   *notify.Notifier
	logger     *logging.Logger
}

// NewFinisher creates a new finisher
func NewFinisher(users *storage.UserRepository, networks *storage.NetworkRepository, importLogs *storage.ImportLogRepository, notifier *notify.Notifier) *Finisher {
	return &Finisher{
		users:      users,
		networks:   networks,
		importLogs: importLogs,
		notifier:   notifier,
		logger:     logging.GetGlobalLogger().WithField("component", "finisher"),
	}
}

// Finish writes the per-network statuses onto the user record in one
// transaction, appends audit logs, creates the summary notification, and
// fires the mail hooks for manual and old-resync imports.
func (f *Finisher) Finish(ctx context.Context, user *models.User, results []NetworkResult, isSync, isOld bool) error {
	// lazy registry rows; failure here must not block the outcome
	if f.networks != nil {
		for _, r := range results {
			if _, err := f.networks.GetOrCreate(ctx, r.Network); err != nil {
				f.logger.WithError(err).Warnf("failed to ensure network row for %s", r.Network)
			}
		}
	}

	tx, err := f.users.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin finish transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, r := range results {
		if err := f.users.ApplySyncResultTx(ctx, tx, user.ID, r.Network, r.AccountRef, r.Status); err != nil {
			return fmt.Errorf("failed to apply %s result: %w", r.Network, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit finish: %w", err)
	}

	f.AppendLogs(ctx, user.ID, isSync, results)

	statuses := make(map[string]interface{}, len(results))
	anySuccess := false
	for _, r := range results {
		entry := map[string]interface{}{"status": string(r.Status)}
		if r.Status == types.ImportReady {
			anySuccess = true
			entry["games"] = r.SyncedGames
		}
		statuses[string(r.Network)] = entry
	}

	if f.notifier != nil {
		if err := f.notifier.NotifyImportResult(ctx, user.ID, statuses); err != nil {
			return err
		}
		if !isSync && anySuccess {
			f.notifier.MailImportResult(user, statuses)
		}
		if isOld && anySuccess {
			// only mail when the resync actually moved a network's status;
			// an unchanged outcome is noise for a dormant account
			if changed := changedStatuses(user, results); len(changed) > 0 {
				f.notifier.MailOldResync(user, changed)
			}
		}
	}

	return nil
}

// changedStatuses returns the networks whose recorded status differs from
// what this run produced, with the before and after values. The user record
// is read before Finish applies the results, so it still holds the previous
// statuses here.
func changedStatuses(user *models.User, results []NetworkResult) []map[string]interface{} {
	var changed []map[string]interface{}
	for _, r := range results {
		prev := user.SyncStatus(r.Network)
		if prev == string(r.Status) {
			continue
		}
		changed = append(changed, map[string]interface{}{
			"network": string(r.Network),
			"from":    prev,
			"to":      string(r.Status),
		})
	}
	return changed
}

// AppendLogs writes one audit row per attempted network. Audit failures are
// logged, never fatal: the audit trail must not block imports.
func (f *Finisher) AppendLogs(ctx context.Context, userID int64, isSync bool, results []NetworkResult) {
	if f.importLogs == nil {
		return
	}

	logs := make([]*models.ImportLog, 0, len(results))
	for _, r := range results {
		logs = append(logs, &models.ImportLog{
			UserID:    userID,
			Network:   r.Network,
			AccountID: r.AccountRef,
			Status:    r.Status,
			Duration:  r.Duration,
			IsSync:    isSync,
		})
	}

	if err := f.importLogs.Append(ctx, logs); err != nil {
		f.logger.WithError(err).Error("failed to append import logs")
	}
}
