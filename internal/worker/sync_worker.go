package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/library-sync/internal/config"
	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/merger"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/platform"
	"github.com/library-sync/internal/storage"
	"github.com/library-sync/internal/types"
)

// SyncWorker sweeps users due for periodic resynchronization across all
// networks, outside the import-job queue. Each network runs as its own batch
// goroutine; per-user partial results are unioned afterwards and finalized
// through the same Finish contract as the import worker.
type SyncWorker struct {
	cfg      *config.SyncConfig
	users    *storage.UserRepository
	clients  *platform.Registry
	merger   *merger.Merger
	finisher *Finisher
	counters *Counters
	logger   *logging.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// SyncWorkerConfig holds sync worker dependencies
type SyncWorkerConfig struct {
	Sync     *config.SyncConfig
	Users    *storage.UserRepository
	Clients  *platform.Registry
	Merger   *merger.Merger
	Finisher *Finisher
	Counters *Counters
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(cfg SyncWorkerConfig) (*SyncWorker, error) {
	if cfg.Sync == nil {
		return nil, fmt.Errorf("sync config is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if cfg.Clients == nil {
		return nil, fmt.Errorf("client registry is required")
	}
	if cfg.Merger == nil {
		return nil, fmt.Errorf("merger is required")
	}
	if cfg.Finisher == nil {
		return nil, fmt.Errorf("finisher is required")
	}
	counters := cfg.Counters
	if counters == nil {
		counters = NewCounters()
	}
	return &SyncWorker{
		cfg:      cfg.Sync,
		users:    cfg.Users,
		clients:  cfg.Clients,
		merger:   cfg.Merger,
		finisher: cfg.Finisher,
		counters: counters,
		logger:   logging.GetGlobalLogger().WithField("component", "sync-worker"),
		sleep:    sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunSync sweeps every user active within the trailing window across all
// configured networks. userID, when non-zero, restricts the sweep to one
// user (operator-triggered resync).
func (s *SyncWorker) RunSync(ctx context.Context, userID int64) error {
	activeSince := time.Now().Add(-s.cfg.ActiveWindow)

	networks := s.clients.Networks()
	log.Printf("[SyncWorker] sweep started, networks=%d activeSince=%s", len(networks), activeSince.Format(time.RFC3339))

	partials := make([]map[int64]NetworkResult, len(networks))
	var wg sync.WaitGroup

	for idx, network := range networks {
		wg.Add(1)
		go func(idx int, network types.NetworkID) {
			defer wg.Done()
			partials[idx] = s.runNetworkBatch(ctx, network, activeSince, userID)
		}(idx, network)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	// union per-user results across networks
	combined := make(map[int64][]NetworkResult)
	for _, partial := range partials {
		for uid, result := range partial {
			combined[uid] = append(combined[uid], result)
		}
	}

	finished := 0
	for uid, results := range combined {
		user, err := s.users.GetByID(ctx, uid)
		if err != nil {
			return fmt.Errorf("failed to load user %d: %w", uid, err)
		}
		if user == nil {
			continue
		}
		if err := s.finisher.Finish(ctx, user, results, true, false); err != nil {
			return fmt.Errorf("failed to finish sync for user %d: %w", uid, err)
		}
		finished++
	}

	log.Printf("[SyncWorker] sweep finished, users=%d", finished)
	return nil
}

// runNetworkBatch walks due users in id order for one network, resuming
// from the last processed id after an error. On a batch-level failure the
// worker sleeps until the next quiet wall-clock boundary before resuming,
// and gives up for this run once the retry budget is spent.
func (s *SyncWorker) runNetworkBatch(ctx context.Context, network types.NetworkID, activeSince time.Time, onlyUserID int64) map[int64]NetworkResult {
	results := make(map[int64]NetworkResult)
	budget := s.cfg.RetryBudget
	fromID := int64(0)

	for {
		lastID, err := s.sweepFrom(ctx, network, activeSince, onlyUserID, fromID, results)
		if err == nil {
			return results
		}
		if ctx.Err() != nil {
			return results
		}

		budget--
		if budget < 0 {
			s.logger.WithError(err).WithField("network", string(network)).
				Error("retry budget exhausted, giving up until next sweep")
			return results
		}

		wakeAt := NextQuietBoundary(time.Now())
		s.logger.WithFields(map[string]interface{}{
			"network": string(network),
			"resume":  lastID + 1,
			"wake_at": wakeAt.Format(time.RFC3339),
		}).Warn("batch failed, pausing until quiet boundary")

		if err := s.sleep(ctx, time.Until(wakeAt)); err != nil {
			return results
		}
		fromID = lastID + 1
	}
}

// sweepFrom processes due users with id >= fromID, recording one result per
// user into results. Returns the last user id it reached, so the caller can
// resume past it.
func (s *SyncWorker) sweepFrom(ctx context.Context, network types.NetworkID, activeSince time.Time, onlyUserID, fromID int64, results map[int64]NetworkResult) (int64, error) {
	users, err := s.users.ListDueForSync(ctx, activeSince, fromID)
	if err != nil {
		return fromID, err
	}

	lastID := fromID
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return lastID, err
		}
		lastID = user.ID

		if onlyUserID != 0 && user.ID != onlyUserID {
			continue
		}
		accountRef := user.AccountRef(network)
		if accountRef == "" {
			continue
		}

		result, err := s.syncUser(ctx, user, network, accountRef)
		if err != nil {
			// transient infra trouble aborts the batch for the quiet-boundary
			// pause; per-account failures were already folded into result
			return lastID, err
		}
		results[user.ID] = result
	}

	return lastID, nil
}

// syncUser fetches and merges one network for one user. Permanent account
// failures become part of the result; transient failures abort the batch.
func (s *SyncWorker) syncUser(ctx context.Context, user *models.User, network types.NetworkID, accountRef string) (NetworkResult, error) {
	result := NetworkResult{Network: network, AccountRef: accountRef}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	client, err := s.clients.Get(network)
	if err != nil {
		result.Status = types.ImportError
		return result, nil
	}

	rawGames, err := client.GetOwnedGames(ctx, accountRef)
	if err != nil {
		s.counters.AddFailure(network)
		if syncerrors.IsPermanent(err) {
			result.Status = types.ImportError
			return result, nil
		}
		return result, err
	}
	s.counters.AddFetched(network, len(rawGames))

	merged, err := s.merger.MergeLibrary(ctx, user.ID, rawGames, network)
	if err != nil {
		s.counters.AddFailure(network)
		return result, err
	}
	s.counters.AddMerged(network, len(merged.SyncedGames), merged.Skipped)

	result.Status = types.ImportReady
	result.SyncedGames = merged.SyncedGames
	return result, nil
}
