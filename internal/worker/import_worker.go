// Package worker contains the import queue worker and the periodic sync
// sweep that drive library synchronization.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/library-sync/internal/achievements"
	"github.com/library-sync/internal/config"
	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/merger"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/platform"
	"github.com/library-sync/internal/storage"
	"github.com/library-sync/internal/types"
)

// NetworkResult is the terminal outcome of one network fetch within a job
type NetworkResult struct {
	Network     types.NetworkID
	AccountRef  string
	Status      types.ImportStatus
	SyncedGames []types.SyncedGame
	Duration    time.Duration

	// RetryAfter is the provider-stated cooldown from a 429, zero otherwise
	RetryAfter time.Duration
}

// ImportWorker owns one partition of the import queue. Jobs are claimed by
// the deterministic partition function; there is no row lock, so partition
// disjointness is the sole guard against double-claiming.
type ImportWorker struct {
	cfg          *config.WorkerConfig
	imports      *storage.ImportRepository
	users        *storage.UserRepository
	clients      *platform.Registry
	merger       *merger.Merger
	achievements *achievements.Syncer
	finisher     *Finisher
	counters     *Counters
	logger       *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// ImportWorkerConfig holds import worker dependencies
type ImportWorkerConfig struct {
	Worker       *config.WorkerConfig
	Imports      *storage.ImportRepository
	Users        *storage.UserRepository
	Clients      *platform.Registry
	Merger       *merger.Merger
	Achievements *achievements.Syncer // optional, enables unlock ingestion
	Finisher     *Finisher
	Counters     *Counters
}

// NewImportWorker creates a new import worker
func NewImportWorker(cfg ImportWorkerConfig) (*ImportWorker, error) {
	if cfg.Worker == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if cfg.Imports == nil || cfg.Users == nil {
		return nil, fmt.Errorf("import and user repositories are required")
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
	return &ImportWorker{
		cfg:          cfg.Worker,
		imports:      cfg.Imports,
		users:        cfg.Users,
		clients:      cfg.Clients,
		merger:       cfg.Merger,
		achievements: cfg.Achievements,
		finisher:     cfg.Finisher,
		counters:     counters,
		logger: logging.GetGlobalLogger().WithFields(map[string]interface{}{
			"component": "import-worker",
			"partition": cfg.Worker.ProcessNum,
		}),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start runs the claim loop until Stop is called or the context ends
func (w *ImportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("import worker already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	log.Printf("[ImportWorker] partition %d/%d started", w.cfg.ProcessNum, w.cfg.ProcessCount)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		default:
		}

		job, err := w.imports.ClaimNext(ctx, w.cfg.ProcessNum, w.cfg.ProcessCount)
		if err != nil {
			if errors.Is(err, storage.ErrNoJob) {
				select {
				case <-time.After(w.cfg.PollInterval):
				case <-ctx.Done():
					return ctx.Err()
				case <-w.stopCh:
					return nil
				}
				continue
			}
			w.logger.WithError(err).Error("failed to claim job")
			select {
			case <-time.After(w.cfg.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if err := w.RunImport(ctx, job); err != nil {
			// finalization failures must be visible, not swallowed
			w.logger.WithError(err).WithField("job", job.ID).Error("import job failed")
		}
	}
}

// Stop signals the claim loop to exit and waits for the in-flight job
func (w *ImportWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	<-w.doneCh
}

// RunImport executes one claimed job end to end. Safe under at-least-once
// execution: merging is idempotent and claiming flips is_started exactly
// once.
func (w *ImportWorker) RunImport(ctx context.Context, job *models.Import) error {
	user, err := w.users.GetByID(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", job.UserID, err)
	}
	if user == nil {
		w.logger.WithField("job", job.ID).Warn("user gone, dropping job")
		return w.imports.Delete(ctx, job.ID)
	}

	networks := w.applicableNetworks(user)
	if len(networks) == 0 {
		w.logger.WithField("user", user.ID).Warn("no linked networks, dropping job")
		return w.imports.Delete(ctx, job.ID)
	}

	// manual imports also pull achievement unlocks; the periodic sync skips
	// them to keep sweep time bounded
	results := w.fetchAll(ctx, user, networks, !job.IsSync, job.IsFast)

	// deadline on any network restarts the whole job: a partial import must
	// not be finalized with stale per-network state
	if hasStatus(results, types.ImportRestart) {
		return w.reschedule(ctx, job, results, w.cfg.RestartDelay)
	}
	if hasStatus(results, types.ImportUnavailable) {
		return w.reschedule(ctx, job, results, w.cfg.UnavailDelay)
	}

	if err := w.finisher.Finish(ctx, user, results, job.IsSync, job.IsOld); err != nil {
		return fmt.Errorf("failed to finish job %d: %w", job.ID, err)
	}

	return w.imports.Delete(ctx, job.ID)
}

// applicableNetworks intersects the user's linked networks with the
// configured clients
func (w *ImportWorker) applicableNetworks(user *models.User) []types.NetworkID {
	var out []types.NetworkID
	for _, n := range user.LinkedNetworks() {
		if _, err := w.clients.Get(n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// fetchAll runs every network fetch+merge concurrently under per-network
// deadlines and gathers all results before returning. No partial-result
// shortcut exists on purpose.
func (w *ImportWorker) fetchAll(ctx context.Context, user *models.User, networks []types.NetworkID, withAchievements, isFast bool) []NetworkResult {
	results := make([]NetworkResult, len(networks))
	var wg sync.WaitGroup

	for idx, network := range networks {
		wg.Add(1)
		go func(idx int, network types.NetworkID) {
			defer wg.Done()
			results[idx] = w.fetchNetwork(ctx, user, network, withAchievements, isFast)
		}(idx, network)
	}

	wg.Wait()
	return results
}

// fetchNetwork fetches and merges one network's library under its deadline
func (w *ImportWorker) fetchNetwork(ctx context.Context, user *models.User, network types.NetworkID, withAchievements, isFast bool) NetworkResult {
	accountRef := user.AccountRef(network)
	result := NetworkResult{Network: network, AccountRef: accountRef}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	netCtx, cancel := context.WithTimeout(ctx, w.cfg.NetworkTimeout)
	defer cancel()

	client, err := w.clients.Get(network)
	if err != nil {
		result.Status = types.ImportError
		return result
	}

	rawGames, err := client.GetOwnedGames(netCtx, accountRef)
	if err != nil {
		result.Status = w.classify(netCtx, network, err)
		if cooldown, ok := syncerrors.RetryAfterHint(err); ok {
			result.RetryAfter = cooldown
		}
		w.counters.AddFailure(network)
		return result
	}
	w.counters.AddFetched(network, len(rawGames))

	// a fast resync only touches games played inside the window; the full
	// library is left to the regular resync
	if isFast {
		rawGames = playedSince(rawGames, time.Now().Add(-w.cfg.FastWindow))
	}

	merged, err := w.merger.MergeLibrary(netCtx, user.ID, rawGames, network)
	if err != nil {
		result.Status = w.classify(netCtx, network, err)
		w.counters.AddFailure(network)
		return result
	}
	w.counters.AddMerged(network, len(merged.SyncedGames), merged.Skipped)

	if withAchievements && w.achievements != nil {
		recorded, err := w.achievements.SyncLibrary(netCtx, user.ID, client, accountRef, rawGames)
		if err != nil {
			// unlock ingestion rides along with the import; hitting the
			// deadline mid-way restarts the job like any other fetch
			if errors.Is(netCtx.Err(), context.DeadlineExceeded) {
				result.Status = types.ImportRestart
				return result
			}
			w.logger.WithError(err).WithField("network", string(network)).
				Warn("achievement ingestion failed")
		} else if recorded > 0 {
			w.logger.WithFields(map[string]interface{}{
				"network": string(network),
				"unlocks": recorded,
			}).Info("achievements ingested")
		}
	}

	result.Status = types.ImportReady
	result.SyncedGames = merged.SyncedGames
	return result
}

// classify maps a fetch/merge error onto the per-network terminal status
func (w *ImportWorker) classify(netCtx context.Context, network types.NetworkID, err error) types.ImportStatus {
	if errors.Is(netCtx.Err(), context.DeadlineExceeded) {
		w.logger.WithField("network", string(network)).Warn("network fetch hit deadline")
		return types.ImportRestart
	}
	if syncerrors.IsPermanent(err) {
		return types.ImportError
	}
	w.logger.WithError(err).WithField("network", string(network)).Warn("network unavailable")
	return types.ImportUnavailable
}

// reschedule pushes the job back with a larger delay, or gives up once the
// retry cap is reached and finalizes with whatever terminal statuses exist.
func (w *ImportWorker) reschedule(ctx context.Context, job *models.Import, results []NetworkResult, base time.Duration) error {
	w.finisher.AppendLogs(ctx, job.UserID, job.IsSync, results)

	retries := job.Retries + 1
	if w.cfg.MaxRetries > 0 && retries > w.cfg.MaxRetries {
		w.logger.WithFields(map[string]interface{}{
			"job":     job.ID,
			"retries": job.Retries,
		}).Error("retry cap reached, finalizing with failures")

		user, err := w.users.GetByID(ctx, job.UserID)
		if err != nil {
			return err
		}
		if user != nil {
			for i := range results {
				if results[i].Status == types.ImportRestart {
					results[i].Status = types.ImportUnavailable
				}
			}
			if err := w.finisher.Finish(ctx, user, results, job.IsSync, job.IsOld); err != nil {
				return err
			}
		}
		return w.imports.Delete(ctx, job.ID)
	}

	delay := Backoff(base, retries, w.cfg.MaxRetryDelay)
	// a provider-stated cooldown overrides a shorter backoff; retrying inside
	// the cooldown window only burns another attempt on a guaranteed 429
	if cooldown := maxCooldown(results); cooldown > delay {
		delay = cooldown
	}
	w.logger.WithFields(map[string]interface{}{
		"job":     job.ID,
		"retries": retries,
		"delay":   delay.String(),
	}).Info("rescheduling job")

	return w.imports.Reschedule(ctx, job.ID, retries, delay)
}

// playedSince keeps the raw entries last played at or after the cutoff.
// Entries with no last-played timestamp are dropped: the network reported no
// recent activity for them.
func playedSince(rawGames []types.RawGame, cutoff time.Time) []types.RawGame {
	out := make([]types.RawGame, 0, len(rawGames))
	for _, raw := range rawGames {
		if !raw.LastPlayed.IsZero() && !raw.LastPlayed.Before(cutoff) {
			out = append(out, raw)
		}
	}
	return out
}

// maxCooldown returns the longest provider-stated cooldown across the results
func maxCooldown(results []NetworkResult) time.Duration {
	var out time.Duration
	for _, r := range results {
		if r.RetryAfter > out {
			out = r.RetryAfter
		}
	}
	return out
}

func hasStatus(results []NetworkResult, status types.ImportStatus) bool {
	for _, r := range results {
		if r.Status == status {
			return true
		}
	}
	return false
}
