package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/notify"
	"github.com/library-sync/internal/storage"
)

// Enqueuer creates import jobs and tells the user where they landed in the
// queue
type Enqueuer struct {
	imports      *storage.ImportRepository
	importLogs   *storage.ImportLogRepository
	notifier     *notify.Notifier
	processCount int
}

// NewEnqueuer creates a new enqueuer
func NewEnqueuer(imports *storage.ImportRepository, importLogs *storage.ImportLogRepository, notifier *notify.Notifier, processCount int) *Enqueuer {
	return &Enqueuer{
		imports:      imports,
		importLogs:   importLogs,
		notifier:     notifier,
		processCount: processCount,
	}
}

// Manual imports are throttled per user so a click-happy user cannot flood
// the queue. The count is over per-network audit rows, so one full import of
// a four-network account costs four attempts.
const (
	manualThrottleWindow   = 30 * time.Minute
	manualThrottleAttempts = 12
)

// ErrThrottled is returned when a user exceeds the manual-import attempt cap
var ErrThrottled = errors.New("too many recent import attempts")

// EnqueueOptions selects the import variant
type EnqueueOptions struct {
	IsSync   bool
	IsFast   bool
	IsOld    bool
	IsManual bool
}

// Enqueue queues one import for the user. A user already holding a
// not-started job of the same kind keeps the existing job; the returned
// position describes whichever job is pending.
func (e *Enqueuer) Enqueue(ctx context.Context, userID int64, opts EnqueueOptions) (*models.Import, error) {
	if opts.IsManual && e.importLogs != nil {
		attempts, err := e.importLogs.CountRecent(ctx, userID, manualThrottleWindow)
		// an unavailable audit store disables the throttle rather than
		// blocking imports
		if err == nil && attempts >= manualThrottleAttempts {
			return nil, ErrThrottled
		}
	}

	job := &models.Import{
		UserID:      userID,
		ScheduledAt: time.Now(),
		IsSync:      opts.IsSync,
		IsFast:      opts.IsFast,
		IsOld:       opts.IsOld,
		IsManual:    opts.IsManual,
	}

	err := e.imports.Enqueue(ctx, job)
	if errors.Is(err, storage.ErrAlreadyQueued) {
		job, err = e.imports.PendingForUser(ctx, userID, opts.IsSync)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, fmt.Errorf("job vanished while enqueueing for user %d", userID)
		}
	} else if err != nil {
		return nil, err
	}

	if e.notifier != nil {
		position, approx, err := e.EstimateWait(ctx, job.ID)
		if err == nil {
			if err := e.notifier.NotifyImportWaiting(ctx, userID, position, approx); err != nil {
				return job, err
			}
		}
	}

	return job, nil
}

// EstimateWait computes the job's queue position and a rough wait in
// seconds, from the slowest network's trailing average duration. Informative
// only; scheduling never depends on it.
func (e *Enqueuer) EstimateWait(ctx context.Context, jobID int64) (int, int64, error) {
	position, err := e.imports.QueuePosition(ctx, jobID, e.processCount)
	if err != nil {
		return 0, 0, err
	}

	var perSlot time.Duration
	if e.importLogs != nil {
		perSlot, err = e.importLogs.MaxAvgDuration(ctx, 24*time.Hour)
		if err != nil {
			return position, 0, err
		}
	}

	return position, int64(float64(position) * perSlot.Seconds()), nil
}
