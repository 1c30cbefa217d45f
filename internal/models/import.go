package models

import (
	"time"

	"github.com/library-sync/internal/types"
)

// Import is one queued synchronization job for one user.
//
// At most one not-started Import per (user, is_sync) pair may exist
// (partial unique index). A job is claimed by exactly one worker process via
// the deterministic partition function (id + retries) mod process_count,
// deleted on success and rescheduled with a larger scheduled_at on transient
// failure.
type Import struct {
	ID          int64
	UserID      int64
	ScheduledAt time.Time
	IsSync      bool // periodic resync rather than manual first import
	IsFast      bool // days-limited fast resync
	IsOld       bool // old-resync variant, triggers its own mail
	IsManual    bool
	IsStarted   bool
	Retries     int
	CreatedAt   time.Time
}

// ImportLog is one append-only audit row per (user, network, attempt).
// Never mutated or deleted; feeds the per-network average-duration statistics.
type ImportLog struct {
	ID        string // uuid
	UserID    int64
	Network   types.NetworkID
	AccountID string
	Status    types.ImportStatus
	Duration  time.Duration
	IsSync    bool
	CreatedAt time.Time
}

// Network is one registry row for an external platform, created lazily on
// first reference
type Network struct {
	ID   int64
	Slug types.NetworkID
	Name string
}

// Notification is one user-facing record summarizing an import outcome.
// Data carries the machine-readable per-network status map the product
// renders from.
type Notification struct {
	ID        string // uuid
	UserID    int64
	Action    string // "import" or "import-waiting"
	Data      map[string]interface{}
	CreatedAt time.Time
}

// Notification actions
const (
	NotificationImport        = "import"
	NotificationImportWaiting = "import-waiting"
)
