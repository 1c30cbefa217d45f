package worker

import "time"

// PartitionOwner computes which of processCount worker processes owns a job.
// The retry count is part of the key on purpose: each retry moves the job to
// a different process, smoothing out process-local trouble, while still
// guaranteeing exactly one owner for any (id, retries) value. All running
// workers must agree on processCount — changing it without restarting every
// worker breaks the disjointness guarantee.
func PartitionOwner(jobID int64, retries int, processCount int) int {
	if processCount <= 0 {
		return 0
	}
	return int((jobID + int64(retries)) % int64(processCount))
}

// Backoff computes the reschedule delay after a transient failure. The delay
// grows linearly with the retry count and is capped at maxDelay.
func Backoff(base time.Duration, retries int, maxDelay time.Duration) time.Duration {
	if retries < 1 {
		retries = 1
	}
	delay := base * time.Duration(retries)
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

// NextQuietBoundary returns the next :01 or :15 minute mark after now. The
// sync batches pause until a quiet boundary before resuming after an error,
// so a resumed sweep does not hammer an external API that is already
// struggling.
func NextQuietBoundary(now time.Time) time.Time {
	base := now.Truncate(time.Hour)
	for _, minute := range []int{1, 15} {
		candidate := base.Add(time.Duration(minute) * time.Minute)
		if candidate.After(now) {
			return candidate
		}
	}
	return base.Add(time.Hour + time.Minute)
}
