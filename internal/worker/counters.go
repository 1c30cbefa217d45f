package worker

import (
	"sync"

	"github.com/library-sync/internal/types"
)

// Counters tracks per-network request and merge tallies for one worker
// process. Passed explicitly into each run rather than held in package
// globals, so tests and concurrent batches each get their own instance.
type Counters struct {
	mu      sync.Mutex
	fetched map[types.NetworkID]int
	merged  map[types.NetworkID]int
	skipped map[types.NetworkID]int
	failed  map[types.NetworkID]int
}

// NewCounters creates an empty counter set
func NewCounters() *Counters {
	return &Counters{
		fetched: make(map[types.NetworkID]int),
		merged:  make(map[types.NetworkID]int),
		skipped: make(map[types.NetworkID]int),
		failed:  make(map[types.NetworkID]int),
	}
}

// AddFetched records raw games fetched from a network
func (c *Counters) AddFetched(network types.NetworkID, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched[network] += n
}

// AddMerged records library entries merged for a network
func (c *Counters) AddMerged(network types.NetworkID, merged, skipped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merged[network] += merged
	c.skipped[network] += skipped
}

// AddFailure records one failed network fetch
func (c *Counters) AddFailure(network types.NetworkID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[network]++
}

// Snapshot returns a copy of the current tallies keyed by network
func (c *Counters) Snapshot() map[string]map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]map[string]int)
	for _, n := range types.AllNetworks() {
		if c.fetched[n] == 0 && c.merged[n] == 0 && c.skipped[n] == 0 && c.failed[n] == 0 {
			continue
		}
		out[string(n)] = map[string]int{
			"fetched": c.fetched[n],
			"merged":  c.merged[n],
			"skipped": c.skipped[n],
			"failed":  c.failed[n],
		}
	}
	return out
}
