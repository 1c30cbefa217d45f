package worker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/library-sync/internal/types"
)

func TestCounters(t *testing.T) {
	t.Run("empty snapshot omits untouched networks", func(t *testing.T) {
		c := NewCounters()
		assert.Empty(t, c.Snapshot())
	})

	t.Run("tallies accumulate per network", func(t *testing.T) {
		c := NewCounters()
		c.AddFetched(types.NetworkSteam, 120)
		c.AddMerged(types.NetworkSteam, 118, 2)
		c.AddFetched(types.NetworkGOG, 30)
		c.AddFailure(types.NetworkXbox)
		c.AddFailure(types.NetworkXbox)

		snapshot := c.Snapshot()
		assert.Equal(t, 120, snapshot["steam"]["fetched"])
		assert.Equal(t, 118, snapshot["steam"]["merged"])
		assert.Equal(t, 2, snapshot["steam"]["skipped"])
		assert.Equal(t, 30, snapshot["gog"]["fetched"])
		assert.Equal(t, 2, snapshot["xbox"]["failed"])
		assert.NotContains(t, snapshot, "playstation")
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		c := NewCounters()
		c.AddFetched(types.NetworkSteam, 1)

		snapshot := c.Snapshot()
		snapshot["steam"]["fetched"] = 999

		assert.Equal(t, 1, c.Snapshot()["steam"]["fetched"])
	})

	t.Run("concurrent updates", func(t *testing.T) {
		c := NewCounters()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.AddFetched(types.NetworkSteam, 1)
				c.AddMerged(types.NetworkSteam, 1, 0)
			}()
		}
		wg.Wait()

		snapshot := c.Snapshot()
		assert.Equal(t, 50, snapshot["steam"]["fetched"])
		assert.Equal(t, 50, snapshot["steam"]["merged"])
	})
}
