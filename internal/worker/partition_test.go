package worker

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-sync/internal/types"
)

func TestPartitionOwner(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, 3, PartitionOwner(7, 0, 4))
		assert.Equal(t, 3, PartitionOwner(7, 0, 4))
	})

	t.Run("retry moves the job to another partition", func(t *testing.T) {
		assert.Equal(t, 3, PartitionOwner(7, 0, 4))
		assert.Equal(t, 0, PartitionOwner(7, 1, 4))
	})

	t.Run("single process owns everything", func(t *testing.T) {
		for id := int64(0); id < 20; id++ {
			assert.Equal(t, 0, PartitionOwner(id, 0, 1))
		}
	})

	t.Run("zero process count does not panic", func(t *testing.T) {
		assert.Equal(t, 0, PartitionOwner(7, 0, 0))
	})
}

func TestPartitionOwnerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("exactly one owner per job", prop.ForAll(
		func(jobID int64, retries, processCount int) bool {
			owners := 0
			for p := 0; p < processCount; p++ {
				if PartitionOwner(jobID, retries, processCount) == p {
					owners++
				}
			}
			return owners == 1
		},
		gen.Int64Range(0, 1<<40),
		gen.IntRange(0, 100),
		gen.IntRange(1, 32),
	))

	properties.Property("owner is within range", prop.ForAll(
		func(jobID int64, retries, processCount int) bool {
			owner := PartitionOwner(jobID, retries, processCount)
			return owner >= 0 && owner < processCount
		},
		gen.Int64Range(0, 1<<40),
		gen.IntRange(0, 100),
		gen.IntRange(1, 32),
	))

	properties.TestingRun(t)
}

func TestBackoff(t *testing.T) {
	base := 2 * time.Minute
	maxDelay := 6 * time.Hour

	t.Run("grows linearly with retries", func(t *testing.T) {
		assert.Equal(t, 2*time.Minute, Backoff(base, 1, maxDelay))
		assert.Equal(t, 4*time.Minute, Backoff(base, 2, maxDelay))
		assert.Equal(t, 20*time.Minute, Backoff(base, 10, maxDelay))
	})

	t.Run("zero retries treated as first retry", func(t *testing.T) {
		assert.Equal(t, 2*time.Minute, Backoff(base, 0, maxDelay))
	})

	t.Run("capped at max delay", func(t *testing.T) {
		assert.Equal(t, maxDelay, Backoff(base, 1000, maxDelay))
	})

	t.Run("no cap when max delay is zero", func(t *testing.T) {
		assert.Equal(t, 2000*time.Minute, Backoff(base, 1000, 0))
	})
}

func TestPlayedSince(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rawGames := []types.RawGame{
		{Name: "recent", LastPlayed: cutoff.Add(24 * time.Hour)},
		{Name: "at the cutoff", LastPlayed: cutoff},
		{Name: "stale", LastPlayed: cutoff.Add(-24 * time.Hour)},
		{Name: "never played"},
	}

	kept := playedSince(rawGames, cutoff)
	require.Len(t, kept, 2)
	assert.Equal(t, "recent", kept[0].Name)
	assert.Equal(t, "at the cutoff", kept[1].Name)
}

func TestMaxCooldown(t *testing.T) {
	t.Run("no rate limited results", func(t *testing.T) {
		results := []NetworkResult{
			{Network: types.NetworkSteam, Status: types.ImportUnavailable},
			{Network: types.NetworkGOG, Status: types.ImportReady},
		}
		assert.Equal(t, time.Duration(0), maxCooldown(results))
	})

	t.Run("longest stated cooldown wins", func(t *testing.T) {
		results := []NetworkResult{
			{Network: types.NetworkSteam, Status: types.ImportUnavailable, RetryAfter: 30 * time.Second},
			{Network: types.NetworkXbox, Status: types.ImportUnavailable, RetryAfter: 5 * time.Minute},
		}
		assert.Equal(t, 5*time.Minute, maxCooldown(results))
	})
}

func TestNextQuietBoundary(t *testing.T) {
	tests := []struct {
		name     string
		now      string
		expected string
	}{
		{"top of hour waits for :01", "2026-03-10T14:00:00Z", "2026-03-10T14:01:00Z"},
		{"just before :01", "2026-03-10T14:00:59Z", "2026-03-10T14:01:00Z"},
		{"exactly :01 rolls to :15", "2026-03-10T14:01:00Z", "2026-03-10T14:15:00Z"},
		{"between boundaries", "2026-03-10T14:07:30Z", "2026-03-10T14:15:00Z"},
		{"after :15 rolls to next hour", "2026-03-10T14:15:00Z", "2026-03-10T15:01:00Z"},
		{"late in the hour", "2026-03-10T14:59:59Z", "2026-03-10T15:01:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := time.Parse(time.RFC3339, tt.now)
			assert.NoError(t, err)
			expected, err := time.Parse(time.RFC3339, tt.expected)
			assert.NoError(t, err)

			assert.Equal(t, expected, NextQuietBoundary(now))
		})
	}
}
