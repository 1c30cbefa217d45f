package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/types"
)

func TestChangedStatuses(t *testing.T) {
	user := &models.User{
		ID:              7,
		SteamSyncStatus: string(types.ImportReady),
		GOGSyncStatus:   string(types.ImportError),
	}

	t.Run("unchanged outcome produces no entries", func(t *testing.T) {
		results := []NetworkResult{
			{Network: types.NetworkSteam, Status: types.ImportReady},
			{Network: types.NetworkGOG, Status: types.ImportError},
		}
		assert.Empty(t, changedStatuses(user, results))
	})

	t.Run("moved statuses are reported with before and after", func(t *testing.T) {
		results := []NetworkResult{
			{Network: types.NetworkSteam, Status: types.ImportReady},
			{Network: types.NetworkGOG, Status: types.ImportReady},
		}
		changed := changedStatuses(user, results)
		assert.Len(t, changed, 1)
		assert.Equal(t, "gog", changed[0]["network"])
		assert.Equal(t, string(types.ImportError), changed[0]["from"])
		assert.Equal(t, string(types.ImportReady), changed[0]["to"])
	})

	t.Run("first recorded status counts as a change", func(t *testing.T) {
		results := []NetworkResult{
			{Network: types.NetworkXbox, Status: types.ImportReady},
		}
		changed := changedStatuses(user, results)
		assert.Len(t, changed, 1)
		assert.Equal(t, "", changed[0]["from"])
	})
}
