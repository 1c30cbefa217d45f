package achievements

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/types"
)

type fakeAchievementClient struct {
	network types.NetworkID
	err     error
	calls   int
}

func (f *fakeAchievementClient) Network() types.NetworkID {
	return f.network
}

func (f *fakeAchievementClient) GetOwnedGames(context.Context, string) ([]types.RawGame, error) {
	return nil, nil
}

func (f *fakeAchievementClient) GetAchievements(context.Context, string, string) ([]types.RawAchievement, error) {
	f.calls++
	return nil, f.err
}

type nilResolver struct{}

func (nilResolver) Resolve(context.Context, string, string, string) (*models.Game, string, error) {
	return nil, "", nil
}

func TestSyncLibraryFetchFailures(t *testing.T) {
	rawGames := []types.RawGame{
		{AppID: "1", Name: "One", StoreSlug: "steam"},
		{AppID: "2", Name: "Two", StoreSlug: "steam"},
		{AppID: "3", Name: "Three", StoreSlug: "steam"},
	}

	t.Run("permanent failure stops after the first game", func(t *testing.T) {
		client := &fakeAchievementClient{
			network: types.NetworkSteam,
			err:     syncerrors.NewAccountNotFoundError(types.NetworkSteam, "someone"),
		}
		syncer := NewSyncer(nilResolver{}, NewIngester(nil))

		recorded, err := syncer.SyncLibrary(context.Background(), 1, client, "someone", rawGames)
		require.NoError(t, err)
		assert.Zero(t, recorded)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("transient failure skips the game and keeps going", func(t *testing.T) {
		client := &fakeAchievementClient{
			network: types.NetworkSteam,
			err:     syncerrors.NewNetworkUnavailableError(types.NetworkSteam, context.DeadlineExceeded),
		}
		syncer := NewSyncer(nilResolver{}, NewIngester(nil))

		recorded, err := syncer.SyncLibrary(context.Background(), 1, client, "someone", rawGames)
		require.NoError(t, err)
		assert.Zero(t, recorded)
		assert.Equal(t, len(rawGames), client.calls)
	})
}
