package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/library-sync/internal/config"
	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/types"
)

// GOGClient fetches a user's owned games from public GOG profile pages.
// GOG exposes no key-gated API; the profile games feed is public JSON,
// paginated, and answers 404 for unknown usernames and 403 for private
// profiles. GOG has no achievement feed on the public surface, so
// GetAchievements always returns an empty list.
type GOGClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGOGClient creates a new GOG profile client
func NewGOGClient(cfg *config.GOGConfig) *GOGClient {
	return &GOGClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// Network implements Client
func (c *GOGClient) Network() types.NetworkID {
	return types.NetworkGOG
}

type gogGamesResponse struct {
	Pages    int `json:"pages"`
	Embedded struct {
		Items []struct {
			Game struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"game"`
			Stats map[string]struct {
				PlaytimeMinutes int       `json:"playtime"`
				LastSessionDate time.Time `json:"lastSession"`
			} `json:"stats"`
		} `json:"items"`
	} `json:"_embedded"`
}

// GetOwnedGames implements Client
func (c *GOGClient) GetOwnedGames(ctx context.Context, accountRef string) ([]types.RawGame, error) {
	var games []types.RawGame

	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, syncerrors.NewNetworkUnavailableError(types.NetworkGOG, err)
		}

		endpoint := fmt.Sprintf("%s/u/%s/games/stats?page=%d",
			c.baseURL, url.PathEscape(accountRef), page)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, body, err := doRequest(ctx, c.client, types.NetworkGOG, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, categorizeStatus(types.NetworkGOG, accountRef, resp,
				http.StatusNotFound, http.StatusForbidden)
		}

		var parsed gogGamesResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, syncerrors.NewNetworkUnavailableError(types.NetworkGOG,
				fmt.Errorf("failed to parse games page: %w", err))
		}

		for _, item := range parsed.Embedded.Items {
			if item.Game.ID == "" {
				continue
			}
			raw := types.RawGame{
				AppID:     item.Game.ID,
				Name:      item.Game.Title,
				StoreSlug: types.NetworkGOG.StoreSlug(),
				Status:    types.StatusOwned,
			}
			// stats are keyed by the profile owner's user id
			for _, s := range item.Stats {
				raw.Playtime = s.PlaytimeMinutes
				if !s.LastSessionDate.IsZero() {
					raw.LastPlayed = s.LastSessionDate.UTC()
				}
				break
			}
			games = append(games, raw)
		}

		if page >= parsed.Pages {
			break
		}
	}

	return games, nil
}

// GetAchievements implements Client
func (c *GOGClient) GetAchievements(ctx context.Context, appID, accountRef string) ([]types.RawAchievement, error) {
	return nil, nil
}
