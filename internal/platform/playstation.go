package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/library-sync/internal/config"
	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/types"
)

// PlayStationClient fetches a user's played titles and trophies from the PSN
// API. The PSN trophy model has no per-game unlock uid of its own, so the
// achievement uid is derived from the trophy set id and trophy id.
type PlayStationClient struct {
	accessToken string
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
}

// NewPlayStationClient creates a new PlayStation Network API client
func NewPlayStationClient(cfg *config.PlayStationConfig) *PlayStationClient {
	return &PlayStationClient{
		accessToken: cfg.AccessToken,
		baseURL:     "https://m.np.playstation.com/api",
		client:      &http.Client{Timeout: 30 * time.Second},
		// PSN throttles aggressively; stay conservative
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
}

// Network implements Client
func (c *PlayStationClient) Network() types.NetworkID {
	return types.NetworkPlayStation
}

func (c *PlayStationClient) get(ctx context.Context, accountRef, path string) ([]byte, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("PSN access token not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkPlayStation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, body, err := doRequest(ctx, c.client, types.NetworkPlayStation, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		// 403 on PSN means the profile's game list is private
		return nil, categorizeStatus(types.NetworkPlayStation, accountRef, resp,
			http.StatusNotFound, http.StatusForbidden)
	}

	return body, nil
}

type psnTitlesResponse struct {
	Titles []struct {
		TitleID      string    `json:"titleId"`
		Name         string    `json:"name"`
		PlayDuration string    `json:"playDuration"` // ISO 8601 duration
		LastPlayedAt time.Time `json:"lastPlayedDateTime"`
	} `json:"titles"`
	NextOffset *int `json:"nextOffset"`
}

// GetOwnedGames implements Client
func (c *PlayStationClient) GetOwnedGames(ctx context.Context, accountRef string) ([]types.RawGame, error) {
	var games []types.RawGame
	offset := 0

	for {
		path := fmt.Sprintf("/gamelist/v2/users/%s/titles?limit=200&offset=%d",
			url.PathEscape(accountRef), offset)
		body, err := c.get(ctx, accountRef, path)
		if err != nil {
			return nil, err
		}

		var parsed psnTitlesResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, syncerrors.NewNetworkUnavailableError(types.NetworkPlayStation,
				fmt.Errorf("failed to parse title list: %w", err))
		}

		for _, t := range parsed.Titles {
			raw := types.RawGame{
				AppID:     t.TitleID,
				Name:      t.Name,
				StoreSlug: "playstation-store",
				Playtime:  parseISODurationMinutes(t.PlayDuration),
				Status:    types.StatusOwned,
			}
			if !t.LastPlayedAt.IsZero() {
				raw.LastPlayed = t.LastPlayedAt.UTC()
			}
			games = append(games, raw)
		}

		if parsed.NextOffset == nil {
			break
		}
		offset = *parsed.NextOffset
	}

	return games, nil
}

type psnTrophiesResponse struct {
	Trophies []struct {
		TrophyID      int       `json:"trophyId"`
		TrophyName    string    `json:"trophyName"`
		TrophyDetail  string    `json:"trophyDetail"`
		TrophyIconURL string    `json:"trophyIconUrl"`
		TrophyHidden  bool      `json:"trophyHidden"`
		Earned        bool      `json:"earned"`
		EarnedAt      time.Time `json:"earnedDateTime"`
	} `json:"trophies"`
}

// GetAchievements implements Client. appID is the trophy set id
// (npCommunicationId) associated with the title.
func (c *PlayStationClient) GetAchievements(ctx context.Context, appID, accountRef string) ([]types.RawAchievement, error) {
	path := fmt.Sprintf("/trophy/v1/users/%s/npCommunicationIds/%s/trophyGroups/all/trophies",
		url.PathEscape(accountRef), url.PathEscape(appID))
	body, err := c.get(ctx, accountRef, path)
	if err != nil {
		return nil, err
	}

	var parsed psnTrophiesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkPlayStation,
			fmt.Errorf("failed to parse trophies: %w", err))
	}

	var unlocked []types.RawAchievement
	for _, t := range parsed.Trophies {
		if !t.Earned {
			continue
		}
		unlocked = append(unlocked, types.RawAchievement{
			UID:         appID + ":" + strconv.Itoa(t.TrophyID),
			Name:        t.TrophyName,
			Description: t.TrophyDetail,
			Icon:        t.TrophyIconURL,
			Hidden:      t.TrophyHidden,
			Achieved:    t.EarnedAt.UTC(),
		})
	}

	return unlocked, nil
}

// parseISODurationMinutes converts PSN's ISO 8601 play duration ("PT2H30M")
// into whole minutes. Malformed values count as zero playtime.
func parseISODurationMinutes(s string) int {
	if len(s) < 3 || s[0] != 'P' || s[1] != 'T' {
		return 0
	}

	minutes := 0
	value := 0
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9':
			value = value*10 + int(r-'0')
		case r == 'H':
			minutes += value * 60
			value = 0
		case r == 'M':
			minutes += value
			value = 0
		case r == 'S':
			value = 0
		default:
			return 0
		}
	}

	return minutes
}
