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

// SteamClient fetches owned games and achievements from the Steam Web API.
// Steam answers private profiles with an empty games list on a 200, so
// privacy is detected by the response shape rather than the status code.
type SteamClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewSteamClient creates a new Steam Web API client
func NewSteamClient(cfg *config.SteamConfig) *SteamClient {
	return &SteamClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://api.steampowered.com",
		client:  &http.Client{Timeout: 30 * time.Second},
		// Steam Web API allows 100k calls/day; 1 rps with small bursts keeps
		// a large-library import well under that
		limiter: rate.NewLimiter(rate.Limit(1), 4),
	}
}

// Network implements Client
func (c *SteamClient) Network() types.NetworkID {
	return types.NetworkSteam
}

type steamOwnedGamesResponse struct {
	Response struct {
		GameCount int `json:"game_count"`
		Games     []struct {
			AppID                    int64  `json:"appid"`
			Name                     string `json:"name"`
			PlaytimeForever          int    `json:"playtime_forever"`
			RTimeLastPlayed          int64  `json:"rtime_last_played"`
			HasCommunityVisibleStats bool   `json:"has_community_visible_stats"`
		} `json:"games"`
	} `json:"response"`
}

// GetOwnedGames implements Client
func (c *SteamClient) GetOwnedGames(ctx context.Context, accountRef string) ([]types.RawGame, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("steam API key not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkSteam, err)
	}

	endpoint := fmt.Sprintf(
		"%s/IPlayerService/GetOwnedGames/v1/?key=%s&steamid=%s&include_appinfo=1&include_played_free_games=1&format=json",
		c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(accountRef),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, body, err := doRequest(ctx, c.client, types.NetworkSteam, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, categorizeStatus(types.NetworkSteam, accountRef, resp,
			http.StatusUnauthorized, http.StatusForbidden)
	}

	var parsed steamOwnedGamesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkSteam,
			fmt.Errorf("failed to parse owned games: %w", err))
	}

	// a valid steamid with a private games list comes back as an empty
	// response object
	if parsed.Response.GameCount == 0 && len(parsed.Response.Games) == 0 {
		return nil, syncerrors.NewAccountNotFoundError(types.NetworkSteam, accountRef)
	}

	games := make([]types.RawGame, 0, len(parsed.Response.Games))
	for _, g := range parsed.Response.Games {
		raw := types.RawGame{
			AppID:     fmt.Sprintf("%d", g.AppID),
			Name:      g.Name,
			StoreSlug: types.NetworkSteam.StoreSlug(),
			Playtime:  g.PlaytimeForever,
			Status:    types.StatusOwned,
		}
		if g.RTimeLastPlayed > 0 {
			raw.LastPlayed = time.Unix(g.RTimeLastPlayed, 0).UTC()
		}
		games = append(games, raw)
	}

	return games, nil
}

type steamAchievementsResponse struct {
	PlayerStats struct {
		Success      bool   `json:"success"`
		Error        string `json:"error"`
		Achievements []struct {
			APIName     string `json:"apiname"`
			Achieved    int    `json:"achieved"`
			UnlockTime  int64  `json:"unlocktime"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"achievements"`
	} `json:"playerstats"`
}

// GetAchievements implements Client
func (c *SteamClient) GetAchievements(ctx context.Context, appID, accountRef string) ([]types.RawAchievement, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkSteam, err)
	}

	endpoint := fmt.Sprintf(
		"%s/ISteamUserStats/GetPlayerAchievements/v1/?key=%s&steamid=%s&appid=%s&l=english",
		c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(accountRef), url.QueryEscape(appID),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, body, err := doRequest(ctx, c.client, types.NetworkSteam, req)
	if err != nil {
		return nil, err
	}
	// Steam answers "game has no stats" with a 400 carrying success=false;
	// that is an empty result, not a failure
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, categorizeStatus(types.NetworkSteam, accountRef, resp,
			http.StatusUnauthorized, http.StatusForbidden)
	}

	var parsed steamAchievementsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkSteam,
			fmt.Errorf("failed to parse achievements: %w", err))
	}

	if !parsed.PlayerStats.Success {
		return nil, nil
	}

	var unlocked []types.RawAchievement
	for _, a := range parsed.PlayerStats.Achievements {
		if a.Achieved != 1 {
			continue
		}
		name := a.Name
		if name == "" {
			name = a.APIName
		}
		unlocked = append(unlocked, types.RawAchievement{
			UID:         a.APIName,
			Name:        name,
			Description: a.Description,
			Achieved:    time.Unix(a.UnlockTime, 0).UTC(),
		})
	}

	return unlocked, nil
}
