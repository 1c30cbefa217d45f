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

// XboxClient fetches title history and achievements through the OpenXBL
// proxy API. Accounts are referenced by gamertag; the client resolves the
// gamertag to an xuid per call because gamertags are mutable.
type XboxClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewXboxClient creates a new Xbox Live API client
func NewXboxClient(cfg *config.XboxConfig) *XboxClient {
	return &XboxClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://xbl.io/api/v2",
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// Network implements Client
func (c *XboxClient) Network() types.NetworkID {
	return types.NetworkXbox
}

func (c *XboxClient) get(ctx context.Context, accountRef, path string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("xbox API key not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkXbox, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, body, err := doRequest(ctx, c.client, types.NetworkXbox, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, categorizeStatus(types.NetworkXbox, accountRef, resp,
			http.StatusNotFound, http.StatusForbidden)
	}

	return body, nil
}

type xboxSearchResponse struct {
	People []struct {
		XUID string `json:"xuid"`
	} `json:"people"`
}

// resolveXUID resolves a gamertag to an xuid
func (c *XboxClient) resolveXUID(ctx context.Context, gamertag string) (string, error) {
	body, err := c.get(ctx, gamertag, "/search/"+url.PathEscape(gamertag))
	if err != nil {
		return "", err
	}

	var parsed xboxSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", syncerrors.NewNetworkUnavailableError(types.NetworkXbox,
			fmt.Errorf("failed to parse gamertag search: %w", err))
	}

	if len(parsed.People) == 0 {
		return "", syncerrors.NewAccountNotFoundError(types.NetworkXbox, gamertag)
	}

	return parsed.People[0].XUID, nil
}

type xboxTitleHistoryResponse struct {
	Titles []struct {
		TitleID      string   `json:"titleId"`
		Name         string   `json:"name"`
		Devices      []string `json:"devices"`
		TitleHistory struct {
			LastTimePlayed time.Time `json:"lastTimePlayed"`
		} `json:"titleHistory"`
	} `json:"titles"`
}

// GetOwnedGames implements Client
func (c *XboxClient) GetOwnedGames(ctx context.Context, accountRef string) ([]types.RawGame, error) {
	xuid, err := c.resolveXUID(ctx, accountRef)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, accountRef, "/player/titleHistory/"+url.PathEscape(xuid))
	if err != nil {
		return nil, err
	}

	var parsed xboxTitleHistoryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkXbox,
			fmt.Errorf("failed to parse title history: %w", err))
	}

	games := make([]types.RawGame, 0, len(parsed.Titles))
	for _, t := range parsed.Titles {
		if t.TitleID == "" || t.Name == "" {
			continue
		}
		raw := types.RawGame{
			AppID:     t.TitleID,
			Name:      t.Name,
			StoreSlug: "xbox-store",
			Status:    types.StatusOwned,
		}
		if !t.TitleHistory.LastTimePlayed.IsZero() {
			raw.LastPlayed = t.TitleHistory.LastTimePlayed.UTC()
		}
		games = append(games, raw)
	}

	return games, nil
}

type xboxAchievementsResponse struct {
	Achievements []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		IsSecret    bool   `json:"isSecret"`
		MediaAssets []struct {
			URL string `json:"url"`
		} `json:"mediaAssets"`
		ProgressState string `json:"progressState"`
		Progression   struct {
			TimeUnlocked time.Time `json:"timeUnlocked"`
		} `json:"progression"`
	} `json:"achievements"`
}

// GetAchievements implements Client
func (c *XboxClient) GetAchievements(ctx context.Context, appID, accountRef string) ([]types.RawAchievement, error) {
	xuid, err := c.resolveXUID(ctx, accountRef)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, accountRef,
		"/achievements/player/"+url.PathEscape(xuid)+"/title/"+url.PathEscape(appID))
	if err != nil {
		return nil, err
	}

	var parsed xboxAchievementsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, syncerrors.NewNetworkUnavailableError(types.NetworkXbox,
			fmt.Errorf("failed to parse achievements: %w", err))
	}

	var unlocked []types.RawAchievement
	for _, a := range parsed.Achievements {
		if a.ProgressState != "Achieved" {
			continue
		}
		raw := types.RawAchievement{
			UID:         appID + ":" + a.ID,
			Name:        a.Name,
			Description: a.Description,
			Hidden:      a.IsSecret,
			Achieved:    a.Progression.TimeUnlocked.UTC(),
		}
		if len(a.MediaAssets) > 0 {
			raw.Icon = a.MediaAssets[0].URL
		}
		unlocked = append(unlocked, raw)
	}

	return unlocked, nil
}
