// Package platform contains the per-network API clients that fetch a user's
// owned games and achievement unlocks from external gaming platforms.
package platform

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/types"
)

// Client fetches one user's library data from one external network. Fetch
// failures are categorized: account-not-found/private errors are permanent,
// connectivity and 5xx errors are transient, and 429 responses carry an
// explicit cooldown.
type Client interface {
	// Network identifies the platform this client talks to
	Network() types.NetworkID

	// GetOwnedGames fetches the account's full owned-games list
	GetOwnedGames(ctx context.Context, accountRef string) ([]types.RawGame, error)

	// GetAchievements fetches the account's unlocked achievements for one game
	GetAchievements(ctx context.Context, appID, accountRef string) ([]types.RawAchievement, error)
}

// Registry holds the configured network clients. Lookups are typed by
// NetworkID so an unsupported network is a lookup failure, not a silent
// misdispatch.
type Registry struct {
	clients map[types.NetworkID]Client
}

// NewRegistry creates a registry from the given clients
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[types.NetworkID]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Network()] = c
	}
	return r
}

// Register adds or replaces a client
func (r *Registry) Register(c Client) {
	r.clients[c.Network()] = c
}

// Get returns the client for a network
func (r *Registry) Get(network types.NetworkID) (Client, error) {
	c, ok := r.clients[network]
	if !ok {
		return nil, fmt.Errorf("no client registered for network %q", network)
	}
	return c, nil
}

// Networks returns the registered network ids in the canonical order
func (r *Registry) Networks() []types.NetworkID {
	var out []types.NetworkID
	for _, n := range types.AllNetworks() {
		if _, ok := r.clients[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// connectRetryDelay is the fixed pause before the single in-client retry on
// connection-level errors
const connectRetryDelay = 2 * time.Second

// doRequest performs one HTTP request with a single internal retry on
// connection-level errors. Anything beyond that one retry surfaces to the
// orchestrator as a transient failure so the whole job backs off instead of
// the client spinning.
func doRequest(ctx context.Context, client *http.Client, network types.NetworkID, req *http.Request) (*http.Response, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[%s] request failed, retrying once: %v", network, err)
		select {
		case <-time.After(connectRetryDelay):
		case <-ctx.Done():
			return nil, nil, syncerrors.NewNetworkUnavailableError(network, ctx.Err())
		}

		resp, err = client.Do(req.Clone(ctx))
		if err != nil {
			return nil, nil, syncerrors.NewNetworkUnavailableError(network, err)
		}
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, nil, syncerrors.NewNetworkUnavailableError(network, err)
	}

	return resp, body, nil
}

// categorizeStatus maps a non-200 HTTP status onto the fetch-failure taxonomy.
// notFoundStatuses lists the statuses this network uses for missing/private
// accounts.
func categorizeStatus(network types.NetworkID, accountRef string, resp *http.Response, notFoundStatuses ...int) error {
	for _, s := range notFoundStatuses {
		if resp.StatusCode == s {
			return syncerrors.NewAccountNotFoundError(network, accountRef)
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 60
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = seconds
			}
		}
		return syncerrors.NewRateLimitedError(network, retryAfter)
	}
	return syncerrors.NewNetworkUnavailableError(network,
		fmt.Errorf("unexpected status %d", resp.StatusCode))
}
