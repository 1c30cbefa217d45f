package platform

import (
	"context"
	"errors"

	"github.com/library-sync/internal/circuitbreaker"
	syncerrors "github.com/library-sync/internal/errors"
	"github.com/library-sync/internal/types"
)

// BreakerClient wraps a Client with a circuit breaker so a network that is
// down stops being hammered across jobs. An open circuit surfaces as a
// transient failure; permanent account errors pass through without counting
// against the breaker.
type BreakerClient struct {
	inner   Client
	breaker *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps a client in a per-network circuit breaker
func WithBreaker(inner Client) *BreakerClient {
	return &BreakerClient{
		inner:   inner,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(string(inner.Network()))),
	}
}

// Network implements Client
func (c *BreakerClient) Network() types.NetworkID {
	return c.inner.Network()
}

// GetOwnedGames implements Client
func (c *BreakerClient) GetOwnedGames(ctx context.Context, accountRef string) ([]types.RawGame, error) {
	var games []types.RawGame
	var permErr error
	err := c.breaker.Execute(ctx, func() error {
		var fetchErr error
		games, fetchErr = c.inner.GetOwnedGames(ctx, accountRef)
		if syncerrors.IsPermanent(fetchErr) {
			// a bad account is not network trouble; report it without
			// tripping the breaker
			permErr = fetchErr
			return nil
		}
		return fetchErr
	})
	if err != nil {
		return nil, breakerError(c.inner.Network(), err)
	}
	if permErr != nil {
		return nil, permErr
	}
	return games, nil
}

// GetAchievements implements Client
func (c *BreakerClient) GetAchievements(ctx context.Context, appID, accountRef string) ([]types.RawAchievement, error) {
	var achievements []types.RawAchievement
	var permErr error
	err := c.breaker.Execute(ctx, func() error {
		var fetchErr error
		achievements, fetchErr = c.inner.GetAchievements(ctx, appID, accountRef)
		if syncerrors.IsPermanent(fetchErr) {
			permErr = fetchErr
			return nil
		}
		return fetchErr
	})
	if err != nil {
		return nil, breakerError(c.inner.Network(), err)
	}
	if permErr != nil {
		return nil, permErr
	}
	return achievements, nil
}

func breakerError(network types.NetworkID, err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return syncerrors.NewNetworkUnavailableError(network, err)
	}
	return err
}
