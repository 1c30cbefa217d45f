package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithExponentialBackoff(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return fmt.Errorf("not yet")
			}
			return nil
		})

		assert.True(t, result.Success)
		assert.Equal(t, 3, result.Attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("reports the last error after exhaustion", func(t *testing.T) {
		result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
			return fmt.Errorf("attempt %d failed", attempt)
		})

		assert.False(t, result.Success)
		assert.Equal(t, 3, result.Attempts)
		require.Error(t, result.LastError)
		assert.Contains(t, result.LastError.Error(), "attempt 3 failed")
	})

	t.Run("cancellation stops further attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		result := WithExponentialBackoff(ctx, fastConfig(), func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return fmt.Errorf("boom")
		})

		assert.False(t, result.Success)
		assert.Equal(t, 1, calls)
		assert.EqualError(t, result.LastError, "boom")
	})
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}

	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 10*time.Second, calculateDelay(cfg, 10))
}
