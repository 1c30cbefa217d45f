package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/library-sync/internal/types"
)

func TestErrorCategorization(t *testing.T) {
	t.Run("account not found is permanent", func(t *testing.T) {
		err := NewAccountNotFoundError(types.NetworkSteam, "76561198000000000")
		assert.True(t, IsPermanent(err))
		assert.False(t, IsRetryable(err))
	})

	t.Run("network unavailable is retryable", func(t *testing.T) {
		err := NewNetworkUnavailableError(types.NetworkXbox, fmt.Errorf("connection refused"))
		assert.False(t, IsPermanent(err))
		assert.True(t, IsRetryable(err))
	})

	t.Run("rate limit is retryable", func(t *testing.T) {
		err := NewRateLimitedError(types.NetworkPlayStation, 60)
		assert.False(t, IsPermanent(err))
		assert.True(t, IsRetryable(err))
		assert.Equal(t, 60, err.Details["retryAfter"])
	})

	t.Run("database errors are retryable", func(t *testing.T) {
		err := NewDatabaseError("insert user_games", fmt.Errorf("connection reset"))
		assert.True(t, IsRetryable(err))
	})

	t.Run("plain errors are not retryable", func(t *testing.T) {
		assert.False(t, IsRetryable(fmt.Errorf("something odd")))
		assert.False(t, IsPermanent(fmt.Errorf("something odd")))
	})

	t.Run("wrapped categorized error keeps its category", func(t *testing.T) {
		inner := NewAccountNotFoundError(types.NetworkGOG, "someuser")
		wrapped := fmt.Errorf("fetching library: %w", inner)
		assert.True(t, IsPermanent(wrapped))
	})

	t.Run("nil error", func(t *testing.T) {
		assert.False(t, IsRetryable(nil))
		assert.False(t, IsPermanent(nil))
	})
}

func TestRetryAfterHint(t *testing.T) {
	t.Run("rate limit carries its cooldown", func(t *testing.T) {
		cooldown, ok := RetryAfterHint(NewRateLimitedError(types.NetworkSteam, 120))
		assert.True(t, ok)
		assert.Equal(t, 120*time.Second, cooldown)
	})

	t.Run("wrapped rate limit still carries it", func(t *testing.T) {
		wrapped := fmt.Errorf("fetching library: %w", NewRateLimitedError(types.NetworkXbox, 30))
		cooldown, ok := RetryAfterHint(wrapped)
		assert.True(t, ok)
		assert.Equal(t, 30*time.Second, cooldown)
	})

	t.Run("other categories carry none", func(t *testing.T) {
		_, ok := RetryAfterHint(NewNetworkUnavailableError(types.NetworkGOG, fmt.Errorf("boom")))
		assert.False(t, ok)
		_, ok = RetryAfterHint(nil)
		assert.False(t, ok)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	t.Run("unique violation", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505"}
		assert.True(t, IsUniqueViolation(err))
	})

	t.Run("wrapped unique violation", func(t *testing.T) {
		err := fmt.Errorf("insert failed: %w", &pgconn.PgError{Code: "23505"})
		assert.True(t, IsUniqueViolation(err))
	})

	t.Run("other postgres error", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23503"} // foreign key
		assert.False(t, IsUniqueViolation(err))
	})

	t.Run("non-postgres error", func(t *testing.T) {
		assert.False(t, IsUniqueViolation(fmt.Errorf("not a pg error")))
	})
}

func TestCategorizedErrorMessage(t *testing.T) {
	err := NewNetworkUnavailableError(types.NetworkSteam, fmt.Errorf("dial tcp: timeout"))
	assert.Contains(t, err.Error(), "NETWORK_UNAVAILABLE")
	assert.Contains(t, err.Error(), "dial tcp: timeout")

	assert.Nil(t, NewAccountNotFoundError(types.NetworkGOG, "u").Unwrap())
}
