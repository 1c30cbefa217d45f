// Package errors provides the error taxonomy for the library sync service.
//
// Errors are categorized along the axes that matter to the import
// orchestrator: permanent per-network failures (never retried), transient
// per-network failures (whole job rescheduled with backoff), and infrastructure
// errors (database, cache) that fail a job visibly.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/library-sync/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryPermanent represents failures that must not be retried
	// (account not found, profile private, invalid credentials)
	CategoryPermanent ErrorCategory = "permanent"
	// CategoryTransient represents retryable network-side failures
	CategoryTransient ErrorCategory = "transient"
	// CategoryRateLimit represents provider rate limiting
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryConflict represents unique-constraint conflicts
	CategoryConflict ErrorCategory = "conflict"
	// CategoryNotFound represents missing resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
// (the status code is used by the ops server only)
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewAccountNotFoundError creates a permanent per-network failure for an
// account that does not exist or has a private profile
func NewAccountNotFoundError(network types.NetworkID, accountRef string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPermanent,
		StatusCode: http.StatusNotFound,
		Code:       "ACCOUNT_NOT_FOUND",
		Message:    fmt.Sprintf("%s account not found or private: %s", network, accountRef),
		Details: map[string]interface{}{
			"network": string(network),
			"account": accountRef,
		},
	}
}

// NewNetworkUnavailableError creates a transient per-network failure
func NewNetworkUnavailableError(network types.NetworkID, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusBadGateway,
		Code:       "NETWORK_UNAVAILABLE",
		Message:    fmt.Sprintf("network temporarily unavailable: %s", network),
		Cause:      cause,
		Details: map[string]interface{}{
			"network": string(network),
		},
	}
}

// NewRateLimitedError creates a provider rate limit failure with a cooldown hint
func NewRateLimitedError(network types.NetworkID, retryAfterSeconds int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("rate limited by %s", network),
		Details: map[string]interface{}{
			"network":    string(network),
			"retryAfter": retryAfterSeconds,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewConflictError creates a unique-constraint conflict error
func NewConflictError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
		Cause:      cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	if IsUniqueViolation(err) {
		return NewConflictError("unique constraint violated", err)
	}

	return NewInternalError("unexpected error", err)
}

// IsRetryable determines if an error warrants rescheduling the whole job
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryTransient, CategoryRateLimit, CategoryDatabase, CategoryCache:
		return true
	default:
		return false
	}
}

// RetryAfterHint returns the provider-stated cooldown attached to a
// rate-limit error, or false when err carries none
func RetryAfterHint(err error) (time.Duration, bool) {
	catErr := Categorize(err)
	if catErr == nil || catErr.Category != CategoryRateLimit {
		return 0, false
	}
	if seconds, ok := catErr.Details["retryAfter"].(int); ok && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}

// IsPermanent reports whether an error is a terminal per-network failure
func IsPermanent(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryPermanent
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505). Creation races on unique keys are resolved by
// retrying the read/create cycle; any other constraint violation is re-raised.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// GetHTTPStatusCode returns the HTTP status code for an error (ops server)
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
