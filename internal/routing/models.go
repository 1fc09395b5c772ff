// Package routing provides one-to-many car travel durations for insertion
// evaluation.
package routing

import (
	"context"
	"errors"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Provider computes car travel durations from one point to many points.
type Provider interface {
	// OneToMany returns the driving duration in milliseconds from one to each
	// of many (or towards one when arriveBy is set). A nil entry means the
	// destination is unreachable.
	OneToMany(ctx context.Context, one dispatch.Coordinates, many []dispatch.Coordinates, arriveBy bool) ([]*int64, error)

	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// ValidateCoordinates checks if coordinates are within valid ranges.
func ValidateCoordinates(c dispatch.Coordinates) error {
	if c.Lat < -90 || c.Lat > 90 {
		return ErrInvalidCoordinates
	}
	if c.Lng < -180 || c.Lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
