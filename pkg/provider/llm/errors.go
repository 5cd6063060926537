package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited matches upstream errors signalling quota exhaustion
	// (HTTP 429, RESOURCE_EXHAUSTED).
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrInvalidArgument matches upstream errors rejecting the request itself
	// (HTTP 400, INVALID_ARGUMENT).
	ErrInvalidArgument = errors.New("llm: invalid argument")
)

// StatusError annotates a backend error with the HTTP status the provider
// answered with.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

// NewStatusError wraps err. It returns nil when err is nil.
func NewStatusError(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &StatusError{Provider: provider, StatusCode: status, Err: err}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Is reports whether the status maps onto one of the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrInvalidArgument:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// IsRateLimited reports whether err (or anything it wraps) is a rate-limit signal.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsInvalidArgument reports whether err is an argument-validation rejection.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }
