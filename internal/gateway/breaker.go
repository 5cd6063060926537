package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/MrWong99/tmassist/pkg/provider/llm"
)

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
)

// newBreaker builds the per-slot circuit breaker. It opens after maxFailures
// consecutive failures and lets a single probe through after resetTimeout.
func newBreaker(name string, maxFailures int, resetTimeout time.Duration) *gobreaker.CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     resetTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("gateway: circuit breaker state change",
				"model", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: breakerSuccess,
	})
}

// breakerSuccess decides which errors leave the breaker's failure count
// alone. A rejected prompt says nothing about the backend's health, and a
// cancelled request was abandoned by the caller.
func breakerSuccess(err error) bool {
	return err == nil ||
		llm.IsInvalidArgument(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// isOpen reports whether err was produced by a breaker refusing the call.
func isOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
