package web

import (
	"errors"
	"net/http"

	"github.com/MrWong99/tmassist/internal/gateway"
	"github.com/MrWong99/tmassist/internal/memory"
)

// ErrMissingInput marks a request that lacks a required field.
var ErrMissingInput = errors.New("missing input")

// inputError carries the message shown to the client for a rejected request.
type inputError struct{ msg string }

func (e *inputError) Error() string        { return e.msg }
func (e *inputError) Is(target error) bool { return target == ErrMissingInput }

func missing(msg string) error { return &inputError{msg: msg} }

// statusFor maps an error onto the HTTP status returned to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingInput), errors.Is(err, gateway.ErrUnknownModel):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
