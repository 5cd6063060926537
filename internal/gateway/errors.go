package gateway

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by [Gateway.Completion] is an [*Error]
// whose Kind is one of these, so callers can branch with [errors.Is].
var (
	// ErrPromptTooLarge means the prompt exceeds the budget of every model
	// it could be sent to. No completion endpoint was called.
	ErrPromptTooLarge = errors.New("prompt too large for every model")

	// ErrRateLimited means the provider kept rejecting requests for quota
	// reasons after all retries and escalation were spent.
	ErrRateLimited = errors.New("rate limit exhausted")

	// ErrProvider covers every other provider failure.
	ErrProvider = errors.New("model provider failed")

	// ErrUnknownModel is returned when a per-request model override names
	// neither a slot nor a configured model id.
	ErrUnknownModel = errors.New("unknown model")
)

// Error describes a failed completion.
type Error struct {
	// Kind is one of the package sentinels.
	Kind error
	// Model is the model id of the last attempt, or the requested override
	// for ErrUnknownModel.
	Model string
	// Tokens is the last finite prompt cost that was counted, or 0.
	Tokens int
	// Err is the underlying provider error, if any.
	Err error
}

func (e *Error) Error() string {
	msg := "gateway: " + e.Kind.Error()
	if e.Model != "" {
		msg += fmt.Sprintf(" (model %s", e.Model)
		if e.Tokens > 0 {
			msg += fmt.Sprintf(", %d tokens", e.Tokens)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to [errors.Is] and [errors.As].
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
