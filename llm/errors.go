package llm

import (
	"context"
	"errors"
	"fmt"
)

// Failure categories for completion calls. Wrapped errors always
// unwrap to exactly one of these sentinels.
var (
	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("llm: request timed out")

	// ErrRateLimited is returned when the provider rejects the call
	// due to rate limiting.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrMalformedOutput is returned when the model produced output
	// that does not satisfy the requested schema or is otherwise
	// unparsable.
	ErrMalformedOutput = errors.New("llm: malformed model output")

	// ErrTransport is returned for connection and server-side
	// failures.
	ErrTransport = errors.New("llm: transport error")
)

// Retryable reports whether the error is a transient infrastructure
// failure worth retrying. Malformed output is not retryable at the
// transport level; the caller decides whether to re-ask the model.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTransport)
}

// wrapCategory attaches a failure category to err, preserving the
// original error text for operators while keeping errors.Is checks
// against the sentinel working.
func wrapCategory(category, err error) error {
	return fmt.Errorf("%w: %v", category, err)
}

// classifyContextErr maps context errors onto the taxonomy, or returns
// nil if err is not a context error.
func classifyContextErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return wrapCategory(ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		// Cancellation is surfaced as-is so callers can tell a
		// caller-initiated abort from a slow provider.
		return err
	default:
		return nil
	}
}
