package turnloop

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the orchestrator configuration
	// is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrThreadBusy is returned in reject mode when a turn is already
	// in flight for the thread.
	ErrThreadBusy = errors.New("thread busy")

	// ErrRoutingFailed is returned when the routing stage fails.
	ErrRoutingFailed = errors.New("routing failed")

	// ErrGenerationFailed is returned when no draft could be produced.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrVerificationFailed is returned when the judge could not score
	// a draft. Exhausting the refinement budget is not this error.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCheckpointFailed is returned when the checkpoint store fails.
	ErrCheckpointFailed = errors.New("checkpoint operation failed")
)

// TurnError carries the failing stage and thread alongside the cause.
type TurnError struct {
	// Op is the operation that failed, e.g. "route" or "save".
	Op string

	// ThreadID is the conversation the turn belonged to.
	ThreadID string

	// Err is the underlying error. One of the package sentinels is
	// always in its chain.
	Err error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	if e.ThreadID != "" {
		return fmt.Sprintf("%s (thread=%s): %v", e.Op, e.ThreadID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TurnError) Unwrap() error {
	return e.Err
}

func newTurnError(op, threadID string, err error) *TurnError {
	return &TurnError{Op: op, ThreadID: threadID, Err: err}
}
