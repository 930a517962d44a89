package jobq

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when an enqueue request is malformed (e.g. empty command).
var ErrInvalidInput = errors.New("jobq: invalid input")

// ErrStoreUnavailable wraps transient failures of the backing store.
var ErrStoreUnavailable = errors.New("jobq: store unavailable")

// ErrNotInDLQ is returned when retrying a job that is not dead.
var ErrNotInDLQ = errors.New("jobq: job not in dead letter queue")

// ErrJobNotFound is returned when a job with the specified ID is not found.
var ErrJobNotFound = errors.New("jobq: job not found")

// ErrDuplicateJob is returned when Enqueue is called with an ID that already exists.
var ErrDuplicateJob = errors.New("jobq: duplicate job id")

// ErrNotClaimed is returned when an outcome is recorded for a job that is not processing.
var ErrNotClaimed = errors.New("jobq: job is not processing")

// ErrUnknownState is returned when an invalid state is used.
var ErrUnknownState = errors.New("jobq: unknown state")

// ExecutionError reports a failed or timed out command run.
type ExecutionError struct {
	// Reason is the human readable failure, stored as the job's LastError.
	Reason string
	Err    error
}

func (e *ExecutionError) Error() string { return e.Reason }

func (e *ExecutionError) Unwrap() error { return e.Err }

// Unavailable wraps err as a transient store failure. Nil stays nil.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
