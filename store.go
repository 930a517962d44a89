package jobq

import (
	"context"
	"time"
)

// OutcomeKind selects the transition applied to a processing job.
type OutcomeKind int

const (
	// OutcomeCompleted moves the job to completed.
	OutcomeCompleted OutcomeKind = iota + 1
	// OutcomeRetry moves the job back to pending, eligible at NextRunAt.
	OutcomeRetry
	// OutcomeDead moves the job to dead.
	OutcomeDead
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRetry:
		return "retry"
	case OutcomeDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Outcome is the result of one execution attempt.
type Outcome struct {
	Kind OutcomeKind
	// Attempts is the new attempt count, including the attempt just made.
	Attempts  int
	LastError string
	NextRunAt time.Time
	Output    string
	// At is the time of the transition, stored as UpdatedAt.
	At time.Time
}

// Store is the durable job table the queue runs on. Every method is one
// atomic unit against the backing store. Transport failures are reported
// wrapped in ErrStoreUnavailable.
type Store interface {
	// Create inserts a new pending job. It returns ErrDuplicateJob if the ID exists.
	Create(ctx context.Context, j *Job) error

	// ClaimNext atomically takes the oldest (by CreatedAt) pending job with
	// NextRunAt <= now and marks it processing. Concurrent callers never
	// receive the same job. It returns nil, nil when no job is eligible.
	ClaimNext(ctx context.Context, now time.Time) (*Job, error)

	// RecordOutcome applies o to a processing job. It returns ErrNotClaimed
	// when the job is no longer processing.
	RecordOutcome(ctx context.Context, id string, o Outcome) error

	// ListByState returns the jobs stored in state, newest first.
	ListByState(ctx context.Context, state State) ([]*Job, error)

	// FindByID returns ErrJobNotFound when the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// Reset moves a dead job to pending with attempts=0, no last error and
	// NextRunAt=now. It returns ErrNotInDLQ when the job is not dead.
	Reset(ctx context.Context, id string, now time.Time) error

	// CountByState returns the number of stored jobs per state.
	CountByState(ctx context.Context) (map[State]int, error)

	// ReclaimStale returns processing jobs last updated at or before cutoff to
	// pending, eligible at now, without touching attempts.
	ReclaimStale(ctx context.Context, cutoff, now time.Time) (int, error)
}
