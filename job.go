package jobq

import "time"

// Job represents a shell command and its retry/lifecycle metadata.
// Field names double as the persisted record layout.
type Job struct {
	// ID is the unique identifier for the job. Immutable.
	ID string `json:"id"`
	// Command is the shell command line to execute. Immutable.
	Command string `json:"command"`
	// State is the current lifecycle state.
	State State `json:"state"`
	// Attempts is the number of executions made so far.
	Attempts int `json:"attempts"`
	// MaxRetries is the number of attempts allowed before the job is dead-lettered.
	MaxRetries int `json:"max_retries"`
	// LastError is the failure reason of the last attempt. Empty means none.
	LastError string `json:"last_error,omitempty"`
	// Output is the captured stdout of the successful run.
	Output string `json:"output,omitempty"`
	// NextRunAt is the earliest time the job may be claimed.
	NextRunAt time.Time `json:"next_run_at"`
	// CreatedAt is the enqueue time, used as the FIFO tie-break.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the time of the last mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Eligible reports whether the job may be claimed at now.
func (j *Job) Eligible(now time.Time) bool {
	return j.State == StatePending && !j.NextRunAt.After(now)
}

// Retrying reports whether the job is pending again after a failed attempt.
func (j *Job) Retrying() bool {
	return j.State == StatePending && j.LastError != ""
}

// DisplayState is the state reported to operators: rescheduled jobs show as failed.
func (j *Job) DisplayState() State {
	if j.Retrying() {
		return StateFailed
	}
	return j.State
}
