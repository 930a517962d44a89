package jobq

import (
	"context"
	"time"
)

// DeadLetters is the dead-letter view over a Store.
type DeadLetters struct {
	store Store
	now   func() time.Time
}

// NewDeadLetters creates a dead-letter manager for store.
func NewDeadLetters(store Store) *DeadLetters {
	return &DeadLetters{store: store, now: time.Now}
}

// List returns all dead jobs, newest first.
func (d *DeadLetters) List(ctx context.Context) ([]*Job, error) {
	return d.store.ListByState(ctx, StateDead)
}

// Retry moves a dead job back to pending with attempts=0 and no last error.
// It returns ErrNotInDLQ if the job is not dead and ErrJobNotFound if it does not exist.
func (d *DeadLetters) Retry(ctx context.Context, id string) error {
	return d.store.Reset(ctx, id, d.now())
}
