package hctx

import "context"

// Job identifies the job a command is being run for.
type Job struct {
	ID string
	// Attempt is 1 for the first run.
	Attempt int
}

type ctxKey struct{}

// WithJob returns a child context carrying j.
func WithJob(parent context.Context, j Job) context.Context {
	return context.WithValue(parent, ctxKey{}, j)
}

// From extracts the job from context if present.
func From(ctx context.Context) (Job, bool) {
	j, ok := ctx.Value(ctxKey{}).(Job)
	return j, ok
}
