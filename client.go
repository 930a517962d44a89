package jobq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is used when neither the client nor the request sets a limit.
const DefaultMaxRetries = 3

// ClientConfig configures a Client.
type ClientConfig struct {
	// DefaultMaxRetries applies to jobs enqueued without MaxRetries.
	// Negative values fall back to DefaultMaxRetries.
	DefaultMaxRetries int
}

// Client provides APIs to enqueue and inspect jobs in a Store.
type Client struct {
	store      Store
	maxRetries int
	dlq        *DeadLetters
	now        func() time.Time
}

// NewClient creates a new jobq client on top of store.
func NewClient(store Store, cfg ClientConfig) *Client {
	mr := cfg.DefaultMaxRetries
	if mr < 0 {
		mr = DefaultMaxRetries
	}
	return &Client{store: store, maxRetries: mr, dlq: NewDeadLetters(store), now: time.Now}
}

// Enqueue creates a pending job running command and returns its ID.
// It returns ErrInvalidInput for an empty command or a negative retry limit,
// and ErrDuplicateJob if the ID (explicit or generated) already exists.
func (c *Client) Enqueue(ctx context.Context, command string, opts ...Option) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("%w: command is empty", ErrInvalidInput)
	}

	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	maxRetries := c.maxRetries
	if cfg.maxRetriesSet {
		maxRetries = cfg.maxRetries
	}
	if maxRetries < 0 {
		return "", fmt.Errorf("%w: max retries must be non-negative, got %d", ErrInvalidInput, maxRetries)
	}
	if cfg.delay < 0 {
		return "", fmt.Errorf("%w: delay must be non-negative", ErrInvalidInput)
	}

	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}

	now := c.now()
	j := &Job{
		ID:         id,
		Command:    command,
		State:      StatePending,
		MaxRetries: maxRetries,
		NextRunAt:  now.Add(cfg.delay),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.Create(ctx, j); err != nil {
		return "", err
	}
	return id, nil
}

// GetJob returns a job by ID, or ErrJobNotFound.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	return c.store.FindByID(ctx, id)
}

// JobFilter is a function used to filter jobs during ListJobs.
type JobFilter func(*Job) bool

// ListJobs returns the jobs in a state, newest first.
// StateFailed lists pending jobs rescheduled after a failure; StatePending
// lists the pending jobs that never failed.
func (c *Client) ListJobs(ctx context.Context, state State, filter JobFilter) ([]*Job, error) {
	stored := state
	switch state {
	case StatePending, StateFailed:
		stored = StatePending
	case StateProcessing, StateCompleted, StateDead:
	default:
		return nil, ErrUnknownState
	}

	jobs, err := c.store.ListByState(ctx, stored)
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		if j.DisplayState() != state {
			continue
		}
		if filter == nil || filter(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

// StatusSummary returns the number of jobs per state. Every state is present.
// Pending and failed both come from one scan of stored pending jobs.
func (c *Client) StatusSummary(ctx context.Context) (map[State]int, error) {
	counts, err := c.store.CountByState(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[State]int, len(AllStates))
	for _, s := range AllStates {
		out[s] = counts[s]
	}
	out[StatePending], out[StateFailed] = 0, 0
	if counts[StatePending] == 0 {
		return out, nil
	}
	pending, err := c.store.ListByState(ctx, StatePending)
	if err != nil {
		return nil, err
	}
	for _, j := range pending {
		out[j.DisplayState()]++
	}
	return out, nil
}

// DLQ returns the dead-letter view over the client's store.
func (c *Client) DLQ() *DeadLetters { return c.dlq }

func parseDelay(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: delay %q: %v", ErrInvalidInput, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: delay must be non-negative", ErrInvalidInput)
	}
	return d, nil
}
