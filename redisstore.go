package jobq

import (
	"context"
	"fmt"
	"time"

	ikeys "github.com/UniQw/jobq/internal/keys"
	"github.com/UniQw/jobq/internal/redisjob"
	"github.com/redis/go-redis/v9"
)

// DefaultNamespace is the Redis namespace used when none is given.
const DefaultNamespace = "default"

// reclaimBatch bounds how many stale jobs a single reclaim call recovers.
const reclaimBatch = 256

// RedisStore is a Store on Redis. Jobs are HASHes; eligibility, FIFO order
// and per-state listings are kept in sorted-set indexes that Lua scripts
// update together with the HASH.
type RedisStore struct {
	rdb redis.UniversalClient
	ns  ikeys.Namespace
}

// NewRedisStore creates a Store using rdb. Different namespaces are fully isolated queues.
func NewRedisStore(rdb redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisStore{rdb: rdb, ns: ikeys.For(namespace)}
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, j *Job) error {
	ok, err := redisjob.Create(ctx, s.rdb, s.ns, &redisjob.Record{
		ID:         j.ID,
		Command:    j.Command,
		MaxRetries: j.MaxRetries,
		NextRunAt:  j.NextRunAt.UnixMilli(),
		CreatedAt:  j.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return Unavailable(err)
	}
	if !ok {
		return ErrDuplicateJob
	}
	return nil
}

// ClaimNext implements Store.
func (s *RedisStore) ClaimNext(ctx context.Context, now time.Time) (*Job, error) {
	r, err := redisjob.Claim(ctx, s.rdb, s.ns, now.UnixMilli())
	if err != nil {
		return nil, Unavailable(err)
	}
	if r == nil {
		return nil, nil
	}
	return fromRecord(r), nil
}

// RecordOutcome implements Store.
func (s *RedisStore) RecordOutcome(ctx context.Context, id string, o Outcome) error {
	var (
		ok  bool
		err error
	)
	at := o.At.UnixMilli()
	switch o.Kind {
	case OutcomeCompleted:
		ok, err = redisjob.Complete(ctx, s.rdb, s.ns, id, o.Attempts, o.Output, at)
	case OutcomeRetry:
		ok, err = redisjob.RetryLater(ctx, s.rdb, s.ns, id, o.Attempts, o.LastError, o.NextRunAt.UnixMilli(), at)
	case OutcomeDead:
		ok, err = redisjob.Bury(ctx, s.rdb, s.ns, id, o.Attempts, o.LastError, at)
	default:
		return fmt.Errorf("jobq: unknown outcome kind %d", o.Kind)
	}
	if err != nil {
		return Unavailable(err)
	}
	if !ok {
		return ErrNotClaimed
	}
	return nil
}

// ListByState implements Store.
func (s *RedisStore) ListByState(ctx context.Context, state State) ([]*Job, error) {
	if state == StateFailed {
		// folded into pending; see Client.ListJobs
		return nil, nil
	}
	recs, err := redisjob.List(ctx, s.rdb, s.ns, string(state))
	if err != nil {
		return nil, Unavailable(err)
	}
	out := make([]*Job, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

// FindByID implements Store.
func (s *RedisStore) FindByID(ctx context.Context, id string) (*Job, error) {
	r, err := redisjob.Get(ctx, s.rdb, s.ns, id)
	if err != nil {
		return nil, Unavailable(err)
	}
	if r == nil {
		return nil, ErrJobNotFound
	}
	return fromRecord(r), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, id string, now time.Time) error {
	code, err := redisjob.Reset(ctx, s.rdb, s.ns, id, now.UnixMilli())
	if err != nil {
		return Unavailable(err)
	}
	switch code {
	case -1:
		return ErrJobNotFound
	case 0:
		return ErrNotInDLQ
	}
	return nil
}

// CountByState implements Store.
func (s *RedisStore) CountByState(ctx context.Context) (map[State]int, error) {
	states := []string{redisjob.StatePending, redisjob.StateProcessing, redisjob.StateCompleted, redisjob.StateDead}
	counts, err := redisjob.Count(ctx, s.rdb, s.ns, states)
	if err != nil {
		return nil, Unavailable(err)
	}
	out := make(map[State]int, len(counts))
	for k, v := range counts {
		out[State(k)] = int(v)
	}
	return out, nil
}

// ReclaimStale implements Store.
func (s *RedisStore) ReclaimStale(ctx context.Context, cutoff, now time.Time) (int, error) {
	total := 0
	for {
		n, err := redisjob.Reclaim(ctx, s.rdb, s.ns, cutoff.UnixMilli(), now.UnixMilli(), reclaimBatch)
		if err != nil {
			return total, Unavailable(err)
		}
		total += n
		if n < reclaimBatch {
			return total, nil
		}
	}
}

func fromRecord(r *redisjob.Record) *Job {
	return &Job{
		ID:         r.ID,
		Command:    r.Command,
		State:      State(r.State),
		Attempts:   r.Attempts,
		MaxRetries: r.MaxRetries,
		LastError:  r.LastError,
		Output:     r.Output,
		NextRunAt:  time.UnixMilli(r.NextRunAt),
		CreatedAt:  time.UnixMilli(r.CreatedAt),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt),
	}
}
