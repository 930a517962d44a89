package jobq

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newStoreJob(id string, created time.Time) *Job {
	return &Job{ID: id, Command: "echo " + id, State: StatePending, MaxRetries: 3, NextRunAt: created, CreatedAt: created, UpdatedAt: created}
}

func TestRedisStore_CreateFind(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := NewRedisStore(rdb, "q")
	now := newClock().Now()

	require.NoError(t, s.Create(ctx, newStoreJob("a", now)))
	require.ErrorIs(t, s.Create(ctx, newStoreJob("a", now)), ErrDuplicateJob)

	j, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "echo a", j.Command)
	require.Equal(t, StatePending, j.State)
	require.Equal(t, 3, j.MaxRetries)
	require.True(t, j.CreatedAt.Equal(now))

	_, err = s.FindByID(ctx, "b")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestRedisStore_ClaimNext_FIFOBeyondPromoteBatch(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := NewRedisStore(rdb, "q")
	t0 := newClock().Now()

	old := newStoreJob("old", t0)
	old.NextRunAt = t0.Add(10 * time.Second)
	require.NoError(t, s.Create(ctx, old))
	for i := 0; i < 300; i++ {
		j := newStoreJob(fmt.Sprintf("n%03d", i), t0.Add(time.Duration(i+1)*time.Millisecond))
		j.NextRunAt = t0.Add(time.Second + time.Duration(i)*time.Millisecond)
		require.NoError(t, s.Create(ctx, j))
	}

	now := t0.Add(time.Minute)
	j, err := s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, "old", j.ID, "oldest eligible job wins even when it became due last")

	j, err = s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, "n000", j.ID)
}

func TestRedisStore_NamespacesAreIsolated(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	now := newClock().Now()

	a := NewRedisStore(rdb, "a")
	b := NewRedisStore(rdb, "b")
	require.NoError(t, a.Create(ctx, newStoreJob("x", now)))
	require.NoError(t, b.Create(ctx, newStoreJob("x", now)))

	j, err := b.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, "x", j.ID)
	j, err = b.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Nil(t, j)

	got, err := a.FindByID(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, StatePending, got.State)
}

func TestRedisStore_ClaimNext_FIFOAndEligibility(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := NewRedisStore(rdb, "q")
	now := newClock().Now()

	j, err := s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Nil(t, j, "empty store yields no job")

	late := newStoreJob("late", now.Add(-time.Second))
	late.NextRunAt = now.Add(time.Minute)
	require.NoError(t, s.Create(ctx, late))
	require.NoError(t, s.Create(ctx, newStoreJob("second", now.Add(-2*time.Millisecond))))
	require.NoError(t, s.Create(ctx, newStoreJob("first", now.Add(-3*time.Millisecond))))

	j, err = s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, "first", j.ID)
	require.Equal(t, StateProcessing, j.State)
	j, err = s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, "second", j.ID)

	j, err = s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Nil(t, j, "job with future next_run_at must not be claimed")

	j, err = s.ClaimNext(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "late", j.ID)
}

func TestRedisStore_ClaimNext_Exclusive(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := NewRedisStore(rdb, "race")
	now := newClock().Now()

	const jobs = 40
	for i := 0; i < jobs; i++ {
		require.NoError(t, s.Create(ctx, newStoreJob(fmt.Sprintf("j%02d", i), now.Add(time.Duration(i)*time.Millisecond))))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	claimAt := now.Add(time.Second)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := s.ClaimNext(ctx, claimAt)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, jobs)
	for id, n := range seen {
		require.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestRedisStore_RecordOutcome(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := NewRedisStore(rdb, "q")
	now := newClock().Now()

	require.NoError(t, s.Create(ctx, newStoreJob("a", now)))
	err := s.RecordOutcome(ctx, "a", Outcome{Kind: OutcomeCompleted, Attempts: 1, At: now})
	require.ErrorIs(t, err, ErrNotClaimed, "pending job cannot take an outcome")

	_, err = s.ClaimNext(ctx, now)
	require.NoError(t, err)
	next := now.Add(2 * time.Second)
	require.NoError(t, s.RecordOutcome(ctx, "a", Outcome{Kind: OutcomeRetry, Attempts: 1, LastError: "exit status 1", NextRunAt: next, At: now}))

	j, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, StatePending, j.State)
	require.Equal(t, 1, j.Attempts)
	require.Equal(t, "exit status 1", j.LastError)
	require.True(t, j.NextRunAt.Equal(next))

	j, err = s.ClaimNext(ctx, next)
	require.NoError(t, err)
	require.Equal(t, "a", j.ID)
	require.Equal(t, 1, j.Attempts)
	require.NoError(t, s.RecordOutcome(ctx, "a", Outcome{Kind: OutcomeDead, Attempts: 2, LastError: "exit status 2", At: next}))

	j, err = s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, StateDead, j.State)
	require.Equal(t, 2, j.Attempts)

	require.Error(t, s.RecordOutcome(ctx, "a", Outcome{Kind: OutcomeKind(99)}))
}

func TestRedisStore_Reset(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := NewRedisStore(rdb, "q")
	now := newClock().Now()

	require.ErrorIs(t, s.Reset(ctx, "missing", now), ErrJobNotFound)

	require.NoError(t, s.Create(ctx, newStoreJob("a", now)))
	require.ErrorIs(t, s.Reset(ctx, "a", now), ErrNotInDLQ)

	_, err := s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(ctx, "a", Outcome{Kind: OutcomeDead, Attempts: 4, LastError: "x", At: now}))

	later := now.Add(time.Hour)
	require.NoError(t, s.Reset(ctx, "a", later))
	j, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, StatePending, j.State)
	require.Zero(t, j.Attempts)
	require.Empty(t, j.LastError)
	require.True(t, j.NextRunAt.Equal(later))
}

func TestRedisStore_CountAndList(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := NewRedisStore(rdb, "q")
	now := newClock().Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, newStoreJob(fmt.Sprintf("p%d", i), now.Add(time.Duration(i)*time.Millisecond))))
	}
	_, err := s.ClaimNext(ctx, now.Add(time.Second))
	require.NoError(t, err)

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts[StatePending])
	require.Equal(t, 1, counts[StateProcessing])
	require.Equal(t, 0, counts[StateDead])

	list, err := s.ListByState(ctx, StatePending)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "p2", list[0].ID, "newest first")

	list, err = s.ListByState(ctx, StateFailed)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRedisStore_ReclaimStale(t *testing.T) {
	rdb, done := newMiniClient(t)
	defer done()
	ctx := context.Background()
	s := NewRedisStore(rdb, "q")
	now := newClock().Now()

	require.NoError(t, s.Create(ctx, newStoreJob("a", now)))
	_, err := s.ClaimNext(ctx, now)
	require.NoError(t, err)

	n, err := s.ReclaimStale(ctx, now.Add(-time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	require.Zero(t, n, "job claimed after cutoff stays processing")

	n, err = s.ReclaimStale(ctx, now.Add(time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	j, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, StatePending, j.State)
	require.Zero(t, j.Attempts)
}
