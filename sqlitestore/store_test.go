package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/UniQw/jobq"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func msNow() time.Time { return time.UnixMilli(time.Now().UnixMilli()) }

func newJob(id string, created time.Time) *jobq.Job {
	return &jobq.Job{ID: id, Command: "echo " + id, State: jobq.StatePending, MaxRetries: 2, NextRunAt: created, CreatedAt: created, UpdatedAt: created}
}

func TestStore_OpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), newJob("a", msNow())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	j, err := s.FindByID(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, "echo a", j.Command, "jobs survive reopen")
}

func TestStore_CreateFind(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := msNow()

	require.NoError(t, s.Create(ctx, newJob("a", now)))
	require.ErrorIs(t, s.Create(ctx, newJob("a", now)), jobq.ErrDuplicateJob)

	j, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, jobq.StatePending, j.State)
	require.Equal(t, 0, j.Attempts)
	require.Equal(t, 2, j.MaxRetries)
	require.True(t, j.CreatedAt.Equal(now))
	require.True(t, j.NextRunAt.Equal(now))

	_, err = s.FindByID(ctx, "nope")
	require.ErrorIs(t, err, jobq.ErrJobNotFound)
}

func TestStore_ClaimNext_FIFOAndEligibility(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := msNow()

	j, err := s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Nil(t, j)

	future := newJob("future", now.Add(-time.Hour))
	future.NextRunAt = now.Add(time.Minute)
	require.NoError(t, s.Create(ctx, future))
	require.NoError(t, s.Create(ctx, newJob("b", now.Add(-time.Second))))
	require.NoError(t, s.Create(ctx, newJob("a", now.Add(-2*time.Second))))

	j, err = s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, "a", j.ID)
	require.Equal(t, jobq.StateProcessing, j.State)
	require.True(t, j.UpdatedAt.Equal(now))

	j, err = s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, "b", j.ID)

	j, err = s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Nil(t, j, "future job is not eligible yet")

	j, err = s.ClaimNext(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "future", j.ID)
}

func TestStore_ClaimNext_Exclusive(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := msNow()

	const n = 30
	for i := 0; i < n; i++ {
		require.NoError(t, s.Create(ctx, newJob(fmt.Sprintf("j%02d", i), now)))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := s.ClaimNext(ctx, now)
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

	require.Len(t, seen, n)
	for id, c := range seen {
		require.Equal(t, 1, c, "job %s claimed twice", id)
	}
}

func TestStore_ClaimNext_ExclusiveAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	stores := make([]*Store, 3)
	for i := range stores {
		s, err := Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		stores[i] = s
	}
	ctx := context.Background()
	now := msNow()

	const n = 60
	for i := 0; i < n; i++ {
		require.NoError(t, stores[0].Create(ctx, newJob(fmt.Sprintf("j%02d", i), now.Add(time.Duration(i)*time.Millisecond))))
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 6; w++ {
		s := stores[w%len(stores)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := s.ClaimNext(ctx, now.Add(time.Second))
				if errors.Is(err, jobq.ErrStoreUnavailable) {
					time.Sleep(time.Millisecond)
					continue
				}
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

	require.Len(t, seen, n)
	for id, c := range seen {
		require.Equal(t, 1, c, "job %s claimed twice", id)
	}
	counts, err := stores[1].CountByState(ctx)
	require.NoError(t, err)
	require.Equal(t, n, counts[jobq.StateProcessing])
}

func TestStore_RecordOutcome(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := msNow()

	require.NoError(t, s.Create(ctx, newJob("a", now)))
	require.ErrorIs(t, s.RecordOutcome(ctx, "a", jobq.Outcome{Kind: jobq.OutcomeCompleted, Attempts: 1, At: now}), jobq.ErrNotClaimed)

	_, err := s.ClaimNext(ctx, now)
	require.NoError(t, err)
	next := now.Add(2 * time.Second)
	require.NoError(t, s.RecordOutcome(ctx, "a", jobq.Outcome{Kind: jobq.OutcomeRetry, Attempts: 1, LastError: "exit status 1", NextRunAt: next, At: now}))

	j, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, jobq.StatePending, j.State)
	require.Equal(t, jobq.StateFailed, j.DisplayState())
	require.True(t, j.NextRunAt.Equal(next))

	_, err = s.ClaimNext(ctx, next)
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(ctx, "a", jobq.Outcome{Kind: jobq.OutcomeCompleted, Attempts: 2, Output: "ok\n", At: next}))

	j, err = s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, jobq.StateCompleted, j.State)
	require.Equal(t, 2, j.Attempts)
	require.Equal(t, "ok\n", j.Output)
}

func TestStore_ResetAndCounts(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := msNow()

	require.ErrorIs(t, s.Reset(ctx, "missing", now), jobq.ErrJobNotFound)

	require.NoError(t, s.Create(ctx, newJob("a", now)))
	require.NoError(t, s.Create(ctx, newJob("b", now.Add(time.Millisecond))))
	require.ErrorIs(t, s.Reset(ctx, "a", now), jobq.ErrNotInDLQ)

	_, err := s.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(ctx, "a", jobq.Outcome{Kind: jobq.OutcomeDead, Attempts: 3, LastError: "boom", At: now}))

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[jobq.StateDead])
	require.Equal(t, 1, counts[jobq.StatePending])

	dead, err := s.ListByState(ctx, jobq.StateDead)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, "boom", dead[0].LastError)

	later := now.Add(time.Hour)
	require.NoError(t, s.Reset(ctx, "a", later))
	j, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, jobq.StatePending, j.State)
	require.Zero(t, j.Attempts)
	require.Empty(t, j.LastError)
	require.True(t, j.NextRunAt.Equal(later))

	pending, err := s.ListByState(ctx, jobq.StatePending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "b", pending[0].ID, "newest first")
}

func TestStore_ReclaimStale(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := msNow()

	require.NoError(t, s.Create(ctx, newJob("a", now)))
	_, err := s.ClaimNext(ctx, now)
	require.NoError(t, err)

	n, err := s.ReclaimStale(ctx, now.Add(-time.Second), now)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.ReclaimStale(ctx, now, now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	j, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, jobq.StatePending, j.State)
}

func TestStore_WithDispatcher(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	c := jobq.NewClient(s, jobq.ClientConfig{DefaultMaxRetries: 1})
	d := jobq.NewDispatcher(s, jobq.NewShellExecutor(5*time.Second), jobq.DispatcherConfig{
		PollInterval: 10 * time.Millisecond,
		Logger:       jobq.NewZapLogger(nil),
	})

	okID, err := c.Enqueue(ctx, "echo done")
	require.NoError(t, err)

	processed, err := d.Tick(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	j, err := c.GetJob(ctx, okID)
	require.NoError(t, err)
	require.Equal(t, jobq.StateCompleted, j.State)
	require.Equal(t, "done\n", j.Output)

	sum, err := c.StatusSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sum[jobq.StateCompleted])
}

func TestDSN(t *testing.T) {
	require.Equal(t, "a.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dsn("a.db"))
	require.Equal(t, "file:a.db?mode=rwc&_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dsn("file:a.db?mode=rwc"))
}
