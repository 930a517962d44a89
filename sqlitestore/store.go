// Package sqlitestore is a jobq.Store backed by a single SQLite file.
// It suits a single host running one or more worker processes.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/UniQw/jobq"
	"github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements jobq.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ jobq.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

type migration struct {
	Version string
	SQL     string
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	var migrations []migration
	err = fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := fs.ReadFile(migrationsFS, path)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", path, err)
		}
		migrations = append(migrations, migration{
			Version: strings.TrimSuffix(filepath.Base(path), ".sql"),
			SQL:     string(content),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk migrations directory: %w", err)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
	}
	return nil
}

// Create implements jobq.Store.
func (s *Store) Create(ctx context.Context, j *jobq.Job) error {
	res, err := s.db.ExecContext(ctx, insertJob,
		j.ID, j.Command, j.MaxRetries,
		j.NextRunAt.UnixMilli(), j.CreatedAt.UnixMilli(), j.CreatedAt.UnixMilli())
	if err != nil {
		return storeErr("create job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("create job", err)
	}
	if n == 0 {
		return jobq.ErrDuplicateJob
	}
	return nil
}

// ClaimNext implements jobq.Store.
func (s *Store) ClaimNext(ctx context.Context, now time.Time) (*jobq.Job, error) {
	ms := now.UnixMilli()
	j, err := scanJob(s.db.QueryRowContext(ctx, claimNext, ms, ms))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("claim job", err)
	}
	return j, nil
}

// RecordOutcome implements jobq.Store.
func (s *Store) RecordOutcome(ctx context.Context, id string, o jobq.Outcome) error {
	at := o.At.UnixMilli()
	var (
		res sql.Result
		err error
	)
	switch o.Kind {
	case jobq.OutcomeCompleted:
		res, err = s.db.ExecContext(ctx, completeJob, o.Attempts, o.Output, at, id)
	case jobq.OutcomeRetry:
		res, err = s.db.ExecContext(ctx, retryJob, o.Attempts, o.LastError, o.NextRunAt.UnixMilli(), at, id)
	case jobq.OutcomeDead:
		res, err = s.db.ExecContext(ctx, buryJob, o.Attempts, o.LastError, at, id)
	default:
		return fmt.Errorf("jobq: unknown outcome kind %d", o.Kind)
	}
	if err != nil {
		return storeErr("record outcome", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("record outcome", err)
	}
	if n == 0 {
		return jobq.ErrNotClaimed
	}
	return nil
}

// ListByState implements jobq.Store.
func (s *Store) ListByState(ctx context.Context, state jobq.State) ([]*jobq.Job, error) {
	jobs := make([]*jobq.Job, 0)
	if state == jobq.StateFailed {
		return jobs, nil
	}
	rows, err := s.db.QueryContext(ctx, listByState, string(state))
	if err != nil {
		return nil, storeErr("list jobs", err)
	}
	defer rows.Close()
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, storeErr("scan job", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list jobs", err)
	}
	return jobs, nil
}

// FindByID implements jobq.Store.
func (s *Store) FindByID(ctx context.Context, id string) (*jobq.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, getJob, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobq.ErrJobNotFound
	}
	if err != nil {
		return nil, storeErr("get job", err)
	}
	return j, nil
}

// Reset implements jobq.Store.
func (s *Store) Reset(ctx context.Context, id string, now time.Time) error {
	ms := now.UnixMilli()
	res, err := s.db.ExecContext(ctx, resetJob, ms, ms, id)
	if err != nil {
		return storeErr("reset job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("reset job", err)
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, jobExists, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return jobq.ErrJobNotFound
	}
	if err != nil {
		return storeErr("reset job", err)
	}
	return jobq.ErrNotInDLQ
}

// CountByState implements jobq.Store.
func (s *Store) CountByState(ctx context.Context) (map[jobq.State]int, error) {
	rows, err := s.db.QueryContext(ctx, countByState)
	if err != nil {
		return nil, storeErr("count jobs", err)
	}
	defer rows.Close()
	out := make(map[jobq.State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, storeErr("count jobs", err)
		}
		out[jobq.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("count jobs", err)
	}
	return out, nil
}

// ReclaimStale implements jobq.Store.
func (s *Store) ReclaimStale(ctx context.Context, cutoff, now time.Time) (int, error) {
	ms := now.UnixMilli()
	res, err := s.db.ExecContext(ctx, reclaimJobs, ms, ms, cutoff.UnixMilli())
	if err != nil {
		return 0, storeErr("reclaim jobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("reclaim jobs", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*jobq.Job, error) {
	var j jobq.Job
	var state string
	var nextRun, created, updated int64
	if err := r.Scan(&j.ID, &j.Command, &state, &j.Attempts, &j.MaxRetries,
		&j.LastError, &j.Output, &nextRun, &created, &updated); err != nil {
		return nil, err
	}
	j.State = jobq.State(state)
	j.NextRunAt = time.UnixMilli(nextRun)
	j.CreatedAt = time.UnixMilli(created)
	j.UpdatedAt = time.UnixMilli(updated)
	return &j, nil
}

// storeErr wraps err as a transient store failure.
func storeErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return jobq.Unavailable(fmt.Errorf("%s: database busy: %w", op, err))
	}
	return jobq.Unavailable(fmt.Errorf("%s: %w", op, err))
}
