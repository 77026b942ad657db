// Package sqlite provides the durable job store over a local SQLite
// database. The claim operation is a single UPDATE with a nested
// SELECT, which SQLite serializes across writers; busy conflicts are
// transient and retried here with a bounded budget.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/queue"
)

const (
	// DefaultBusyTimeout is how long a single SQLite call waits on a
	// locked database before reporting SQLITE_BUSY.
	DefaultBusyTimeout = 5 * time.Second
	// DefaultClaimRetries bounds the internal retry budget for claim
	// conflicts before the error is surfaced as a store failure.
	DefaultClaimRetries = 5

	claimRetryDelay = 25 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    command     TEXT NOT NULL,
    state       TEXT NOT NULL,
    attempts    INTEGER DEFAULT 0,
    max_retries INTEGER DEFAULT 3,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    last_error  TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

// Config holds SQLite store configuration.
type Config struct {
	Path         string
	BusyTimeout  time.Duration
	ClaimRetries int
}

func (c *Config) normalize() {
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
	if c.ClaimRetries <= 0 {
		c.ClaimRetries = DefaultClaimRetries
	}
}

// Store is the durable queue.Store implementation backed by SQLite.
type Store struct {
	db     *sql.DB
	log    logger.Logger
	config Config
}

// NewStore opens (and if needed creates) the database at cfg.Path and
// ensures the jobs table exists.
func NewStore(cfg Config, log logger.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("store path is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL",
		url.PathEscape(cfg.Path), cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, queue.StoreError("open database", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, queue.StoreError("ping database", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, queue.StoreError("create schema", err)
	}

	log.Info("sqlite store opened", "path", cfg.Path, "busy_timeout", cfg.BusyTimeout)

	return &Store{
		db:     db,
		log:    log,
		config: cfg,
	}, nil
}

// DB returns the underlying *sql.DB for direct access when needed.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Create inserts a new job. The primary key rejects duplicate ids
// atomically, which is what makes concurrent enqueues with the same id
// safe.
func (s *Store) Create(ctx context.Context, job *queue.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	record := toRecord(job)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, command, state, attempts, max_retries, created_at, updated_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Command, record.State, record.Attempts,
		record.MaxRetries, record.CreatedAt, record.UpdatedAt, record.LastError,
	)
	if err != nil {
		if isConstraint(err) {
			return queue.DuplicateIDError(job.ID)
		}
		return queue.StoreError("create job", err)
	}
	return nil
}

// Save upserts the job by id. created_at is written on first insert and
// never changed afterwards.
func (s *Store) Save(ctx context.Context, job *queue.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	record := toRecord(job)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, command, state, attempts, max_retries, created_at, updated_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at,
			last_error = excluded.last_error`,
		record.ID, record.Command, record.State, record.Attempts,
		record.MaxRetries, record.CreatedAt, record.UpdatedAt, record.LastError,
	)
	if err != nil {
		return queue.StoreError("save job", err)
	}
	return nil
}

// Get returns the job with the given id or queue.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*queue.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, command, state, attempts, max_retries, created_at, updated_at, last_error
		FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrNotFound
		}
		if errors.Is(err, queue.ErrValidation) {
			return nil, err
		}
		return nil, queue.StoreError("get job", err)
	}
	return job, nil
}

// ListByState returns jobs in the given state in creation order, id as tiebreak.
func (s *Store) ListByState(ctx context.Context, state queue.State) ([]*queue.Job, error) {
	if _, err := queue.ParseState(string(state)); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, state, attempts, max_retries, created_at, updated_at, last_error
		FROM jobs WHERE state = ?
		ORDER BY created_at ASC, id ASC`, string(state))
	if err != nil {
		return nil, queue.StoreError("list jobs", err)
	}
	defer rows.Close()

	jobs := make([]*queue.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			if errors.Is(err, queue.ErrValidation) {
				return nil, err
			}
			return nil, queue.StoreError("list jobs", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, queue.StoreError("list jobs", err)
	}
	return jobs, nil
}

// ClaimNext atomically moves the oldest pending job to processing and
// returns it. The nested-SELECT UPDATE is one statement, so SQLite's
// writer serialization guarantees no two callers receive the same job.
// SQLITE_BUSY is retried with a bounded budget; exhausting it surfaces
// as a store error.
func (s *Store) ClaimNext(ctx context.Context) (*queue.Job, error) {
	now := time.Now().UTC().Format(timeLayout)

	var lastErr error
	for attempt := 0; attempt < s.config.ClaimRetries; attempt++ {
		row := s.db.QueryRowContext(ctx, `
			UPDATE jobs
			SET state = ?, updated_at = ?
			WHERE id = (
				SELECT id FROM jobs
				WHERE state = ?
				ORDER BY created_at ASC, id ASC
				LIMIT 1
			)
			RETURNING id, command, state, attempts, max_retries, created_at, updated_at, last_error`,
			string(queue.StateProcessing), now, string(queue.StatePending))

		job, err := scanJob(row)
		if err == nil {
			return job, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if !isBusy(err) {
			return nil, queue.StoreError("claim job", err)
		}

		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(claimRetryDelay):
		}
	}
	return nil, queue.StoreError("claim job: retries exhausted", lastErr)
}

// ReleaseForRetry moves a failed job back to pending. The WHERE clause
// makes the transition conditional: a job that meanwhile left the
// failed state is not touched.
func (s *Store) ReleaseForRetry(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(queue.StatePending), now, id, string(queue.StateFailed))
	if err != nil {
		return queue.StoreError("release job", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return queue.StoreError("release job", err)
	}
	if rows == 0 {
		// Distinguish "not failed anymore" (a no-op) from "unknown id".
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Stats counts jobs per state, reporting every state even at zero.
func (s *Store) Stats(ctx context.Context) (map[queue.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, queue.StoreError("stats", err)
	}
	defer rows.Close()

	stats := make(map[queue.State]int, len(queue.AllStates()))
	for _, state := range queue.AllStates() {
		stats[state] = 0
	}
	for rows.Next() {
		var stateText string
		var count int
		if err := rows.Scan(&stateText, &count); err != nil {
			return nil, queue.StoreError("stats", err)
		}
		state, err := queue.ParseState(stateText)
		if err != nil {
			return nil, err
		}
		stats[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, queue.StoreError("stats", err)
	}
	return stats, nil
}

// HealthCheck verifies the database connection is healthy with a timeout.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.log.Error("sqlite health check failed", "error", err)
		return queue.StoreError("health check", err)
	}
	return nil
}

// Close gracefully closes the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.Error("failed to close sqlite store", "error", err)
		return queue.StoreError("close", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*queue.Job, error) {
	var record jobRecord
	err := row.Scan(
		&record.ID, &record.Command, &record.State, &record.Attempts,
		&record.MaxRetries, &record.CreatedAt, &record.UpdatedAt, &record.LastError,
	)
	if err != nil {
		return nil, err
	}
	return fromRecord(record)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
