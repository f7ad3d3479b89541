package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/jonathan/content-pipeline/internal/jobs"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pipeline_jobs (
	id               TEXT PRIMARY KEY,
	input            TEXT NOT NULL,
	pipeline_version TEXT NOT NULL,
	phase            TEXT NOT NULL,
	error_message    TEXT NOT NULL DEFAULT '',
	chunk_records    TEXT NOT NULL DEFAULT '{}',
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_updated_at ON pipeline_jobs (updated_at);
`

// SQLiteStore persists jobs in a single SQLite file. Timestamps are stored as
// Unix milliseconds.
type SQLiteStore struct {
	storeOps
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time keeps read-modify-write transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	s.storeOps = storeOps{b: s}
	return s, nil
}

// Durable is true.
func (s *SQLiteStore) Durable() bool { return true }

// Backend returns "sqlite".
func (s *SQLiteStore) Backend() string { return "sqlite" }

// CreateJob inserts the job unless it already exists and returns the stored row.
func (s *SQLiteStore) CreateJob(ctx context.Context, id string, input json.RawMessage) (*jobs.Job, error) {
	job := newJob(id, input, s.now())
	records, err := encodeRecords(job.ChunkRecords)
	if err != nil {
		return nil, err
	}
	ms := job.CreatedAt.UnixMilli()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pipeline_jobs
		 (id, input, pipeline_version, phase, error_message, chunk_records, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?, ?)`,
		job.ID, string(job.Input), job.PipelineVersion, string(job.Phase), string(records), ms, ms,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job %s: %w", id, err)
	}
	return s.load(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (*jobs.Job, error) {
	var (
		job              jobs.Job
		input, records   string
		phase            string
		created, updated int64
	)
	if err := row.Scan(&job.ID, &input, &job.PipelineVersion, &phase, &job.ErrorMessage,
		&records, &created, &updated); err != nil {
		return nil, err
	}
	job.Input = json.RawMessage(input)
	job.Phase = jobs.Phase(phase)
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.UpdatedAt = time.UnixMilli(updated).UTC()
	recs, err := decodeRecords([]byte(records))
	if err != nil {
		return nil, err
	}
	job.ChunkRecords = recs
	return &job, nil
}

func (s *SQLiteStore) load(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := scanSQLiteJob(s.db.QueryRowContext(ctx,
		`SELECT `+selectJobColumns+` FROM pipeline_jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

func (s *SQLiteStore) apply(ctx context.Context, id string, m jobs.Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := scanSQLiteJob(tx.QueryRowContext(ctx,
		`SELECT `+selectJobColumns+` FROM pipeline_jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		return fmt.Errorf("failed to read job %s: %w", id, err)
	}

	if err := m(job, s.now().UTC()); err != nil {
		return err
	}

	records, err := encodeRecords(job.ChunkRecords)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE pipeline_jobs SET phase = ?, error_message = ?, chunk_records = ?, updated_at = ? WHERE id = ?`,
		string(job.Phase), job.ErrorMessage, string(records), job.UpdatedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job %s: %w", id, err)
	}
	return nil
}

// Cleanup deletes jobs not updated within maxAge.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pipeline_jobs WHERE updated_at < ?`, s.now().Add(-maxAge).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted jobs: %w", err)
	}
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
