package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/content-pipeline/internal/jobs"
)

const pipelineJobsSchema = `
CREATE TABLE IF NOT EXISTS pipeline_jobs (
	id               TEXT PRIMARY KEY,
	input            JSONB NOT NULL,
	pipeline_version TEXT NOT NULL,
	phase            TEXT NOT NULL,
	error_message    TEXT NOT NULL DEFAULT '',
	chunk_records    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_updated_at ON pipeline_jobs (updated_at);
`

const selectJobColumns = `id, input, pipeline_version, phase, error_message, chunk_records, created_at, updated_at`

// PostgresStore persists jobs in the pipeline_jobs table.
type PostgresStore struct {
	storeOps
	db  *DB
	now func() time.Time
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *DB) *PostgresStore {
	s := &PostgresStore{db: db, now: time.Now}
	s.storeOps = storeOps{b: s}
	return s
}

// EnsureSchema creates the pipeline_jobs table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.pool.Exec(ctx, pipelineJobsSchema); err != nil {
		return fmt.Errorf("failed to create pipeline_jobs schema: %w", err)
	}
	return nil
}

// Durable is true.
func (s *PostgresStore) Durable() bool { return true }

// Backend returns "postgres".
func (s *PostgresStore) Backend() string { return "postgres" }

// CreateJob inserts the job unless it already exists and returns the stored row.
func (s *PostgresStore) CreateJob(ctx context.Context, id string, input json.RawMessage) (*jobs.Job, error) {
	job := newJob(id, input, s.now())
	records, err := encodeRecords(job.ChunkRecords)
	if err != nil {
		return nil, err
	}

	_, err = s.db.pool.Exec(ctx,
		`INSERT INTO pipeline_jobs (id, input, pipeline_version, phase, error_message, chunk_records, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, '', $5, $6, $6)
		 ON CONFLICT (id) DO NOTHING`,
		job.ID, []byte(job.Input), job.PipelineVersion, string(job.Phase), records, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job %s: %w", id, err)
	}
	return s.load(ctx, id)
}

func scanJob(row pgx.Row) (*jobs.Job, error) {
	var (
		job     jobs.Job
		input   []byte
		phase   string
		records []byte
	)
	if err := row.Scan(&job.ID, &input, &job.PipelineVersion, &phase, &job.ErrorMessage,
		&records, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Input = json.RawMessage(input)
	job.Phase = jobs.Phase(phase)
	recs, err := decodeRecords(records)
	if err != nil {
		return nil, err
	}
	job.ChunkRecords = recs
	return &job, nil
}

func (s *PostgresStore) load(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := scanJob(s.db.pool.QueryRow(ctx,
		`SELECT `+selectJobColumns+` FROM pipeline_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// apply locks the row with SELECT ... FOR UPDATE, mutates it and writes it back.
func (s *PostgresStore) apply(ctx context.Context, id string, m jobs.Mutation) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+selectJobColumns+` FROM pipeline_jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(id)
		}
		return fmt.Errorf("failed to lock job %s: %w", id, err)
	}

	if err := m(job, s.now().UTC()); err != nil {
		return err
	}

	records, err := encodeRecords(job.ChunkRecords)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE pipeline_jobs
		 SET phase = $1, error_message = $2, chunk_records = $3, updated_at = $4
		 WHERE id = $5`,
		string(job.Phase), job.ErrorMessage, records, job.UpdatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit job %s: %w", id, err)
	}
	return nil
}

// Cleanup deletes jobs not updated within maxAge.
func (s *PostgresStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	tag, err := s.db.pool.Exec(ctx,
		`DELETE FROM pipeline_jobs WHERE updated_at < $1`, s.now().Add(-maxAge).UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
