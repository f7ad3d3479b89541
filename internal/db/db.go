// Package db provides durable job stores for the content pipeline: PostgreSQL,
// SQLite and Redis, plus backend selection with in-memory fallback.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/content-pipeline/internal/jobs"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// -----------------------------------------------------------------------------
// Shared store operations
// -----------------------------------------------------------------------------

// backend is what each driver provides; storeOps derives the rest of
// jobs.Store from it so transition rules stay in one place.
type backend interface {
	// load returns the job or nil when absent.
	load(ctx context.Context, id string) (*jobs.Job, error)
	// apply runs m against the stored job inside the driver's atomic section.
	apply(ctx context.Context, id string, m jobs.Mutation) error
}

type storeOps struct {
	b backend
}

func (s storeOps) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	return s.b.load(ctx, id)
}

func (s storeOps) UpdatePhase(ctx context.Context, id string, phase jobs.Phase, errMsg string) error {
	return s.b.apply(ctx, id, jobs.SetPhase(phase, errMsg))
}

func (s storeOps) SetChunkRunning(ctx context.Context, id string, kind jobs.ChunkKind) error {
	return s.b.apply(ctx, id, jobs.SetRunning(kind))
}

func (s storeOps) SaveChunkOutput(ctx context.Context, id string, kind jobs.ChunkKind, output json.RawMessage, cost *jobs.ChunkCost) error {
	return s.b.apply(ctx, id, jobs.SaveOutput(kind, output, cost))
}

func (s storeOps) SetChunkFailed(ctx context.Context, id string, kind jobs.ChunkKind, errMsg string) error {
	return s.b.apply(ctx, id, jobs.SetFailed(kind, errMsg))
}

func (s storeOps) MarkChunkSkipped(ctx context.Context, id string, kind jobs.ChunkKind) error {
	return s.b.apply(ctx, id, jobs.MarkSkipped(kind))
}

func (s storeOps) GetChunkOutput(ctx context.Context, id string, kind jobs.ChunkKind) (json.RawMessage, error) {
	rec, err := s.GetChunkRecord(ctx, id, kind)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Output, nil
}

func (s storeOps) GetChunkRecord(ctx context.Context, id string, kind jobs.ChunkKind) (*jobs.ChunkRecord, error) {
	job, err := s.b.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.Record(kind), nil
}

// -----------------------------------------------------------------------------
// Row encoding
// -----------------------------------------------------------------------------

func encodeRecords(records map[jobs.ChunkKind]*jobs.ChunkRecord) ([]byte, error) {
	if records == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chunk records: %w", err)
	}
	return raw, nil
}

func decodeRecords(raw []byte) (map[jobs.ChunkKind]*jobs.ChunkRecord, error) {
	records := make(map[jobs.ChunkKind]*jobs.ChunkRecord, len(jobs.ChunkOrder))
	if len(raw) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chunk records: %w", err)
	}
	return records, nil
}

func inputOrEmpty(input json.RawMessage) []byte {
	if len(input) == 0 {
		return []byte("{}")
	}
	return input
}

func newJob(id string, input json.RawMessage, now time.Time) *jobs.Job {
	return jobs.NewJob(id, json.RawMessage(inputOrEmpty(input)), jobs.PipelineVersion, now.UTC())
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
}
