package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Store persists jobs and their chunk records. All operations are idempotent
// under retry. Lookups return nil with a nil error when the job is absent.
type Store interface {
	// Durable reports whether jobs survive process restarts and are visible
	// to other instances.
	Durable() bool
	// Backend names the storage backend ("memory", "postgres", ...).
	Backend() string

	CreateJob(ctx context.Context, id string, input json.RawMessage) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdatePhase(ctx context.Context, id string, phase Phase, errMsg string) error
	SetChunkRunning(ctx context.Context, id string, kind ChunkKind) error
	SaveChunkOutput(ctx context.Context, id string, kind ChunkKind, output json.RawMessage, cost *ChunkCost) error
	GetChunkOutput(ctx context.Context, id string, kind ChunkKind) (json.RawMessage, error)
	SetChunkFailed(ctx context.Context, id string, kind ChunkKind, errMsg string) error
	MarkChunkSkipped(ctx context.Context, id string, kind ChunkKind) error
	GetChunkRecord(ctx context.Context, id string, kind ChunkKind) (*ChunkRecord, error)

	// Cleanup removes jobs last updated more than maxAge ago and returns how
	// many were removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
	Close() error
}

// PipelineVersion tags new jobs with the chunk contract they were created under.
const PipelineVersion = "1.0"
