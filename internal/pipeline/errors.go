package pipeline

import (
	"fmt"
	"time"

	"github.com/jonathan/content-pipeline/internal/jobs"
)

// ChunkError is returned when a chunk executor fails or runs out of time.
// The failure has already been written to the job store.
type ChunkError struct {
	Kind           jobs.ChunkKind
	Err            error
	BudgetExceeded bool
	Budget         time.Duration
}

func (e *ChunkError) Error() string {
	if e.BudgetExceeded {
		return fmt.Sprintf("chunk %s exceeded its %s budget", e.Kind, e.Budget)
	}
	return fmt.Sprintf("chunk %s failed: %v", e.Kind, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// JobNotFoundError is returned when a job id is unknown to the store.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

// VersionMismatchError is returned when a job was created under a different
// chunk contract and cannot be resumed.
type VersionMismatchError struct {
	JobVersion string
	Current    string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("job was created with pipeline version %q but the current version is %q; start a new run",
		e.JobVersion, e.Current)
}

// InvalidChunkError is returned for an unrecognized resume point.
type InvalidChunkError struct {
	Chunk string
}

func (e *InvalidChunkError) Error() string {
	return fmt.Sprintf("invalid chunk %q", e.Chunk)
}

// JobExistsError is returned when a new run or a bootstrap names a job id
// that is already taken.
type JobExistsError struct {
	JobID string
}

func (e *JobExistsError) Error() string {
	return fmt.Sprintf("job %s already exists", e.JobID)
}

// JobBusyError is returned when a job already has a run in progress. Chunk
// names the running chunk when the store records one.
type JobBusyError struct {
	JobID string
	Chunk jobs.ChunkKind
}

func (e *JobBusyError) Error() string {
	if e.Chunk != "" {
		return fmt.Sprintf("job %s is already running (chunk %s)", e.JobID, e.Chunk)
	}
	return fmt.Sprintf("job %s is already running", e.JobID)
}

// BootstrapRefusedError is returned when the store is durable; a durable
// store never fabricates jobs from client state.
type BootstrapRefusedError struct {
	Backend string
}

func (e *BootstrapRefusedError) Error() string {
	return fmt.Sprintf("bootstrap is not allowed on the %s store", e.Backend)
}

// InvalidBootstrapError is returned for malformed bootstrap state.
type InvalidBootstrapError struct {
	Reason string
}

func (e *InvalidBootstrapError) Error() string {
	return "invalid bootstrap request: " + e.Reason
}
