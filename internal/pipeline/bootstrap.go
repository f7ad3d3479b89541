package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/types"
)

// Bootstrap recreates a job from client-held state after the process that ran
// it went away. It is refused on durable stores and for existing jobs. The
// supplied outputs must form a contiguous prefix of the chunk order; they are
// imported as completed with zero cost.
func Bootstrap(ctx context.Context, store jobs.Store, jobID string, brief types.ContentBrief, chunks map[jobs.ChunkKind]json.RawMessage) (*jobs.Job, error) {
	if store.Durable() {
		return nil, &BootstrapRefusedError{Backend: store.Backend()}
	}
	if jobID == "" {
		return nil, &InvalidBootstrapError{Reason: "job id is required"}
	}
	brief.Normalize()
	if err := brief.Validate(); err != nil {
		return nil, err
	}

	existing, err := store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if existing != nil {
		return nil, &JobExistsError{JobID: jobID}
	}

	prefix, err := contiguousPrefix(chunks)
	if err != nil {
		return nil, err
	}

	input, err := json.Marshal(brief)
	if err != nil {
		return nil, fmt.Errorf("failed to encode brief: %w", err)
	}
	if _, err := store.CreateJob(ctx, jobID, input); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	for _, kind := range prefix {
		if err := store.SaveChunkOutput(ctx, jobID, kind, chunks[kind], &jobs.ChunkCost{}); err != nil {
			return nil, fmt.Errorf("failed to import %s output: %w", kind, err)
		}
	}
	if err := store.UpdatePhase(ctx, jobID, bootstrapPhase(len(prefix)), ""); err != nil {
		return nil, fmt.Errorf("failed to update phase: %w", err)
	}
	return store.GetJob(ctx, jobID)
}

func contiguousPrefix(chunks map[jobs.ChunkKind]json.RawMessage) ([]jobs.ChunkKind, error) {
	for kind, out := range chunks {
		if !kind.Valid() {
			return nil, &InvalidBootstrapError{Reason: fmt.Sprintf("unknown chunk %q", kind)}
		}
		if len(out) == 0 || string(out) == "null" {
			return nil, &InvalidBootstrapError{Reason: fmt.Sprintf("chunk %s has no output", kind)}
		}
	}
	prefix := make([]jobs.ChunkKind, 0, len(chunks))
	for _, kind := range jobs.ChunkOrder {
		if _, ok := chunks[kind]; !ok {
			break
		}
		prefix = append(prefix, kind)
	}
	if len(prefix) != len(chunks) {
		missing := jobs.ChunkOrder[len(prefix)]
		return nil, &InvalidBootstrapError{Reason: fmt.Sprintf("chunk outputs must be contiguous from %s; %s is missing",
			jobs.ChunkOrder[0], missing)}
	}
	return prefix, nil
}

// bootstrapPhase reports where an imported job stands. A job with only search
// results is waiting for the caller to review competitor selection.
func bootstrapPhase(done int) jobs.Phase {
	switch {
	case done == 0:
		return jobs.PhaseCreated
	case done == 1:
		return jobs.PhaseWaitingForReview
	case done >= len(jobs.ChunkOrder):
		return jobs.PhaseCompleted
	default:
		return jobs.ChunkOrder[done].Phase()
	}
}
