package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/pipeline/steps"
)

// RetryPlan is a validated resume request.
type RetryPlan struct {
	JobID           string
	From            jobs.ChunkKind
	CompletedChunks []jobs.ChunkKind
	SavingsUsd      float64
	SavingsMs       int64
}

// Message is the human summary sent with retry_start.
func (p *RetryPlan) Message() string {
	return fmt.Sprintf("Retrying from %s saves approximately $%.2f and %d seconds versus a full restart.",
		p.From, p.SavingsUsd, (p.SavingsMs+500)/1000)
}

// RetryController resumes failed or interrupted jobs. Chunks that are done
// are skipped and never executed again.
type RetryController struct {
	orch *Orchestrator
}

// NewRetryController creates a controller that runs resumes through o.
func NewRetryController(o *Orchestrator) *RetryController {
	return &RetryController{orch: o}
}

// Plan validates a resume of jobID. A nil from resumes at the first
// incomplete chunk.
func (c *RetryController) Plan(ctx context.Context, jobID string, from *jobs.ChunkKind) (*RetryPlan, error) {
	job, err := c.orch.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return nil, &JobNotFoundError{JobID: jobID}
	}
	if job.PipelineVersion != jobs.PipelineVersion {
		return nil, &VersionMismatchError{JobVersion: job.PipelineVersion, Current: jobs.PipelineVersion}
	}
	if c.orch.Active(jobID) {
		return nil, &JobBusyError{JobID: jobID}
	}
	if kind, busy := c.orch.runningChunk(job); busy {
		return nil, &JobBusyError{JobID: jobID, Chunk: kind}
	}

	records := jobs.Records(job.ChunkRecords)
	var start jobs.ChunkKind
	switch {
	case from != nil:
		if !from.Valid() {
			return nil, &InvalidChunkError{Chunk: string(*from)}
		}
		start = *from
	default:
		kind, ok := jobs.FirstIncomplete(records)
		if !ok {
			kind = jobs.ChunkOrder[0]
		}
		start = kind
	}

	if err := steps.ValidateDependencies(records, start); err != nil {
		return nil, err
	}

	usd, ms := jobs.Savings(records)
	return &RetryPlan{
		JobID:           jobID,
		From:            start,
		CompletedChunks: jobs.DoneKinds(records),
		SavingsUsd:      usd,
		SavingsMs:       ms,
	}, nil
}

// Retry executes a plan. It emits retry_start, then walks every chunk in
// order: done chunks are marked skipped, the rest run through the normal
// chunk loop. A job whose chunks are all done returns its artifact without
// invoking any executor. A job that is already running, here or in another
// process sharing the store, is refused with JobBusyError.
func (c *RetryController) Retry(ctx context.Context, plan *RetryPlan, obs Observer) (*RunResult, error) {
	o := c.orch
	release, err := o.claim(plan.JobID)
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := o.store.GetJob(ctx, plan.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return nil, &JobNotFoundError{JobID: plan.JobID}
	}
	if kind, busy := o.runningChunk(job); busy {
		return nil, &JobBusyError{JobID: plan.JobID, Chunk: kind}
	}

	r, err := o.newRun(job, obs)
	if err != nil {
		return nil, err
	}
	r.emit(EventRetryStart, RetryStart{
		JobID:               plan.JobID,
		FromChunk:           plan.From,
		CompletedChunks:     append([]jobs.ChunkKind{}, plan.CompletedChunks...),
		EstimatedSavingsUsd: plan.SavingsUsd,
		EstimatedSavingsMs:  plan.SavingsMs,
		Message:             plan.Message(),
		Durable:             o.store.Durable(),
	})
	o.log.Info("retrying pipeline run", "job_id", plan.JobID, "from", plan.From,
		"completed", len(plan.CompletedChunks), "savings_usd", plan.SavingsUsd)
	return o.walk(ctx, r)
}
