// Package pipeline runs the six content-generation chunks in order, persisting
// every chunk result so a failed run can resume where it stopped.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/logger"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/pipeline/steps"
	"github.com/jonathan/content-pipeline/internal/types"
)

// TracerName is the instrumentation scope of chunk spans.
const TracerName = "github.com/jonathan/content-pipeline/internal/pipeline"

// failureWriteTimeout bounds the store writes made after a chunk fails. They
// run on a context detached from the caller so a canceled run never leaves a
// record in running.
const failureWriteTimeout = 5 * time.Second

// staleRunGrace is how long past its budget a running chunk record is still
// treated as owned by a live run. Older records are left over from a process
// that died mid-chunk and may be resumed.
const staleRunGrace = time.Minute

// Config holds the orchestrator's collaborators.
type Config struct {
	Store     jobs.Store
	Executors map[jobs.ChunkKind]steps.Executor
	Budgets   map[jobs.ChunkKind]time.Duration
	Rates     metrics.Rates
	Sink      metrics.Sink
	Logger    *logger.Logger
	Tracer    trace.Tracer
	// Warning is carried on terminal events, e.g. when the durable store was
	// unavailable and jobs only live in memory.
	Warning string
	Now     func() time.Time
}

// Orchestrator executes pipeline runs against a job store.
type Orchestrator struct {
	store     jobs.Store
	executors map[jobs.ChunkKind]steps.Executor
	budgets   map[jobs.ChunkKind]time.Duration
	rates     metrics.Rates
	sink      metrics.Sink
	log       *logger.Logger
	tracer    trace.Tracer
	warning   string
	now       func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	JobID    string               `json:"jobId"`
	Artifact *types.FinalArtifact `json:"artifact"`
	Metrics  *metrics.RunMetrics  `json:"metrics"`
}

// New creates an orchestrator. Missing budgets fall back to the registry
// defaults and missing rates to metrics.DefaultRates.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	for _, kind := range jobs.ChunkOrder {
		if cfg.Executors[kind] == nil {
			return nil, fmt.Errorf("pipeline: no executor for chunk %s", kind)
		}
	}
	budgets := steps.DefaultBudgets()
	for kind, d := range cfg.Budgets {
		if d > 0 {
			budgets[kind] = d
		}
	}
	o := &Orchestrator{
		store:     cfg.Store,
		executors: cfg.Executors,
		budgets:   budgets,
		rates:     cfg.Rates,
		sink:      cfg.Sink,
		log:       cfg.Logger,
		tracer:    cfg.Tracer,
		warning:   cfg.Warning,
		now:       cfg.Now,
		active:    make(map[string]struct{}),
	}
	if o.rates == nil {
		o.rates = metrics.DefaultRates()
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(TracerName)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Store returns the job store the orchestrator writes to.
func (o *Orchestrator) Store() jobs.Store { return o.store }

// Budget returns the configured time budget of a chunk.
func (o *Orchestrator) Budget(kind jobs.ChunkKind) time.Duration { return o.budgets[kind] }

// claim marks jobID as running in this process. Each job runs as one
// sequential chain, so a second claim fails until release is called.
func (o *Orchestrator) claim(jobID string) (release func(), err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[jobID]; ok {
		return nil, &JobBusyError{JobID: jobID}
	}
	o.active[jobID] = struct{}{}
	return func() {
		o.mu.Lock()
		delete(o.active, jobID)
		o.mu.Unlock()
	}, nil
}

// Active reports whether this process is running jobID.
func (o *Orchestrator) Active(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[jobID]
	return ok
}

// runningChunk finds a chunk whose record says some run is working on it
// right now. Records running longer than the chunk budget plus
// staleRunGrace are abandoned and ignored.
func (o *Orchestrator) runningChunk(job *jobs.Job) (jobs.ChunkKind, bool) {
	now := o.now()
	for _, kind := range jobs.ChunkOrder {
		rec := job.Record(kind)
		if rec == nil || rec.Status != jobs.StatusRunning || rec.StartedAt == nil {
			continue
		}
		if now.Sub(*rec.StartedAt) <= o.budgets[kind]+staleRunGrace {
			return kind, true
		}
	}
	return "", false
}

// runState is the per-run bookkeeping shared by the chunk loop.
type runState struct {
	jobID     string
	brief     types.ContentBrief
	outputs   map[jobs.ChunkKind]json.RawMessage
	collector *metrics.Collector
	obs       *lockedObserver
	start     time.Time
	now       func() time.Time
}

func (r *runState) emit(name EventName, data any) {
	r.obs.Emit(Event{Name: name, Data: data})
}

func (r *runState) progress(kind jobs.ChunkKind, step string, status ProgressStatus, message string, pct int) {
	r.emit(EventProgress, ProgressEvent{
		Step:      step,
		Status:    status,
		Message:   message,
		ElapsedMs: r.now().Sub(r.start).Milliseconds(),
		Progress:  pct,
		Chunk:     kind,
	})
}

func chunkProgress(idx int) (start, mid, end int) {
	n := len(jobs.ChunkOrder)
	start = idx * 100 / n
	end = (idx + 1) * 100 / n
	return start, start + (end-start)/2, end
}

// Run starts a new job for brief under jobID, generating an id when empty.
// An id that already names a job is refused with JobExistsError; resuming an
// existing job goes through RetryController.
func (o *Orchestrator) Run(ctx context.Context, jobID string, brief types.ContentBrief, obs Observer) (*RunResult, error) {
	brief.Normalize()
	if err := brief.Validate(); err != nil {
		return nil, err
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}
	input, err := json.Marshal(brief)
	if err != nil {
		return nil, fmt.Errorf("failed to encode brief: %w", err)
	}

	release, err := o.claim(jobID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if existing != nil {
		return nil, &JobExistsError{JobID: jobID}
	}
	job, err := o.store.CreateJob(ctx, jobID, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	o.log.Info("starting pipeline run", "job_id", jobID, "keyword", brief.PrimaryKeyword, "store", o.store.Backend())

	r, err := o.newRun(job, obs)
	if err != nil {
		return nil, err
	}
	return o.walk(ctx, r)
}

func (o *Orchestrator) newRun(job *jobs.Job, obs Observer) (*runState, error) {
	var brief types.ContentBrief
	if err := job.DecodeInput(&brief); err != nil {
		return nil, err
	}
	outputs := make(map[jobs.ChunkKind]json.RawMessage, len(jobs.ChunkOrder))
	for _, kind := range jobs.ChunkOrder {
		if rec := job.Record(kind); rec != nil && rec.Status.Done() && len(rec.Output) > 0 {
			outputs[kind] = rec.Output
		}
	}
	collector := metrics.NewCollector(o.rates)
	collector.StartRun(job.ID, brief.PrimaryKeyword)
	return &runState{
		jobID:     job.ID,
		brief:     brief,
		outputs:   outputs,
		collector: collector,
		obs:       &lockedObserver{obs: obs},
		start:     o.now(),
		now:       o.now,
	}, nil
}

// walk visits every chunk in order: done chunks are skipped, the rest execute.
func (o *Orchestrator) walk(ctx context.Context, r *runState) (*RunResult, error) {
	for idx, kind := range jobs.ChunkOrder {
		rec, err := o.store.GetChunkRecord(ctx, r.jobID, kind)
		if err != nil {
			return nil, o.finishFailed(ctx, r, kind, fmt.Errorf("failed to load %s record: %w", kind, err))
		}
		if rec != nil && rec.Status.Done() {
			if err := o.skipChunk(ctx, r, idx, kind); err != nil {
				return nil, o.finishFailed(ctx, r, kind, err)
			}
			continue
		}
		if err := o.runChunk(ctx, r, idx, kind); err != nil {
			return nil, o.finishFailed(ctx, r, kind, err)
		}
	}
	return o.finishCompleted(ctx, r)
}

func (o *Orchestrator) skipChunk(ctx context.Context, r *runState, idx int, kind jobs.ChunkKind) error {
	if err := o.store.MarkChunkSkipped(ctx, r.jobID, kind); err != nil {
		return fmt.Errorf("failed to mark %s skipped: %w", kind, err)
	}
	if _, ok := r.outputs[kind]; !ok {
		out, err := o.store.GetChunkOutput(ctx, r.jobID, kind)
		if err != nil {
			return fmt.Errorf("failed to load %s output: %w", kind, err)
		}
		r.outputs[kind] = out
	}
	r.collector.StartChunk(string(kind))
	r.collector.EndChunk(string(kind), metrics.OutcomeSkipped, nil)
	_, _, end := chunkProgress(idx)
	r.progress(kind, steps.ChunkRegistry[kind].Label, StatusSkipped, "Already completed, skipping", end)
	return nil
}

func (o *Orchestrator) runChunk(ctx context.Context, r *runState, idx int, kind jobs.ChunkKind) error {
	job, err := o.store.GetJob(ctx, r.jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return &JobNotFoundError{JobID: r.jobID}
	}
	if err := steps.ValidateDependencies(jobs.Records(job.ChunkRecords), kind); err != nil {
		return err
	}
	if err := o.store.UpdatePhase(ctx, r.jobID, kind.Phase(), ""); err != nil {
		return fmt.Errorf("failed to update phase: %w", err)
	}
	if err := o.store.SetChunkRunning(ctx, r.jobID, kind); err != nil {
		return fmt.Errorf("failed to mark %s running: %w", kind, err)
	}

	budget := o.budgets[kind]
	label := steps.ChunkRegistry[kind].Label
	startPct, midPct, endPct := chunkProgress(idx)

	ctx, span := o.tracer.Start(ctx, "chunk."+string(kind), trace.WithAttributes(
		attribute.String("job.id", r.jobID),
		attribute.String("chunk.kind", string(kind)),
		attribute.Int64("chunk.budget_ms", budget.Milliseconds()),
	))
	defer span.End()

	r.collector.StartChunk(string(kind))
	r.progress(kind, label, StatusStarted, label+"...", startPct)
	o.log.Debug("chunk started", "job_id", r.jobID, "chunk", kind, "budget", budget)

	gate := &progressGate{}
	in := &steps.Input{
		JobID:   r.jobID,
		Brief:   r.brief,
		Outputs: maps.Clone(r.outputs),
		Budget:  steps.NewTimeBudget(budget),
		Calls:   &steps.CallLog{},
		Progress: func(step, _, message string) {
			gate.do(func() { r.progress(kind, step, StatusProgress, message, midPct) })
		},
	}
	start := o.now()
	out, exceeded, err := o.execute(ctx, o.executors[kind], in, budget)
	gate.close()
	calls := in.Calls.Calls()

	var raw json.RawMessage
	if err == nil {
		raw, err = json.Marshal(out)
		if err != nil {
			err = fmt.Errorf("failed to encode %s output: %w", kind, err)
		}
	}
	durationMs := o.now().Sub(start).Milliseconds()
	cost := o.rates.ChunkCost(calls, durationMs)
	if err == nil {
		if serr := o.store.SaveChunkOutput(ctx, r.jobID, kind, raw, cost); serr != nil {
			err = fmt.Errorf("failed to save %s output: %w", kind, serr)
		}
	}
	if err != nil {
		cerr := &ChunkError{Kind: kind, Err: err, BudgetExceeded: exceeded, Budget: budget}
		o.chunkFailed(ctx, r, idx, cerr, calls, span)
		return cerr
	}

	r.outputs[kind] = raw
	r.collector.EndChunk(string(kind), metrics.OutcomeCompleted, calls)
	span.SetAttributes(
		attribute.String("chunk.status", string(jobs.StatusCompleted)),
		attribute.Float64("chunk.cost_usd", cost.CostUsd),
	)
	r.progress(kind, label, StatusCompleted, fmt.Sprintf("%s done (%s)", label, metrics.FormatCost(cost.CostUsd)), endPct)
	o.log.Info("chunk completed", "job_id", r.jobID, "chunk", kind, "duration_ms", durationMs, "cost_usd", cost.CostUsd)
	return nil
}

// progressGate drops sub-step progress once the chunk has returned, so an
// abandoned executor cannot report after the chunk's failed event.
type progressGate struct {
	mu     sync.Mutex
	closed bool
}

func (g *progressGate) do(f func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		f()
	}
}

func (g *progressGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// execute runs the executor under the chunk budget. An executor that ignores
// its context is abandoned when the budget expires.
func (o *Orchestrator) execute(ctx context.Context, exec steps.Executor, in *steps.Input, budget time.Duration) (out any, exceeded bool, err error) {
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("executor panic: %v", p)}
			}
		}()
		out, err := exec.Execute(cctx, in)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		exceeded = res.err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded)
		return res.out, exceeded, res.err
	case <-cctx.Done():
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, cctx.Err()
	}
}

func (o *Orchestrator) chunkFailed(ctx context.Context, r *runState, idx int, cerr *ChunkError, calls []metrics.APICall, span trace.Span) {
	kind := cerr.Kind
	msg := cerr.Error()
	if !cerr.BudgetExceeded {
		msg = cerr.Err.Error()
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	if err := o.store.SetChunkFailed(wctx, r.jobID, kind, msg); err != nil {
		o.log.Error("failed to record chunk failure", "job_id", r.jobID, "chunk", kind, "error", err)
	}
	if err := o.store.UpdatePhase(wctx, r.jobID, jobs.PhaseFailed, msg); err != nil {
		o.log.Error("failed to update phase", "job_id", r.jobID, "error", err)
	}

	r.collector.EndChunk(string(kind), metrics.OutcomeFailed, calls)
	span.RecordError(cerr.Err)
	span.SetStatus(codes.Error, msg)
	span.SetAttributes(
		attribute.String("chunk.status", string(jobs.StatusFailed)),
		attribute.Bool("chunk.budget_exceeded", cerr.BudgetExceeded),
	)
	_, mid, _ := chunkProgress(idx)
	r.progress(kind, steps.ChunkRegistry[kind].Label, StatusFailed, msg, mid)
	o.log.Error("chunk failed", "job_id", r.jobID, "chunk", kind, "error", msg, "budget_exceeded", cerr.BudgetExceeded)
}

// finishFailed finalizes metrics and emits the terminal error event. It
// returns err unchanged.
func (o *Orchestrator) finishFailed(ctx context.Context, r *runState, kind jobs.ChunkKind, err error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if m, ferr := r.collector.FinishRun(metrics.RunFailed, string(kind)); ferr == nil {
		o.pushMetrics(wctx, m)
	}

	ev := ErrorEvent{
		JobID:           r.jobID,
		Message:         err.Error(),
		FailedChunk:     kind,
		CompletedChunks: []jobs.ChunkKind{},
		RetryFromChunk:  jobs.ChunkOrder[0],
		Durable:         o.store.Durable(),
	}
	if job, gerr := o.store.GetJob(wctx, r.jobID); gerr == nil && job != nil {
		records := jobs.Records(job.ChunkRecords)
		ev.CompletedChunks = jobs.DoneKinds(records)
		ev.RetryFromChunk = RetryPoint(records)
	}
	r.emit(EventError, ev)
	return err
}

// RetryPoint is where a resume should start: the first failed chunk, else the
// first incomplete one, else the first chunk.
func RetryPoint(records jobs.Records) jobs.ChunkKind {
	if kind, ok := jobs.FirstFailed(records); ok {
		return kind
	}
	if kind, ok := jobs.FirstIncomplete(records); ok {
		return kind
	}
	return jobs.ChunkOrder[0]
}

func (o *Orchestrator) finishCompleted(ctx context.Context, r *runState) (*RunResult, error) {
	job, err := o.store.GetJob(ctx, r.jobID)
	if err != nil {
		return nil, o.finishFailed(ctx, r, "", fmt.Errorf("failed to load job: %w", err))
	}
	if job == nil {
		return nil, o.finishFailed(ctx, r, "", &JobNotFoundError{JobID: r.jobID})
	}
	artifact, err := AssembleArtifact(job)
	if err != nil {
		return nil, o.finishFailed(ctx, r, "", fmt.Errorf("failed to assemble artifact: %w", err))
	}

	var brief types.ResearchBrief
	if err := json.Unmarshal(r.outputs[jobs.ChunkAnalysis], &brief); err == nil {
		r.collector.SetTargetWordCount(brief.WordCount.Target)
	}
	r.collector.SetActualWordCount(artifact.Audit.WordCount)
	r.collector.SetAuditScore(artifact.Audit.Score)
	r.collector.SetHallucinationCount(len(artifact.FactCheck.Hallucinations))

	m, err := r.collector.FinishRun(metrics.RunCompleted, "")
	if err != nil {
		return nil, err
	}
	o.pushMetrics(ctx, m)

	if err := o.store.UpdatePhase(ctx, r.jobID, jobs.PhaseCompleted, ""); err != nil {
		o.log.Warn("failed to mark job completed", "job_id", r.jobID, "error", err)
	}

	r.emit(EventResult, ResultEvent{
		JobID:              r.jobID,
		Artifact:           artifact,
		Metrics:            m,
		PerformanceSummary: m.PerformanceSummary,
		Durable:            o.store.Durable(),
		Warning:            o.warning,
	})
	o.log.Info("pipeline run completed", "job_id", r.jobID,
		"duration_ms", m.TotalDurationMs, "cost_usd", m.EstimatedCostUsd, "audit_score", artifact.Audit.Score)
	return &RunResult{JobID: r.jobID, Artifact: artifact, Metrics: m}, nil
}

func (o *Orchestrator) pushMetrics(ctx context.Context, m *metrics.RunMetrics) {
	if o.sink == nil || m == nil {
		return
	}
	if err := o.sink.Push(ctx, m); err != nil {
		o.log.Warn("failed to push run metrics", "job_id", m.JobID, "error", err)
	}
}
