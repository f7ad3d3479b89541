package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/pipeline"
	"github.com/jonathan/content-pipeline/internal/types"
)

const (
	maxBriefBytes     = 1 << 20
	maxBootstrapBytes = 16 << 20
	keepAliveInterval = 15 * time.Second
	cleanupTimeout    = 5 * time.Second
)

// runFunc executes one pipeline run, emitting to obs.
type runFunc func(ctx context.Context, obs pipeline.Observer) error

// terminalTracker remembers whether a run emitted its result or error event.
type terminalTracker struct {
	seen atomic.Bool
}

func (t *terminalTracker) Emit(e pipeline.Event) {
	if e.Terminal() {
		t.seen.Store(true)
	}
}

// startRun executes run in the background, detached from the request so a
// client disconnect never cancels it. Events go to the returned observer,
// which is closed once the run ends, and to the broadcaster when configured.
func (s *Server) startRun(r *http.Request, jobID string, run runFunc) *pipeline.ChannelObserver {
	ctx := context.WithoutCancel(r.Context())
	stream := pipeline.NewChannelObserver(s.eventBuffer)
	tracker := &terminalTracker{}
	obs := pipeline.Observers(stream, s.broadcaster.Observer(ctx, jobID), tracker)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer stream.Close()

		err := run(ctx, obs)
		if err != nil && !tracker.seen.Load() {
			// Failures before the first chunk, e.g. a store error on create,
			// still end the stream with an error event.
			obs.Emit(pipeline.Event{Name: pipeline.EventError, Data: s.setupFailure(ctx, jobID, err)})
		}
		if err != nil {
			s.log.Warn("pipeline run failed", "job_id", jobID, "error", err)
			return
		}
		if n := stream.Dropped(); n > 0 {
			s.log.Info("pipeline run finished with dropped stream events", "job_id", jobID, "dropped", n)
			return
		}
		s.log.Info("pipeline run finished", "job_id", jobID)
	}()
	return stream
}

func (s *Server) setupFailure(ctx context.Context, jobID string, err error) pipeline.ErrorEvent {
	ev := pipeline.ErrorEvent{
		JobID:           jobID,
		Message:         err.Error(),
		CompletedChunks: []jobs.ChunkKind{},
		RetryFromChunk:  jobs.ChunkOrder[0],
		Durable:         s.store.Durable(),
	}
	if job, gerr := s.store.GetJob(ctx, jobID); gerr == nil && job != nil {
		records := jobs.Records(job.ChunkRecords)
		ev.CompletedChunks = jobs.DoneKinds(records)
		ev.RetryFromChunk = pipeline.RetryPoint(records)
	}
	return ev
}

// streamSSE forwards events until the run ends or the client goes away. A
// departed client only stops the forwarding; the run keeps going.
func (s *Server) streamSSE(r *http.Request, sse *SSEWriter, jobID string, events <-chan pipeline.Event) {
	for {
		select {
		case <-r.Context().Done():
			s.log.Info("client left the event stream, run continues", "job_id", jobID)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(string(e.Name), e.Data); err != nil {
				s.log.Warn("failed to write event", "job_id", jobID, "error", err)
				return
			}
		}
	}
}

// cleanupExpired drops jobs older than the retention window.
func (s *Server) cleanupExpired(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	n, err := s.store.Cleanup(ctx, s.retention)
	if err != nil {
		s.log.Warn("job cleanup failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("expired jobs removed", "count", n)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// handleStartJob validates a content brief and streams a new run over SSE.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var brief types.ContentBrief
	if err := decodeBody(w, r, maxBriefBytes, &brief); err != nil {
		s.typedErrorResponse(w, err)
		return
	}
	if err := brief.Validate(); err != nil {
		s.typedErrorResponse(w, err)
		return
	}

	s.cleanupExpired(r.Context())

	jobID := uuid.NewString()
	w.Header().Set("X-Job-ID", jobID)
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("run accepted", "job_id", jobID, "transport", "sse")
	stream := s.startRun(r, jobID, func(ctx context.Context, obs pipeline.Observer) error {
		_, err := s.orch.Run(ctx, jobID, brief, obs)
		return err
	})
	s.streamSSE(r, sse, jobID, stream.Events())
}

type retryRequest struct {
	FromChunk string `json:"fromChunk"`
}

// handleRetryJob resumes a job. Plan errors are answered as JSON; a valid
// plan streams retry_start followed by the usual run events.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req retryRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBriefBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.typedErrorResponse(w, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if req.FromChunk == "" {
		req.FromChunk = r.URL.Query().Get("fromChunk")
	}
	var from *jobs.ChunkKind
	if req.FromChunk != "" {
		k := jobs.ChunkKind(req.FromChunk)
		from = &k
	}

	plan, err := s.retry.Plan(r.Context(), jobID, from)
	if err != nil {
		s.typedErrorResponse(w, err)
		return
	}

	w.Header().Set("X-Job-ID", jobID)
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	stream := s.startRun(r, jobID, func(ctx context.Context, obs pipeline.Observer) error {
		_, err := s.retry.Retry(ctx, plan, obs)
		return err
	})
	s.streamSSE(r, sse, jobID, stream.Events())
}

// chunkView is a chunk record without its output.
type chunkView struct {
	Status       jobs.ChunkStatus              `json:"status"`
	StartedAt    *time.Time                    `json:"startedAt,omitempty"`
	CompletedAt  *time.Time                    `json:"completedAt,omitempty"`
	CostUsd      float64                       `json:"costUsd"`
	DurationMs   int64                         `json:"durationMs"`
	Error        string                        `json:"error,omitempty"`
	AttemptCount int                           `json:"attemptCount"`
	Providers    map[string]jobs.ProviderUsage `json:"providers,omitempty"`
}

// jobView is the inspection shape of a job.
type jobView struct {
	ID              string                       `json:"id"`
	Input           json.RawMessage              `json:"input"`
	PipelineVersion string                       `json:"pipelineVersion"`
	Phase           jobs.Phase                   `json:"phase"`
	ErrorMessage    string                       `json:"errorMessage,omitempty"`
	CreatedAt       time.Time                    `json:"createdAt"`
	UpdatedAt       time.Time                    `json:"updatedAt"`
	Chunks          map[jobs.ChunkKind]chunkView `json:"chunks"`
	CompletedChunks []jobs.ChunkKind             `json:"completedChunks"`
	NextStep        string                       `json:"nextStep"`
	Durable         bool                         `json:"durable"`
	Warning         string                       `json:"warning,omitempty"`
}

func (s *Server) jobView(job *jobs.Job) jobView {
	records := jobs.Records(job.ChunkRecords)
	chunks := make(map[jobs.ChunkKind]chunkView, len(jobs.ChunkOrder))
	for _, kind := range jobs.ChunkOrder {
		rec := records[kind]
		if rec == nil {
			chunks[kind] = chunkView{Status: jobs.StatusPending}
			continue
		}
		chunks[kind] = chunkView{
			Status:       rec.Status,
			StartedAt:    rec.StartedAt,
			CompletedAt:  rec.CompletedAt,
			CostUsd:      rec.CostUsd,
			DurationMs:   rec.DurationMs,
			Error:        rec.Error,
			AttemptCount: rec.AttemptCount,
			Providers:    rec.Providers,
		}
	}

	completed := jobs.DoneKinds(records)
	if completed == nil {
		completed = []jobs.ChunkKind{}
	}
	next := "done"
	if kind, ok := jobs.FirstIncomplete(records); ok {
		next = string(kind)
	}

	return jobView{
		ID:              job.ID,
		Input:           job.Input,
		PipelineVersion: job.PipelineVersion,
		Phase:           job.Phase,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		Chunks:          chunks,
		CompletedChunks: completed,
		NextStep:        next,
		Durable:         s.store.Durable(),
		Warning:         s.warning,
	}
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	jobID := r.PathValue("id")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		s.log.Error("failed to load job", "job_id", jobID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load job")
		return nil, false
	}
	if job == nil {
		s.typedErrorResponse(w, &pipeline.JobNotFoundError{JobID: jobID})
		return nil, false
	}
	return job, true
}

// handleGetJob returns phase and chunk statuses of a job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, s.jobView(job))
}

type chunkResponse struct {
	JobID string         `json:"jobId"`
	Chunk jobs.ChunkKind `json:"chunk"`
	*jobs.ChunkRecord
}

// handleGetChunk returns one chunk record including its output.
func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	kind, err := jobs.ParseChunkKind(r.PathValue("kind"))
	if err != nil {
		s.typedErrorResponse(w, &pipeline.InvalidChunkError{Chunk: r.PathValue("kind")})
		return
	}
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	rec := job.Record(kind)
	if rec == nil {
		rec = &jobs.ChunkRecord{Status: jobs.StatusPending}
	}
	s.jsonResponse(w, http.StatusOK, chunkResponse{JobID: job.ID, Chunk: kind, ChunkRecord: rec})
}

type bootstrapRequest struct {
	Input  types.ContentBrief                  `json:"input"`
	Chunks map[jobs.ChunkKind]json.RawMessage `json:"chunks"`
}

// handleBootstrapJob recreates a job from client-held outputs. Only
// non-durable stores accept it.
func (s *Server) handleBootstrapJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req bootstrapRequest
	if err := decodeBody(w, r, maxBootstrapBytes, &req); err != nil {
		s.typedErrorResponse(w, err)
		return
	}

	job, err := pipeline.Bootstrap(r.Context(), s.store, jobID, req.Input, req.Chunks)
	if err != nil {
		s.typedErrorResponse(w, err)
		return
	}

	s.log.Info("job bootstrapped", "job_id", jobID, "chunks", len(req.Chunks), "phase", job.Phase)
	s.jsonResponse(w, http.StatusCreated, s.jobView(job))
}

// handleJobEvents attaches to the live events of a run on any instance.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		s.errorResponse(w, http.StatusNotImplemented, "live event fanout is not configured")
		return
	}
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	events, closeSub, err := s.broadcaster.Subscribe(r.Context(), job.ID)
	if err != nil {
		s.log.Error("failed to subscribe to job events", "job_id", job.ID, "error", err)
		s.errorResponse(w, http.StatusBadGateway, "event fanout unavailable")
		return
	}
	defer func() { _ = closeSub() }()

	w.Header().Set("X-Job-ID", job.ID)
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(string(ev.Name), ev.Data); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}

// handleRecentRuns returns the most recent run metrics.
func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.sink.Recent(r.Context())
	if err != nil {
		s.log.Error("failed to read run metrics", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read run metrics")
		return
	}
	if runs == nil {
		runs = []metrics.RunMetrics{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"shared": s.sink.Shared(),
	})
}

type aggregateResponse struct {
	metrics.AggregateStats
	Shared bool `json:"shared"`
}

// handleAggregate returns statistics over the recent runs.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	runs, err := s.sink.Recent(r.Context())
	if err != nil {
		s.log.Error("failed to read run metrics", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read run metrics")
		return
	}
	s.jsonResponse(w, http.StatusOK, aggregateResponse{
		AggregateStats: metrics.Aggregate(runs),
		Shared:         s.sink.Shared(),
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"backend": s.store.Backend(),
		"durable": s.store.Durable(),
	}
	if s.warning != "" {
		resp["status"] = "degraded"
		resp["warning"] = s.warning
	}
	s.jsonResponse(w, http.StatusOK, resp)
}
