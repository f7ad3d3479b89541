package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/pipeline/steps"
)

// seedJob creates a job whose listed chunks completed with the given costs.
func seedJob(t *testing.T, store jobs.Store, id string, done map[jobs.ChunkKind]*jobs.ChunkCost) {
	t.Helper()
	ctx := context.Background()
	input, err := json.Marshal(testBrief())
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, id, input)
	require.NoError(t, err)

	outs := testOutputs()
	for _, kind := range jobs.ChunkOrder {
		cost, ok := done[kind]
		if !ok {
			continue
		}
		raw, err := json.Marshal(outs[kind])
		require.NoError(t, err)
		require.NoError(t, store.SaveChunkOutput(ctx, id, kind, raw, cost))
	}
}

func TestRetry_ResumesAtFirstIncomplete(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	seedJob(t, h.store, "job-1", map[jobs.ChunkKind]*jobs.ChunkCost{
		jobs.ChunkResearchSerp: {CostUsd: 0.001, DurationMs: 1200},
		jobs.ChunkResearch:     {CostUsd: 0.004, DurationMs: 3000},
	})

	rc := NewRetryController(h.orch)
	plan, err := rc.Plan(ctx, "job-1", nil)
	require.NoError(t, err)
	assert.Equal(t, jobs.ChunkTopicExtraction, plan.From)
	assert.InDelta(t, 0.005, plan.SavingsUsd, 1e-9)
	assert.EqualValues(t, 4200, plan.SavingsMs)
	assert.Equal(t, []jobs.ChunkKind{jobs.ChunkResearchSerp, jobs.ChunkResearch}, plan.CompletedChunks)

	rec := &recorder{}
	res, err := rc.Retry(ctx, plan, rec)
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)

	require.NotEmpty(t, rec.events)
	assert.Equal(t, EventRetryStart, rec.events[0].Name)
	start, ok := rec.events[0].Data.(RetryStart)
	require.True(t, ok)
	assert.Equal(t, jobs.ChunkTopicExtraction, start.FromChunk)
	assert.InDelta(t, 0.005, start.EstimatedSavingsUsd, 1e-9)
	assert.EqualValues(t, 4200, start.EstimatedSavingsMs)
	assert.Contains(t, start.Message, "Retrying from topic_extraction")

	skipped := rec.progress(StatusSkipped)
	require.Len(t, skipped, 2)
	assert.Equal(t, jobs.ChunkResearchSerp, skipped[0].Chunk)
	assert.Equal(t, jobs.ChunkResearch, skipped[1].Chunk)

	assert.Zero(t, h.fakes[jobs.ChunkResearchSerp].calls.Load())
	assert.Zero(t, h.fakes[jobs.ChunkResearch].calls.Load())
	for _, kind := range jobs.ChunkOrder[2:] {
		assert.EqualValues(t, 1, h.fakes[kind].calls.Load(), "chunk %s", kind)
	}

	job, err := h.store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSkipped, job.Record(jobs.ChunkResearchSerp).Status)
	assert.Equal(t, jobs.StatusSkipped, job.Record(jobs.ChunkResearch).Status)
	assert.Equal(t, jobs.StatusCompleted, job.Record(jobs.ChunkPostprocess).Status)
	assert.Equal(t, jobs.PhaseCompleted, job.Phase)

	// Cost and time of the skipped chunks still count toward the article.
	assert.InDelta(t, 0.005, res.Artifact.TotalCostUsd, 1e-9)
	assert.GreaterOrEqual(t, res.Artifact.GenerationTimeMs, int64(4200))

	var skippedMetrics int
	for _, ch := range res.Metrics.Chunks {
		if ch.Status == "skipped" {
			skippedMetrics++
		}
	}
	assert.Equal(t, 2, skippedMetrics)
}

func TestRetry_AfterFailedRun(t *testing.T) {
	h := newHarness(t, nil)
	h.fakes[jobs.ChunkAnalysis].err = errors.New("model overloaded")
	h.fakes[jobs.ChunkAnalysis].failures = 1
	ctx := context.Background()

	_, err := h.orch.Run(ctx, "job-1", testBrief(), nil)
	require.Error(t, err)

	rc := NewRetryController(h.orch)
	plan, err := rc.Plan(ctx, "job-1", nil)
	require.NoError(t, err)
	assert.Equal(t, jobs.ChunkAnalysis, plan.From)

	res, err := rc.Retry(ctx, plan, nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Artifact)

	assert.EqualValues(t, 1, h.fakes[jobs.ChunkResearchSerp].calls.Load())
	assert.EqualValues(t, 2, h.fakes[jobs.ChunkAnalysis].calls.Load())

	rec, err := h.store.GetChunkRecord(ctx, "job-1", jobs.ChunkAnalysis)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.AttemptCount)
	assert.Empty(t, rec.Error)
}

func TestRetry_AllCompletedIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.orch.Run(ctx, "job-1", testBrief(), nil)
	require.NoError(t, err)

	rc := NewRetryController(h.orch)
	plan, err := rc.Plan(ctx, "job-1", nil)
	require.NoError(t, err)
	assert.Equal(t, jobs.ChunkResearchSerp, plan.From)
	assert.Len(t, plan.CompletedChunks, 6)

	res, err := rc.Retry(ctx, plan, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)
	assert.Equal(t, "best crm software", res.Artifact.Keyword)
	for _, kind := range jobs.ChunkOrder {
		assert.EqualValues(t, 1, h.fakes[kind].calls.Load(), "chunk %s must not run again", kind)
	}
}

func TestRetry_ExplicitChunkSkipsDoneChunksAtOrAfterIt(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	seedJob(t, h.store, "job-1", map[jobs.ChunkKind]*jobs.ChunkCost{
		jobs.ChunkResearchSerp:    {},
		jobs.ChunkResearch:        {},
		jobs.ChunkTopicExtraction: {},
		jobs.ChunkAnalysis:        {},
	})

	from := jobs.ChunkTopicExtraction
	rc := NewRetryController(h.orch)
	plan, err := rc.Plan(ctx, "job-1", &from)
	require.NoError(t, err)
	assert.Equal(t, jobs.ChunkTopicExtraction, plan.From)

	_, err = rc.Retry(ctx, plan, nil)
	require.NoError(t, err)
	assert.Zero(t, h.fakes[jobs.ChunkTopicExtraction].calls.Load())
	assert.Zero(t, h.fakes[jobs.ChunkAnalysis].calls.Load())
	assert.EqualValues(t, 1, h.fakes[jobs.ChunkDraft].calls.Load())
}

func TestRetry_ConcurrentRetriesRunOnce(t *testing.T) {
	h := newHarness(t, nil)
	draft := h.fakes[jobs.ChunkDraft]
	draft.err = errors.New("model overloaded")
	draft.failures = 1
	ctx := context.Background()

	_, err := h.orch.Run(ctx, "job-1", testBrief(), nil)
	require.Error(t, err)

	rc := NewRetryController(h.orch)
	first, err := rc.Plan(ctx, "job-1", nil)
	require.NoError(t, err)
	second, err := rc.Plan(ctx, "job-1", nil)
	require.NoError(t, err)

	draft.started = make(chan struct{}, 1)
	draft.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := rc.Retry(ctx, first, nil)
		done <- err
	}()
	select {
	case <-draft.started:
	case <-time.After(2 * time.Second):
		t.Fatal("draft never started")
	}

	_, err = rc.Retry(ctx, second, nil)
	var busy *JobBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, "job-1", busy.JobID)

	_, err = rc.Plan(ctx, "job-1", nil)
	require.ErrorAs(t, err, &busy)

	close(draft.release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 2, draft.calls.Load())
	assert.False(t, h.orch.Active("job-1"))

	rec, err := h.store.GetChunkRecord(ctx, "job-1", jobs.ChunkDraft)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.AttemptCount)
}

func TestRetry_RunningRecordBlocksUntilStale(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	seedJob(t, h.store, "job-1", map[jobs.ChunkKind]*jobs.ChunkCost{jobs.ChunkResearchSerp: {}})
	// Another process sharing the store is working on research.
	require.NoError(t, h.store.SetChunkRunning(ctx, "job-1", jobs.ChunkResearch))

	rc := NewRetryController(h.orch)
	_, err := rc.Plan(ctx, "job-1", nil)
	var busy *JobBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, jobs.ChunkResearch, busy.Chunk)

	late := time.Now().Add(h.orch.Budget(jobs.ChunkResearch) + staleRunGrace + time.Minute)
	h.orch.now = func() time.Time { return late }
	plan, err := rc.Plan(ctx, "job-1", nil)
	require.NoError(t, err)
	assert.Equal(t, jobs.ChunkResearch, plan.From)

	_, err = rc.Retry(ctx, plan, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.fakes[jobs.ChunkResearch].calls.Load())
}

type versionedStore struct {
	*jobs.MemoryStore
	version string
}

func (s *versionedStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := s.MemoryStore.GetJob(ctx, id)
	if job != nil {
		job.PipelineVersion = s.version
	}
	return job, err
}

func TestRetryPlan_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("job not found", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := NewRetryController(h.orch).Plan(ctx, "missing", nil)
		var notFound *JobNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.JobID)
	})

	t.Run("version mismatch", func(t *testing.T) {
		mem := jobs.NewMemoryStore()
		h := newHarnessWithStore(t, mem, &versionedStore{MemoryStore: mem, version: "0.9"}, nil)
		seedJob(t, mem, "job-1", nil)
		_, err := NewRetryController(h.orch).Plan(ctx, "job-1", nil)
		var mismatch *VersionMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "0.9", mismatch.JobVersion)
		assert.Equal(t, jobs.PipelineVersion, mismatch.Current)
	})

	t.Run("invalid chunk", func(t *testing.T) {
		h := newHarness(t, nil)
		seedJob(t, h.store, "job-1", nil)
		from := jobs.ChunkKind("publish")
		_, err := NewRetryController(h.orch).Plan(ctx, "job-1", &from)
		var invalid *InvalidChunkError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "publish", invalid.Chunk)
	})

	t.Run("failed prerequisite", func(t *testing.T) {
		h := newHarness(t, nil)
		seedJob(t, h.store, "job-1", map[jobs.ChunkKind]*jobs.ChunkCost{jobs.ChunkResearchSerp: {}})
		require.NoError(t, h.store.SetChunkRunning(ctx, "job-1", jobs.ChunkResearch))
		require.NoError(t, h.store.SetChunkFailed(ctx, "job-1", jobs.ChunkResearch, "fetch failed"))

		from := jobs.ChunkTopicExtraction
		_, err := NewRetryController(h.orch).Plan(ctx, "job-1", &from)
		var depErr *steps.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, jobs.ChunkResearch, depErr.FirstMissing())
	})
}
