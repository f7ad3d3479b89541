// Package jobs defines the resumable job model for content pipeline runs and the
// store contract that persists it.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChunkKind identifies one resumable stage of the pipeline.
type ChunkKind string

// Chunk kinds, listed in execution order.
const (
	ChunkResearchSerp    ChunkKind = "research_serp"
	ChunkResearch        ChunkKind = "research"
	ChunkTopicExtraction ChunkKind = "topic_extraction"
	ChunkAnalysis        ChunkKind = "analysis"
	ChunkDraft           ChunkKind = "draft"
	ChunkPostprocess     ChunkKind = "postprocess"
)

// ChunkOrder is the fixed execution order. A chunk may only run once every
// chunk before it is done.
var ChunkOrder = []ChunkKind{
	ChunkResearchSerp,
	ChunkResearch,
	ChunkTopicExtraction,
	ChunkAnalysis,
	ChunkDraft,
	ChunkPostprocess,
}

// Index returns the position of k in ChunkOrder, or -1 for an unknown kind.
func (k ChunkKind) Index() int {
	for i, kind := range ChunkOrder {
		if kind == k {
			return i
		}
	}
	return -1
}

// Valid reports whether k is one of the recognized chunk kinds.
func (k ChunkKind) Valid() bool {
	return k.Index() >= 0
}

// Phase returns the job phase that represents "this chunk is running".
func (k ChunkKind) Phase() Phase {
	switch k {
	case ChunkResearchSerp, ChunkResearch:
		return PhaseResearching
	case ChunkTopicExtraction, ChunkAnalysis:
		return PhaseAnalyzing
	case ChunkDraft:
		return PhaseDrafting
	case ChunkPostprocess:
		return PhasePostProcessing
	default:
		return PhaseCreated
	}
}

// ParseChunkKind converts a caller-supplied string to a ChunkKind.
func ParseChunkKind(s string) (ChunkKind, error) {
	k := ChunkKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown chunk kind %q", s)
	}
	return k, nil
}

// Prerequisites returns every chunk kind ordered before k.
func Prerequisites(k ChunkKind) []ChunkKind {
	idx := k.Index()
	if idx <= 0 {
		return nil
	}
	out := make([]ChunkKind, idx)
	copy(out, ChunkOrder[:idx])
	return out
}

// Phase is the overall lifecycle state of a job.
type Phase string

// Job phases
const (
	PhaseCreated          Phase = "created"
	PhaseResearching      Phase = "researching"
	PhaseAnalyzing        Phase = "analyzing"
	PhaseWaitingForReview Phase = "waiting_for_review"
	PhaseDrafting         Phase = "drafting"
	PhasePostProcessing   Phase = "post_processing"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

// ChunkStatus is the persisted status of a single chunk.
type ChunkStatus string

// Chunk statuses
const (
	StatusPending   ChunkStatus = "pending"
	StatusRunning   ChunkStatus = "running"
	StatusCompleted ChunkStatus = "completed"
	StatusFailed    ChunkStatus = "failed"
	StatusSkipped   ChunkStatus = "skipped"
)

// Done reports whether the chunk's output is available and must not be re-run.
// A skipped chunk was completed before a resume, so it counts as done.
func (s ChunkStatus) Done() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// ProviderUsage is the usage of one external provider within a chunk.
type ProviderUsage struct {
	Calls        int   `json:"calls"`
	InputTokens  int   `json:"inputTokens,omitempty"`
	OutputTokens int   `json:"outputTokens,omitempty"`
	DurationMs   int64 `json:"durationMs,omitempty"`
}

// ChunkCost is the accrued cost of a completed chunk.
type ChunkCost struct {
	Providers  map[string]ProviderUsage `json:"providers,omitempty"`
	CostUsd    float64                  `json:"costUsd"`
	DurationMs int64                    `json:"durationMs"`
}

// ChunkRecord is the persisted state of one chunk of a job.
type ChunkRecord struct {
	Status       ChunkStatus              `json:"status"`
	Output       json.RawMessage          `json:"output,omitempty"`
	StartedAt    *time.Time               `json:"startedAt,omitempty"`
	CompletedAt  *time.Time               `json:"completedAt,omitempty"`
	CostUsd      float64                  `json:"costUsd"`
	DurationMs   int64                    `json:"durationMs"`
	Error        string                   `json:"error,omitempty"`
	AttemptCount int                      `json:"attemptCount"`
	Providers    map[string]ProviderUsage `json:"providers,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *ChunkRecord) Clone() *ChunkRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Output != nil {
		c.Output = append(json.RawMessage(nil), r.Output...)
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.Providers != nil {
		c.Providers = make(map[string]ProviderUsage, len(r.Providers))
		for k, v := range r.Providers {
			c.Providers[k] = v
		}
	}
	return &c
}

// Job is one end-to-end run of the pipeline for one input.
type Job struct {
	ID              string                     `json:"id"`
	Input           json.RawMessage            `json:"input"`
	PipelineVersion string                     `json:"pipelineVersion"`
	Phase           Phase                      `json:"phase"`
	ErrorMessage    string                     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time                  `json:"createdAt"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
	ChunkRecords    map[ChunkKind]*ChunkRecord `json:"chunkRecords"`
}

// NewJob builds a job with one pending record per chunk kind.
func NewJob(id string, input json.RawMessage, version string, now time.Time) *Job {
	records := make(map[ChunkKind]*ChunkRecord, len(ChunkOrder))
	for _, kind := range ChunkOrder {
		records[kind] = &ChunkRecord{Status: StatusPending}
	}
	return &Job{
		ID:              id,
		Input:           input,
		PipelineVersion: version,
		Phase:           PhaseCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
		ChunkRecords:    records,
	}
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Input != nil {
		c.Input = append(json.RawMessage(nil), j.Input...)
	}
	c.ChunkRecords = make(map[ChunkKind]*ChunkRecord, len(j.ChunkRecords))
	for k, rec := range j.ChunkRecords {
		c.ChunkRecords[k] = rec.Clone()
	}
	return &c
}

// DecodeInput unmarshals the job input into v.
func (j *Job) DecodeInput(v any) error {
	if len(j.Input) == 0 {
		return fmt.Errorf("job %s has no input", j.ID)
	}
	if err := json.Unmarshal(j.Input, v); err != nil {
		return fmt.Errorf("failed to decode job input: %w", err)
	}
	return nil
}

// Record returns the record for kind, or nil when absent.
func (j *Job) Record(kind ChunkKind) *ChunkRecord {
	if j == nil || j.ChunkRecords == nil {
		return nil
	}
	return j.ChunkRecords[kind]
}
