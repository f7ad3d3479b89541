// Package metrics collects per-run timing, API call and cost metrics for the
// content pipeline and keeps recent runs for aggregate statistics.
package metrics

import "time"

// APICall is one external API or LLM call made within a chunk.
type APICall struct {
	Provider     string `json:"provider"`
	Endpoint     string `json:"endpoint,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
	CacheHit     bool   `json:"cacheHit"`
}

// ChunkOutcome is the status of a chunk at the end of a run.
type ChunkOutcome string

// Chunk outcomes
const (
	OutcomeCompleted ChunkOutcome = "completed"
	OutcomeFailed    ChunkOutcome = "failed"
	OutcomeSkipped   ChunkOutcome = "skipped"
)

// RunStatus is the final status of a run.
type RunStatus string

// Run statuses
const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ChunkMetrics is the per-chunk breakdown of a run.
type ChunkMetrics struct {
	ChunkName  string       `json:"chunkName"`
	DurationMs int64        `json:"durationMs"`
	Status     ChunkOutcome `json:"status"`
	FromCache  bool         `json:"fromCache"`
	APICalls   []APICall    `json:"apiCalls"`
}

// NamedDuration is a chunk name with its duration.
type NamedDuration struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
}

// PerformanceSummary is the human-readable digest included in run results.
type PerformanceSummary struct {
	TotalSeconds           float64       `json:"totalSeconds"`
	FastestChunk           NamedDuration `json:"fastestChunk"`
	SlowestChunk           NamedDuration `json:"slowestChunk"`
	EstimatedCostFormatted string        `json:"estimatedCostFormatted"`
	CacheHitRatePercent    string        `json:"cacheHitRatePercent"`
}

// RunMetrics is the finalized record of one run.
type RunMetrics struct {
	JobID                 string             `json:"jobId"`
	Keyword               string             `json:"keyword"`
	StartedAt             time.Time          `json:"startedAt"`
	EndedAt               time.Time          `json:"endedAt"`
	TotalDurationMs       int64              `json:"totalDurationMs"`
	Chunks                []ChunkMetrics     `json:"chunks"`
	TotalCacheHits        int                `json:"totalCacheHits"`
	TotalCacheMisses      int                `json:"totalCacheMisses"`
	TotalExternalAPICalls int                `json:"totalExternalApiCalls"`
	EstimatedCostUsd      float64            `json:"estimatedCostUsd"`
	TargetWordCount       *int               `json:"targetWordCount,omitempty"`
	ActualWordCount       *int               `json:"actualWordCount,omitempty"`
	AuditScore            *int               `json:"auditScore,omitempty"`
	HallucinationCount    int                `json:"hallucinationCount"`
	PerformanceSummary    PerformanceSummary `json:"performanceSummary"`
	Status                RunStatus          `json:"status"`
	FailedChunk           string             `json:"failedChunk,omitempty"`
}

// AggregateStats summarizes recent runs.
type AggregateStats struct {
	RunCount                int              `json:"runCount"`
	AverageTotalDurationMs  int64            `json:"averageTotalDurationMs"`
	AverageDurationPerChunk map[string]int64 `json:"averageDurationPerChunk"`
	CacheHitRate            float64          `json:"cacheHitRate"`
	AverageAuditScore       float64          `json:"averageAuditScore"`
	FailurePoints           map[string]int   `json:"failurePoints"`
	AverageCostUsd          float64          `json:"averageCostUsd"`
}
