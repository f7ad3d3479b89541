package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestAggregate_Empty(t *testing.T) {
	stats := Aggregate(nil)
	assert.Equal(t, 0, stats.RunCount)
	assert.Empty(t, stats.FailurePoints)
	assert.Zero(t, stats.AverageAuditScore)
}

func TestAggregate(t *testing.T) {
	runs := []RunMetrics{
		{
			TotalDurationMs: 10000, TotalCacheHits: 1, TotalCacheMisses: 3,
			EstimatedCostUsd: 0.02, AuditScore: intPtr(80), Status: RunCompleted,
			Chunks: []ChunkMetrics{{ChunkName: "draft", DurationMs: 6000}, {ChunkName: "research", DurationMs: 3000}},
		},
		{
			TotalDurationMs: 5000, TotalCacheHits: 0, TotalCacheMisses: 4,
			EstimatedCostUsd: 0.01, Status: RunFailed, FailedChunk: "draft",
			Chunks: []ChunkMetrics{{ChunkName: "draft", DurationMs: 3001}},
		},
		{
			TotalDurationMs: 6000, EstimatedCostUsd: 0.0, AuditScore: intPtr(93), Status: RunCompleted,
		},
	}

	stats := Aggregate(runs)
	assert.Equal(t, 3, stats.RunCount)
	assert.Equal(t, int64(7000), stats.AverageTotalDurationMs)
	assert.Equal(t, int64(4501), stats.AverageDurationPerChunk["draft"])
	assert.Equal(t, int64(3000), stats.AverageDurationPerChunk["research"])
	assert.InDelta(t, 0.125, stats.CacheHitRate, 1e-9)
	assert.Equal(t, 86.5, stats.AverageAuditScore)
	assert.Equal(t, map[string]int{"draft": 1}, stats.FailurePoints)
	assert.InDelta(t, 0.01, stats.AverageCostUsd, 1e-9)
}
