package metrics

import "math"

// Aggregate computes summary statistics over runs. Audit score is averaged
// over runs that have one; failure points count failed runs by chunk.
func Aggregate(runs []RunMetrics) AggregateStats {
	stats := AggregateStats{
		RunCount:                len(runs),
		AverageDurationPerChunk: map[string]int64{},
		FailurePoints:           map[string]int{},
	}
	if len(runs) == 0 {
		return stats
	}

	var (
		totalDuration int64
		hits, misses  int
		scoreSum      int
		scoreCount    int
		costSum       float64
	)
	chunkSums := map[string]int64{}
	chunkCounts := map[string]int64{}

	for _, r := range runs {
		totalDuration += r.TotalDurationMs
		hits += r.TotalCacheHits
		misses += r.TotalCacheMisses
		costSum += r.EstimatedCostUsd
		if r.AuditScore != nil {
			scoreSum += *r.AuditScore
			scoreCount++
		}
		if r.Status == RunFailed && r.FailedChunk != "" {
			stats.FailurePoints[r.FailedChunk]++
		}
		for _, ch := range r.Chunks {
			chunkSums[ch.ChunkName] += ch.DurationMs
			chunkCounts[ch.ChunkName]++
		}
	}

	n := float64(len(runs))
	stats.AverageTotalDurationMs = int64(math.Round(float64(totalDuration) / n))
	for name, sum := range chunkSums {
		stats.AverageDurationPerChunk[name] = int64(math.Round(float64(sum) / float64(chunkCounts[name])))
	}
	if hits+misses > 0 {
		stats.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	if scoreCount > 0 {
		stats.AverageAuditScore = math.Round(float64(scoreSum)/float64(scoreCount)*10) / 10
	}
	stats.AverageCostUsd = roundTo(costSum/n, 1e6)
	return stats
}
