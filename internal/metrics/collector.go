package metrics

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrAlreadyFinished is returned by FinishRun after the run was finalized.
var ErrAlreadyFinished = errors.New("run metrics already finished")

// Collector accumulates metrics for a single run. It is safe for concurrent
// use; a chunk's executor may record calls from several goroutines.
type Collector struct {
	mu    sync.Mutex
	rates Rates
	now   func() time.Time

	jobID     string
	keyword   string
	startedAt time.Time

	chunks       []ChunkMetrics
	currentChunk string
	chunkStart   time.Time
	chunkCalls   []APICall

	targetWordCount    *int
	actualWordCount    *int
	auditScore         *int
	hallucinationCount int

	finished bool
}

// NewCollector creates a collector that prices calls with rates. A nil rates
// map uses DefaultRates.
func NewCollector(rates Rates) *Collector {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Collector{rates: rates, now: time.Now}
}

// StartRun records the run identity and start time.
func (c *Collector) StartRun(jobID, keyword string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobID = jobID
	c.keyword = keyword
	c.startedAt = c.now()
}

// StartChunk opens a chunk. A chunk still open from before is closed as failed.
func (c *Collector) StartChunk(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentChunk != "" {
		c.closeChunkLocked(c.currentChunk, OutcomeFailed, nil)
	}
	c.currentChunk = name
	c.chunkStart = c.now()
	c.chunkCalls = nil
}

// RecordAPICall attaches a call to the open chunk.
func (c *Collector) RecordAPICall(call APICall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunkCalls = append(c.chunkCalls, call)
}

// EndChunk closes the chunk with its outcome. calls are appended to those
// recorded through RecordAPICall.
func (c *Collector) EndChunk(name string, outcome ChunkOutcome, calls []APICall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeChunkLocked(name, outcome, calls)
}

func (c *Collector) closeChunkLocked(name string, outcome ChunkOutcome, calls []APICall) {
	d := c.now().Sub(c.chunkStart).Milliseconds()
	if c.currentChunk == "" || d < 0 {
		d = 0
	}
	all := make([]APICall, 0, len(c.chunkCalls)+len(calls))
	all = append(all, c.chunkCalls...)
	all = append(all, calls...)
	c.chunks = append(c.chunks, ChunkMetrics{
		ChunkName:  name,
		DurationMs: d,
		Status:     outcome,
		FromCache:  outcome == OutcomeSkipped,
		APICalls:   all,
	})
	c.currentChunk = ""
	c.chunkCalls = nil
}

// SetTargetWordCount records the word count target.
func (c *Collector) SetTargetWordCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetWordCount = &n
}

// SetActualWordCount records the draft's word count.
func (c *Collector) SetActualWordCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actualWordCount = &n
}

// SetAuditScore records the audit score.
func (c *Collector) SetAuditScore(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auditScore = &n
}

// SetHallucinationCount records the number of unverified claims.
func (c *Collector) SetHallucinationCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hallucinationCount = n
}

// FinishRun finalizes the run. An open chunk is closed with the run outcome.
// It may be called once; later calls return ErrAlreadyFinished.
func (c *Collector) FinishRun(status RunStatus, failedChunk string) (*RunMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return nil, fmt.Errorf("failed to finish run %s: %w", c.jobID, ErrAlreadyFinished)
	}
	c.finished = true

	if c.currentChunk != "" {
		outcome := OutcomeCompleted
		if status == RunFailed {
			outcome = OutcomeFailed
		}
		c.closeChunkLocked(c.currentChunk, outcome, nil)
	}

	endedAt := c.now()
	m := &RunMetrics{
		JobID:              c.jobID,
		Keyword:            c.keyword,
		StartedAt:          c.startedAt,
		EndedAt:            endedAt,
		TotalDurationMs:    endedAt.Sub(c.startedAt).Milliseconds(),
		Chunks:             append([]ChunkMetrics(nil), c.chunks...),
		TargetWordCount:    c.targetWordCount,
		ActualWordCount:    c.actualWordCount,
		HallucinationCount: c.hallucinationCount,
		Status:             status,
		FailedChunk:        failedChunk,
	}
	if status == RunCompleted {
		m.AuditScore = c.auditScore
	}

	cost := 0.0
	for _, ch := range m.Chunks {
		for _, call := range ch.APICalls {
			m.TotalExternalAPICalls++
			if call.CacheHit {
				m.TotalCacheHits++
			} else {
				m.TotalCacheMisses++
			}
		}
		cost += c.rates.Cost(ch.APICalls)
	}
	m.EstimatedCostUsd = roundTo(cost, 1e6)
	m.PerformanceSummary = summarize(m)
	return m, nil
}

// summarize builds the performance digest. Only completed chunks compete for
// fastest and slowest; "—" marks a run without any.
func summarize(m *RunMetrics) PerformanceSummary {
	fastest := NamedDuration{Name: "—"}
	slowest := NamedDuration{Name: "—"}
	found := false
	for _, ch := range m.Chunks {
		if ch.Status != OutcomeCompleted {
			continue
		}
		if !found || ch.DurationMs < fastest.DurationMs {
			fastest = NamedDuration{Name: ch.ChunkName, DurationMs: ch.DurationMs}
		}
		if !found || ch.DurationMs > slowest.DurationMs {
			slowest = NamedDuration{Name: ch.ChunkName, DurationMs: ch.DurationMs}
		}
		found = true
	}

	total := m.TotalCacheHits + m.TotalCacheMisses
	rate := 0.0
	if total > 0 {
		rate = float64(m.TotalCacheHits) / float64(total)
	}
	return PerformanceSummary{
		TotalSeconds:           math.Round(float64(m.TotalDurationMs)/100) / 10,
		FastestChunk:           fastest,
		SlowestChunk:           slowest,
		EstimatedCostFormatted: FormatCost(m.EstimatedCostUsd),
		CacheHitRatePercent:    fmt.Sprintf("%d%%", int(math.Round(rate*100))),
	}
}
