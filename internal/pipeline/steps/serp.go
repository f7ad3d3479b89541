package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/research"
	"github.com/jonathan/content-pipeline/internal/types"
)

// SerpExecutor searches for the primary keyword and classifies the results.
type SerpExecutor struct {
	deps Dependencies
}

// Kind implements Executor.
func (e *SerpExecutor) Kind() jobs.ChunkKind { return jobs.ChunkResearchSerp }

// Execute implements Executor.
func (e *SerpExecutor) Execute(ctx context.Context, in *Input) (any, error) {
	if e.deps.Searcher == nil {
		return nil, errNoSearcher
	}
	keyword := in.Brief.PrimaryKeyword
	if keyword == "" {
		return nil, fmt.Errorf("primaryKeyword is required")
	}

	in.emit("serper", SubStepStarted, "Searching competitors...")
	resp, err := WithRetry(ctx, e.deps.Log, "serper", RetryFast.WithTimeout(15*time.Second), in.Budget,
		func(ctx context.Context) (*research.SearchResponse, error) {
			start := time.Now()
			r, err := e.deps.Searcher.Search(ctx, keyword, research.DefaultResultCount)
			in.record(metrics.APICall{
				Provider:   e.deps.Searcher.Provider(),
				Endpoint:   "search",
				DurationMs: time.Since(start).Milliseconds(),
			})
			return r, err
		})
	if err != nil {
		in.emit("serper", SubStepFailed, err.Error())
		return nil, fmt.Errorf("failed to search competitors: %w", err)
	}

	results := research.Classify(resp.Results)
	articles := 0
	for _, r := range results {
		if r.IsArticle {
			articles++
		}
	}
	in.emit("serper", SubStepCompleted, fmt.Sprintf("Found %d results (%d articles)", len(results), articles))

	return &types.SerpOutput{
		Query:         keyword,
		Results:       results,
		PeopleAlsoAsk: resp.PeopleAlsoAsk,
		Provider:      e.deps.Searcher.Provider(),
	}, nil
}
