package steps

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/prompts"
	"github.com/jonathan/content-pipeline/internal/schemas"
	"github.com/jonathan/content-pipeline/internal/types"
)

// TopicExecutor extracts topics, headings, gaps and style from the fetched
// competitor articles.
type TopicExecutor struct {
	deps Dependencies
}

// Kind implements Executor.
func (e *TopicExecutor) Kind() jobs.ChunkKind { return jobs.ChunkTopicExtraction }

// Execute implements Executor.
func (e *TopicExecutor) Execute(ctx context.Context, in *Input) (any, error) {
	if err := e.deps.requireLLM(); err != nil {
		return nil, err
	}
	res, err := decodeOutput[types.ResearchOutput](in, jobs.ChunkResearch)
	if err != nil {
		return nil, err
	}

	in.emit("topic-extraction", SubStepStarted, "Analyzing competitor topics & style...")
	extraction, err := generateJSON[types.TopicExtraction](ctx, &e.deps, in, jsonCall{
		step:      "topic-extraction",
		promptKey: prompts.KeyTopicExtraction,
		data: map[string]string{
			"Keyword":     in.Brief.PrimaryKeyword,
			"Competitors": formatCompetitors(res.Competitors),
		},
		tier:   llm.TierStandard,
		schema: schemas.TopicExtraction,
		policy: RetryStandard.WithTimeout(60 * time.Second),
	})
	if err != nil {
		in.emit("topic-extraction", SubStepFailed, err.Error())
		return nil, fmt.Errorf("topic extraction failed: %w", err)
	}
	if len(extraction.Topics) == 0 {
		in.emit("topic-extraction", SubStepFailed, "no topics extracted")
		return nil, fmt.Errorf("topic extraction returned no topics")
	}
	if extraction.WordCount.CompetitorAverage == 0 {
		extraction.WordCount.CompetitorAverage = res.AverageWordCount()
	}
	in.emit("topic-extraction", SubStepCompleted,
		fmt.Sprintf("%d topics, %d gaps", len(extraction.Topics), len(extraction.Gaps)))

	return &types.TopicOutput{
		CompetitorURLHash: CompetitorURLHash(res.Competitors),
		Extraction:        *extraction,
	}, nil
}

// CompetitorURLHash identifies a competitor set: the sorted URLs joined by "|".
func CompetitorURLHash(competitors []types.CompetitorArticle) string {
	urls := make([]string, len(competitors))
	for i, c := range competitors {
		urls[i] = c.URL
	}
	sort.Strings(urls)
	return strings.Join(urls, "|")
}

func formatCompetitors(competitors []types.CompetitorArticle) string {
	var sb strings.Builder
	n := 0
	for _, c := range competitors {
		if !c.FetchSuccess {
			continue
		}
		n++
		fmt.Fprintf(&sb, "### [%d] %s\nURL: %s\nWords: %d\n\n%s\n\n", n, c.Title, c.URL, c.WordCount, c.Content)
	}
	return strings.TrimSpace(sb.String())
}
