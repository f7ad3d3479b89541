package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/prompts"
	"github.com/jonathan/content-pipeline/internal/schemas"
	"github.com/jonathan/content-pipeline/internal/types"
)

const competitorWordCountNote = "Based on competitor average length."

// AnalysisExecutor synthesizes the research brief the draft is written from.
type AnalysisExecutor struct {
	deps Dependencies
}

// Kind implements Executor.
func (e *AnalysisExecutor) Kind() jobs.ChunkKind { return jobs.ChunkAnalysis }

type briefResponse struct {
	Outline           types.Outline `json:"outline"`
	Gaps              []string      `json:"gaps"`
	SimilaritySummary string        `json:"similaritySummary"`
	ExtraValueThemes  []string      `json:"extraValueThemes"`
	FreshnessNote     string        `json:"freshnessNote"`
}

// Execute implements Executor.
func (e *AnalysisExecutor) Execute(ctx context.Context, in *Input) (any, error) {
	if err := e.deps.requireLLM(); err != nil {
		return nil, err
	}
	res, err := decodeOutput[types.ResearchOutput](in, jobs.ChunkResearch)
	if err != nil {
		return nil, err
	}
	topics, err := decodeOutput[types.TopicOutput](in, jobs.ChunkTopicExtraction)
	if err != nil {
		return nil, err
	}
	if hash := CompetitorURLHash(res.Competitors); topics.CompetitorURLHash != hash {
		e.deps.Log.Warn("topic extraction was built from a different competitor set",
			"job_id", in.JobID, "expected", hash, "got", topics.CompetitorURLHash)
	}

	wordCount := resolveWordCount(&in.Brief, topics.Extraction.WordCount, res.AverageWordCount())

	in.emit("brief", SubStepStarted, "Building strategic research brief...")
	resp, err := generateJSON[briefResponse](ctx, &e.deps, in, jsonCall{
		step:      "brief",
		promptKey: prompts.KeyResearchBrief,
		data: map[string]string{
			"Keyword":       in.Brief.PrimaryKeyword,
			"Secondary":     listOrNone(in.Brief.SecondaryKeywords),
			"PASF":          listOrNone(in.Brief.PeopleAlsoSearchFor),
			"Intent":        in.Brief.Intent,
			"Tone":          toneOrDefault(in.Brief.Tone),
			"WordCount":     strconv.Itoa(wordCount.Target),
			"WordCountNote": wordCount.Note,
			"Extraction":    marshalIndent(topics.Extraction),
			"CurrentData":   marshalIndent(res.CurrentData),
		},
		tier:   llm.TierAdvanced,
		schema: schemas.ResearchBrief,
		policy: RetryStandard.WithTimeout(60 * time.Second),
	})
	if err != nil {
		in.emit("brief", SubStepFailed, err.Error())
		return nil, fmt.Errorf("research brief failed: %w", err)
	}

	outline := resp.Outline
	if outline.TotalSections == 0 {
		outline.TotalSections = len(outline.Sections)
	}
	if outline.EstimatedWordCount == 0 {
		for _, s := range outline.Sections {
			outline.EstimatedWordCount += s.TargetWords
		}
	}
	in.emit("brief", SubStepCompleted, fmt.Sprintf("Brief: %d sections", len(outline.Sections)))

	return &types.ResearchBrief{
		Keyword: types.BriefKeywords{
			Primary:   in.Brief.PrimaryKeyword,
			Secondary: nonNilStrings(in.Brief.SecondaryKeywords),
			PASF:      nonNilStrings(in.Brief.PeopleAlsoSearchFor),
		},
		CurrentData:       res.CurrentData,
		Outline:           outline,
		Gaps:              nonNilStrings(resp.Gaps),
		EditorialStyle:    topics.Extraction.EditorialStyle,
		WordCount:         wordCount,
		Intent:            in.Brief.Intent,
		Tone:              in.Brief.Tone,
		SimilaritySummary: resp.SimilaritySummary,
		ExtraValueThemes:  resp.ExtraValueThemes,
		FreshnessNote:     resp.FreshnessNote,
	}, nil
}

// resolveWordCount applies an explicit preset or custom target, else derives
// one from the competitor analysis.
func resolveWordCount(brief *types.ContentBrief, guidance types.CompetitorWordCount, competitorAverage int) types.BriefWordCount {
	if n, ok := brief.ExplicitWordCount(); ok {
		return types.BriefWordCount{Target: n, Note: types.WordCountNote}
	}
	derived := guidance.Recommended
	if derived == 0 {
		derived = guidance.CompetitorAverage
	}
	if derived == 0 {
		derived = competitorAverage
	}
	note := strings.TrimSpace(guidance.Note)
	if note == "" {
		note = competitorWordCountNote
	}
	return types.BriefWordCount{Target: types.ClampWordCount(derived), Note: note}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func toneOrDefault(tone string) string {
	if tone == "" {
		return "match the competitors' editorial style"
	}
	return tone
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
