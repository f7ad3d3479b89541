package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/types"
)

func decodeChunk(job *jobs.Job, kind jobs.ChunkKind, v any) error {
	rec := job.Record(kind)
	if rec == nil || len(rec.Output) == 0 {
		return fmt.Errorf("missing %s output for job %s", kind, job.ID)
	}
	if err := json.Unmarshal(rec.Output, v); err != nil {
		return fmt.Errorf("failed to decode %s output: %w", kind, err)
	}
	return nil
}

// AssembleArtifact builds the deliverable from a job whose chunks are all done.
// Generation time and cost are summed over every chunk record, so a resumed
// run reports the full cost of the article.
func AssembleArtifact(job *jobs.Job) (*types.FinalArtifact, error) {
	var (
		research   types.ResearchOutput
		brief      types.ResearchBrief
		draft      types.DraftOutput
		validation types.ValidationOutput
		input      types.ContentBrief
	)
	if err := job.DecodeInput(&input); err != nil {
		return nil, err
	}
	if err := decodeChunk(job, jobs.ChunkResearch, &research); err != nil {
		return nil, err
	}
	if err := decodeChunk(job, jobs.ChunkAnalysis, &brief); err != nil {
		return nil, err
	}
	if err := decodeChunk(job, jobs.ChunkDraft, &draft); err != nil {
		return nil, err
	}
	if err := decodeChunk(job, jobs.ChunkPostprocess, &validation); err != nil {
		return nil, err
	}

	actual := content.ExtractH2s(draft.Content)

	var generationMs int64
	var cost float64
	for _, kind := range jobs.ChunkOrder {
		if rec := job.Record(kind); rec != nil {
			generationMs += rec.DurationMs
			cost += rec.CostUsd
		}
	}

	artifact := &types.FinalArtifact{
		Article: types.Article{
			Content:             validation.FinalContent,
			Outline:             actual,
			SuggestedSlug:       draft.SuggestedSlug,
			SuggestedCategories: nonNil(draft.SuggestedCategories),
			SuggestedTags:       nonNil(draft.SuggestedTags),
		},
		Title:            draft.Title,
		MetaDescription:  draft.MetaDescription,
		SourceURLs:       sourceURLs(research.CurrentData),
		Audit:            validation.Audit,
		SchemaMarkup:     validation.SchemaMarkup,
		FAQEnforcement:   validation.FAQEnforcement,
		FactCheck:        validation.FactCheck,
		OutlineDrift:     types.ComputeOutlineDrift(brief.Outline.H2s(), actual),
		BriefSummary:     briefSummary(&brief),
		Keyword:          input.PrimaryKeyword,
		GenerationTimeMs: generationMs,
		TotalCostUsd:     jobs.RoundCost(cost),
	}
	return artifact, nil
}

func sourceURLs(data types.CurrentData) []string {
	seen := make(map[string]bool, len(data.Facts))
	out := []string{}
	for _, f := range data.Facts {
		if f.Source == "" || seen[f.Source] {
			continue
		}
		seen[f.Source] = true
		out = append(out, f.Source)
	}
	return out
}

func briefSummary(b *types.ResearchBrief) *types.BriefSummary {
	if strings.TrimSpace(b.SimilaritySummary) == "" && len(b.ExtraValueThemes) == 0 &&
		strings.TrimSpace(b.FreshnessNote) == "" {
		return nil
	}
	return &types.BriefSummary{
		SimilaritySummary: b.SimilaritySummary,
		ExtraValueThemes:  b.ExtraValueThemes,
		FreshnessNote:     b.FreshnessNote,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
