package steps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/prompts"
	"github.com/jonathan/content-pipeline/internal/schemas"
	"github.com/jonathan/content-pipeline/internal/types"
)

// Draft placeholders. The title and meta description are written later by
// an editor from the finished content.
const (
	DraftTitle           = "Draft"
	DraftMetaDescription = ""
)

// DraftExecutor writes the article HTML from the research brief.
type DraftExecutor struct {
	deps Dependencies
}

// Kind implements Executor.
func (e *DraftExecutor) Kind() jobs.ChunkKind { return jobs.ChunkDraft }

type draftResponse struct {
	Content             string   `json:"content"`
	SuggestedCategories []string `json:"suggestedCategories"`
	SuggestedTags       []string `json:"suggestedTags"`
}

// Execute implements Executor.
func (e *DraftExecutor) Execute(ctx context.Context, in *Input) (any, error) {
	if err := e.deps.requireLLM(); err != nil {
		return nil, err
	}
	brief, err := decodeOutput[types.ResearchBrief](in, jobs.ChunkAnalysis)
	if err != nil {
		return nil, err
	}
	if len(brief.Outline.Sections) == 0 {
		return nil, fmt.Errorf("research brief outline has no sections")
	}
	keyword := brief.Keyword.Primary
	if keyword == "" {
		keyword = in.Brief.PrimaryKeyword
	}

	in.emit("draft", SubStepStarted, "Writing article draft...")
	resp, err := generateJSON[draftResponse](ctx, &e.deps, in, jsonCall{
		step:      "draft",
		promptKey: prompts.KeyDraft,
		data: map[string]string{
			"Keyword":   keyword,
			"Brief":     marshalIndent(brief),
			"FAQLimit":  strconv.Itoa(e.deps.FAQLimit),
			"WordCount": strconv.Itoa(brief.WordCount.Target),
		},
		tier:   llm.TierAdvanced,
		schema: schemas.Draft,
		policy: RetryExpensive.WithTimeout(150 * time.Second),
	})
	if err != nil {
		in.emit("draft", SubStepFailed, err.Error())
		return nil, fmt.Errorf("draft failed: %w", err)
	}

	words := content.WordCount(resp.Content)
	in.emit("draft", SubStepCompleted, fmt.Sprintf("Draft: %d words", words))

	return &types.DraftOutput{
		Title:               DraftTitle,
		MetaDescription:     DraftMetaDescription,
		SuggestedSlug:       content.Slugify(keyword),
		Outline:             content.ExtractH2s(resp.Content),
		Content:             resp.Content,
		SuggestedCategories: nonNilStrings(resp.SuggestedCategories),
		SuggestedTags:       nonNilStrings(resp.SuggestedTags),
		WordCount:           words,
	}, nil
}
