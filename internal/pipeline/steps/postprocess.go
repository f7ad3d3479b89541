package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/types"
)

// PostprocessExecutor enforces the FAQ limit, audits the article, builds its
// JSON-LD and checks its statistics against the grounded facts. It makes no
// external calls.
type PostprocessExecutor struct {
	deps Dependencies
}

// Kind implements Executor.
func (e *PostprocessExecutor) Kind() jobs.ChunkKind { return jobs.ChunkPostprocess }

// Execute implements Executor.
func (e *PostprocessExecutor) Execute(ctx context.Context, in *Input) (any, error) {
	draft, err := decodeOutput[types.DraftOutput](in, jobs.ChunkDraft)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.Content) == "" {
		return nil, fmt.Errorf("draft has no content")
	}
	keyword := in.Brief.PrimaryKeyword

	currentData := types.EmptyCurrentData()
	if res, err := decodeOutput[types.ResearchOutput](in, jobs.ChunkResearch); err == nil {
		currentData = res.CurrentData
	}
	var themes []string
	if brief, err := decodeOutput[types.ResearchBrief](in, jobs.ChunkAnalysis); err == nil {
		themes = brief.ExtraValueThemes
	}

	in.emit("faq-enforcement", SubStepStarted, "Checking FAQ answer length...")
	faq, finalContent := content.EnforceFAQLimit(draft.Content, e.deps.FAQLimit)
	in.emit("faq-enforcement", SubStepCompleted, fmt.Sprintf("%d FAQ answers shortened", len(faq.Violations)))

	title := draft.Title
	if title == "" {
		title = keyword
	}
	in.emit("audit", SubStepStarted, "Auditing article...")
	audit, err := e.deps.Auditor.Audit(ctx, content.AuditInput{
		Title:            title,
		MetaDescription:  draft.MetaDescription,
		Content:          finalContent,
		Slug:             draft.SuggestedSlug,
		FocusKeyword:     keyword,
		ExtraValueThemes: themes,
	})
	if err != nil {
		in.emit("audit", SubStepFailed, err.Error())
		return nil, fmt.Errorf("failed to audit article: %w", err)
	}
	in.emit("audit", SubStepCompleted, fmt.Sprintf("Audit score %d", audit.Score))

	markup := content.GenerateSchemaMarkup(finalContent, title, draft.MetaDescription, keyword, e.deps.Now())

	in.emit("fact-check", SubStepStarted, "Checking statistics against sources...")
	factCheck := content.VerifyFacts(finalContent, currentData, keyword)
	in.emit("fact-check", SubStepCompleted, fmt.Sprintf("%d unsupported claims", len(factCheck.Hallucinations)))

	return &types.ValidationOutput{
		FAQEnforcement: faq,
		Audit:          audit,
		FactCheck:      factCheck,
		SchemaMarkup:   markup,
		FinalContent:   finalContent,
	}, nil
}
