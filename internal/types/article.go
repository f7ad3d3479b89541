package types

import "strings"

// DraftOutput is the stored output of the draft chunk.
type DraftOutput struct {
	Title               string   `json:"title"`
	MetaDescription     string   `json:"metaDescription"`
	SuggestedSlug       string   `json:"suggestedSlug"`
	Outline             []string `json:"outline"`
	Content             string   `json:"content"`
	SuggestedCategories []string `json:"suggestedCategories"`
	SuggestedTags       []string `json:"suggestedTags"`
	WordCount           int      `json:"wordCount"`
}

// FAQViolation is an FAQ answer longer than the allowed limit.
type FAQViolation struct {
	Question  string `json:"question"`
	Answer    string `json:"answer,omitempty"`
	CharCount int    `json:"charCount"`
}

// FAQEnforcement is the result of the FAQ answer length check.
type FAQEnforcement struct {
	Passed     bool           `json:"passed"`
	Violations []FAQViolation `json:"violations"`
}

// AuditCheck is one named audit rule and its outcome.
type AuditCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// AuditResult is the scored article audit.
type AuditResult struct {
	Score     int          `json:"score"`
	WordCount int          `json:"wordCount"`
	Checks    []AuditCheck `json:"checks"`
}

// FactCheck lists numeric claims in the article not backed by grounded facts.
type FactCheck struct {
	Verified          bool     `json:"verified"`
	Hallucinations    []string `json:"hallucinations"`
	Issues            []string `json:"issues"`
	SkippedRhetorical []string `json:"skippedRhetorical"`
}

// SchemaMarkup holds JSON-LD blocks for the article.
type SchemaMarkup struct {
	Article       map[string]any `json:"article"`
	FAQ           map[string]any `json:"faq"`
	FAQSchemaNote string         `json:"faqSchemaNote"`
}

// ValidationOutput is the stored output of the postprocess chunk.
type ValidationOutput struct {
	FAQEnforcement FAQEnforcement `json:"faqEnforcement"`
	Audit          AuditResult    `json:"auditResult"`
	FactCheck      FactCheck      `json:"factCheck"`
	SchemaMarkup   SchemaMarkup   `json:"schemaMarkup"`
	FinalContent   string         `json:"finalContent"`
}

// Article is the publishable body of the final artifact.
type Article struct {
	Content             string   `json:"content"`
	Outline             []string `json:"outline"`
	SuggestedSlug       string   `json:"suggestedSlug"`
	SuggestedCategories []string `json:"suggestedCategories"`
	SuggestedTags       []string `json:"suggestedTags"`
}

// OutlineDrift compares the brief's planned H2s with the draft's actual H2s.
type OutlineDrift struct {
	Passed   bool     `json:"passed"`
	Expected []string `json:"expected"`
	Actual   []string `json:"actual"`
	Missing  []string `json:"missing"`
	Extra    []string `json:"extra"`
}

// BriefSummary carries the brief's differentiation notes.
type BriefSummary struct {
	SimilaritySummary string   `json:"similaritySummary,omitempty"`
	ExtraValueThemes  []string `json:"extraValueThemes,omitempty"`
	FreshnessNote     string   `json:"freshnessNote,omitempty"`
}

// FinalArtifact is the deliverable of a completed run.
type FinalArtifact struct {
	Article          Article        `json:"article"`
	Title            string         `json:"title"`
	MetaDescription  string         `json:"metaDescription"`
	SourceURLs       []string       `json:"sourceUrls"`
	Audit            AuditResult    `json:"auditResult"`
	SchemaMarkup     SchemaMarkup   `json:"schemaMarkup"`
	FAQEnforcement   FAQEnforcement `json:"faqEnforcement"`
	FactCheck        FactCheck      `json:"factCheck"`
	OutlineDrift     OutlineDrift   `json:"outlineDrift"`
	BriefSummary     *BriefSummary  `json:"briefSummary,omitempty"`
	Keyword          string         `json:"keyword"`
	GenerationTimeMs int64          `json:"generationTimeMs"`
	TotalCostUsd     float64        `json:"totalCostUsd"`
}

// ComputeOutlineDrift matches headings case-insensitively with collapsed whitespace.
func ComputeOutlineDrift(expected, actual []string) OutlineDrift {
	norm := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	contains := func(list []string, v string) bool {
		for _, s := range list {
			if norm(s) == norm(v) {
				return true
			}
		}
		return false
	}

	d := OutlineDrift{
		Expected: nonNil(expected),
		Actual:   nonNil(actual),
		Missing:  []string{},
		Extra:    []string{},
	}
	for _, e := range expected {
		if !contains(actual, e) {
			d.Missing = append(d.Missing, e)
		}
	}
	for _, a := range actual {
		if !contains(expected, a) {
			d.Extra = append(d.Extra, a)
		}
	}
	d.Passed = len(d.Missing) == 0
	return d
}

// CountWords counts whitespace-separated words of plain text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
