package content

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/content-pipeline/internal/types"
)

// AuditInput is the drafted article to score.
type AuditInput struct {
	Title            string
	MetaDescription  string
	Content          string
	Slug             string
	FocusKeyword     string
	ExtraValueThemes []string
}

// Audit thresholds
const (
	MinArticleWords     = 600
	MinH2Count          = 2
	MaxParagraphWords   = 150
	MinKeywordDensity   = 0.5
	MaxKeywordDensity   = 2.5
	MinMetaDescription  = 120
	MaxMetaDescription  = 160
	MaxSlugLength       = 75
	introShareOfContent = 0.1
)

// DefaultAuditor scores an article with structural and keyword checks.
type DefaultAuditor struct{}

// NewDefaultAuditor creates the default auditor.
func NewDefaultAuditor() *DefaultAuditor { return &DefaultAuditor{} }

// Audit runs every check and scores the article as the share of passed
// checks, 0 to 100.
func (a *DefaultAuditor) Audit(_ context.Context, in AuditInput) (types.AuditResult, error) {
	doc, err := parse(in.Content)
	if err != nil {
		return types.AuditResult{}, fmt.Errorf("failed to parse article HTML: %w", err)
	}

	h1Count := doc.Find("h1").Length()
	h2s := headings(doc, "h2")
	subheadings := headings(doc, "h2, h3")
	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		paragraphs = append(paragraphs, collapse(s.Text()))
	})
	text := plain(doc)
	words := strings.Fields(text)
	keyword := strings.ToLower(strings.TrimSpace(in.FocusKeyword))

	checks := []types.AuditCheck{
		checkLength(len(words)),
		checkHeadings(h1Count, len(h2s)),
		checkParagraphs(paragraphs),
		checkKeywordInTitle(in.Title, keyword),
		checkKeywordInIntro(words, keyword),
		checkKeywordInSubheading(subheadings, keyword),
		checkKeywordDensity(text, len(words), keyword),
		checkMetaDescription(in.MetaDescription),
		checkSlug(in.Slug, keyword),
	}
	if len(nonEmpty(in.ExtraValueThemes)) > 0 {
		checks = append(checks, checkExtraValue(text, in.ExtraValueThemes))
	}

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	score := int(math.Round(float64(passed) * 100 / float64(len(checks))))

	return types.AuditResult{Score: score, WordCount: len(words), Checks: checks}, nil
}

func checkLength(words int) types.AuditCheck {
	return types.AuditCheck{
		Name:    "content-length",
		Passed:  words >= MinArticleWords,
		Message: fmt.Sprintf("%d words (minimum %d)", words, MinArticleWords),
	}
}

func checkHeadings(h1s, h2s int) types.AuditCheck {
	c := types.AuditCheck{Name: "heading-structure", Passed: h1s == 0 && h2s >= MinH2Count}
	switch {
	case h1s > 0:
		c.Message = "content must not contain an h1; the title is the h1"
	case h2s < MinH2Count:
		c.Message = fmt.Sprintf("%d h2 sections (minimum %d)", h2s, MinH2Count)
	default:
		c.Message = fmt.Sprintf("%d h2 sections", h2s)
	}
	return c
}

func checkParagraphs(paragraphs []string) types.AuditCheck {
	long := 0
	for _, p := range paragraphs {
		if len(strings.Fields(p)) > MaxParagraphWords {
			long++
		}
	}
	return types.AuditCheck{
		Name:    "paragraph-length",
		Passed:  long == 0,
		Message: fmt.Sprintf("%d paragraphs over %d words", long, MaxParagraphWords),
	}
}

func checkKeywordInTitle(title, keyword string) types.AuditCheck {
	return types.AuditCheck{
		Name:   "keyword-in-title",
		Passed: keyword != "" && strings.Contains(strings.ToLower(title), keyword),
	}
}

func checkKeywordInIntro(words []string, keyword string) types.AuditCheck {
	n := int(math.Ceil(float64(len(words)) * introShareOfContent))
	intro := strings.ToLower(strings.Join(words[:n], " "))
	return types.AuditCheck{
		Name:    "keyword-in-intro",
		Passed:  keyword != "" && strings.Contains(intro, keyword),
		Message: "focus keyword should appear in the first 10% of the content",
	}
}

func checkKeywordInSubheading(subheadings []string, keyword string) types.AuditCheck {
	found := false
	for _, h := range subheadings {
		if keyword != "" && strings.Contains(strings.ToLower(h), keyword) {
			found = true
			break
		}
	}
	return types.AuditCheck{Name: "keyword-in-subheading", Passed: found}
}

// KeywordDensity returns keyword words as a percentage of all words.
func KeywordDensity(text string, totalWords int, keyword string) float64 {
	if keyword == "" || totalWords == 0 {
		return 0
	}
	occurrences := strings.Count(strings.ToLower(text), keyword)
	kwWords := len(strings.Fields(keyword))
	return float64(occurrences*kwWords) * 100 / float64(totalWords)
}

func checkKeywordDensity(text string, totalWords int, keyword string) types.AuditCheck {
	density := KeywordDensity(text, totalWords, keyword)
	return types.AuditCheck{
		Name:    "keyword-density",
		Passed:  density >= MinKeywordDensity && density <= MaxKeywordDensity,
		Message: fmt.Sprintf("%.2f%% (target %.1f-%.1f%%)", density, MinKeywordDensity, MaxKeywordDensity),
	}
}

func checkMetaDescription(meta string) types.AuditCheck {
	n := utf8.RuneCountInString(strings.TrimSpace(meta))
	return types.AuditCheck{
		Name:    "meta-description",
		Passed:  n >= MinMetaDescription && n <= MaxMetaDescription,
		Message: fmt.Sprintf("%d characters (target %d-%d)", n, MinMetaDescription, MaxMetaDescription),
	}
}

func checkSlug(slug, keyword string) types.AuditCheck {
	kwSlug := Slugify(keyword)
	return types.AuditCheck{
		Name:   "slug",
		Passed: slug != "" && len(slug) <= MaxSlugLength && (kwSlug == "" || strings.Contains(slug, kwSlug)),
	}
}

func checkExtraValue(text string, themes []string) types.AuditCheck {
	lower := strings.ToLower(text)
	total, covered := 0, 0
	for _, theme := range nonEmpty(themes) {
		total++
		if strings.Contains(lower, strings.ToLower(theme)) {
			covered++
			continue
		}
		words := strings.Fields(strings.ToLower(theme))
		hits := 0
		for _, w := range words {
			if len(w) > 2 && strings.Contains(lower, w) {
				hits++
			}
		}
		if hits >= min(2, len(words)) {
			covered++
		}
	}
	return types.AuditCheck{
		Name:    "extra-value-coverage",
		Passed:  float64(covered)/float64(total) >= 0.5,
		Message: fmt.Sprintf("%d/%d differentiation themes addressed", covered, total),
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
