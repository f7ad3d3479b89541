package content

import (
	"regexp"
	"strings"
	"time"

	"github.com/jonathan/content-pipeline/internal/types"
)

// FAQ schema notes
const (
	FAQSchemaNote   = "FAQPage schema generated for AI answer engines. Search engines show FAQ rich results only for a small set of authoritative domains."
	NoFAQSchemaNote = "No FAQ section detected."
)

var (
	slugInvalidRe = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashesRe  = regexp.MustCompile(`-+`)
)

// Slugify lowercases s and joins its words with dashes, capped at
// MaxSlugLength. An empty result becomes "draft".
func Slugify(s string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(s)), "-")
	slug = slugInvalidRe.ReplaceAllString(slug, "")
	slug = strings.Trim(slugDashesRe.ReplaceAllString(slug, "-"), "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	if slug == "" {
		return "draft"
	}
	return slug
}

// GenerateSchemaMarkup builds Article JSON-LD for the article and, when it has
// an FAQ section, FAQPage JSON-LD. FAQ answers are capped at
// DefaultFAQAnswerLimit characters.
func GenerateSchemaMarkup(html, title, metaDescription, keyword string, now time.Time) types.SchemaMarkup {
	date := now.UTC().Format("2006-01-02")
	if title == "" {
		title = "Article"
	}
	markup := types.SchemaMarkup{
		Article: map[string]any{
			"@context":      "https://schema.org",
			"@type":         "Article",
			"headline":      title,
			"description":   metaDescription,
			"keywords":      keyword,
			"datePublished": date,
			"dateModified":  date,
		},
		FAQSchemaNote: NoFAQSchemaNote,
	}

	doc, err := parse(html)
	if err != nil {
		return markup
	}

	var questions []map[string]any
	for _, entry := range faqEntries(doc) {
		if entry.question == "" || entry.answer == nil {
			continue
		}
		answer := []rune(collapse(entry.answer.Text()))
		if len(answer) == 0 {
			continue
		}
		if len(answer) > DefaultFAQAnswerLimit {
			answer = answer[:DefaultFAQAnswerLimit]
		}
		questions = append(questions, map[string]any{
			"@type": "Question",
			"name":  entry.question,
			"acceptedAnswer": map[string]any{
				"@type": "Answer",
				"text":  string(answer),
			},
		})
	}
	if len(questions) > 0 {
		markup.FAQ = map[string]any{
			"@context":   "https://schema.org",
			"@type":      "FAQPage",
			"mainEntity": questions,
		}
		markup.FAQSchemaNote = FAQSchemaNote
	}
	return markup
}
