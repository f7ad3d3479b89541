package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/content-pipeline/internal/types"
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+`)

// EnforceFAQLimit shortens FAQ answers longer than limit characters and
// returns the enforcement report with the corrected HTML. Content without an
// FAQ section passes unchanged.
func EnforceFAQLimit(html string, limit int) (types.FAQEnforcement, string) {
	if limit <= 0 {
		limit = DefaultFAQAnswerLimit
	}
	result := types.FAQEnforcement{Passed: true, Violations: []types.FAQViolation{}}

	doc, err := parse(html)
	if err != nil {
		return result, html
	}

	for _, entry := range faqEntries(doc) {
		if entry.answer == nil {
			continue
		}
		answer := collapse(entry.answer.Text())
		n := utf8.RuneCountInString(answer)
		if n <= limit {
			continue
		}
		result.Violations = append(result.Violations, types.FAQViolation{
			Question:  entry.question,
			Answer:    answer,
			CharCount: n,
		})
		entry.answer.SetText(shortenAnswer(answer, limit))
	}

	if len(result.Violations) == 0 {
		return result, html
	}
	result.Passed = false

	fixed, err := bodyHTML(doc)
	if err != nil {
		return result, html
	}
	return result, fixed
}

// shortenAnswer keeps the first two sentences, then the first one, then cuts
// at a word boundary and ends with a period.
func shortenAnswer(answer string, limit int) string {
	sentences := sentenceRe.FindAllString(answer, -1)
	if len(sentences) == 0 {
		sentences = []string{answer}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}

	end := min(2, len(sentences))
	out := strings.Join(sentences[:end], " ")
	if utf8.RuneCountInString(out) <= limit {
		return out
	}
	out = sentences[0]
	if utf8.RuneCountInString(out) <= limit {
		return out
	}

	runes := []rune(out)[:limit-1]
	cut := string(runes)
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "."
}
