// Package content inspects and post-processes drafted article HTML: heading
// extraction, FAQ answer limits, scoring, fact checking and JSON-LD markup.
package content

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultFAQAnswerLimit is the maximum FAQ answer length in characters.
const DefaultFAQAnswerLimit = 300

var faqHeadingRe = regexp.MustCompile(`(?i)FAQ|Frequently Asked`)

func parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ExtractH2s returns the trimmed text of every h2, in document order.
func ExtractH2s(html string) []string {
	doc, err := parse(html)
	if err != nil {
		return []string{}
	}
	return headings(doc, "h2")
}

func headings(doc *goquery.Document, selector string) []string {
	out := []string{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// PlainText strips tags and collapses whitespace.
func PlainText(html string) string {
	doc, err := parse(html)
	if err != nil {
		return ""
	}
	return plain(doc)
}

func plain(doc *goquery.Document) string {
	doc.Find("script, style").Remove()
	var parts []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		if t := collapse(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// WordCount counts the words of the visible text of html.
func WordCount(html string) int {
	return len(strings.Fields(PlainText(html)))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// faqEntry is one question and its answer paragraph.
type faqEntry struct {
	question string
	answer   *goquery.Selection // nil when the question has no paragraph
}

// faqEntries finds the FAQ h2 and pairs each following h3 with the first
// paragraph before the next heading.
func faqEntries(doc *goquery.Document) []faqEntry {
	var faq *goquery.Selection
	doc.Find("h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if faqHeadingRe.MatchString(s.Text()) {
			faq = s
			return false
		}
		return true
	})
	if faq == nil {
		return nil
	}

	var entries []faqEntry
	faq.NextUntil("h2").Filter("h3").Each(func(_ int, q *goquery.Selection) {
		entry := faqEntry{question: collapse(q.Text())}
		if p := q.NextUntil("h2, h3").Filter("p").First(); p.Length() > 0 {
			entry.answer = p
		}
		entries = append(entries, entry)
	})
	return entries
}

func bodyHTML(doc *goquery.Document) (string, error) {
	return doc.Find("body").Html()
}
