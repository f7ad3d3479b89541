package content

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/content-pipeline/internal/types"
)

// MaxAllowedHallucinations is the number of unsupported claims tolerated
// before an article is reported as unverified.
const MaxAllowedHallucinations = 6

var (
	statRe       = regexp.MustCompile(`(?i)\$[\d,]+(?:\.\d+)?\s*(?:billion|million|bn|mn|b|m)?|[\d,]+(?:\.\d+)?\s*%|\d+(?:\.\d+)?\s*(?:billion|million)\s+`)
	numberRe     = regexp.MustCompile(`\d+(?:\.\d+)?`)
	accordingRe  = regexp.MustCompile(`(?i)according\s+to\s+([^.,;]+)`)
	nonNumericRe = regexp.MustCompile(`[^0-9.]`)

	rhetoricalRes = []*regexp.Regexp{
		regexp.MustCompile(`\d+\s*%\s*of\s+the\s+(quality|cost|price|value)`),
		regexp.MustCompile(`\d+\s*%\s*(cheaper|faster|better|more|less)`),
		regexp.MustCompile(`(nearly|almost|roughly|about)\s+\$?\d`),
		regexp.MustCompile(`\d+\s*years?\s+ago|over\s+\d+\s+years?|past\s+\d+\s+decades?`),
		regexp.MustCompile(`first\s+\d+|top\s+\d+|number\s+\d+|#\s*\d+`),
		regexp.MustCompile(`\d+x\s+(more|faster|better)`),
		regexp.MustCompile(`means\s+\d+\s*%|leaves\s+\d+\s*%|the\s+(remaining|other)\s+\d+\s*%`),
		regexp.MustCompile(`\d+\s+out\s+of\s+\d+`),
		regexp.MustCompile(`(up\s+to|starting\s+at|priced\s+at|around)\s+\$[\d,]+`),
		regexp.MustCompile(`\d+[-\s](year|month|week|day|quarter|decade)`),
	}
)

// VerifyFacts flags statistics in the article that do not match, and cannot
// be derived from, the numbers in the grounded facts, and "according to"
// attributions that name no known source.
func VerifyFacts(html string, data types.CurrentData, keyword string) types.FactCheck {
	result := types.FactCheck{
		Hallucinations:    []string{},
		Issues:            []string{},
		SkippedRhetorical: []string{},
	}
	text := PlainText(html)

	var refs []float64
	for _, f := range data.Facts {
		for _, n := range numberRe.FindAllString(strings.ReplaceAll(f.Fact, ",", ""), -1) {
			if v, err := strconv.ParseFloat(n, 64); err == nil {
				refs = append(refs, v)
			}
		}
	}

	for _, loc := range statRe.FindAllStringIndex(text, -1) {
		claim := strings.TrimSpace(text[loc[0]:loc[1]])
		snippet := strings.TrimSpace(text[max(0, loc[0]-50):min(len(text), loc[1]+50)])
		if isRhetorical(snippet) {
			result.SkippedRhetorical = append(result.SkippedRhetorical, fmt.Sprintf("rhetorical %q", claim))
			continue
		}
		v, err := strconv.ParseFloat(nonNumericRe.ReplaceAllString(claim, ""), 64)
		if err != nil {
			continue
		}
		if matchesRef(v, refs) {
			continue
		}
		if derivedFromRefs(v, refs) {
			result.SkippedRhetorical = append(result.SkippedRhetorical, fmt.Sprintf("derived %q", claim))
			continue
		}
		result.Hallucinations = append(result.Hallucinations, fmt.Sprintf("%q contains %q which is not in the grounded facts", snippet, claim))
	}

	aliases := sourceAliases(data, keyword)
	for _, m := range accordingRe.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(strings.TrimSpace(m[1]))
		if len(name) <= 2 || knownSource(name, aliases) {
			continue
		}
		result.Hallucinations = append(result.Hallucinations, fmt.Sprintf("unknown source %q", strings.TrimSpace(m[1])))
	}

	if len(data.Facts) == 0 && len(result.Hallucinations) > 0 {
		result.Issues = append(result.Issues, "no grounded facts were available to verify statistics")
	}
	result.Verified = len(result.Hallucinations) <= MaxAllowedHallucinations
	return result
}

func isRhetorical(snippet string) bool {
	lower := strings.ToLower(snippet)
	for _, re := range rhetoricalRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func matchesRef(v float64, refs []float64) bool {
	for _, r := range refs {
		if math.Abs(v-r) <= math.Max(r*0.005, 0.01) {
			return true
		}
	}
	return false
}

// derivedFromRefs accepts percentage complements and pairwise sums or
// differences of reference numbers.
func derivedFromRefs(v float64, refs []float64) bool {
	for _, r := range refs {
		if r > 0 && r < 100 && math.Abs((100-r)-v) < 0.5 {
			return true
		}
	}
	tolerance := math.Max(v*0.01, 0.5)
	for i := range refs {
		for j := i + 1; j < len(refs); j++ {
			if d := math.Abs(refs[i] - refs[j]); d > 0 && math.Abs(d-v) < tolerance {
				return true
			}
			if s := refs[i] + refs[j]; s > 0 && math.Abs(s-v) < tolerance {
				return true
			}
		}
	}
	return false
}

func sourceAliases(data types.CurrentData, keyword string) []string {
	aliases := []string{"earnings release", "annual report", "quarterly report", "company filings"}
	if kw := strings.ToLower(strings.TrimSpace(keyword)); kw != "" {
		aliases = append(aliases, kw)
	}
	for _, f := range data.Facts {
		if u, err := url.Parse(f.Source); err == nil && u.Hostname() != "" {
			host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
			aliases = append(aliases, host)
			if label, _, ok := strings.Cut(host, "."); ok {
				aliases = append(aliases, label)
			}
		}
		if m := accordingRe.FindStringSubmatch(f.Fact); m != nil {
			aliases = append(aliases, strings.ToLower(strings.TrimSpace(m[1])))
		}
	}
	return aliases
}

func knownSource(name string, aliases []string) bool {
	for _, a := range aliases {
		if strings.Contains(a, name) || strings.Contains(name, a) {
			return true
		}
	}
	return false
}
