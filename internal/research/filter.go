// Package research finds competitor articles for a keyword through a web
// search provider and filters the results down to real articles.
package research

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/jonathan/content-pipeline/internal/types"
)

// NonArticleDomains host forums, video, social and shopping pages that never
// serve as competitor articles.
var NonArticleDomains = []string{
	"youtube.com",
	"reddit.com",
	"quora.com",
	"amazon.com",
	"ebay.com",
	"wikipedia.org",
	"facebook.com",
	"twitter.com",
	"x.com",
	"linkedin.com",
	"pinterest.com",
	"tiktok.com",
	"instagram.com",
}

var (
	fileExtension   = regexp.MustCompile(`(?i)\.(pdf|doc|docx|xls|xlsx|ppt|pptx|zip)(\?|$)`)
	listingPath     = regexp.MustCompile(`(?i)^/(category|tag|author)(/|$)`)
	indexOnlyPrefix = map[string]bool{"blog": true, "news": true, "articles": true}
)

// IsArticleURL reports whether a URL looks like an article: a substantive
// path on a non-excluded domain that is not a file, listing or index page.
func IsArticleURL(urlStr string) bool {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil || parsed.Host == "" {
		return false
	}
	if IsFromDomain(urlStr, NonArticleDomains) {
		return false
	}
	if fileExtension.MatchString(urlStr) {
		return false
	}
	path := parsed.Path
	if listingPath.MatchString(path) {
		return false
	}

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return false
	}
	if len(segments) == 1 && indexOnlyPrefix[strings.ToLower(segments[0])] {
		return false
	}
	return len(segments) >= 2 || len(path) > 10
}

// Classify flags each result as article or not, keeping rank order and
// dropping results without a URL. Positions are filled when the provider
// omitted them.
func Classify(results []types.SerpResult) []types.SerpResult {
	out := make([]types.SerpResult, 0, len(results))
	for _, r := range results {
		r.URL = strings.TrimSpace(r.URL)
		if r.URL == "" {
			continue
		}
		if r.Position == 0 {
			r.Position = len(out) + 1
		}
		r.IsArticle = IsArticleURL(r.URL)
		out = append(out, r)
	}
	return out
}

// SelectCompetitorURLs picks the competitor pages to fetch. Caller-selected
// URLs win; otherwise the top article results are used, falling back to the
// top organic results when none look like articles.
func SelectCompetitorURLs(results []types.SerpResult, selected []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(selected) > 0 {
		return limit(dedupe(selected), n)
	}

	var articles, organic []string
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		organic = append(organic, r.URL)
		if r.IsArticle {
			articles = append(articles, r.URL)
		}
	}
	if len(articles) > 0 {
		return limit(dedupe(articles), n)
	}
	return limit(dedupe(organic), n)
}

// IsFromDomain checks if a URL is on one of the domains or their subdomains.
func IsFromDomain(urlStr string, domains []string) bool {
	urlDomain := strings.ToLower(extractDomainFromURL(urlStr))
	if urlDomain == "" {
		return false
	}
	for _, d := range domains {
		d = strings.ToLower(d)
		if urlDomain == d || strings.HasSuffix(urlDomain, "."+d) {
			return true
		}
	}
	return false
}

// extractDomainFromURL extracts the host of a URL without a leading www.
func extractDomainFromURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func limit(urls []string, n int) []string {
	if len(urls) > n {
		return urls[:n]
	}
	return urls
}
