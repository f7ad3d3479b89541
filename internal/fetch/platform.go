package fetch

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Platform is a known blogging platform with its own page layout.
type Platform string

const (
	PlatformWordPress Platform = "wordpress"
	PlatformMedium    Platform = "medium"
	PlatformSubstack  Platform = "substack"
	PlatformGhost     Platform = "ghost"
	PlatformHubSpot   Platform = "hubspot"
	PlatformUnknown   Platform = "unknown"
)

// DetectPlatform identifies the blogging platform from the URL and, when the
// host is not conclusive, from the page's generator meta tag.
func DetectPlatform(urlStr, html string) Platform {
	if parsed, err := url.Parse(urlStr); err == nil {
		host := strings.ToLower(parsed.Hostname())
		switch {
		case host == "medium.com" || strings.HasSuffix(host, ".medium.com"):
			return PlatformMedium
		case strings.HasSuffix(host, ".substack.com"):
			return PlatformSubstack
		case strings.HasSuffix(host, ".hubspot.com") || strings.Contains(host, "hs-sites"):
			return PlatformHubSpot
		}
	}

	if html == "" {
		return PlatformUnknown
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PlatformUnknown
	}
	generator, _ := doc.Find(`meta[name="generator"]`).Attr("content")
	generator = strings.ToLower(generator)
	switch {
	case strings.Contains(generator, "wordpress"):
		return PlatformWordPress
	case strings.Contains(generator, "ghost"):
		return PlatformGhost
	case strings.Contains(generator, "hubspot"):
		return PlatformHubSpot
	}
	return PlatformUnknown
}

// PlatformContentSelectors returns content selectors for a platform, most
// specific first, ending with the generic article selectors.
func PlatformContentSelectors(platform Platform) []string {
	var specific []string
	switch platform {
	case PlatformWordPress:
		specific = []string{".entry-content", ".wp-block-post-content", ".post-content"}
	case PlatformMedium:
		specific = []string{"article section", "article"}
	case PlatformSubstack:
		specific = []string{".available-content", ".body.markup"}
	case PlatformGhost:
		specific = []string{".gh-content", ".post-full-content"}
	case PlatformHubSpot:
		specific = []string{".hs_cos_wrapper_type_rich_text", ".post-body"}
	}
	return append(specific, ArticleSelectors()...)
}

// PlatformNoiseSelectors returns elements to strip before text extraction.
func PlatformNoiseSelectors(platform Platform) []string {
	common := []string{
		".social-share",
		".share-buttons",
		".social-links",
		".newsletter-signup",
		".related-posts",
		".comments",
		"#comments",
		".author-bio",
		".cookie-consent",
		".gdpr-notice",
	}

	switch platform {
	case PlatformWordPress:
		return append(common, ".wp-block-buttons", ".sharedaddy", ".jp-relatedposts")
	case PlatformMedium:
		return append(common, "[data-testid='headerSocialShareButton']", ".pw-multi-vote-count")
	case PlatformSubstack:
		return append(common, ".subscription-widget-wrap", ".post-footer")
	case PlatformHubSpot:
		return append(common, ".hs-cta-wrapper", ".blog-post__subscribe")
	default:
		return common
	}
}
