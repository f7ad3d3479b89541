package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPlatform_ByHost(t *testing.T) {
	assert.Equal(t, PlatformMedium, DetectPlatform("https://medium.com/@a/post-1", ""))
	assert.Equal(t, PlatformMedium, DetectPlatform("https://team.medium.com/post", ""))
	assert.Equal(t, PlatformSubstack, DetectPlatform("https://writer.substack.com/p/post", ""))
	assert.Equal(t, PlatformHubSpot, DetectPlatform("https://blog.hubspot.com/marketing/seo", ""))
}

func TestDetectPlatform_ByGenerator(t *testing.T) {
	wp := `<html><head><meta name="generator" content="WordPress 6.4"></head><body></body></html>`
	ghost := `<html><head><meta name="generator" content="Ghost 5.0"></head><body></body></html>`

	assert.Equal(t, PlatformWordPress, DetectPlatform("https://example.com/post", wp))
	assert.Equal(t, PlatformGhost, DetectPlatform("https://example.com/post", ghost))
}

func TestDetectPlatform_Unknown(t *testing.T) {
	assert.Equal(t, PlatformUnknown, DetectPlatform("https://example.com/post", ""))
	assert.Equal(t, PlatformUnknown, DetectPlatform("https://example.com/post", "<html><body>x</body></html>"))
}

func TestPlatformContentSelectors(t *testing.T) {
	wp := PlatformContentSelectors(PlatformWordPress)
	assert.Equal(t, ".entry-content", wp[0])
	assert.Contains(t, wp, "article")

	assert.Equal(t, ArticleSelectors(), PlatformContentSelectors(PlatformUnknown))
}

func TestPlatformNoiseSelectors(t *testing.T) {
	common := PlatformNoiseSelectors(PlatformUnknown)
	assert.Contains(t, common, ".related-posts")

	substack := PlatformNoiseSelectors(PlatformSubstack)
	assert.Contains(t, substack, ".subscription-widget-wrap")
	assert.Greater(t, len(substack), len(common))
}
