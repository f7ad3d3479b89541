package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/content-pipeline/internal/logger"
)

// Page sources
const (
	SourceJina    = "jina"
	SourceDirect  = "direct"
	SourceBrowser = "browser"
)

// Page is the readable text of one fetched page.
type Page struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Source    string `json:"source"`
	FromCache bool   `json:"-"`
}

// Reader turns a URL into readable text.
type Reader interface {
	Read(ctx context.Context, url string) (*Page, error)
}

// JinaEndpoint is the Jina reader base URL.
const JinaEndpoint = "https://r.jina.ai"

// JinaReader reads pages through r.jina.ai, which returns markdown. An API key
// is optional and only raises rate limits.
type JinaReader struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewJinaReader creates a Jina reader. An empty endpoint uses JinaEndpoint.
func NewJinaReader(apiKey, endpoint string, hc *http.Client) *JinaReader {
	if endpoint == "" {
		endpoint = JinaEndpoint
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &JinaReader{
		apiKey:     apiKey,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: hc,
	}
}

// Read fetches url through the reader. The target URL is appended raw to the
// endpoint path.
func (j *JinaReader) Read(ctx context.Context, urlStr string) (*Page, error) {
	target := strings.TrimSpace(urlStr)
	if !strings.HasPrefix(target, "http") {
		target = "https://" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.endpoint+"/"+target, nil)
	if err != nil {
		return nil, &Error{URL: target, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "text/markdown")
	req.Header.Set("User-Agent", DefaultUserAgent)
	if j.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.apiKey)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: target, Message: "jina request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: target, Message: "failed to read jina response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: target, Message: fmt.Sprintf("jina HTTP status %d", resp.StatusCode), StatusCode: resp.StatusCode}
	}

	content := strings.TrimSpace(string(body))
	if content == "" {
		return nil, &Error{URL: target, Message: "empty jina response"}
	}

	return &Page{
		URL:     target,
		Title:   markdownTitle(content),
		Content: content,
		Source:  SourceJina,
	}, nil
}

// markdownTitle reads the "Title:" header Jina emits, or the first heading.
func markdownTitle(md string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Title:"); ok {
			return strings.TrimSpace(rest)
		}
		if rest, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// DirectReader fetches the page itself and extracts the main text, rendering
// it in a browser when the static HTML yields too little.
type DirectReader struct {
	Options  *Options
	Renderer Renderer // nil disables the browser fallback
	log      *logger.Logger
}

// NewDirectReader creates a DirectReader.
func NewDirectReader(opts *Options, renderer Renderer, log *logger.Logger) *DirectReader {
	if opts == nil {
		opts = DefaultOptions()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DirectReader{Options: opts, Renderer: renderer, log: log}
}

// Read fetches and extracts one page.
func (d *DirectReader) Read(ctx context.Context, urlStr string) (*Page, error) {
	result, err := URL(ctx, urlStr, d.Options)
	if err != nil {
		return nil, err
	}

	page := &Page{URL: urlStr, Source: SourceDirect}
	page.Content, page.Title = extract(urlStr, result.HTML)

	if d.Renderer != nil && ShouldUseBrowser(page.Content) {
		d.log.Debug("static text too short, rendering in browser", "url", urlStr, "chars", len(page.Content))
		html, rerr := d.Renderer.Render(ctx, urlStr)
		if rerr != nil {
			d.log.Warn("browser fallback failed", "url", urlStr, "error", rerr)
		} else if text, title := extract(urlStr, html); len(text) > len(page.Content) {
			page.Content, page.Title, page.Source = text, title, SourceBrowser
		}
	}

	if strings.TrimSpace(page.Content) == "" {
		return nil, &Error{URL: urlStr, Message: "no readable text"}
	}
	return page, nil
}

func extract(urlStr, html string) (text, title string) {
	platform := DetectPlatform(urlStr, html)
	text, err := ExtractMainText(html, PlatformContentSelectors(platform), PlatformNoiseSelectors(platform)...)
	if err != nil {
		return "", ""
	}
	return text, ExtractTitle(html)
}

// Attempt records one reader call for usage accounting.
type Attempt struct {
	URL      string
	Source   string
	Duration time.Duration
	CacheHit bool
	Err      error
}
