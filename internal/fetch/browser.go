package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jonathan/content-pipeline/internal/logger"
)

// MinContentLength is the minimum extracted text length to consider an HTTP
// fetch successful. Shorter text usually means a JavaScript-rendered page.
const MinContentLength = 500

// ShouldUseBrowser returns true if the extracted text is too short,
// indicating the page is likely a JavaScript-rendered SPA.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// Renderer returns the rendered HTML of a page.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// BrowserRenderer renders pages in headless Chrome. Requires Chrome or
// Chromium on the host.
type BrowserRenderer struct {
	Timeout time.Duration
	log     *logger.Logger
}

// NewBrowserRenderer creates a renderer with the given per-page timeout.
func NewBrowserRenderer(timeout time.Duration, log *logger.Logger) *BrowserRenderer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BrowserRenderer{Timeout: timeout, log: log}
}

// Render navigates to url, waits for the body and returns the outer HTML.
func (b *BrowserRenderer) Render(ctx context.Context, url string) (string, error) {
	b.log.Debug("starting headless browser", "url", url)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// Client-side rendering
		chromedp.Sleep(2*time.Second),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Dismiss cookie banners when present
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"]`, chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	b.log.Debug("rendered page", "url", url, "bytes", len(html))
	return html, nil
}
