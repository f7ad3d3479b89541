package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-pipeline/internal/logger"
	"github.com/jonathan/content-pipeline/internal/types"
)

// maxParallelFetches bounds concurrent page reads within one research chunk.
const maxParallelFetches = 4

// Provider is a named Reader. Providers are tried in order until one succeeds.
type Provider struct {
	Name   string
	Reader Reader
}

// CompetitorFetcher reads competitor pages in parallel.
type CompetitorFetcher struct {
	providers []Provider
	charLimit int
	log       *logger.Logger
}

// NewCompetitorFetcher creates a fetcher. A non-positive charLimit uses
// DefaultCharLimit.
func NewCompetitorFetcher(charLimit int, log *logger.Logger, providers ...Provider) *CompetitorFetcher {
	if charLimit <= 0 {
		charLimit = DefaultCharLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CompetitorFetcher{providers: providers, charLimit: charLimit, log: log}
}

// FetchAll reads every URL and returns one article per URL in input order.
// Pages no provider could read are returned with FetchSuccess false. The
// error is non-nil only when ctx ends before all reads finish.
func (f *CompetitorFetcher) FetchAll(ctx context.Context, urls []string) ([]types.CompetitorArticle, []Attempt, error) {
	articles := make([]types.CompetitorArticle, len(urls))
	var (
		mu       sync.Mutex
		attempts []Attempt
	)
	record := func(a Attempt) {
		mu.Lock()
		attempts = append(attempts, a)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, u := range urls {
		g.Go(func() error {
			articles[i] = f.fetchOne(gctx, u, record)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return articles, attempts, err
	}
	return articles, attempts, nil
}

func (f *CompetitorFetcher) fetchOne(ctx context.Context, url string, record func(Attempt)) types.CompetitorArticle {
	for _, p := range f.providers {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		page, err := p.Reader.Read(ctx, url)
		attempt := Attempt{URL: url, Source: p.Name, Duration: time.Since(start), Err: err}
		if page != nil {
			attempt.CacheHit = page.FromCache
		}
		record(attempt)

		if err != nil {
			f.log.Warn("competitor fetch failed", "url", url, "provider", p.Name, "error", err)
			continue
		}
		return types.CompetitorArticle{
			URL:          url,
			Title:        page.Title,
			Content:      Truncate(page.Content, f.charLimit),
			WordCount:    len(strings.Fields(page.Content)),
			FetchSuccess: true,
			Source:       page.Source,
		}
	}
	return types.CompetitorArticle{URL: url}
}
