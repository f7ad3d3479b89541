package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-pipeline/internal/fetch"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/prompts"
	"github.com/jonathan/content-pipeline/internal/research"
	"github.com/jonathan/content-pipeline/internal/schemas"
	"github.com/jonathan/content-pipeline/internal/types"
)

// ErrNoArticlesFetched fails research when no competitor page could be read.
var ErrNoArticlesFetched = errors.New("we couldn't fetch content from the selected links. Try different sources or retry")

// ResearchExecutor reads the competitor pages and gathers grounded current
// data about the keyword in parallel.
type ResearchExecutor struct {
	deps Dependencies
}

// Kind implements Executor.
func (e *ResearchExecutor) Kind() jobs.ChunkKind { return jobs.ChunkResearch }

// Execute implements Executor.
func (e *ResearchExecutor) Execute(ctx context.Context, in *Input) (any, error) {
	serp, err := decodeOutput[types.SerpOutput](in, jobs.ChunkResearchSerp)
	if err != nil {
		return nil, err
	}
	urls := research.SelectCompetitorURLs(serp.Results, in.Brief.SelectedURLs, e.deps.MaxCompetitors)
	if len(urls) == 0 {
		return nil, fmt.Errorf("no competitor URLs to fetch for %q", in.Brief.PrimaryKeyword)
	}

	var (
		competitors []types.CompetitorArticle
		currentData types.CurrentData
		groundErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		in.emit("jina", SubStepStarted, "Fetching competitor articles...")
		var err error
		competitors, err = e.fetchCompetitors(gctx, in, urls)
		return err
	})
	g.Go(func() error {
		in.emit("grounding", SubStepStarted, "Gathering current data...")
		currentData, groundErr = e.ground(gctx, in)
		return nil
	})
	if err := g.Wait(); err != nil {
		in.emit("jina", SubStepFailed, err.Error())
		return nil, fmt.Errorf("failed to fetch competitor articles: %w", err)
	}

	fetched := 0
	for _, c := range competitors {
		if c.FetchSuccess {
			fetched++
		}
	}
	if fetched == 0 {
		in.emit("jina", SubStepFailed, ErrNoArticlesFetched.Error())
		return nil, ErrNoArticlesFetched
	}
	in.emit("jina", SubStepCompleted, fmt.Sprintf("%d articles fetched", fetched))

	if groundErr != nil {
		var missing *MissingCredentialError
		if !errors.As(groundErr, &missing) {
			e.deps.Log.Warn("grounding failed, continuing without current data", "job_id", in.JobID, "error", groundErr)
		}
		in.emit("grounding", SubStepFailed, groundErr.Error())
		currentData = types.EmptyCurrentData()
	} else {
		currentData = e.validateSources(ctx, currentData)
		in.emit("grounding", SubStepCompleted, fmt.Sprintf("%d current data facts", len(currentData.Facts)))
	}

	return &types.ResearchOutput{
		SerpResults: selectedResults(urls, serp.Results, competitors),
		Competitors: competitors,
		CurrentData: currentData,
	}, nil
}

func (e *ResearchExecutor) fetchCompetitors(ctx context.Context, in *Input, urls []string) ([]types.CompetitorArticle, error) {
	return WithRetry(ctx, e.deps.Log, "jina", RetryFast, in.Budget, func(ctx context.Context) ([]types.CompetitorArticle, error) {
		articles, attempts, err := e.deps.Fetcher.FetchAll(ctx, urls)
		for _, a := range attempts {
			in.record(metrics.APICall{
				Provider:   a.Source,
				Endpoint:   "fetch",
				DurationMs: a.Duration.Milliseconds(),
				CacheHit:   a.CacheHit,
			})
		}
		return articles, err
	})
}

func (e *ResearchExecutor) ground(ctx context.Context, in *Input) (types.CurrentData, error) {
	secondary := ""
	if len(in.Brief.SecondaryKeywords) > 0 {
		secondary = fmt.Sprintf(" (related: %s)", strings.Join(in.Brief.SecondaryKeywords, ", "))
	}
	data, err := generateJSON[types.CurrentData](ctx, &e.deps, in, jsonCall{
		step:      "grounding",
		promptKey: prompts.KeyCurrentData,
		data: map[string]string{
			"Keyword":   in.Brief.PrimaryKeyword,
			"Secondary": secondary,
			"Today":     e.deps.Now().UTC().Format("2006-01-02"),
		},
		tier:   llm.TierLite,
		schema: schemas.CurrentData,
		policy: RetryStandard,
	})
	if err != nil {
		return types.CurrentData{}, err
	}
	if data.Facts == nil {
		data.Facts = []types.Fact{}
	}
	if data.RecentDevelopments == nil {
		data.RecentDevelopments = []string{}
	}
	if data.LastUpdated == "" {
		data.LastUpdated = e.deps.Now().UTC().Format("2006-01-02")
	}
	return *data, nil
}

// validateSources keeps only facts whose source URL responds.
func (e *ResearchExecutor) validateSources(ctx context.Context, data types.CurrentData) types.CurrentData {
	if len(data.Facts) == 0 {
		data.SourceURLValidation = &types.SourceURLValidation{Inaccessible: []string{}}
		data.GroundingVerified = false
		return data
	}

	sources := make([]string, len(data.Facts))
	for i, f := range data.Facts {
		sources[i] = f.Source
	}
	validation := fetch.ValidateSourceURLs(ctx, sources, e.deps.SourceClient)

	bad := make(map[string]bool, len(validation.Inaccessible))
	for _, u := range validation.Inaccessible {
		bad[u] = true
	}
	kept := make([]types.Fact, 0, len(data.Facts))
	for _, f := range data.Facts {
		src := strings.TrimSpace(f.Source)
		if strings.HasPrefix(src, "http") && !bad[src] {
			kept = append(kept, f)
		}
	}
	data.Facts = kept
	data.SourceURLValidation = validation
	data.GroundingVerified = len(kept) > 0
	return data
}

// selectedResults describes the fetched URLs as ranked results, reusing SERP
// metadata where the URL came from the search.
func selectedResults(urls []string, serp []types.SerpResult, competitors []types.CompetitorArticle) []types.SerpResult {
	byURL := make(map[string]types.SerpResult, len(serp))
	for _, r := range serp {
		byURL[r.URL] = r
	}
	out := make([]types.SerpResult, len(urls))
	for i, u := range urls {
		r := types.SerpResult{URL: u, Title: u, IsArticle: true}
		if known, ok := byURL[u]; ok {
			r.Title, r.Snippet = known.Title, known.Snippet
		}
		if i < len(competitors) && competitors[i].Title != "" {
			r.Title = competitors[i].Title
		}
		r.Position = i + 1
		out[i] = r
	}
	return out
}
