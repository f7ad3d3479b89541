package steps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/fetch"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/research"
	"github.com/jonathan/content-pipeline/internal/types"
)

type fakeSearcher struct {
	resp  *research.SearchResponse
	err   error
	calls int
}

func (f *fakeSearcher) Search(context.Context, string, int) (*research.SearchResponse, error) {
	f.calls++
	return f.resp, f.err
}

func (f *fakeSearcher) Provider() string { return research.ProviderSerper }

// fakeLLM answers by the first prompt fragment it finds in the prompt.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	prompts   []string
}

func (f *fakeLLM) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (*llm.Response, error) {
	return f.GenerateJSON(ctx, prompt, tier)
}

func (f *fakeLLM) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	for fragment, err := range f.errs {
		if strings.Contains(prompt, fragment) {
			return nil, err
		}
	}
	for fragment, text := range f.responses {
		if strings.Contains(prompt, fragment) {
			return &llm.Response{Text: text, Usage: llm.Usage{Provider: llm.ProviderGemini, InputTokens: 100, OutputTokens: 50}}, nil
		}
	}
	return nil, errors.New("unexpected prompt")
}

func (f *fakeLLM) GetModel(llm.ModelTier) string { return "fake" }
func (f *fakeLLM) Close() error { return nil }

type pageMap map[string]string

func (m pageMap) Read(_ context.Context, url string) (*fetch.Page, error) {
	text, ok := m[url]
	if !ok {
		return nil, errors.New("unreachable")
	}
	return &fetch.Page{URL: url, Title: "Title of " + url, Content: text, Source: fetch.SourceJina}, nil
}

// Prompt fragments of the embedded content prompts.
const (
	groundingPrompt = "research assistant"
	topicsPrompt    = "analyze competitor articles"
	briefPrompt     = "Build a research brief"
	draftPrompt     = "Write the full article"
)

const topicsJSON = `{"topics":[{"name":"Brewing ratio","importance":"essential"}],"competitorHeadings":[],"gaps":[{"topic":"Storage"}],"editorialStyle":{"tone":"friendly"},"wordCount":{"competitorAverage":0,"recommended":0,"note":""}}`

const briefJSON = "```json\n" + `{"outline":{"sections":[{"heading":"What Is Cold Brew","level":"h2","targetWords":300},{"heading":"Frequently Asked Questions","level":"h2","targetWords":200}]},"gaps":["storage"],"similaritySummary":"Competitors repeat basics.","extraValueThemes":["storage safety"],"freshnessNote":"2025 data"}` + "\n```"

const draftJSON = `{"content":"<h2>What Is Cold Brew</h2><p>Cold brew is coffee steeped cold.</p><h2>Frequently Asked Questions</h2><h3>Does it keep?</h3><p>Two weeks.</p>","suggestedCategories":["Coffee"]}`

func newInput(t *testing.T, outputs map[jobs.ChunkKind]any) *Input {
	t.Helper()
	raw := map[jobs.ChunkKind]json.RawMessage{}
	for kind, v := range outputs {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		raw[kind] = b
	}
	brief := types.ContentBrief{PrimaryKeyword: "cold brew", SecondaryKeywords: []string{"iced coffee"}}
	brief.Normalize()
	return &Input{
		JobID:   "job-1",
		Brief:   brief,
		Outputs: raw,
		Budget:  NewTimeBudget(time.Minute),
		Calls:   &CallLog{},
	}
}

type progressLog struct {
	mu     sync.Mutex
	events []string
}

func (p *progressLog) fn(step, status, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, step+":"+status)
}

func TestNewExecutors_CoversEveryChunk(t *testing.T) {
	executors := NewExecutors(Dependencies{})
	require.Len(t, executors, len(jobs.ChunkOrder))
	for _, kind := range jobs.ChunkOrder {
		require.Contains(t, executors, kind)
		assert.Equal(t, kind, executors[kind].Kind())
	}
}

func TestMissingCredentials(t *testing.T) {
	executors := NewExecutors(Dependencies{})
	res := &types.ResearchOutput{Competitors: []types.CompetitorArticle{{URL: "a", FetchSuccess: true}}}

	tests := []struct {
		kind    jobs.ChunkKind
		outputs map[jobs.ChunkKind]any
		envVar  string
	}{
		{jobs.ChunkResearchSerp, nil, "SERPER_API_KEY"},
		{jobs.ChunkTopicExtraction, map[jobs.ChunkKind]any{jobs.ChunkResearch: res}, "GEMINI_API_KEY"},
		{jobs.ChunkAnalysis, nil, "GEMINI_API_KEY"},
		{jobs.ChunkDraft, nil, "GEMINI_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			_, err := executors[tt.kind].Execute(context.Background(), newInput(t, tt.outputs))
			var credErr *MissingCredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Equal(t, tt.envVar, credErr.EnvVar)
		})
	}
}

func TestSerpExecutor(t *testing.T) {
	searcher := &fakeSearcher{resp: &research.SearchResponse{
		Results: []types.SerpResult{
			{URL: "https://blog.example.com/cold-brew", Title: "Guide"},
			{URL: "https://www.youtube.com/watch?v=1", Title: "Video"},
			{URL: ""},
		},
		PeopleAlsoAsk: []string{"Is cold brew stronger?"},
	}}
	exec := NewExecutors(Dependencies{Searcher: searcher})[jobs.ChunkResearchSerp]
	in := newInput(t, nil)
	progress := &progressLog{}
	in.Progress = progress.fn

	out, err := exec.Execute(context.Background(), in)
	require.NoError(t, err)

	serp := out.(*types.SerpOutput)
	assert.Equal(t, "cold brew", serp.Query)
	require.Len(t, serp.Results, 2)
	assert.True(t, serp.Results[0].IsArticle)
	assert.False(t, serp.Results[1].IsArticle)
	assert.Equal(t, []string{"Is cold brew stronger?"}, serp.PeopleAlsoAsk)
	assert.Equal(t, []string{"serper:started", "serper:completed"}, progress.events)

	calls := in.Calls.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, research.ProviderSerper, calls[0].Provider)
}

func TestSerpExecutor_SearchFailure(t *testing.T) {
	searcher := &fakeSearcher{err: &research.APIError{Provider: "serper", StatusCode: http.StatusUnauthorized}}
	exec := NewExecutors(Dependencies{Searcher: searcher})[jobs.ChunkResearchSerp]

	_, err := exec.Execute(context.Background(), newInput(t, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to search competitors")
	assert.Equal(t, 1, searcher.calls)
}

func serpOutput(urls ...string) *types.SerpOutput {
	out := &types.SerpOutput{Query: "cold brew"}
	for i, u := range urls {
		out.Results = append(out.Results, types.SerpResult{URL: u, Title: "Result", Position: i + 1, IsArticle: true})
	}
	return out
}

func TestResearchExecutor(t *testing.T) {
	sources := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer sources.Close()

	grounding := `{"facts":[` +
		`{"fact":"Sales grew 20% in 2024.","source":"` + sources.URL + `/ok"},` +
		`{"fact":"Prices rose 5%.","source":"` + sources.URL + `/gone"},` +
		`{"fact":"No source here.","source":"n/a"}],"recentDevelopments":["New RTD cans"]}`

	fetcher := fetch.NewCompetitorFetcher(0, nil, fetch.Provider{Name: fetch.SourceJina, Reader: pageMap{
		"https://a.example.com/post": "one two three four",
		"https://b.example.com/post": "five six",
	}})
	deps := Dependencies{
		Fetcher:      fetcher,
		LLM:          &fakeLLM{responses: map[string]string{groundingPrompt: grounding}},
		SourceClient: sources.Client(),
		Now:          func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
	}
	in := newInput(t, map[jobs.ChunkKind]any{
		jobs.ChunkResearchSerp: serpOutput("https://a.example.com/post", "https://b.example.com/post", "https://c.example.com/post", "https://d.example.com/post"),
	})
	progress := &progressLog{}
	in.Progress = progress.fn

	out, err := NewExecutors(deps)[jobs.ChunkResearch].Execute(context.Background(), in)
	require.NoError(t, err)
	res := out.(*types.ResearchOutput)

	require.Len(t, res.Competitors, DefaultMaxCompetitors)
	assert.Equal(t, 2, res.FetchedCount())
	assert.False(t, res.Competitors[2].FetchSuccess)
	require.Len(t, res.SerpResults, 3)
	assert.Equal(t, "Title of https://a.example.com/post", res.SerpResults[0].Title)
	assert.Equal(t, 3, res.SerpResults[2].Position)

	require.Len(t, res.CurrentData.Facts, 1)
	assert.Equal(t, "Sales grew 20% in 2024.", res.CurrentData.Facts[0].Fact)
	assert.True(t, res.CurrentData.GroundingVerified)
	assert.Equal(t, "2025-06-01", res.CurrentData.LastUpdated)
	require.NotNil(t, res.CurrentData.SourceURLValidation)
	assert.Equal(t, 2, res.CurrentData.SourceURLValidation.Total)
	assert.Equal(t, 1, res.CurrentData.SourceURLValidation.Accessible)
	assert.Equal(t, []string{sources.URL + "/gone"}, res.CurrentData.SourceURLValidation.Inaccessible)

	assert.Contains(t, progress.events, "jina:completed")
	assert.Contains(t, progress.events, "grounding:completed")

	providers := map[string]int{}
	for _, c := range in.Calls.Calls() {
		providers[c.Provider]++
	}
	assert.Equal(t, 3, providers[fetch.SourceJina])
	assert.Equal(t, 1, providers[string(llm.ProviderGemini)])
}

func TestResearchExecutor_UsesSelectedURLs(t *testing.T) {
	reader := pageMap{"https://mine.example.com/a": "alpha beta"}
	deps := Dependencies{
		Fetcher: fetch.NewCompetitorFetcher(0, nil, fetch.Provider{Name: fetch.SourceJina, Reader: reader}),
		LLM:     &fakeLLM{responses: map[string]string{groundingPrompt: `{"facts":[]}`}},
	}
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkResearchSerp: serpOutput("https://other.example.com/x")})
	in.Brief.SelectedURLs = []string{"https://mine.example.com/a"}

	out, err := NewExecutors(deps)[jobs.ChunkResearch].Execute(context.Background(), in)
	require.NoError(t, err)
	res := out.(*types.ResearchOutput)
	require.Len(t, res.Competitors, 1)
	assert.Equal(t, "https://mine.example.com/a", res.Competitors[0].URL)
	assert.False(t, res.CurrentData.GroundingVerified)
	assert.Empty(t, res.CurrentData.Facts)
}

func TestResearchExecutor_GroundingFailureDegrades(t *testing.T) {
	deps := Dependencies{
		Fetcher: fetch.NewCompetitorFetcher(0, nil, fetch.Provider{Name: fetch.SourceJina, Reader: pageMap{"https://a.example.com/p": "text"}}),
		LLM:     &fakeLLM{errs: map[string]error{groundingPrompt: errors.New("quota")}},
	}
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkResearchSerp: serpOutput("https://a.example.com/p")})

	out, err := NewExecutors(deps)[jobs.ChunkResearch].Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, types.EmptyCurrentData(), out.(*types.ResearchOutput).CurrentData)
}

func TestResearchExecutor_NoArticlesFetched(t *testing.T) {
	deps := Dependencies{
		Fetcher: fetch.NewCompetitorFetcher(0, nil, fetch.Provider{Name: fetch.SourceJina, Reader: pageMap{}}),
		LLM:     &fakeLLM{responses: map[string]string{groundingPrompt: `{"facts":[]}`}},
	}
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkResearchSerp: serpOutput("https://a.example.com/p")})
	progress := &progressLog{}
	in.Progress = progress.fn

	_, err := NewExecutors(deps)[jobs.ChunkResearch].Execute(context.Background(), in)
	require.ErrorIs(t, err, ErrNoArticlesFetched)
	assert.Contains(t, progress.events, "jina:failed")
}

func TestResearchExecutor_NoURLs(t *testing.T) {
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkResearchSerp: &types.SerpOutput{}})
	_, err := NewExecutors(Dependencies{})[jobs.ChunkResearch].Execute(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no competitor URLs")
}

func TestResearchExecutor_RequiresSerpOutput(t *testing.T) {
	_, err := NewExecutors(Dependencies{})[jobs.ChunkResearch].Execute(context.Background(), newInput(t, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "research_serp output is not available")
}

func researchOutput() *types.ResearchOutput {
	return &types.ResearchOutput{
		Competitors: []types.CompetitorArticle{
			{URL: "https://b.example.com", Title: "B", Content: "bbb", WordCount: 1800, FetchSuccess: true},
			{URL: "https://a.example.com", Title: "A", Content: "aaa", WordCount: 2200, FetchSuccess: true},
			{URL: "https://c.example.com", FetchSuccess: false},
		},
		CurrentData: types.CurrentData{Facts: []types.Fact{{Fact: "Sales grew 20%.", Source: "https://x.example.com"}}},
	}
}

func TestTopicExecutor(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{topicsPrompt: topicsJSON}}
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkResearch: researchOutput()})

	out, err := NewExecutors(Dependencies{LLM: fake})[jobs.ChunkTopicExtraction].Execute(context.Background(), in)
	require.NoError(t, err)
	topics := out.(*types.TopicOutput)

	assert.Equal(t, "https://a.example.com|https://b.example.com|https://c.example.com", topics.CompetitorURLHash)
	require.Len(t, topics.Extraction.Topics, 1)
	assert.Equal(t, 2000, topics.Extraction.WordCount.CompetitorAverage)

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "### [1] B")
	assert.Contains(t, fake.prompts[0], "### [2] A")
	assert.NotContains(t, fake.prompts[0], "[3]")
}

func TestTopicExecutor_SchemaViolation(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{topicsPrompt: `{"topics":[]}`}}
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkResearch: researchOutput()})

	_, err := NewExecutors(Dependencies{LLM: fake})[jobs.ChunkTopicExtraction].Execute(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic extraction failed")
	assert.Len(t, fake.prompts, 1, "validation failures are not retried")
}

func TestCompetitorURLHash(t *testing.T) {
	a := []types.CompetitorArticle{{URL: "z"}, {URL: "a"}}
	b := []types.CompetitorArticle{{URL: "a"}, {URL: "z"}}
	assert.Equal(t, CompetitorURLHash(a), CompetitorURLHash(b))
	assert.Equal(t, "a|z", CompetitorURLHash(a))
}

func analysisInput(t *testing.T, preset string, custom int) *Input {
	var extraction types.TopicExtraction
	require.NoError(t, json.Unmarshal([]byte(topicsJSON), &extraction))
	res := researchOutput()
	in := newInput(t, map[jobs.ChunkKind]any{
		jobs.ChunkResearch:        res,
		jobs.ChunkTopicExtraction: &types.TopicOutput{CompetitorURLHash: CompetitorURLHash(res.Competitors), Extraction: extraction},
	})
	in.Brief.WordCountPreset = preset
	in.Brief.WordCountCustom = custom
	return in
}

func TestAnalysisExecutor(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{briefPrompt: briefJSON}}
	in := analysisInput(t, types.PresetInDepth, 0)

	out, err := NewExecutors(Dependencies{LLM: fake})[jobs.ChunkAnalysis].Execute(context.Background(), in)
	require.NoError(t, err)
	brief := out.(*types.ResearchBrief)

	assert.Equal(t, "cold brew", brief.Keyword.Primary)
	assert.Equal(t, []string{"iced coffee"}, brief.Keyword.Secondary)
	assert.Equal(t, []string{}, brief.Keyword.PASF)
	assert.Equal(t, 3200, brief.WordCount.Target)
	assert.Equal(t, types.WordCountNote, brief.WordCount.Note)
	assert.Equal(t, 2, brief.Outline.TotalSections)
	assert.Equal(t, 500, brief.Outline.EstimatedWordCount)
	assert.Equal(t, []string{"What Is Cold Brew", "Frequently Asked Questions"}, brief.Outline.H2s())
	assert.Equal(t, "friendly", brief.EditorialStyle.Tone)
	assert.Equal(t, []string{"storage safety"}, brief.ExtraValueThemes)
	assert.Len(t, brief.CurrentData.Facts, 1)

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Word count target: 3200")
	assert.Contains(t, fake.prompts[0], "People also search for: none")
}

func TestResolveWordCount(t *testing.T) {
	tests := []struct {
		name     string
		preset   string
		custom   int
		guidance types.CompetitorWordCount
		average  int
		want     int
	}{
		{"concise preset", types.PresetConcise, 0, types.CompetitorWordCount{Recommended: 4000}, 0, 1250},
		{"standard preset", types.PresetStandard, 0, types.CompetitorWordCount{}, 0, 2000},
		{"custom", types.PresetCustom, 4200, types.CompetitorWordCount{}, 0, 4200},
		{"auto uses recommendation", types.PresetAuto, 0, types.CompetitorWordCount{Recommended: 2600, CompetitorAverage: 1000}, 0, 2600},
		{"auto falls back to average", types.PresetAuto, 0, types.CompetitorWordCount{}, 300, 500},
		{"auto clamps", types.PresetAuto, 0, types.CompetitorWordCount{CompetitorAverage: 9000}, 0, 6000},
		{"auto default", types.PresetAuto, 0, types.CompetitorWordCount{}, 0, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brief := &types.ContentBrief{WordCountPreset: tt.preset, WordCountCustom: tt.custom}
			got := resolveWordCount(brief, tt.guidance, tt.average)
			assert.Equal(t, tt.want, got.Target)
			assert.NotEmpty(t, got.Note)
		})
	}
}

func briefOutput() *types.ResearchBrief {
	return &types.ResearchBrief{
		Keyword: types.BriefKeywords{Primary: "Cold Brew"},
		Outline: types.Outline{Sections: []types.OutlineSection{
			{Heading: "What Is Cold Brew", Level: "h2"},
			{Heading: "Frequently Asked Questions", Level: "h2"},
		}},
		WordCount:        types.BriefWordCount{Target: 2000},
		ExtraValueThemes: []string{"storage"},
	}
}

func TestDraftExecutor(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{draftPrompt: draftJSON}}
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkAnalysis: briefOutput()})

	out, err := NewExecutors(Dependencies{LLM: fake})[jobs.ChunkDraft].Execute(context.Background(), in)
	require.NoError(t, err)
	draft := out.(*types.DraftOutput)

	assert.Equal(t, DraftTitle, draft.Title)
	assert.Equal(t, "", draft.MetaDescription)
	assert.Equal(t, "cold-brew", draft.SuggestedSlug)
	assert.Equal(t, []string{"What Is Cold Brew", "Frequently Asked Questions"}, draft.Outline)
	assert.Equal(t, []string{"Coffee"}, draft.SuggestedCategories)
	assert.Equal(t, []string{}, draft.SuggestedTags)
	assert.Positive(t, draft.WordCount)

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "under 300 characters")
	assert.Contains(t, fake.prompts[0], "about 2000 words")
}

func TestDraftExecutor_EmptyOutline(t *testing.T) {
	brief := briefOutput()
	brief.Outline.Sections = nil
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkAnalysis: brief})

	_, err := NewExecutors(Dependencies{LLM: &fakeLLM{}})[jobs.ChunkDraft].Execute(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sections")
}

func TestPostprocessExecutor(t *testing.T) {
	longAnswer := strings.Repeat("This answer keeps going. ", 20)
	draft := &types.DraftOutput{
		Title:         DraftTitle,
		SuggestedSlug: "cold-brew",
		Content: `<h2>Cold Brew Basics</h2><p>Cold brew sales grew 20% this year.</p>` +
			`<h2>Frequently Asked Questions</h2><h3>How long does it keep?</h3><p>` + longAnswer + `</p>`,
	}
	in := newInput(t, map[jobs.ChunkKind]any{
		jobs.ChunkResearch: researchOutput(),
		jobs.ChunkAnalysis: briefOutput(),
		jobs.ChunkDraft:    draft,
	})
	progress := &progressLog{}
	in.Progress = progress.fn

	deps := Dependencies{Now: func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }}
	out, err := NewExecutors(deps)[jobs.ChunkPostprocess].Execute(context.Background(), in)
	require.NoError(t, err)
	v := out.(*types.ValidationOutput)

	assert.False(t, v.FAQEnforcement.Passed)
	require.Len(t, v.FAQEnforcement.Violations, 1)
	assert.NotContains(t, v.FinalContent, longAnswer)
	assert.NotEmpty(t, v.Audit.Checks)
	assert.True(t, v.FactCheck.Verified)
	assert.Empty(t, v.FactCheck.Hallucinations)
	assert.Equal(t, "2025-01-02", v.SchemaMarkup.Article["datePublished"])
	assert.NotNil(t, v.SchemaMarkup.FAQ)
	assert.Empty(t, in.Calls.Calls())
	assert.Contains(t, progress.events, "fact-check:completed")
}

type failingAuditor struct{}

func (failingAuditor) Audit(context.Context, content.AuditInput) (types.AuditResult, error) {
	return types.AuditResult{}, errors.New("auditor down")
}

func TestPostprocessExecutor_AuditorFailure(t *testing.T) {
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkDraft: &types.DraftOutput{Content: "<p>x</p>"}})
	_, err := NewExecutors(Dependencies{Auditor: failingAuditor{}})[jobs.ChunkPostprocess].Execute(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to audit article")
}

func TestPostprocessExecutor_EmptyDraft(t *testing.T) {
	in := newInput(t, map[jobs.ChunkKind]any{jobs.ChunkDraft: &types.DraftOutput{}})
	_, err := NewExecutors(Dependencies{})[jobs.ChunkPostprocess].Execute(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content")
}
