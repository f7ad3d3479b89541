package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jonathan/content-pipeline/internal/types"
)

// DefaultResultCount is how many organic results a search asks for.
const DefaultResultCount = 9

// Provider names, matching the cost rate table.
const (
	ProviderSerper       = "serper"
	ProviderCustomSearch = "customsearch"
)

// SearchResponse is the organic results of one query plus related questions
// when the provider reports them.
type SearchResponse struct {
	Results       []types.SerpResult
	PeopleAlsoAsk []string
}

// Searcher runs a web search for a keyword.
type Searcher interface {
	Search(ctx context.Context, query string, num int) (*SearchResponse, error)
	// Provider names the backing service for metrics and cost.
	Provider() string
}

// APIError is a non-2xx response from a search provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("%s API error: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// SerperEndpoint is the Serper search API.
const SerperEndpoint = "https://google.serper.dev/search"

// SerperClient searches Google through serper.dev.
type SerperClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// SerperOption customizes a SerperClient.
type SerperOption func(*SerperClient)

// WithSerperEndpoint points the client at a different endpoint.
func WithSerperEndpoint(endpoint string) SerperOption {
	return func(c *SerperClient) { c.endpoint = endpoint }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) SerperOption {
	return func(c *SerperClient) { c.httpClient = hc }
}

// NewSerperClient creates a Serper client.
func NewSerperClient(apiKey string, opts ...SerperOption) *SerperClient {
	c := &SerperClient{
		apiKey:     apiKey,
		endpoint:   SerperEndpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns "serper".
func (c *SerperClient) Provider() string { return ProviderSerper }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Link     string `json:"link"`
		Title    string `json:"title"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
	PeopleAlsoAsk []struct {
		Question string `json:"question"`
	} `json:"peopleAlsoAsk"`
}

// Search posts the query to Serper and classifies the organic results.
func (c *SerperClient) Search(ctx context.Context, query string, num int) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if num <= 0 {
		num = DefaultResultCount
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: num})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call serper: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read serper response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Provider: ProviderSerper, StatusCode: resp.StatusCode, Body: string(data)}
	}

	var parsed serperResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse serper response: %w", err)
	}

	results := make([]types.SerpResult, 0, len(parsed.Organic))
	for _, o := range parsed.Organic {
		results = append(results, types.SerpResult{
			URL:      o.Link,
			Title:    o.Title,
			Snippet:  o.Snippet,
			Position: o.Position,
		})
	}
	out := &SearchResponse{Results: Classify(results)}
	for _, q := range parsed.PeopleAlsoAsk {
		if s := strings.TrimSpace(q.Question); s != "" {
			out.PeopleAlsoAsk = append(out.PeopleAlsoAsk, s)
		}
	}
	if len(out.Results) > num {
		out.Results = out.Results[:num]
	}
	return out, nil
}

// GoogleSearcher searches through the Google Programmable Search (Custom
// Search JSON) API.
type GoogleSearcher struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogleSearcher creates a GoogleSearcher for the search engine cx.
func NewGoogleSearcher(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*GoogleSearcher, error) {
	if cx == "" {
		return nil, fmt.Errorf("search engine id (cx) is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &GoogleSearcher{svc: svc, cx: cx}, nil
}

// Provider returns "customsearch".
func (g *GoogleSearcher) Provider() string { return ProviderCustomSearch }

// Search runs the query. The API returns at most 10 results per page.
func (g *GoogleSearcher) Search(ctx context.Context, query string, num int) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if num <= 0 {
		num = DefaultResultCount
	}
	if num > 10 {
		num = 10
	}

	resp, err := g.svc.Cse.List().Cx(g.cx).Q(query).Num(int64(num)).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{Provider: ProviderCustomSearch, StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("failed to call customsearch: %w", err)
	}

	results := make([]types.SerpResult, 0, len(resp.Items))
	for i, item := range resp.Items {
		results = append(results, types.SerpResult{
			URL:      item.Link,
			Title:    item.Title,
			Snippet:  item.Snippet,
			Position: i + 1,
		})
	}
	return &SearchResponse{Results: Classify(results)}, nil
}
