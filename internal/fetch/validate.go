package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-pipeline/internal/types"
)

// sourceCheckTimeout caps one reachability check.
const sourceCheckTimeout = 5 * time.Second

// ValidateSourceURLs checks that fact source URLs respond. Duplicate and
// non-HTTP sources are ignored. A nil client uses a default one.
func ValidateSourceURLs(ctx context.Context, urls []string, client *http.Client) *types.SourceURLValidation {
	if client == nil {
		client = &http.Client{Timeout: sourceCheckTimeout}
	}

	seen := make(map[string]bool, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] || !strings.HasPrefix(u, "http") {
			continue
		}
		seen[u] = true
		unique = append(unique, u)
	}

	result := &types.SourceURLValidation{Total: len(unique), Inaccessible: []string{}}
	ok := make([]bool, len(unique))

	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for i, u := range unique {
		g.Go(func() error {
			ok[i] = reachable(ctx, client, u)
			return nil
		})
	}
	_ = g.Wait()

	for i, u := range unique {
		if ok[i] {
			result.Accessible++
		} else {
			result.Inaccessible = append(result.Inaccessible, u)
		}
	}
	return result
}

// reachable sends a HEAD request, retrying with GET for servers that reject HEAD.
func reachable(ctx context.Context, client *http.Client, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, sourceCheckTimeout)
	defer cancel()

	status := probe(ctx, client, http.MethodHead, url)
	if status == http.StatusMethodNotAllowed || status == http.StatusForbidden {
		status = probe(ctx, client, http.MethodGet, url)
	}
	return status > 0 && status < 400
}

func probe(ctx context.Context, client *http.Client, method, url string) int {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	_ = resp.Body.Close()
	return resp.StatusCode
}
