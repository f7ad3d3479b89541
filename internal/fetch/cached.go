package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonathan/content-pipeline/internal/logger"
)

// DefaultPageCacheTTL is how long a fetched page is reused.
const DefaultPageCacheTTL = 24 * time.Hour

// PageCache stores fetched pages by URL.
type PageCache interface {
	Get(ctx context.Context, url string) (*Page, error) // nil, nil on miss
	Set(ctx context.Context, url string, page *Page) error
}

// PageKey returns the cache key for a URL.
func PageKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return "pipeline:page:" + hex.EncodeToString(sum[:])
}

type cachedPage struct {
	page    Page
	expires time.Time
}

// MemoryPageCache is a process-local PageCache.
type MemoryPageCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	pages map[string]cachedPage
	now   func() time.Time
}

// NewMemoryPageCache creates an in-memory cache. A non-positive ttl uses
// DefaultPageCacheTTL.
func NewMemoryPageCache(ttl time.Duration) *MemoryPageCache {
	if ttl <= 0 {
		ttl = DefaultPageCacheTTL
	}
	return &MemoryPageCache{ttl: ttl, pages: make(map[string]cachedPage), now: time.Now}
}

func (c *MemoryPageCache) Get(_ context.Context, url string) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.pages[PageKey(url)]
	if !ok {
		return nil, nil
	}
	if c.now().After(entry.expires) {
		delete(c.pages, PageKey(url))
		return nil, nil
	}
	page := entry.page
	return &page, nil
}

func (c *MemoryPageCache) Set(_ context.Context, url string, page *Page) error {
	if page == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *page
	stored.FromCache = false
	c.pages[PageKey(url)] = cachedPage{page: stored, expires: c.now().Add(c.ttl)}
	return nil
}

// RedisPageCache shares fetched pages across instances.
type RedisPageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPageCache creates a Redis-backed cache on an existing client.
func NewRedisPageCache(client *redis.Client, ttl time.Duration) *RedisPageCache {
	if ttl <= 0 {
		ttl = DefaultPageCacheTTL
	}
	return &RedisPageCache{client: client, ttl: ttl}
}

func (c *RedisPageCache) Get(ctx context.Context, url string) (*Page, error) {
	raw, err := c.client.Get(ctx, PageKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached page: %w", err)
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode cached page: %w", err)
	}
	return &page, nil
}

func (c *RedisPageCache) Set(ctx context.Context, url string, page *Page) error {
	if page == nil {
		return nil
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}
	if err := c.client.Set(ctx, PageKey(url), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache page: %w", err)
	}
	return nil
}

// CachedReader serves pages from a PageCache and reads through on a miss.
// Cache failures are logged and never fail the read.
type CachedReader struct {
	next  Reader
	cache PageCache
	log   *logger.Logger
}

// NewCachedReader wraps next with cache.
func NewCachedReader(next Reader, cache PageCache, log *logger.Logger) *CachedReader {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedReader{next: next, cache: cache, log: log}
}

func (r *CachedReader) Read(ctx context.Context, url string) (*Page, error) {
	if page, err := r.cache.Get(ctx, url); err != nil {
		r.log.Warn("page cache read failed", "url", url, "error", err)
	} else if page != nil {
		page.FromCache = true
		return page, nil
	}

	page, err := r.next.Read(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, url, page); err != nil {
		r.log.Warn("page cache write failed", "url", url, "error", err)
	}
	return page, nil
}
