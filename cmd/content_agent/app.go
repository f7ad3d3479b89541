package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/db"
	"github.com/jonathan/content-pipeline/internal/fetch"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/logger"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/pipeline"
	"github.com/jonathan/content-pipeline/internal/pipeline/steps"
	"github.com/jonathan/content-pipeline/internal/research"
)

const browserTimeout = 30 * time.Second

// app holds everything a command needs to run or inspect jobs.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   jobs.Store
	backend string
	warning string
	redis   *goredis.Client
	sink    metrics.Sink
	orch    *pipeline.Orchestrator
	closers []func() error
}

// newApp loads configuration and opens the store. Executors are only built
// when withPipeline is set, since inspection commands never call a service.
func newApp(ctx context.Context, withPipeline bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error { log.Sync(); return nil })

	opened, err := db.OpenStore(ctx, cfg.StoreOptions(), log)
	if err != nil {
		return nil, err
	}
	a.store = opened.Store
	a.backend = opened.Store.Backend()
	a.warning = opened.Warning
	a.closers = append(a.closers, opened.Store.Close)

	a.sink = metrics.NewRingSink()
	if cfg.Store.RedisAddr != "" {
		rdb, err := db.ConnectRedis(ctx, cfg.Store.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, metrics and events stay in process", "error", err)
		} else {
			a.redis = rdb
			a.sink = metrics.NewRedisSink(rdb)
			a.closers = append(a.closers, rdb.Close)
		}
	}

	if !withPipeline {
		return a, nil
	}

	deps, err := a.dependencies(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch, err = pipeline.New(pipeline.Config{
		Store:     a.store,
		Executors: steps.NewExecutors(deps),
		Budgets:   cfg.Budgets(),
		Rates:     cfg.Rates,
		Sink:      a.sink,
		Logger:    log,
		Warning:   a.warning,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return a, nil
}

// dependencies builds the external services from configuration. Missing
// credentials leave a service nil so the chunks that need it fail with a
// clear message instead of the whole process refusing to start.
func (a *app) dependencies(ctx context.Context) (steps.Dependencies, error) {
	cfg := a.cfg
	deps := steps.Dependencies{
		MaxCompetitors: cfg.Fetch.MaxCompetitorURLs,
		FAQLimit:       cfg.Content.FAQAnswerLimit,
		Log:            a.log,
	}

	switch cfg.Fetch.Searcher {
	case config.SearcherCustomSearch:
		if cfg.GoogleSearchAPIKey != "" && cfg.GoogleSearchCX != "" {
			gs, err := research.NewGoogleSearcher(ctx, cfg.GoogleSearchAPIKey, cfg.GoogleSearchCX)
			if err != nil {
				return deps, err
			}
			deps.Searcher = gs
		}
	default:
		if cfg.SerperAPIKey != "" {
			deps.Searcher = research.NewSerperClient(cfg.SerperAPIKey)
		}
	}
	if deps.Searcher == nil {
		a.log.Warn("no search credentials configured, research_serp will fail", "searcher", cfg.Fetch.Searcher)
	}

	deps.Fetcher = a.competitorFetcher()

	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewClient(ctx, cfg.LLMConfig(), cfg.GeminiAPIKey)
		if err != nil {
			return deps, fmt.Errorf("failed to create LLM client: %w", err)
		}
		deps.LLM = client
		a.closers = append(a.closers, client.Close)
	} else {
		a.log.Warn("GEMINI_API_KEY not set, model-backed chunks will fail")
	}
	return deps, nil
}

// competitorFetcher reads pages through Jina first and falls back to a direct
// fetch, with both cached in Redis when available.
func (a *app) competitorFetcher() *fetch.CompetitorFetcher {
	var cache fetch.PageCache = fetch.NewMemoryPageCache(fetch.DefaultPageCacheTTL)
	if a.redis != nil {
		cache = fetch.NewRedisPageCache(a.redis, fetch.DefaultPageCacheTTL)
	}

	var renderer fetch.Renderer
	if a.cfg.Fetch.UseBrowser {
		renderer = fetch.NewBrowserRenderer(browserTimeout, a.log)
	}

	jina := fetch.NewJinaReader(a.cfg.JinaAPIKey, fetch.JinaEndpoint, nil)
	direct := fetch.NewDirectReader(fetch.DefaultOptions(), renderer, a.log)
	return fetch.NewCompetitorFetcher(a.cfg.Fetch.ContentCharLimit, a.log,
		fetch.Provider{Name: fetch.SourceJina, Reader: fetch.NewCachedReader(jina, cache, a.log)},
		fetch.Provider{Name: fetch.SourceDirect, Reader: fetch.NewCachedReader(direct, cache, a.log)},
	)
}

// Close releases everything newApp opened, newest first.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && a.log != nil {
		a.log.Warn("failed to close resources", "error", err)
	}
}
