// Package config provides configuration loading and validation for the
// pipeline server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/content-pipeline/internal/db"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/metrics"
)

// Config represents the pipeline configuration that can be loaded from a JSON
// or YAML file. Missing values are filled from Defaults, and a few settings can
// be overridden from the environment with ApplyEnv.
type Config struct {
	LogMode string `json:"log_mode,omitempty" yaml:"log_mode,omitempty"` // "development" or "production"

	// BudgetsMs is the wall-clock budget of each chunk, keyed by chunk kind.
	BudgetsMs map[string]int64 `json:"budgets_ms,omitempty" yaml:"budgets_ms,omitempty"`
	Rates     metrics.Rates    `json:"rates,omitempty" yaml:"rates,omitempty"`
	Models    ModelsConfig     `json:"models" yaml:"models"`

	Store   StoreConfig   `json:"store" yaml:"store"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Fetch   FetchConfig   `json:"fetch" yaml:"fetch"`
	Content ContentConfig `json:"content" yaml:"content"`

	// Credentials. Usually supplied through the environment.
	GeminiAPIKey       string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty"`
	SerperAPIKey       string `json:"serper_api_key,omitempty" yaml:"serper_api_key,omitempty"`
	GoogleSearchAPIKey string `json:"google_search_api_key,omitempty" yaml:"google_search_api_key,omitempty"`
	GoogleSearchCX     string `json:"google_search_cx,omitempty" yaml:"google_search_cx,omitempty"`
	JinaAPIKey         string `json:"jina_api_key,omitempty" yaml:"jina_api_key,omitempty"`
}

// ModelsConfig names the model used for each tier.
type ModelsConfig struct {
	Lite     string `json:"lite,omitempty" yaml:"lite,omitempty"`
	Standard string `json:"standard,omitempty" yaml:"standard,omitempty"`
	Advanced string `json:"advanced,omitempty" yaml:"advanced,omitempty"`
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Backend        string `json:"backend,omitempty" yaml:"backend,omitempty"` // auto, memory, postgres, sqlite, redis
	DatabaseURL    string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	SQLitePath     string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	RedisAddr      string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RetentionHours int    `json:"retention_hours,omitempty" yaml:"retention_hours,omitempty"` // 0 disables cleanup on create
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `json:"port,omitempty" yaml:"port,omitempty"`
	EventBuffer    int      `json:"event_buffer,omitempty" yaml:"event_buffer,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// FetchConfig configures competitor page fetching.
type FetchConfig struct {
	UseBrowser        bool   `json:"use_browser,omitempty" yaml:"use_browser,omitempty"`
	MaxCompetitorURLs int    `json:"max_competitor_urls,omitempty" yaml:"max_competitor_urls,omitempty"`
	ContentCharLimit  int    `json:"content_char_limit,omitempty" yaml:"content_char_limit,omitempty"`
	Searcher          string `json:"searcher,omitempty" yaml:"searcher,omitempty"` // serper or customsearch
}

// ContentConfig tunes the default auditor.
type ContentConfig struct {
	FAQAnswerLimit int `json:"faq_answer_limit,omitempty" yaml:"faq_answer_limit,omitempty"`
}

// Searcher names
const (
	SearcherSerper       = "serper"
	SearcherCustomSearch = "customsearch"
)

// DefaultBudgetsMs returns the built-in chunk budgets.
func DefaultBudgetsMs() map[string]int64 {
	return map[string]int64{
		string(jobs.ChunkResearchSerp):    30000,
		string(jobs.ChunkResearch):        45000,
		string(jobs.ChunkTopicExtraction): 30000,
		string(jobs.ChunkAnalysis):        90000,
		string(jobs.ChunkDraft):           180000,
		string(jobs.ChunkPostprocess):     15000,
	}
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	models := llm.DefaultGeminiConfig().Models
	return Config{
		LogMode:   "development",
		BudgetsMs: DefaultBudgetsMs(),
		Rates:     metrics.DefaultRates(),
		Models: ModelsConfig{
			Lite:     models[llm.TierLite],
			Standard: models[llm.TierStandard],
			Advanced: models[llm.TierAdvanced],
		},
		Store: StoreConfig{
			Backend:        db.BackendAuto,
			RetentionHours: 72,
		},
		Server: ServerConfig{
			Port:           8080,
			EventBuffer:    64,
			AllowedOrigins: []string{"*"},
		},
		Fetch: FetchConfig{
			MaxCompetitorURLs: 3,
			ContentCharLimit:  8000,
			Searcher:          SearcherSerper,
		},
		Content: ContentConfig{
			FAQAnswerLimit: 300,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file. The format is chosen
// by extension: .yaml and .yml are YAML, anything else is JSON.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Load is the full loading sequence used by the binaries: file (optional),
// defaults, environment, validation.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// Budgets and rates are merged per key.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.LogMode == "" {
		result.LogMode = defaults.LogMode
	}

	budgets := make(map[string]int64, len(defaults.BudgetsMs))
	for k, v := range defaults.BudgetsMs {
		budgets[k] = v
	}
	for k, v := range c.BudgetsMs {
		if v > 0 {
			budgets[k] = v
		}
	}
	result.BudgetsMs = budgets

	if defaults.Rates != nil {
		result.Rates = defaults.Rates.Merge(c.Rates)
	}

	// Models
	if result.Models.Lite == "" {
		result.Models.Lite = defaults.Models.Lite
	}
	if result.Models.Standard == "" {
		result.Models.Standard = defaults.Models.Standard
	}
	if result.Models.Advanced == "" {
		result.Models.Advanced = defaults.Models.Advanced
	}

	// Store
	if result.Store.Backend == "" {
		result.Store.Backend = defaults.Store.Backend
	}
	if result.Store.DatabaseURL == "" {
		result.Store.DatabaseURL = defaults.Store.DatabaseURL
	}
	if result.Store.SQLitePath == "" {
		result.Store.SQLitePath = defaults.Store.SQLitePath
	}
	if result.Store.RedisAddr == "" {
		result.Store.RedisAddr = defaults.Store.RedisAddr
	}
	if result.Store.RetentionHours == 0 {
		result.Store.RetentionHours = defaults.Store.RetentionHours
	}

	// Server
	if result.Server.Port == 0 {
		result.Server.Port = defaults.Server.Port
	}
	if result.Server.EventBuffer == 0 {
		result.Server.EventBuffer = defaults.Server.EventBuffer
	}
	if len(result.Server.AllowedOrigins) == 0 {
		result.Server.AllowedOrigins = append([]string(nil), defaults.Server.AllowedOrigins...)
	}

	// Fetch. UseBrowser is a bool and cannot be told apart from unset, so it
	// is never merged.
	if result.Fetch.MaxCompetitorURLs == 0 {
		result.Fetch.MaxCompetitorURLs = defaults.Fetch.MaxCompetitorURLs
	}
	if result.Fetch.ContentCharLimit == 0 {
		result.Fetch.ContentCharLimit = defaults.Fetch.ContentCharLimit
	}
	if result.Fetch.Searcher == "" {
		result.Fetch.Searcher = defaults.Fetch.Searcher
	}

	if result.Content.FAQAnswerLimit == 0 {
		result.Content.FAQAnswerLimit = defaults.Content.FAQAnswerLimit
	}

	// Credentials
	if result.GeminiAPIKey == "" {
		result.GeminiAPIKey = defaults.GeminiAPIKey
	}
	if result.SerperAPIKey == "" {
		result.SerperAPIKey = defaults.SerperAPIKey
	}
	if result.GoogleSearchAPIKey == "" {
		result.GoogleSearchAPIKey = defaults.GoogleSearchAPIKey
	}
	if result.GoogleSearchCX == "" {
		result.GoogleSearchCX = defaults.GoogleSearchCX
	}
	if result.JinaAPIKey == "" {
		result.JinaAPIKey = defaults.JinaAPIKey
	}

	return result
}

// ApplyEnv overrides settings from environment variables. Unset variables leave
// the current value alone.
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	setString("STORE_BACKEND", &c.Store.Backend)
	setString("DATABASE_URL", &c.Store.DatabaseURL)
	setString("REDIS_ADDR", &c.Store.RedisAddr)
	setString("SQLITE_PATH", &c.Store.SQLitePath)
	setString("GEMINI_API_KEY", &c.GeminiAPIKey)
	setString("SERPER_API_KEY", &c.SerperAPIKey)
	setString("GOOGLE_SEARCH_API_KEY", &c.GoogleSearchAPIKey)
	setString("GOOGLE_SEARCH_CX", &c.GoogleSearchCX)
	setString("JINA_API_KEY", &c.JinaAPIKey)
	setString("LOG_MODE", &c.LogMode)

	if raw := os.Getenv("PIPELINE_COST_RATES"); strings.TrimSpace(raw) != "" {
		var override metrics.Rates
		if err := json.Unmarshal([]byte(raw), &override); err != nil {
			return fmt.Errorf("invalid PIPELINE_COST_RATES: %w", err)
		}
		base := c.Rates
		if base == nil {
			base = metrics.DefaultRates()
		}
		c.Rates = base.Merge(override)
	}

	if raw := os.Getenv("EVENT_BUFFER"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid EVENT_BUFFER: %v", err)
		}
		c.Server.EventBuffer = n
	}

	return nil
}

// Validate checks that the configuration has valid values. Credentials are not
// required here; executors report a missing key when they run.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case "", db.BackendAuto, db.BackendMemory, db.BackendPostgres, db.BackendSQLite, db.BackendRedis:
	default:
		return fmt.Errorf("config error: unknown store backend %q", c.Store.Backend)
	}

	for kind, ms := range c.BudgetsMs {
		if _, err := jobs.ParseChunkKind(kind); err != nil {
			return fmt.Errorf("config error: 'budgets_ms' has unknown chunk %q", kind)
		}
		if ms <= 0 {
			return fmt.Errorf("config error: budget for %s must be positive", kind)
		}
	}

	if c.Store.RetentionHours < 0 {
		return fmt.Errorf("config error: 'retention_hours' must be non-negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Server.Port)
	}
	if c.Server.EventBuffer < 0 {
		return fmt.Errorf("config error: 'event_buffer' must be non-negative")
	}
	if c.Fetch.MaxCompetitorURLs < 0 {
		return fmt.Errorf("config error: 'max_competitor_urls' must be non-negative")
	}
	if c.Fetch.ContentCharLimit < 0 {
		return fmt.Errorf("config error: 'content_char_limit' must be non-negative")
	}
	switch c.Fetch.Searcher {
	case "", SearcherSerper, SearcherCustomSearch:
	default:
		return fmt.Errorf("config error: unknown searcher %q", c.Fetch.Searcher)
	}
	if c.Content.FAQAnswerLimit < 0 {
		return fmt.Errorf("config error: 'faq_answer_limit' must be non-negative")
	}
	for provider, rate := range c.Rates {
		if rate.CallCost < 0 || rate.InputPer1k < 0 || rate.OutputPer1k < 0 {
			return fmt.Errorf("config error: negative rate for %s", provider)
		}
	}

	return nil
}

// Budgets returns the chunk budgets as durations. Chunks without an entry get
// the built-in default.
func (c *Config) Budgets() map[jobs.ChunkKind]time.Duration {
	defaults := DefaultBudgetsMs()
	out := make(map[jobs.ChunkKind]time.Duration, len(jobs.ChunkOrder))
	for _, k := range jobs.ChunkOrder {
		ms := c.BudgetsMs[string(k)]
		if ms <= 0 {
			ms = defaults[string(k)]
		}
		out[k] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// StoreOptions maps the store settings to db.Options.
func (c *Config) StoreOptions() db.Options {
	return db.Options{
		Backend:     c.Store.Backend,
		DatabaseURL: c.Store.DatabaseURL,
		SQLitePath:  c.Store.SQLitePath,
		RedisAddr:   c.Store.RedisAddr,
	}
}

// Retention returns how old a job must be before cleanup removes it. Zero
// disables cleanup.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Store.RetentionHours) * time.Hour
}

// LLMConfig builds the model tier configuration.
func (c *Config) LLMConfig() *llm.Config {
	cfg := llm.DefaultGeminiConfig()
	if c.Models.Lite != "" {
		cfg = cfg.WithModel(llm.TierLite, c.Models.Lite)
	}
	if c.Models.Standard != "" {
		cfg = cfg.WithModel(llm.TierStandard, c.Models.Standard)
	}
	if c.Models.Advanced != "" {
		cfg = cfg.WithModel(llm.TierAdvanced, c.Models.Advanced)
	}
	return cfg
}
