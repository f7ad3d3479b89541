package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/db"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
)

// clearEnv blanks every variable ApplyEnv reads so the host environment does
// not leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STORE_BACKEND", "DATABASE_URL", "REDIS_ADDR", "SQLITE_PATH",
		"GEMINI_API_KEY", "SERPER_API_KEY", "GOOGLE_SEARCH_API_KEY", "GOOGLE_SEARCH_CX",
		"JINA_API_KEY", "PIPELINE_COST_RATES", "LOG_MODE", "EVENT_BUFFER",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"log_mode": "production",
		"budgets_ms": {"draft": 240000},
		"store": {"backend": "sqlite", "sqlite_path": "/tmp/jobs.db", "retention_hours": 12},
		"server": {"port": 9090},
		"fetch": {"use_browser": true, "max_competitor_urls": 2}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "production", cfg.LogMode)
	assert.Equal(t, int64(240000), cfg.BudgetsMs["draft"])
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/jobs.db", cfg.Store.SQLitePath)
	assert.Equal(t, 12, cfg.Store.RetentionHours)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Fetch.UseBrowser)
	assert.Equal(t, 2, cfg.Fetch.MaxCompetitorURLs)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log_mode: production
budgets_ms:
  research: 60000
rates:
  serper:
    call_cost: 0.002
models:
  advanced: gemini-exp
store:
  backend: redis
  redis_addr: localhost:6379
server:
  event_buffer: 16
  allowed_origins:
    - https://app.example.com
content:
  faq_answer_limit: 250
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(60000), cfg.BudgetsMs["research"])
	assert.InDelta(t, 0.002, cfg.Rates["serper"].CallCost, 1e-9)
	assert.Equal(t, "gemini-exp", cfg.Models.Advanced)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 16, cfg.Server.EventBuffer)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 250, cfg.Content.FAQAnswerLimit)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{ invalid json }`)

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeFile(t, "config.yml", "store: [unclosed")

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	budgets := cfg.Budgets()
	assert.Equal(t, 30*time.Second, budgets[jobs.ChunkResearchSerp])
	assert.Equal(t, 45*time.Second, budgets[jobs.ChunkResearch])
	assert.Equal(t, 30*time.Second, budgets[jobs.ChunkTopicExtraction])
	assert.Equal(t, 90*time.Second, budgets[jobs.ChunkAnalysis])
	assert.Equal(t, 180*time.Second, budgets[jobs.ChunkDraft])
	assert.Equal(t, 15*time.Second, budgets[jobs.ChunkPostprocess])

	assert.Equal(t, db.BackendAuto, cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Fetch.MaxCompetitorURLs)
	assert.Equal(t, 8000, cfg.Fetch.ContentCharLimit)
	assert.Equal(t, 300, cfg.Content.FAQAnswerLimit)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLMConfig().GetModel(llm.TierAdvanced))
}

func TestMergeWithDefaults(t *testing.T) {
	partial := Config{
		BudgetsMs: map[string]int64{"draft": 1000, "analysis": 0},
		Models:    ModelsConfig{Standard: "custom-model"},
		Store:     StoreConfig{Backend: "postgres"},
		Server:    ServerConfig{Port: 9000},
	}

	merged := partial.MergeWithDefaults(Defaults())

	// Custom values should be preserved
	assert.Equal(t, int64(1000), merged.BudgetsMs["draft"])
	assert.Equal(t, "custom-model", merged.Models.Standard)
	assert.Equal(t, "postgres", merged.Store.Backend)
	assert.Equal(t, 9000, merged.Server.Port)

	// Default values should fill in empty fields
	assert.Equal(t, int64(90000), merged.BudgetsMs["analysis"])
	assert.Equal(t, int64(30000), merged.BudgetsMs["research_serp"])
	assert.Equal(t, "gemini-2.5-flash-lite", merged.Models.Lite)
	assert.Equal(t, 64, merged.Server.EventBuffer)
	assert.Equal(t, 300, merged.Content.FAQAnswerLimit)
	assert.Contains(t, merged.Rates, "gemini")

	// The receiver is not modified
	assert.Equal(t, int64(0), partial.BudgetsMs["analysis"])
}

func TestMergeWithDefaults_EmptyDefaults(t *testing.T) {
	cfg := Config{LogMode: "production"}

	merged := cfg.MergeWithDefaults(Config{})

	assert.Equal(t, "production", merged.LogMode)
	assert.Empty(t, merged.Store.Backend)
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/pipeline")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("JINA_API_KEY", "jina-key")
	t.Setenv("EVENT_BUFFER", "8")
	t.Setenv("PIPELINE_COST_RATES", `{"serper": {"callCost": 0.01}}`)

	cfg := Defaults()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "postgres://localhost/pipeline", cfg.Store.DatabaseURL)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "gem-key", cfg.GeminiAPIKey)
	assert.Equal(t, "jina-key", cfg.JinaAPIKey)
	assert.Equal(t, 8, cfg.Server.EventBuffer)
	assert.InDelta(t, 0.01, cfg.Rates["serper"].CallCost, 1e-9)
	assert.InDelta(t, 0.002, cfg.Rates["jina"].CallCost, 1e-9, "other providers keep defaults")
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad rates", key: "PIPELINE_COST_RATES", val: "{not json"},
		{name: "bad event buffer", key: "EVENT_BUFFER", val: "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			cfg := Defaults()
			err := cfg.ApplyEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "mongo" }, wantErr: "unknown store backend"},
		{name: "unknown chunk budget", mutate: func(c *Config) { c.BudgetsMs["review"] = 10 }, wantErr: "unknown chunk"},
		{name: "zero budget", mutate: func(c *Config) { c.BudgetsMs["draft"] = 0 }, wantErr: "must be positive"},
		{name: "negative retention", mutate: func(c *Config) { c.Store.RetentionHours = -1 }, wantErr: "retention_hours"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "port"},
		{name: "unknown searcher", mutate: func(c *Config) { c.Fetch.Searcher = "bing" }, wantErr: "unknown searcher"},
		{name: "negative faq limit", mutate: func(c *Config) { c.Content.FAQAnswerLimit = -5 }, wantErr: "faq_answer_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "cache:6379")
	path := writeFile(t, "pipeline.yaml", "store:\n  retention_hours: 1\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Retention())

	opts := cfg.StoreOptions()
	assert.Equal(t, db.BackendRedis, db.ResolveBackend(opts))
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, cfg.Retention())
	assert.Equal(t, db.BackendMemory, db.ResolveBackend(cfg.StoreOptions()))
}
