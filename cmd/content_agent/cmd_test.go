package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/db"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/server"
)

// isolateEnv points the CLI at a local SQLite store and clears service
// settings a developer .env may carry.
func isolateEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	t.Setenv("STORE_BACKEND", db.BackendSQLite)
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_MODE", "production")
	configPath = ""
	return path
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func seedSQLiteJob(t *testing.T, path, id string) {
	t.Helper()
	ctx := context.Background()
	opened, err := db.OpenStore(ctx, db.Options{Backend: db.BackendSQLite, SQLitePath: path}, nil)
	require.NoError(t, err)
	require.False(t, opened.Degraded)
	defer func() { _ = opened.Store.Close() }()

	_, err = opened.Store.CreateJob(ctx, id, json.RawMessage(`{"primaryKeyword":"best crm software"}`))
	require.NoError(t, err)
	require.NoError(t, opened.Store.SaveChunkOutput(ctx, id, jobs.ChunkResearchSerp,
		json.RawMessage(`{"results":[]}`), &jobs.ChunkCost{CostUsd: 0.001, DurationMs: 900}))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "run", "retry", "status", "metrics", "cleanup", "token"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestRunFlags(t *testing.T) {
	for _, name := range []string{"brief", "keyword", "secondary", "paa", "intent", "tone",
		"word-count", "word-count-custom", "url", "job-id", "json", "trace", "verbose"} {
		assert.NotNil(t, runCommand.Flags().Lookup(name), "run is missing --%s", name)
	}
	assert.NotNil(t, retryCmd.Flags().Lookup("from"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func newBriefCommand(t *testing.T, args ...string) (*cobra.Command, *briefFlags) {
	t.Helper()
	f := &briefFlags{}
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestBriefFlags_Build(t *testing.T) {
	t.Run("flags only", func(t *testing.T) {
		cmd, f := newBriefCommand(t, "--keyword", "  Best CRM Software ", "--secondary", "crm tools,sales crm",
			"--intent", "commercial", "--word-count", "custom", "--word-count-custom", "1800")
		brief, err := f.build(cmd)
		require.NoError(t, err)
		assert.Equal(t, "Best CRM Software", strings.TrimSpace(brief.PrimaryKeyword))
		assert.Equal(t, []string{"crm tools", "sales crm"}, brief.SecondaryKeywords)
		assert.Equal(t, "commercial", brief.Intent)
		n, ok := brief.ExplicitWordCount()
		assert.True(t, ok)
		assert.Equal(t, 1800, n)
	})

	t.Run("missing keyword", func(t *testing.T) {
		cmd, f := newBriefCommand(t)
		_, err := f.build(cmd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary keyword")
	})

	t.Run("invalid brief", func(t *testing.T) {
		cmd, f := newBriefCommand(t, "--keyword", "crm", "--intent", "curious")
		_, err := f.build(cmd)
		assert.Error(t, err)
	})

	t.Run("file with flag override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "brief.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"primaryKeyword: project management\ntone: friendly\nselectedUrls:\n  - https://example.com/pm\n"), 0o644))

		cmd, f := newBriefCommand(t, "--brief", path, "--tone", "formal")
		brief, err := f.build(cmd)
		require.NoError(t, err)
		assert.Equal(t, "project management", brief.PrimaryKeyword)
		assert.Equal(t, "formal", brief.Tone)
		assert.Equal(t, []string{"https://example.com/pm"}, brief.SelectedURLs)
	})

	t.Run("json file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "brief.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"primaryKeyword":"email marketing","intent":"informational"}`), 0o644))

		cmd, f := newBriefCommand(t, "--brief", path)
		brief, err := f.build(cmd)
		require.NoError(t, err)
		assert.Equal(t, "email marketing", brief.PrimaryKeyword)
		assert.Equal(t, "informational", brief.Intent)
	})

	t.Run("unreadable file", func(t *testing.T) {
		cmd, f := newBriefCommand(t, "--brief", filepath.Join(t.TempDir(), "missing.json"))
		_, err := f.build(cmd)
		assert.Error(t, err)
	})
}

func TestParseFrom(t *testing.T) {
	kind, err := parseFrom("")
	require.NoError(t, err)
	assert.Nil(t, kind)

	kind, err = parseFrom("analysis")
	require.NoError(t, err)
	require.NotNil(t, kind)
	assert.Equal(t, jobs.ChunkAnalysis, *kind)

	_, err = parseFrom("publish")
	assert.Error(t, err)
}

func TestAllowedOrigins(t *testing.T) {
	assert.Nil(t, allowedOrigins([]string{"*"}))
	assert.Nil(t, allowedOrigins([]string{"https://app.example.com", "*"}))
	assert.Equal(t, []string{"https://app.example.com"}, allowedOrigins([]string{"https://app.example.com"}))
}

func TestServerConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Port = 9090
	cfg.Store.RetentionHours = 48
	a := &app{cfg: &cfg, sink: metrics.NewRingSink(), warning: db.DegradedWarning}

	t.Run("configured port", func(t *testing.T) {
		cmd := &cobra.Command{}
		cmd.Flags().IntVar(&servePort, "port", 0, "")
		sc := serverConfig(cmd, a, nil)
		assert.Equal(t, 9090, sc.Port)
		assert.Equal(t, 48*time.Hour, sc.Retention)
		assert.Equal(t, db.DegradedWarning, sc.Warning)
		assert.Nil(t, sc.Broadcaster)
		assert.Nil(t, sc.AllowedOrigins)
	})

	t.Run("flag overrides", func(t *testing.T) {
		cmd := &cobra.Command{}
		cmd.Flags().IntVar(&servePort, "port", 0, "")
		require.NoError(t, cmd.ParseFlags([]string{"--port", "7070"}))
		sc := serverConfig(cmd, a, &config.JWTConfig{Secret: "s", ExpirationHours: 1})
		assert.Equal(t, 7070, sc.Port)
		require.NotNil(t, sc.JWT)
	})
}

func TestRunCommand_RequiresKeyword(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary keyword")
}

func TestRetryCommand_InvalidFrom(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "retry", "job-1", "--from", "publish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --from")
}

func TestStatusCommand(t *testing.T) {
	path := isolateEnv(t)
	seedSQLiteJob(t, path, "job-1")

	out, err := execute(t, "status", "job-1", "--json")
	require.NoError(t, err)
	var job jobs.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, jobs.StatusCompleted, job.Record(jobs.ChunkResearchSerp).Status)

	out, err = execute(t, "status", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Next step: research")

	_, err = execute(t, "status", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestCleanupCommand(t *testing.T) {
	path := isolateEnv(t)
	seedSQLiteJob(t, path, "job-1")

	out, err := execute(t, "cleanup", "--max-age", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 job(s)")

	_, err = execute(t, "cleanup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--max-age")
}

func TestMetricsCommand(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "REDIS_ADDR")
	assert.Contains(t, out, "RECENT RUNS")

	out, err = execute(t, "metrics", "--json")
	require.NoError(t, err)
	var stats metrics.AggregateStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.RunCount)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("JWT_EXPIRATION_HOURS", "")

	out, err := execute(t, "token", "editor")
	require.NoError(t, err)

	cfg, err := config.NewJWTConfig()
	require.NoError(t, err)
	claims, err := server.NewJWTService(cfg).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "editor", claims.Subject)

	t.Setenv("JWT_SECRET", "")
	_, err = execute(t, "token", "editor")
	assert.Error(t, err)
}
