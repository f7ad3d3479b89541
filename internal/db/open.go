package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/logger"
)

// Store backends
const (
	BackendAuto     = "auto"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// DegradedWarning is surfaced to callers when jobs live only in process memory
// although a durable backend was requested.
const DegradedWarning = "job state is not durable across instances"

// Options selects and configures the job store.
type Options struct {
	Backend        string
	DatabaseURL    string
	SQLitePath     string
	RedisAddr      string
	ConnectTimeout time.Duration
}

// OpenResult is the opened store and whether it fell back to memory.
type OpenResult struct {
	Store    jobs.Store
	Degraded bool
	Warning  string
}

// ResolveBackend maps "auto" (or empty) to a concrete backend based on which
// connection settings are present.
func ResolveBackend(opts Options) string {
	b := strings.ToLower(strings.TrimSpace(opts.Backend))
	if b != "" && b != BackendAuto {
		return b
	}
	switch {
	case opts.DatabaseURL != "":
		return BackendPostgres
	case opts.RedisAddr != "":
		return BackendRedis
	case opts.SQLitePath != "":
		return BackendSQLite
	default:
		return BackendMemory
	}
}

// OpenStore opens the configured backend. An unreachable durable backend is
// not fatal: the error is logged and an in-memory store is returned with
// Degraded set. Only an unknown backend name is an error.
func OpenStore(ctx context.Context, opts Options, log *logger.Logger) (*OpenResult, error) {
	if log == nil {
		log = logger.Nop()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	backend := ResolveBackend(opts)
	if backend == BackendMemory {
		return &OpenResult{Store: jobs.NewMemoryStore()}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		store jobs.Store
		err   error
	)
	switch backend {
	case BackendPostgres:
		store, err = openPostgres(cctx, opts.DatabaseURL)
	case BackendSQLite:
		store, err = openSQLite(cctx, opts.SQLitePath)
	case BackendRedis:
		store, err = openRedis(cctx, opts.RedisAddr)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
	if err != nil {
		log.Warn("durable job store unavailable, falling back to memory",
			"backend", backend, "error", err)
		return &OpenResult{Store: jobs.NewMemoryStore(), Degraded: true, Warning: DegradedWarning}, nil
	}

	log.Info("job store opened", "backend", backend)
	return &OpenResult{Store: store}, nil
}

func openPostgres(ctx context.Context, url string) (jobs.Store, error) {
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	conn, err := Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	s := NewPostgresStore(conn)
	if err := s.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func openSQLite(ctx context.Context, path string) (jobs.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("SQLITE_PATH is not set")
	}
	return OpenSQLite(ctx, path)
}

func openRedis(ctx context.Context, addr string) (jobs.Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is not set")
	}
	rdb, err := ConnectRedis(ctx, addr)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(rdb), nil
}
