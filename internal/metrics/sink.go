package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// MaxRuns is how many recent runs a sink retains.
const MaxRuns = 50

// RedisMetricsKey is the Redis list holding recent runs, newest first.
const RedisMetricsKey = "pipeline:metrics"

// Sink receives finalized run metrics and serves recent runs.
type Sink interface {
	Push(ctx context.Context, m *RunMetrics) error
	// Recent returns up to MaxRuns runs, most recent first.
	Recent(ctx context.Context) ([]RunMetrics, error)
	// Shared reports whether runs are visible across processes.
	Shared() bool
}

// RingSink keeps the last MaxRuns runs in process memory.
type RingSink struct {
	mu   sync.RWMutex
	runs []RunMetrics
}

// NewRingSink creates an empty in-memory sink.
func NewRingSink() *RingSink {
	return &RingSink{}
}

// Push prepends m and drops the oldest run beyond MaxRuns.
func (s *RingSink) Push(_ context.Context, m *RunMetrics) error {
	if m == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append([]RunMetrics{*m}, s.runs...)
	if len(s.runs) > MaxRuns {
		s.runs = s.runs[:MaxRuns]
	}
	return nil
}

// Recent returns a copy of the retained runs.
func (s *RingSink) Recent(_ context.Context) ([]RunMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RunMetrics(nil), s.runs...), nil
}

// Shared is false; each process has its own ring.
func (s *RingSink) Shared() bool { return false }

// RedisSink keeps recent runs in a capped Redis list so they survive restarts
// and are shared between instances.
type RedisSink struct {
	rdb goredis.Cmdable
	key string
}

// NewRedisSink creates a sink on the given client.
func NewRedisSink(rdb goredis.Cmdable) *RedisSink {
	return &RedisSink{rdb: rdb, key: RedisMetricsKey}
}

// Push LPUSHes the run and trims the list to MaxRuns in one transaction.
func (s *RedisSink) Push(ctx context.Context, m *RunMetrics) error {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal run metrics: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, s.key, raw)
		pipe.LTrim(ctx, s.key, 0, MaxRuns-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push run metrics: %w", err)
	}
	return nil
}

// Recent reads the retained runs. Entries that fail to decode are skipped.
func (s *RedisSink) Recent(ctx context.Context) ([]RunMetrics, error) {
	vals, err := s.rdb.LRange(ctx, s.key, 0, MaxRuns-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run metrics: %w", err)
	}
	out := make([]RunMetrics, 0, len(vals))
	for _, v := range vals {
		var m RunMetrics
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Shared is true.
func (s *RedisSink) Shared() bool { return true }
