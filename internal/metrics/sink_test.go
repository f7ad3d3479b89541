package metrics

import (
	"context"
	"fmt"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSink_CapsAtMaxRuns(t *testing.T) {
	ctx := context.Background()
	s := NewRingSink()
	for i := 0; i < MaxRuns+7; i++ {
		require.NoError(t, s.Push(ctx, &RunMetrics{JobID: fmt.Sprintf("job-%d", i)}))
	}

	runs, err := s.Recent(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, MaxRuns)
	assert.Equal(t, fmt.Sprintf("job-%d", MaxRuns+6), runs[0].JobID)
	assert.Equal(t, "job-7", runs[MaxRuns-1].JobID)
	assert.False(t, s.Shared())
}

func TestRingSink_IgnoresNil(t *testing.T) {
	s := NewRingSink()
	require.NoError(t, s.Push(context.Background(), nil))
	runs, _ := s.Recent(context.Background())
	assert.Empty(t, runs)
}

func TestRedisSink_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	s := NewRedisSink(rdb)
	s.key = "pipeline:metrics:test"
	defer rdb.Del(ctx, s.key)

	for i := 0; i < MaxRuns+2; i++ {
		require.NoError(t, s.Push(ctx, &RunMetrics{JobID: fmt.Sprintf("job-%d", i), Status: RunCompleted}))
	}
	runs, err := s.Recent(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, MaxRuns)
	assert.Equal(t, fmt.Sprintf("job-%d", MaxRuns+1), runs[0].JobID)
	assert.True(t, s.Shared())
}
