package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jonathan/content-pipeline/internal/jobs"
)

const (
	redisJobKeyPrefix = "pipeline:job:"
	redisJobIndexKey  = "pipeline:jobs"
	redisMaxTxRetries = 10
)

// ConnectRedis creates a client and verifies it with PING.
func ConnectRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps one JSON document per job plus a sorted set of job ids
// scored by last update time.
type RedisStore struct {
	storeOps
	rdb    *goredis.Client
	prefix string
	index  string
	now    func() time.Time
}

// NewRedisStore wraps a connected client.
func NewRedisStore(rdb *goredis.Client) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: redisJobKeyPrefix, index: redisJobIndexKey, now: time.Now}
	s.storeOps = storeOps{b: s}
	return s
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

// Durable is true.
func (s *RedisStore) Durable() bool { return true }

// Backend returns "redis".
func (s *RedisStore) Backend() string { return "redis" }

// CreateJob stores the job with SETNX and returns whatever is stored.
func (s *RedisStore) CreateJob(ctx context.Context, id string, input json.RawMessage) (*jobs.Job, error) {
	job := newJob(id, input, s.now())
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	created, err := s.rdb.SetNX(ctx, s.key(id), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create job %s: %w", id, err)
	}
	if created {
		if err := s.rdb.ZAdd(ctx, s.index, goredis.Z{Score: score(job.UpdatedAt), Member: id}).Err(); err != nil {
			return nil, fmt.Errorf("failed to index job %s: %w", id, err)
		}
	}
	return s.load(ctx, id)
}

func (s *RedisStore) load(ctx context.Context, id string) (*jobs.Job, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return decodeJob(raw)
}

func decodeJob(raw []byte) (*jobs.Job, error) {
	var job jobs.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ChunkRecords == nil {
		job.ChunkRecords = make(map[jobs.ChunkKind]*jobs.ChunkRecord, len(jobs.ChunkOrder))
	}
	return &job, nil
}

// apply uses optimistic locking: WATCH the job key, then write in MULTI/EXEC,
// retrying when another writer got there first.
func (s *RedisStore) apply(ctx context.Context, id string, m jobs.Mutation) error {
	key := s.key(id)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return notFound(id)
			}
			return fmt.Errorf("failed to read job %s: %w", id, err)
		}
		job, err := decodeJob(raw)
		if err != nil {
			return err
		}
		if err := m(job, s.now().UTC()); err != nil {
			return err
		}
		out, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			pipe.ZAdd(ctx, s.index, goredis.Z{Score: score(job.UpdatedAt), Member: id})
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update job %s: too much contention", id)
}

// deleteExpiredScript removes each candidate job only if its index score is
// still below the cutoff, so a job touched after the range query survives.
// KEYS[1] is the index, KEYS[2..] the job keys; ARGV[1] is the cutoff and
// ARGV[2..] the matching ids.
var deleteExpiredScript = goredis.NewScript(`
local cutoff = tonumber(ARGV[1])
local removed = 0
for i = 2, #KEYS do
  local id = ARGV[i]
  local s = redis.call('ZSCORE', KEYS[1], id)
  if s and tonumber(s) < cutoff then
    removed = removed + redis.call('DEL', KEYS[i])
    redis.call('ZREM', KEYS[1], id)
  end
end
return removed
`)

// Cleanup deletes jobs whose last update is older than maxAge.
func (s *RedisStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := score(s.now().Add(-maxAge))
	ids, err := s.rdb.ZRangeByScore(ctx, s.index, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + formatScore(cutoff),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired jobs: %w", err)
	}
	return s.deleteExpired(ctx, ids, cutoff)
}

func (s *RedisStore) deleteExpired(ctx context.Context, ids []string, cutoff float64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(ids)+1)
	args := make([]any, 0, len(ids)+1)
	keys = append(keys, s.index)
	args = append(args, formatScore(cutoff))
	for _, id := range ids {
		keys = append(keys, s.key(id))
		args = append(args, id)
	}
	n, err := deleteExpiredScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	return n, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
