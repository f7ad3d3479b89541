package server

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jonathan/content-pipeline/internal/logger"
	"github.com/jonathan/content-pipeline/internal/pipeline"
)

// EventChannelPrefix prefixes the Pub/Sub channel of each job.
const EventChannelPrefix = "pipeline:events:"

// RemoteEvent is a pipeline event received from another instance. The payload
// is kept as raw JSON and forwarded as is.
type RemoteEvent struct {
	Name pipeline.EventName `json:"event"`
	Data json.RawMessage    `json:"data"`
}

// Terminal reports whether the event ends a run stream.
func (e RemoteEvent) Terminal() bool {
	return e.Name == pipeline.EventResult || e.Name == pipeline.EventError
}

// RedisBroadcaster fans pipeline events out over Redis Pub/Sub so a client
// can follow a run executing on any instance.
type RedisBroadcaster struct {
	rdb goredis.UniversalClient
	log *logger.Logger
}

// NewRedisBroadcaster creates a broadcaster on rdb.
func NewRedisBroadcaster(rdb goredis.UniversalClient, log *logger.Logger) *RedisBroadcaster {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisBroadcaster{rdb: rdb, log: log}
}

// Channel returns the Pub/Sub channel for jobID.
func Channel(jobID string) string {
	return EventChannelPrefix + jobID
}

// Publish sends one event to the job's channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, jobID string, e pipeline.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel(jobID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Observer returns an observer publishing every event of jobID. Publish
// failures are logged and never reach the run. A nil broadcaster yields a nil
// observer, which pipeline.Observers ignores.
func (b *RedisBroadcaster) Observer(ctx context.Context, jobID string) pipeline.Observer {
	if b == nil {
		return nil
	}
	return pipeline.ObserverFunc(func(e pipeline.Event) {
		if err := b.Publish(ctx, jobID, e); err != nil {
			b.log.Warn("event broadcast failed", "job_id", jobID, "event", e.Name, "error", err)
		}
	})
}

// Subscribe attaches to the job's channel. The returned channel closes when
// ctx is done or the subscription is closed; the close func releases it.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, jobID string) (<-chan RemoteEvent, func() error, error) {
	sub := b.rdb.Subscribe(ctx, Channel(jobID))
	// Wait for the confirmation so no event published after return is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", Channel(jobID), err)
	}

	out := make(chan RemoteEvent)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev RemoteEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("dropping malformed broadcast event", "job_id", jobID, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, sub.Close, nil
}
