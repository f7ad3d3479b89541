package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/types"
)

// EventName is the name of a streamed pipeline event.
type EventName string

// Event names
const (
	EventProgress   EventName = "progress"
	EventRetryStart EventName = "retry_start"
	EventResult     EventName = "result"
	EventError      EventName = "error"
)

// ProgressStatus is the status carried by a progress event.
type ProgressStatus string

// Progress statuses. StatusProgress marks a sub-step inside a running chunk.
const (
	StatusStarted   ProgressStatus = "started"
	StatusCompleted ProgressStatus = "completed"
	StatusFailed    ProgressStatus = "failed"
	StatusSkipped   ProgressStatus = "skipped"
	StatusProgress  ProgressStatus = "progress"
)

// ProgressEvent is a streamed, never persisted, progress update.
type ProgressEvent struct {
	Step      string         `json:"step"`
	Status    ProgressStatus `json:"status"`
	Message   string         `json:"message"`
	ElapsedMs int64          `json:"elapsedMs"`
	Progress  int            `json:"progress"`
	Chunk     jobs.ChunkKind `json:"chunk,omitempty"`
}

// RetryStart announces a resumed run before any chunk executes.
type RetryStart struct {
	JobID               string           `json:"jobId"`
	FromChunk           jobs.ChunkKind   `json:"fromChunk"`
	CompletedChunks     []jobs.ChunkKind `json:"completedChunks"`
	EstimatedSavingsUsd float64          `json:"estimatedSavingsUsd"`
	EstimatedSavingsMs  int64            `json:"estimatedSavingsMs"`
	Message             string           `json:"message"`
	Durable             bool             `json:"durable"`
}

// ResultEvent is the terminal event of a successful run.
type ResultEvent struct {
	JobID              string                     `json:"jobId"`
	Artifact           *types.FinalArtifact       `json:"artifact"`
	Metrics            *metrics.RunMetrics        `json:"metrics,omitempty"`
	PerformanceSummary metrics.PerformanceSummary `json:"performanceSummary"`
	Durable            bool                       `json:"durable"`
	Warning            string                     `json:"warning,omitempty"`
}

// ErrorEvent is the terminal event of a failed run.
type ErrorEvent struct {
	JobID           string           `json:"jobId"`
	Message         string           `json:"message"`
	FailedChunk     jobs.ChunkKind   `json:"failedChunk,omitempty"`
	CompletedChunks []jobs.ChunkKind `json:"completedChunks"`
	RetryFromChunk  jobs.ChunkKind   `json:"retryFromChunk"`
	Durable         bool             `json:"durable"`
}

// Event is one named message on a run's event stream.
type Event struct {
	Name EventName `json:"event"`
	Data any       `json:"data"`
}

// Observer receives run events. Emit must not block the pipeline.
type Observer interface {
	Emit(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Emit implements Observer.
func (f ObserverFunc) Emit(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) Emit(e Event) {
	for _, o := range m {
		o.Emit(e)
	}
}

// Observers fans events out to every non-nil observer, in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// Terminal reports whether e ends a run's event stream.
func (e Event) Terminal() bool {
	return e.Name == EventResult || e.Name == EventError
}

// ChannelObserver buffers events on a channel. A full buffer or a closed
// observer drops the event and counts it; Emit never blocks. One slot beyond
// the buffer is held back for the terminal result or error event, so a slow
// reader loses progress but still receives the outcome.
type ChannelObserver struct {
	mu      sync.Mutex
	ch      chan Event
	limit   int
	closed  bool
	dropped atomic.Int64
}

// NewChannelObserver creates an observer holding up to buffer non-terminal
// events.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelObserver{ch: make(chan Event, buffer+1), limit: buffer}
}

// Emit implements Observer.
func (o *ChannelObserver) Emit(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || (!e.Terminal() && len(o.ch) >= o.limit) {
		o.dropped.Add(1)
		return
	}
	select {
	case o.ch <- e:
	default:
		o.dropped.Add(1)
	}
}

// Events returns the receive side. It is closed by Close.
func (o *ChannelObserver) Events() <-chan Event {
	return o.ch
}

// Close stops accepting events and closes the channel. Safe to call twice.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}

// Dropped returns how many events were discarded.
func (o *ChannelObserver) Dropped() int64 {
	return o.dropped.Load()
}

// lockedObserver serializes Emit so observers that are not safe for
// concurrent use can receive sub-step events from parallel branches.
type lockedObserver struct {
	mu  sync.Mutex
	obs Observer
}

func (l *lockedObserver) Emit(e Event) {
	if l.obs == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.obs.Emit(e)
}
