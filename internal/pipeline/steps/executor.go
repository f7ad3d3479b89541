package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/fetch"
	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/logger"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/research"
	"github.com/jonathan/content-pipeline/internal/types"
)

// Sub-step statuses reported through ProgressFunc.
const (
	SubStepStarted   = "started"
	SubStepCompleted = "completed"
	SubStepFailed    = "failed"
)

// ProgressFunc receives sub-step progress from inside a chunk.
type ProgressFunc func(step, status, message string)

// Executor runs one chunk kind. The returned output is persisted as the
// chunk's JSON output.
type Executor interface {
	Kind() jobs.ChunkKind
	Execute(ctx context.Context, in *Input) (any, error)
}

// Input is everything a chunk needs to run.
type Input struct {
	JobID string
	Brief types.ContentBrief
	// Outputs holds the stored outputs of completed earlier chunks.
	Outputs  map[jobs.ChunkKind]json.RawMessage
	Budget   *TimeBudget
	Calls    *CallLog
	Progress ProgressFunc
}

func (in *Input) emit(step, status, message string) {
	if in.Progress != nil {
		in.Progress(step, status, message)
	}
}

func (in *Input) record(call metrics.APICall) {
	if in.Calls != nil {
		in.Calls.Record(call)
	}
}

func (in *Input) recordLLM(endpoint string, resp *llm.Response, elapsed time.Duration) {
	call := metrics.APICall{Provider: string(llm.ProviderGemini), Endpoint: endpoint, DurationMs: elapsed.Milliseconds()}
	if resp != nil {
		if resp.Usage.Provider != "" {
			call.Provider = string(resp.Usage.Provider)
		}
		call.InputTokens = resp.Usage.InputTokens
		call.OutputTokens = resp.Usage.OutputTokens
	}
	in.record(call)
}

// decodeOutput unmarshals the stored output of an earlier chunk.
func decodeOutput[T any](in *Input, kind jobs.ChunkKind) (*T, error) {
	raw, ok := in.Outputs[kind]
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%s output is not available", kind)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s output: %w", kind, err)
	}
	return &out, nil
}

// CallLog collects the external calls a chunk makes. Safe for concurrent use.
type CallLog struct {
	mu    sync.Mutex
	calls []metrics.APICall
}

// Record appends a call.
func (l *CallLog) Record(call metrics.APICall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []metrics.APICall {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]metrics.APICall, len(l.calls))
	copy(out, l.calls)
	return out
}

// Auditor scores a drafted article.
type Auditor interface {
	Audit(ctx context.Context, in content.AuditInput) (types.AuditResult, error)
}

// Dependencies are the services the executors call. A nil Searcher or LLM
// fails the chunks that need it with a MissingCredentialError.
type Dependencies struct {
	Searcher research.Searcher
	Fetcher  *fetch.CompetitorFetcher
	LLM      llm.Client
	Auditor  Auditor
	// SourceClient checks fact source URLs; nil uses a default client.
	SourceClient   *http.Client
	MaxCompetitors int
	FAQLimit       int
	Now            func() time.Time
	Log            *logger.Logger
}

// DefaultMaxCompetitors is how many competitor pages research reads.
const DefaultMaxCompetitors = 3

func (d *Dependencies) withDefaults() {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Fetcher == nil {
		d.Fetcher = fetch.NewCompetitorFetcher(fetch.DefaultCharLimit, d.Log,
			fetch.Provider{Name: fetch.SourceDirect, Reader: fetch.NewDirectReader(nil, nil, d.Log)})
	}
	if d.Auditor == nil {
		d.Auditor = content.NewDefaultAuditor()
	}
	if d.MaxCompetitors <= 0 {
		d.MaxCompetitors = DefaultMaxCompetitors
	}
	if d.FAQLimit <= 0 {
		d.FAQLimit = content.DefaultFAQAnswerLimit
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// NewExecutors builds one executor per chunk kind.
func NewExecutors(deps Dependencies) map[jobs.ChunkKind]Executor {
	deps.withDefaults()
	executors := []Executor{
		&SerpExecutor{deps: deps},
		&ResearchExecutor{deps: deps},
		&TopicExecutor{deps: deps},
		&AnalysisExecutor{deps: deps},
		&DraftExecutor{deps: deps},
		&PostprocessExecutor{deps: deps},
	}
	out := make(map[jobs.ChunkKind]Executor, len(executors))
	for _, e := range executors {
		out[e.Kind()] = e
	}
	return out
}

// MissingCredentialError is returned when a chunk needs a service whose
// credentials are not configured.
type MissingCredentialError struct {
	Service string
	EnvVar  string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s is not configured: set %s", e.Service, e.EnvVar)
}

var (
	errNoSearcher = &MissingCredentialError{Service: "search", EnvVar: "SERPER_API_KEY"}
	errNoLLM      = &MissingCredentialError{Service: "gemini", EnvVar: "GEMINI_API_KEY"}
)

func (d *Dependencies) requireLLM() error {
	if d.LLM == nil {
		return errNoLLM
	}
	return nil
}
