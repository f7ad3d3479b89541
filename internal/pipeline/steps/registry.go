// Package steps provides chunk definitions, dependency validation, and the
// chunk executors of the content pipeline.
package steps

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/content-pipeline/internal/jobs"
)

// ChunkDefinition defines metadata for a pipeline chunk
type ChunkDefinition struct {
	Kind          jobs.ChunkKind
	Phase         jobs.Phase
	Label         string
	Dependencies  []jobs.ChunkKind
	DefaultBudget time.Duration
}

// ChunkRegistry holds all chunk definitions
var ChunkRegistry = map[jobs.ChunkKind]ChunkDefinition{
	jobs.ChunkResearchSerp: {
		Kind:          jobs.ChunkResearchSerp,
		Phase:         jobs.PhaseResearching,
		Label:         "Searching competitors",
		Dependencies:  []jobs.ChunkKind{},
		DefaultBudget: 30 * time.Second,
	},
	jobs.ChunkResearch: {
		Kind:          jobs.ChunkResearch,
		Phase:         jobs.PhaseResearching,
		Label:         "Reading competitor pages",
		Dependencies:  []jobs.ChunkKind{jobs.ChunkResearchSerp},
		DefaultBudget: 45 * time.Second,
	},
	jobs.ChunkTopicExtraction: {
		Kind:          jobs.ChunkTopicExtraction,
		Phase:         jobs.PhaseAnalyzing,
		Label:         "Extracting topics",
		Dependencies:  []jobs.ChunkKind{jobs.ChunkResearchSerp, jobs.ChunkResearch},
		DefaultBudget: 30 * time.Second,
	},
	jobs.ChunkAnalysis: {
		Kind:          jobs.ChunkAnalysis,
		Phase:         jobs.PhaseAnalyzing,
		Label:         "Building research brief",
		Dependencies:  []jobs.ChunkKind{jobs.ChunkResearchSerp, jobs.ChunkResearch, jobs.ChunkTopicExtraction},
		DefaultBudget: 90 * time.Second,
	},
	jobs.ChunkDraft: {
		Kind:          jobs.ChunkDraft,
		Phase:         jobs.PhaseDrafting,
		Label:         "Writing draft",
		Dependencies:  []jobs.ChunkKind{jobs.ChunkResearchSerp, jobs.ChunkResearch, jobs.ChunkTopicExtraction, jobs.ChunkAnalysis},
		DefaultBudget: 180 * time.Second,
	},
	jobs.ChunkPostprocess: {
		Kind:          jobs.ChunkPostprocess,
		Phase:         jobs.PhasePostProcessing,
		Label:         "Validating article",
		Dependencies:  []jobs.ChunkKind{jobs.ChunkResearchSerp, jobs.ChunkResearch, jobs.ChunkTopicExtraction, jobs.ChunkAnalysis, jobs.ChunkDraft},
		DefaultBudget: 15 * time.Second,
	},
}

// DefaultBudgets returns the default time budget of every chunk.
func DefaultBudgets() map[jobs.ChunkKind]time.Duration {
	out := make(map[jobs.ChunkKind]time.Duration, len(ChunkRegistry))
	for kind, def := range ChunkRegistry {
		out[kind] = def.DefaultBudget
	}
	return out
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                jobs.ChunkKind
	MissingDependencies []jobs.ChunkKind
}

func (e *DependencyError) Error() string {
	names := make([]string, len(e.MissingDependencies))
	for i, d := range e.MissingDependencies {
		names[i] = string(d)
	}
	return fmt.Sprintf("cannot run %s: missing dependencies: %s", e.Step, strings.Join(names, ", "))
}

// FirstMissing returns the earliest missing dependency.
func (e *DependencyError) FirstMissing() jobs.ChunkKind {
	if len(e.MissingDependencies) == 0 {
		return ""
	}
	return e.MissingDependencies[0]
}

// ValidateDependencies checks if all required dependencies for a chunk are done
func ValidateDependencies(records jobs.Records, kind jobs.ChunkKind) error {
	def, ok := ChunkRegistry[kind]
	if !ok {
		return fmt.Errorf("unknown chunk: %s", kind)
	}

	var missing []jobs.ChunkKind
	for _, dep := range def.Dependencies {
		rec := records[dep]
		if rec == nil || !rec.Status.Done() {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                kind,
			MissingDependencies: missing,
		}
	}

	return nil
}

// AvailableChunks returns chunks that can be executed (dependencies met)
func AvailableChunks(records jobs.Records) []jobs.ChunkKind {
	var available []jobs.ChunkKind
	for _, kind := range jobs.ChunkOrder {
		if rec := records[kind]; rec != nil && (rec.Status.Done() || rec.Status == jobs.StatusRunning) {
			continue
		}
		if ValidateDependencies(records, kind) != nil {
			continue
		}
		available = append(available, kind)
	}
	return available
}

// BlockedChunks returns chunks that are blocked (dependencies not met)
func BlockedChunks(records jobs.Records) []jobs.ChunkKind {
	var blocked []jobs.ChunkKind
	for _, kind := range jobs.ChunkOrder {
		if rec := records[kind]; rec != nil && (rec.Status.Done() || rec.Status == jobs.StatusRunning) {
			continue
		}
		if ValidateDependencies(records, kind) != nil {
			blocked = append(blocked, kind)
		}
	}
	return blocked
}
