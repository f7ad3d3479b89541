package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/jobs"
)

func recordsWith(statuses map[jobs.ChunkKind]jobs.ChunkStatus) jobs.Records {
	records := jobs.Records{}
	for _, kind := range jobs.ChunkOrder {
		records[kind] = &jobs.ChunkRecord{Status: jobs.StatusPending}
	}
	for kind, status := range statuses {
		records[kind].Status = status
	}
	return records
}

func TestChunkRegistry(t *testing.T) {
	require.Len(t, ChunkRegistry, len(jobs.ChunkOrder))
	for _, kind := range jobs.ChunkOrder {
		def, ok := ChunkRegistry[kind]
		require.True(t, ok, "chunk %s should be in registry", kind)
		assert.Equal(t, kind, def.Kind)
		assert.Equal(t, kind.Phase(), def.Phase)
		assert.NotEmpty(t, def.Label)
		assert.Positive(t, def.DefaultBudget)
		assert.ElementsMatch(t, jobs.Prerequisites(kind), def.Dependencies)
	}
}

func TestDefaultBudgets(t *testing.T) {
	budgets := DefaultBudgets()
	assert.Equal(t, int64(30000), budgets[jobs.ChunkResearchSerp].Milliseconds())
	assert.Equal(t, int64(45000), budgets[jobs.ChunkResearch].Milliseconds())
	assert.Equal(t, int64(30000), budgets[jobs.ChunkTopicExtraction].Milliseconds())
	assert.Equal(t, int64(90000), budgets[jobs.ChunkAnalysis].Milliseconds())
	assert.Equal(t, int64(180000), budgets[jobs.ChunkDraft].Milliseconds())
	assert.Equal(t, int64(15000), budgets[jobs.ChunkPostprocess].Milliseconds())
}

func TestDependencyError(t *testing.T) {
	err := &DependencyError{
		Step:                jobs.ChunkAnalysis,
		MissingDependencies: []jobs.ChunkKind{jobs.ChunkResearch, jobs.ChunkTopicExtraction},
	}

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing dependencies")
	assert.Contains(t, err.Error(), "research, topic_extraction")
	assert.Equal(t, jobs.ChunkResearch, err.FirstMissing())
	assert.Equal(t, jobs.ChunkKind(""), (&DependencyError{}).FirstMissing())
}

func TestValidateDependencies(t *testing.T) {
	tests := []struct {
		name        string
		statuses    map[jobs.ChunkKind]jobs.ChunkStatus
		kind        jobs.ChunkKind
		wantMissing []jobs.ChunkKind
	}{
		{
			name: "first chunk has no dependencies",
			kind: jobs.ChunkResearchSerp,
		},
		{
			name:        "nothing done",
			kind:        jobs.ChunkTopicExtraction,
			wantMissing: []jobs.ChunkKind{jobs.ChunkResearchSerp, jobs.ChunkResearch},
		},
		{
			name: "failed predecessor",
			statuses: map[jobs.ChunkKind]jobs.ChunkStatus{
				jobs.ChunkResearchSerp: jobs.StatusCompleted,
				jobs.ChunkResearch:     jobs.StatusFailed,
			},
			kind:        jobs.ChunkTopicExtraction,
			wantMissing: []jobs.ChunkKind{jobs.ChunkResearch},
		},
		{
			name: "skipped counts as done",
			statuses: map[jobs.ChunkKind]jobs.ChunkStatus{
				jobs.ChunkResearchSerp: jobs.StatusSkipped,
				jobs.ChunkResearch:     jobs.StatusCompleted,
			},
			kind: jobs.ChunkTopicExtraction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDependencies(recordsWith(tt.statuses), tt.kind)
			if tt.wantMissing == nil {
				assert.NoError(t, err)
				return
			}
			var depErr *DependencyError
			require.ErrorAs(t, err, &depErr)
			assert.Equal(t, tt.kind, depErr.Step)
			assert.Equal(t, tt.wantMissing, depErr.MissingDependencies)
		})
	}
}

func TestValidateDependencies_UnknownChunk(t *testing.T) {
	err := ValidateDependencies(jobs.Records{}, "unknown_chunk")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown chunk")
}

func TestValidateDependencies_MissingRecords(t *testing.T) {
	var depErr *DependencyError
	require.ErrorAs(t, ValidateDependencies(jobs.Records{}, jobs.ChunkResearch), &depErr)
	assert.Equal(t, []jobs.ChunkKind{jobs.ChunkResearchSerp}, depErr.MissingDependencies)
}

func TestAvailableAndBlockedChunks(t *testing.T) {
	records := recordsWith(map[jobs.ChunkKind]jobs.ChunkStatus{
		jobs.ChunkResearchSerp: jobs.StatusCompleted,
		jobs.ChunkResearch:     jobs.StatusCompleted,
	})

	assert.Equal(t, []jobs.ChunkKind{jobs.ChunkTopicExtraction}, AvailableChunks(records))
	assert.Equal(t, []jobs.ChunkKind{jobs.ChunkAnalysis, jobs.ChunkDraft, jobs.ChunkPostprocess}, BlockedChunks(records))

	records[jobs.ChunkTopicExtraction].Status = jobs.StatusRunning
	assert.Empty(t, AvailableChunks(records))
}
