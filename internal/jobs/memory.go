package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps jobs in a process-scoped map. It is created once at
// process start and offers no persistence across restarts or instances.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Durable is always false for the in-memory store.
func (s *MemoryStore) Durable() bool { return false }

// Backend returns "memory".
func (s *MemoryStore) Backend() string { return "memory" }

// CreateJob stores a new job, or returns the existing one for a known id.
func (s *MemoryStore) CreateJob(_ context.Context, id string, input json.RawMessage) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[id]; ok {
		return existing.Clone(), nil
	}
	job := NewJob(id, input, PipelineVersion, s.now())
	s.jobs[id] = job
	return job.Clone(), nil
}

// GetJob returns a copy of the job, or nil if it does not exist.
func (s *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id].Clone(), nil
}

func (s *MemoryStore) update(id string, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	// Mutate a copy so a rejected transition leaves the stored job untouched.
	next := job.Clone()
	if err := m(next, s.now()); err != nil {
		return err
	}
	s.jobs[id] = next
	return nil
}

// UpdatePhase sets the job phase.
func (s *MemoryStore) UpdatePhase(_ context.Context, id string, phase Phase, errMsg string) error {
	return s.update(id, SetPhase(phase, errMsg))
}

// SetChunkRunning marks a chunk running.
func (s *MemoryStore) SetChunkRunning(_ context.Context, id string, kind ChunkKind) error {
	return s.update(id, SetRunning(kind))
}

// SaveChunkOutput marks a chunk completed with its output.
func (s *MemoryStore) SaveChunkOutput(_ context.Context, id string, kind ChunkKind, output json.RawMessage, cost *ChunkCost) error {
	return s.update(id, SaveOutput(kind, output, cost))
}

// GetChunkOutput returns the stored output of a chunk, or nil.
func (s *MemoryStore) GetChunkOutput(_ context.Context, id string, kind ChunkKind) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.jobs[id].Record(kind)
	if rec == nil || rec.Output == nil {
		return nil, nil
	}
	return append(json.RawMessage(nil), rec.Output...), nil
}

// SetChunkFailed marks a chunk failed.
func (s *MemoryStore) SetChunkFailed(_ context.Context, id string, kind ChunkKind, errMsg string) error {
	return s.update(id, SetFailed(kind, errMsg))
}

// MarkChunkSkipped flags a completed chunk as skipped.
func (s *MemoryStore) MarkChunkSkipped(_ context.Context, id string, kind ChunkKind) error {
	return s.update(id, MarkSkipped(kind))
}

// GetChunkRecord returns a copy of a chunk record, or nil.
func (s *MemoryStore) GetChunkRecord(_ context.Context, id string, kind ChunkKind) (*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id].Record(kind).Clone(), nil
}

// Cleanup drops jobs not updated within maxAge.
func (s *MemoryStore) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for id, job := range s.jobs {
		if job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
