package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrJobNotFound is returned by store mutations addressed to an unknown job.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition is matched by every TransitionError.
var ErrInvalidTransition = errors.New("invalid chunk status transition")

// TransitionError reports a rejected chunk status change.
type TransitionError struct {
	Kind ChunkKind
	From ChunkStatus
	To   ChunkStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("chunk %s cannot move from %s to %s", e.Kind, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// allowedTransitions lists every permitted status change. Status only moves
// forward; failed -> running is the retry path, completed -> skipped is set by
// the retry controller.
var allowedTransitions = map[ChunkStatus][]ChunkStatus{
	StatusPending:   {StatusRunning, StatusFailed, StatusCompleted},
	StatusRunning:   {StatusRunning, StatusCompleted, StatusFailed},
	StatusFailed:    {StatusRunning, StatusFailed},
	StatusCompleted: {StatusCompleted, StatusSkipped},
	StatusSkipped:   {StatusSkipped},
}

// CanTransition reports whether a chunk may move from one status to another.
func CanTransition(from, to ChunkStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Mutation changes a job in place. Every store backend applies mutations inside
// its own atomic section so transition rules are identical across backends.
type Mutation func(job *Job, now time.Time) error

func record(job *Job, kind ChunkKind) (*ChunkRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown chunk kind %q", kind)
	}
	if job.ChunkRecords == nil {
		job.ChunkRecords = make(map[ChunkKind]*ChunkRecord, len(ChunkOrder))
	}
	rec := job.ChunkRecords[kind]
	if rec == nil {
		rec = &ChunkRecord{Status: StatusPending}
		job.ChunkRecords[kind] = rec
	}
	return rec, nil
}

func transition(kind ChunkKind, rec *ChunkRecord, to ChunkStatus) error {
	if !CanTransition(rec.Status, to) {
		return &TransitionError{Kind: kind, From: rec.Status, To: to}
	}
	return nil
}

// SetRunning marks a chunk as running and counts the attempt.
func SetRunning(kind ChunkKind) Mutation {
	return func(job *Job, now time.Time) error {
		rec, err := record(job, kind)
		if err != nil {
			return err
		}
		if err := transition(kind, rec, StatusRunning); err != nil {
			return err
		}
		if rec.Status != StatusRunning {
			rec.AttemptCount++
			t := now
			rec.StartedAt = &t
			rec.CompletedAt = nil
		}
		rec.Status = StatusRunning
		rec.Error = ""
		job.UpdatedAt = now
		return nil
	}
}

// SaveOutput marks a chunk completed with its output and optional cost.
// Re-saving a completed chunk replaces the output without touching its status.
func SaveOutput(kind ChunkKind, output json.RawMessage, cost *ChunkCost) Mutation {
	return func(job *Job, now time.Time) error {
		rec, err := record(job, kind)
		if err != nil {
			return err
		}
		if err := transition(kind, rec, StatusCompleted); err != nil {
			return err
		}
		rec.Status = StatusCompleted
		rec.Output = append(json.RawMessage(nil), output...)
		rec.Error = ""
		if rec.StartedAt == nil {
			t := now
			rec.StartedAt = &t
		}
		t := now
		rec.CompletedAt = &t
		if cost != nil {
			rec.CostUsd = cost.CostUsd
			rec.DurationMs = cost.DurationMs
			if len(cost.Providers) > 0 {
				rec.Providers = make(map[string]ProviderUsage, len(cost.Providers))
				for k, v := range cost.Providers {
					rec.Providers[k] = v
				}
			}
		}
		job.UpdatedAt = now
		return nil
	}
}

// SetFailed marks a chunk failed with the error message.
func SetFailed(kind ChunkKind, message string) Mutation {
	return func(job *Job, now time.Time) error {
		rec, err := record(job, kind)
		if err != nil {
			return err
		}
		if err := transition(kind, rec, StatusFailed); err != nil {
			return err
		}
		rec.Status = StatusFailed
		rec.Error = message
		if rec.StartedAt != nil {
			rec.DurationMs = now.Sub(*rec.StartedAt).Milliseconds()
		}
		job.UpdatedAt = now
		return nil
	}
}

// MarkSkipped flags a completed chunk as skipped by a resume. Output, cost and
// duration are kept.
func MarkSkipped(kind ChunkKind) Mutation {
	return func(job *Job, now time.Time) error {
		rec, err := record(job, kind)
		if err != nil {
			return err
		}
		if err := transition(kind, rec, StatusSkipped); err != nil {
			return err
		}
		rec.Status = StatusSkipped
		job.UpdatedAt = now
		return nil
	}
}

// SetPhase updates the job phase and its error message.
func SetPhase(phase Phase, message string) Mutation {
	return func(job *Job, now time.Time) error {
		job.Phase = phase
		job.ErrorMessage = message
		job.UpdatedAt = now
		return nil
	}
}
