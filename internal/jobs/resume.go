package jobs

import "math"

// Records is the typed chunk record map of a job.
type Records map[ChunkKind]*ChunkRecord

func (r Records) done(kind ChunkKind) bool {
	rec := r[kind]
	return rec != nil && rec.Status.Done()
}

// FirstIncomplete returns the first chunk in ChunkOrder whose record is missing
// or not done. ok is false when every chunk is done.
func FirstIncomplete(records Records) (kind ChunkKind, ok bool) {
	for _, k := range ChunkOrder {
		if !records.done(k) {
			return k, true
		}
	}
	return "", false
}

// MissingPrerequisite returns the first chunk before kind that is not done.
func MissingPrerequisite(records Records, kind ChunkKind) (ChunkKind, bool) {
	for _, k := range Prerequisites(kind) {
		if !records.done(k) {
			return k, true
		}
	}
	return "", false
}

// DoneKinds lists done chunks in execution order.
func DoneKinds(records Records) []ChunkKind {
	out := make([]ChunkKind, 0, len(ChunkOrder))
	for _, k := range ChunkOrder {
		if records.done(k) {
			out = append(out, k)
		}
	}
	return out
}

// FirstFailed returns the first chunk whose last recorded status is failed.
func FirstFailed(records Records) (ChunkKind, bool) {
	for _, k := range ChunkOrder {
		if rec := records[k]; rec != nil && rec.Status == StatusFailed {
			return k, true
		}
	}
	return "", false
}

// Savings sums the recorded cost and duration of every done chunk, which is
// what a resume avoids paying again.
func Savings(records Records) (usd float64, ms int64) {
	for _, k := range ChunkOrder {
		if !records.done(k) {
			continue
		}
		usd += records[k].CostUsd
		ms += records[k].DurationMs
	}
	return RoundCost(usd), ms
}

// RoundCost rounds a chunk-level dollar amount to five decimal places.
func RoundCost(usd float64) float64 {
	return math.Round(usd*1e5) / 1e5
}
