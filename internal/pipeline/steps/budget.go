package steps

import "time"

// TimeBudget tracks how much of a chunk's time allowance is left and caps
// per-call timeouts so a call never outlives the chunk.
type TimeBudget struct {
	start  time.Time
	budget time.Duration
	now    func() time.Time
}

// NewTimeBudget starts a budget of d.
func NewTimeBudget(d time.Duration) *TimeBudget {
	return newTimeBudgetAt(d, time.Now)
}

func newTimeBudgetAt(d time.Duration, now func() time.Time) *TimeBudget {
	return &TimeBudget{start: now(), budget: d, now: now}
}

// Elapsed returns the time since the budget started.
func (b *TimeBudget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// Remaining returns the unused budget, never negative.
func (b *TimeBudget) Remaining() time.Duration {
	return max(0, b.budget-b.Elapsed())
}

// Cap returns the timeout to use for a call that wants requested. With less
// than 10s left it returns the remainder minus 2s, at least 1s. Otherwise it
// returns the lesser of requested and the remainder minus 5s, at least 5s.
func (b *TimeBudget) Cap(requested time.Duration) time.Duration {
	remaining := b.Remaining()
	if remaining < 10*time.Second {
		return max(remaining-2*time.Second, time.Second)
	}
	return max(min(requested, remaining-5*time.Second), 5*time.Second)
}

// Exhausted reports whether 10s or less remain.
func (b *TimeBudget) Exhausted() bool {
	return b.Remaining() <= 10*time.Second
}
