package service

import (
	"time"

	"league-tracker/internal/constants"
)

// budget is elapsed-since-start accounting, not a deadline: every loop
// checks it and exits early (never mid-write) once the safety margin is
// reached, so the run returns before any platform hard ceiling.
type budget struct {
	startedAt time.Time
	total     time.Duration
}

func newBudget(startedAt time.Time, total time.Duration) budget {
	return budget{startedAt: startedAt, total: total}
}

func (b budget) expired(now time.Time) bool {
	limit := b.total - constants.BudgetSafetyMargin
	if limit < time.Millisecond {
		limit = time.Millisecond
	}
	return now.Sub(b.startedAt) >= limit
}

func (b budget) elapsed(now time.Time) time.Duration {
	return now.Sub(b.startedAt)
}
