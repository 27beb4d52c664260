package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// SyncRunner is the slice of the pipeline the tick loop drives.
type SyncRunner interface {
	RunSync(ctx context.Context, opts Options) (*Report, error)
}

type TickOptions struct {
	Mode Mode
	From string
	// MaxTicks bounds the number of runs in one invocation.
	MaxTicks int
	// Ceiling bounds total wall-clock time across runs and sleeps.
	Ceiling time.Duration
	// PerTickBudget is handed to each run as its time budget.
	PerTickBudget time.Duration
}

type TickSummary struct {
	Ticks     int   `json:"ticks"`
	Done      bool  `json:"done"`
	ElapsedMS int64 `json:"elapsedMs"`
}

// Ticker repeats bounded sync runs until the work is drained or a limit is
// hit, sleeping between runs per the pipeline's pacing hint.
type Ticker struct {
	runner SyncRunner
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewTicker(runner SyncRunner, logger zerolog.Logger) *Ticker {
	return &Ticker{
		runner: runner,
		logger: logger,
		now:    time.Now,
		sleep:  sleepUntil,
	}
}

// SetNow overrides the clock. Test hook.
func (t *Ticker) SetNow(now func() time.Time) { t.now = now }

// SetSleep overrides the inter-tick sleep. Test hook.
func (t *Ticker) SetSleep(sleep func(ctx context.Context, d time.Duration) error) { t.sleep = sleep }

// minTickBudget is the smallest remainder worth starting a run with. It
// matches the lower clamp on per-run budgets, so a tick is never handed a
// budget that would be clamped back up past the ceiling.
const minTickBudget = 10 * time.Second

// Run drives the pipeline until Done, MaxTicks, the ceiling, or context
// cancellation. A run already in progress elsewhere ends the loop cleanly;
// other run errors propagate. Each tick is handed the remaining slice of
// the ceiling, never more, so the invocation ends on time even when a run
// spends its whole budget.
func (t *Ticker) Run(ctx context.Context, opts TickOptions) (*TickSummary, error) {
	startedAt := t.now()
	summary := &TickSummary{}

	for summary.Ticks < opts.MaxTicks {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		remaining := opts.Ceiling - t.now().Sub(startedAt)
		if remaining < minTickBudget {
			break
		}
		budget := opts.PerTickBudget
		if budget > remaining {
			budget = remaining
		}

		report, err := t.runner.RunSync(ctx, Options{
			Mode:       opts.Mode,
			From:       opts.From,
			TimeBudget: budget,
		})
		if err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				t.logger.Info().Msg("another sync holds the lock, stopping tick loop")
				break
			}
			summary.ElapsedMS = t.now().Sub(startedAt).Milliseconds()
			return summary, err
		}
		summary.Ticks++

		if report.Done {
			summary.Done = true
			break
		}

		delay := clampDuration(time.Duration(report.NextDelayMS)*time.Millisecond,
			250*time.Millisecond, 5*time.Second)
		remaining = opts.Ceiling - t.now().Sub(startedAt)
		if remaining <= delay {
			break
		}

		t.logger.Debug().
			Int("tick", summary.Ticks).
			Dur("delay", delay).
			Int("pending_details", report.Pending.MatchDetails).
			Msg("tick complete, sleeping")
		if err := t.sleep(ctx, delay); err != nil {
			summary.ElapsedMS = t.now().Sub(startedAt).Milliseconds()
			return summary, err
		}
	}

	summary.ElapsedMS = t.now().Sub(startedAt).Milliseconds()
	t.logger.Info().
		Int("ticks", summary.Ticks).
		Bool("done", summary.Done).
		Int64("elapsed_ms", summary.ElapsedMS).
		Msg("tick loop finished")
	return summary, nil
}

func sleepUntil(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
