// Package scheduler runs the verification cycle on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

type Scheduler struct {
	verifier interfaces.Verifier
	cron     *cron.Cron
	loc      *time.Location
	timeout  time.Duration
}

// New builds a scheduler evaluating standard 5-field cron expressions in loc.
// A run still in progress when the next tick fires is skipped.
func New(verifier interfaces.Verifier, loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Scheduler{
		verifier: verifier,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		loc:     loc,
		timeout: timeout,
	}
}

// Start registers the verification job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("invalid verify schedule %q: %w", schedule, err)
	}
	s.cron.Schedule(sched, cron.FuncJob(func() {
		_, _ = s.RunNow(ctx)
	}))
	s.cron.Start()
	logger.Info(ctx, "Verification scheduler started",
		"schedule", schedule,
		"next_run", sched.Next(time.Now().In(s.loc)).Format(time.RFC3339),
	)
	return nil
}

// Stop halts the loop and waits for a running job to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	<-s.cron.Stop().Done()
	logger.Info(ctx, "Verification scheduler stopped")
}

// RunNow performs one verification cycle synchronously.
func (s *Scheduler) RunNow(ctx context.Context) (*types.VerifySummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	op := logger.StartOperation(ctx, "scheduler.verify")
	summary, err := s.verifier.Run(op.GetContext())
	if err != nil {
		op.EndWithError(err)
		// summary is non-nil when the run was cut short after committing some records
		return summary, err
	}
	op.End(
		"checked", summary.Checked,
		"skipped", summary.Skipped,
		"deferred", summary.Deferred,
		"errored", summary.Errored,
	)
	return summary, nil
}
