package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mileusna/crontab"
)

// DefaultSchedule runs the sweep every Monday at 00:00
const DefaultSchedule = "0 0 * * 1"

// Scheduler fires Reconciler.Sweep on a cron schedule.
type Scheduler struct {
	ctab       *crontab.Crontab
	reconciler *Reconciler
	schedule   string
	logger     *slog.Logger
}

// NewScheduler creates a scheduler; an empty schedule means DefaultSchedule.
func NewScheduler(reconciler *Reconciler, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		reconciler: reconciler,
		schedule:   schedule,
		logger:     logger.With("component", "sweep-scheduler"),
	}
}

// Start registers the sweep job. Runs use ctx and stop with Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctab = crontab.New()
	if err := s.ctab.AddJob(s.schedule, func() { s.run(ctx) }); err != nil {
		s.ctab.Shutdown()
		return fmt.Errorf("failed to schedule sweep %q: %w", s.schedule, err)
	}

	s.logger.Info("Sweep scheduled", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule. A sweep already running finishes on its own.
func (s *Scheduler) Stop() {
	if s.ctab != nil {
		s.ctab.Shutdown()
	}
}

// Run blocks until ctx is done, then stops the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	result, err := s.reconciler.Sweep(ctx, SweepOptions{})
	if err != nil {
		// Already logged by the reconciler; the next tick tries again.
		return
	}
	s.logger.Debug("Scheduled sweep finished", "message", result.Message(), "shared", result.Shared)
}
