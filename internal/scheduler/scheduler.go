// Package scheduler runs the periodic backup operations in-process:
// incremental backups on a daily cron expression and whole-bucket snapshots
// on a monthly one.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MacJediWizard/influxvault/internal/backup"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner is the subset of the orchestrator the scheduler drives.
type Runner interface {
	IncrementalBackup(ctx context.Context, req backup.Request) (*backup.RunResult, error)
	SnapshotBackup(ctx context.Context, req backup.Request) (*backup.RunResult, error)
}

// Scheduler owns the cron instance and the schedule entries.
type Scheduler struct {
	runner Runner
	cron   *cron.Cron
	logger zerolog.Logger
}

// New creates a Scheduler. Schedules are standard 5-field cron expressions
// evaluated in UTC.
func New(runner Runner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds the daily and monthly entries.
func (s *Scheduler) Register(dailySpec, monthlySpec string) error {
	if _, err := s.cron.AddFunc(dailySpec, func() {
		s.runOnce("incremental_backup", s.runner.IncrementalBackup)
	}); err != nil {
		return fmt.Errorf("register daily schedule %q: %w", dailySpec, err)
	}
	if _, err := s.cron.AddFunc(monthlySpec, func() {
		s.runOnce("snapshot_backup", s.runner.SnapshotBackup)
	}); err != nil {
		return fmt.Errorf("register monthly schedule %q: %w", monthlySpec, err)
	}
	return nil
}

// Start begins schedule evaluation.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop stops schedule evaluation and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

// runOnce executes one scheduled operation with an empty request, so the
// bucket list resolves from configuration. Failures are logged; the next
// scheduled run re-extracts from the unchanged checkpoints.
func (s *Scheduler) runOnce(operation string, run func(context.Context, backup.Request) (*backup.RunResult, error)) {
	s.logger.Info().Str("operation", operation).Msg("starting scheduled run")

	result, err := run(context.Background(), backup.Request{})
	if err != nil {
		s.logger.Error().Err(err).Str("operation", operation).Msg("scheduled run failed")
		return
	}

	s.logger.Info().
		Str("operation", operation).
		Strs("succeeded", result.Succeeded).
		Strs("failed", result.Failed).
		Msg("scheduled run completed")
}
