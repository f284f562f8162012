// Package jobs runs the background maintenance tasks on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bayarin/bayarin/internal/transaction"
)

const purgeSchedule = "@every 1h"

// Sweeper settles stale pending transactions.
type Sweeper interface {
	Sweep(ctx context.Context) (transaction.SweepResult, error)
}

// Purger drops expired idempotency keys from stores without native expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	purger   Purger
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler builds a scheduler running sweeps on schedule. purger may be nil.
func NewScheduler(schedule string, sweeper Sweeper, purger Purger, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeper:  sweeper,
		purger:   purger,
		schedule: schedule,
		timeout:  time.Minute,
		logger:   logger,
	}
}

// Start registers the jobs and starts the runner. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", s.schedule, err)
	}
	if s.purger != nil {
		if _, err := s.cron.AddFunc(purgeSchedule, func() { s.purge(ctx) }); err != nil {
			return fmt.Errorf("schedule idempotency purge: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", slog.String("reconcile_schedule", s.schedule))
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("reconciliation sweep failed", slog.Any("error", err))
	}
}

func (s *Scheduler) purge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("idempotency purge failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("purged expired idempotency keys", slog.Int("count", n))
	}
}
