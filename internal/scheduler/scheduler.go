// Package scheduler runs periodic maintenance, currently the sweep that
// archives inactive projects.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/pm-api/internal/config"
	"github.com/robfig/cron/v3"
)

// Archiver archives projects that have been inactive for the given number
// of days.
type Archiver interface {
	ArchiveInactiveProjects(ctx context.Context, days int) (int, error)
}

// Scheduler wraps a cron runner. Overlapping runs of the same entry are
// skipped.
type Scheduler struct {
	cron         *cron.Cron
	archiver     Archiver
	inactiveDays int
	timeout      time.Duration
	logger       *slog.Logger
}

// New creates a Scheduler for cfg. The schedule uses the standard five
// field cron syntax, plus descriptors such as "@daily".
func New(cfg config.ArchiveConfig, archiver Archiver, logger *slog.Logger) (*Scheduler, error) {
	if archiver == nil {
		return nil, fmt.Errorf("archiver cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))

	cronLog := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		archiver:     archiver,
		inactiveDays: cfg.InactiveDays,
		timeout:      10 * time.Minute,
		logger:       logger,
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunArchiveSweep(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid archive schedule %q: %w", cfg.Schedule, err)
	}

	return s, nil
}

// Start begins running scheduled entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("entries", len(s.cron.Entries())))
}

// Stop stops scheduling new runs and waits for running ones to finish or
// for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunArchiveSweep archives inactive projects once. Failures are logged.
func (s *Scheduler) RunArchiveSweep(ctx context.Context) {
	start := time.Now()
	count, err := s.archiver.ArchiveInactiveProjects(ctx, s.inactiveDays)
	if err != nil {
		s.logger.Error("archive sweep failed",
			slog.Int("inactive_days", s.inactiveDays),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("archive sweep completed",
		slog.Int("archived", count),
		slog.Int("inactive_days", s.inactiveDays),
		slog.Duration("duration", time.Since(start)))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
