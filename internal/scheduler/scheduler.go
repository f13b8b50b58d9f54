// Package scheduler runs the pipeline sweeps on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/config"
)

// Runner resolves a sweep by job name.
type Runner interface {
	Job(name string) (func(context.Context) bool, bool)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler wraps a cron instance. A job never overlaps a still-running run of itself.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{s: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return &Scheduler{cron: c, logger: logger}
}

// Add schedules one job. ctx is the parent of every run.
func (s *Scheduler) Add(ctx context.Context, spec, name string, job func(context.Context) bool) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		ok := job(ctx)
		s.logger.Info("job finished", zap.String("job", name), zap.Bool("ok", ok), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

// Register schedules every named sweep of r with its configured spec. Empty specs disable a job.
func (s *Scheduler) Register(ctx context.Context, r Runner, cfg config.ScheduleConfig) error {
	specs := map[string]string{
		"listing":       cfg.Listing,
		"upload":        cfg.Upload,
		"embed":         cfg.Embed,
		"cleanup":       cfg.Cleanup,
		"refresh_token": cfg.RefreshToken,
	}
	for name, spec := range specs {
		if spec == "" {
			s.logger.Info("job disabled", zap.String("job", name))
			continue
		}
		job, ok := r.Job(name)
		if !ok {
			return fmt.Errorf("unknown job %q", name)
		}
		if err := s.Add(ctx, spec, name, job); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", s.Len()))
}

// Stop stops scheduling and returns a context done when running jobs have completed.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
