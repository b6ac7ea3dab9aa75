// Package scheduler triggers the daily batch on a fixed UTC time of day.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/pixelcode/pixelsync/internal/domain/types"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

// DefaultAt is the UTC time the batch runs when nothing else is configured.
const DefaultAt = "00:10"

// BatchRunner runs one daily batch.
type BatchRunner interface {
	RunDailyBatch(ctx context.Context) (types.BatchReport, error)
}

// Scheduler wraps a gocron scheduler with a single daily job.
type Scheduler struct {
	cron   *gocron.Scheduler
	job    *gocron.Job
	runner BatchRunner
	at     string
	logger logger.Logger
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithAt sets the HH:MM UTC run time.
func WithAt(at string) Option {
	return func(s *Scheduler) {
		if at != "" {
			s.at = at
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler. Call Start to register and run the job.
func New(runner BatchRunner, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:   gocron.NewScheduler(time.UTC),
		runner: runner,
		at:     DefaultAt,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the daily job and starts the scheduler without blocking.
// ctx is handed to every run; cancelling it cancels in-flight fetches.
func (s *Scheduler) Start(ctx context.Context) error {
	job, err := s.cron.Every(1).Day().At(s.at).SingletonMode().Do(s.run, ctx)
	if err != nil {
		return fmt.Errorf("schedule daily batch at %q: %w", s.at, err)
	}
	s.job = job
	s.cron.StartAsync()
	s.logger.Info(ctx, "daily batch scheduled", logger.String("at", s.at), logger.Any("next_run", job.NextRun()))
	return nil
}

// NextRun returns when the batch runs next, zero before Start.
func (s *Scheduler) NextRun() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// RunNow triggers the job immediately on the scheduler's executor.
func (s *Scheduler) RunNow() {
	s.cron.RunAll()
}

// Stop stops the scheduler. Runs already started finish on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) run(ctx context.Context) {
	report, err := s.runner.RunDailyBatch(ctx)
	if err != nil {
		s.logger.Error(ctx, "scheduled batch failed", logger.Error(err))
		return
	}
	s.logger.Info(ctx, "scheduled batch done", logger.Int("processed", report.Processed))
}
