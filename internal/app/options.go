package service

import (
	"time"

	"github.com/pixelcode/pixelsync/internal/domain/dedupe"
	"github.com/pixelcode/pixelsync/internal/domain/progression"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithClock sets the time source. Snapshot days derive from it in UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDeduper replaces the in-flight guard.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithCalculator replaces the progression calculator.
func WithCalculator(c *progression.Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calc = c
		}
	}
}

// WithWorkerCount sets the number of batch workers. One keeps the batch sequential.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the minimum capacity of the batch queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPacing sets the pause after each user in a batch.
func WithPacing(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.pacing = d
		}
	}
}

// WithRetryDelays sets the retry wait used without a hint and its upper bound.
func WithRetryDelays(def, maxWait time.Duration) Option {
	return func(s *Service) {
		if def >= 0 {
			s.retryDefault = def
		}
		if maxWait >= 0 {
			s.retryMax = maxWait
		}
	}
}

// WithProgressDays sets the default progress window.
func WithProgressDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.progressDays = ClampDays(days)
		}
	}
}
