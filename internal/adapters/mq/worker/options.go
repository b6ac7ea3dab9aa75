package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/pixelcode/pixelsync/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithPacing sets the pause each worker takes after finishing a job.
func WithPacing(d time.Duration) Option {
	return func(p *Pool) {
		if d >= 0 {
			p.pacing = d
		}
	}
}

// WithLimiter shares a start-rate limiter across all workers.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Pool) {
		p.limiter = l
	}
}

// WithSleep replaces the pause implementation.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(p *Pool) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
