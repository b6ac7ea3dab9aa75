// Package worker runs sync jobs from the queue on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/pixelcode/pixelsync/internal/domain/model"
	"github.com/pixelcode/pixelsync/pkg/logger"
	"github.com/pixelcode/pixelsync/pkg/metrics"
)

// Handler processes one job. It owns result reporting.
type Handler interface {
	Handle(ctx context.Context, job model.SyncJob)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job model.SyncJob)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job model.SyncJob) { f(ctx, job) }

// Queue is where workers receive jobs from.
type Queue interface {
	Dequeue() <-chan model.SyncJob
}

// NewLimiter returns a limiter admitting one job start per interval, or nil
// when no limit applies.
func NewLimiter(workers int, interval time.Duration) *rate.Limiter {
	if workers <= 1 || interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Pool runs a fixed number of workers until the queue channel closes.
type Pool struct {
	size    int
	queue   Queue
	handler Handler

	pacing  time.Duration
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration)

	wg        sync.WaitGroup
	active    int64
	processed int64
	started   atomic.Bool

	logger logger.Logger
}

// NewPool creates a pool of size workers. Sizes below one become one.
func NewPool(size int, q Queue, h Handler, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:    size,
		queue:   q,
		handler: h,
		sleep:   sleepCtx,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. It may be called once.
func (p *Pool) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pool already started")
	}
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, p.logger.Named("worker-"+strconv.Itoa(i)))
	}
	return nil
}

// Wait blocks until every worker has drained the queue and exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Processed returns the number of jobs handled so far.
func (p *Pool) Processed() int64 {
	return atomic.LoadInt64(&p.processed)
}

func (p *Pool) run(ctx context.Context, log logger.Logger) {
	defer p.wg.Done()
	metrics.UpdateWorkerActiveCount(int(atomic.AddInt64(&p.active, 1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(atomic.AddInt64(&p.active, -1)))
	}()

	for job := range p.queue.Dequeue() {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				// the handler still runs and reports the cancellation for this user
				log.Debug(ctx, "rate limiter wait aborted", logger.Error(err))
			}
		}

		p.handler.Handle(ctx, job)
		atomic.AddInt64(&p.processed, 1)

		if p.pacing > 0 {
			p.sleep(ctx, p.pacing)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
