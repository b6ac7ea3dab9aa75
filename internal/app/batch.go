package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/pixelcode/pixelsync/internal/adapters/mq/queue"
	"github.com/pixelcode/pixelsync/internal/adapters/mq/worker"
	"github.com/pixelcode/pixelsync/internal/domain/model"
	"github.com/pixelcode/pixelsync/internal/domain/types"
	"github.com/pixelcode/pixelsync/pkg/logger"
	"github.com/pixelcode/pixelsync/pkg/metrics"
)

var errRetryable = errors.New("retryable sync failure")

// RunDailyBatch records today's snapshot for every linked user. One user's
// failure never stops the batch; only failing to list users is an error.
func (s *Service) RunDailyBatch(ctx context.Context) (types.BatchReport, error) {
	start := time.Now()
	metrics.RecordBatchRun()
	log := s.logger.With(logger.String("batch_id", uuid.NewString()))

	users, err := s.store.ListLinkedUsers(ctx)
	if err != nil {
		log.Error(ctx, "batch aborted", logger.Error(err))
		return types.BatchReport{}, fmt.Errorf("%w: %w", ErrListUsers, err)
	}
	log.Info(ctx, "batch started", logger.Int("users", len(users)), logger.Int("workers", s.workerCount))

	results := make([]types.SyncResult, len(users))
	q := queue.NewInMemoryQueue(queue.WithCapacity(max(len(users), s.queueSize)))
	for i, u := range users {
		if err := q.Enqueue(ctx, model.SyncJob{Index: i, UserID: u.ID, Username: u.ExternalUsername}); err != nil {
			results[i] = types.SyncResult{UserID: u.ID, Status: types.StatusFailed, Reason: err.Error()}
		}
	}
	_ = q.Close()

	pool := worker.NewPool(s.workerCount, q,
		worker.HandlerFunc(func(ctx context.Context, job model.SyncJob) {
			results[job.Index] = s.syncWithRetry(ctx, job, log)
		}),
		worker.WithPacing(s.pacing),
		worker.WithLimiter(worker.NewLimiter(s.workerCount, s.pacing)),
		worker.WithLogger(log.Named("pool")),
	)
	if err := pool.Start(ctx); err != nil {
		return types.BatchReport{}, err
	}
	pool.Wait()

	report := types.BatchReport{Processed: len(results), Results: results}
	elapsed := time.Since(start)
	metrics.RecordBatchFinished(float64(elapsed.Milliseconds()), int(pool.Processed()))
	log.Info(ctx, "batch finished",
		logger.Int("processed", report.Processed),
		logger.Int64("handled", pool.Processed()),
		logger.Int("ok", countStatus(results, types.StatusOK)),
		logger.Int("skipped", countStatus(results, types.StatusSkipped)),
		logger.Int("failed", countStatus(results, types.StatusFailed)),
		logger.Duration("duration", elapsed),
	)
	return report, nil
}

// syncWithRetry runs the recorder and retries a retryable failure exactly once.
func (s *Service) syncWithRetry(ctx context.Context, job model.SyncJob, log logger.Logger) types.SyncResult {
	var res types.SyncResult
	attempts := 0
	// outcome lives in res
	_ = retry.Do(
		func() error {
			attempts++
			res = s.RecordDailySnapshot(ctx, job.UserID, job.Username)
			if res.ShouldRetry() {
				return errRetryable
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errRetryable) }),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			return retryDelay(res, s.retryDefault, s.retryMax)
		}),
		retry.MaxDelay(s.retryMax),
		retry.LastErrorOnly(true),
	)
	if attempts == 0 {
		// cancelled before the first attempt
		res = s.RecordDailySnapshot(ctx, job.UserID, job.Username)
	}
	if attempts > 1 {
		metrics.RecordBatchRetry()
		log.Debug(ctx, "user retried", logger.String("user_id", job.UserID), logger.String("status", string(res.Status)))
	}
	return res
}

// retryDelay is the wait before the single retry: the platform hint when
// present, otherwise def, never above maxWait.
func retryDelay(res types.SyncResult, def, maxWait time.Duration) time.Duration {
	d := def
	if res.RetryAfterSeconds != nil {
		d = time.Duration(*res.RetryAfterSeconds) * time.Second
	}
	if d > maxWait {
		d = maxWait
	}
	if d < 0 {
		d = 0
	}
	return d
}

func countStatus(results []types.SyncResult, status types.Status) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}
