package service

import (
	"context"

	"github.com/pixelcode/pixelsync/internal/adapters/leetcode"
	"github.com/pixelcode/pixelsync/internal/adapters/repository"
	"github.com/pixelcode/pixelsync/internal/config"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

// NewFromConfig opens the configured store and builds a Service over it and
// the platform client. The caller owns the returned store and must close it.
func NewFromConfig(ctx context.Context, cfg *config.Config, log logger.Logger) (*Service, *repository.SQLStore, error) {
	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN, repository.WithLogger(log.Named("repository")))
	if err != nil {
		return nil, nil, err
	}

	client := leetcode.New(
		leetcode.WithEndpoint(cfg.StatsEndpoint),
		leetcode.WithUserAgent(cfg.UserAgent),
		leetcode.WithTimeout(cfg.FetchTimeout()),
		leetcode.WithLogger(log.Named("leetcode")),
	)

	svc := New(store, client,
		WithLogger(log.Named("sync")),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithPacing(cfg.Pacing()),
		WithRetryDelays(cfg.RetryDefaultDelay(), cfg.RetryMaxDelay()),
		WithProgressDays(cfg.ProgressDefaultDays),
	)
	return svc, store, nil
}
