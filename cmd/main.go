package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelcode/pixelsync/internal/adapters/http/api"
	"github.com/pixelcode/pixelsync/internal/adapters/repository"
	"github.com/pixelcode/pixelsync/internal/adapters/scheduler"
	service "github.com/pixelcode/pixelsync/internal/app"
	"github.com/pixelcode/pixelsync/internal/config"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// application holds everything main starts and must stop.
type application struct {
	store     *repository.SQLStore
	svc       *service.Service
	scheduler *scheduler.Scheduler
	server    *http.Server
	log       logger.Logger
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", logger.Error(err))
		os.Exit(1)
	}
	if err := app.run(ctx); err != nil {
		log.Error(ctx, "server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// build opens the store and wires the service, scheduler and HTTP server.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	svc, store, err := service.NewFromConfig(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	api.NewServer(svc,
		api.WithCronSecret(cfg.CronSecret),
		api.WithLogger(log.Named("api")),
	).Register(mux)

	app := &application{
		store: store,
		svc:   svc,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadTimeout:       readTimeout,
			WriteTimeout:      cfg.HTTPWriteTimeout(),
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log,
	}
	if cfg.ScheduleEnabled {
		app.scheduler = scheduler.New(svc,
			scheduler.WithAt(cfg.ScheduleAt),
			scheduler.WithLogger(log.Named("scheduler")),
		)
	}
	if cfg.CronSecret == "" {
		log.Warn(ctx, "cron_secret is empty; the HTTP batch trigger rejects every call")
	}
	return app, nil
}

// run serves until ctx is cancelled, then shuts everything down.
func (a *application) run(ctx context.Context) error {
	defer a.close(ctx)

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "starting HTTP server", logger.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	a.log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	a.log.Info(ctx, "server stopped")
	return nil
}

func (a *application) close(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if err := a.store.Close(); err != nil {
		a.log.Error(ctx, "closing store failed", logger.Error(err))
	}
}
