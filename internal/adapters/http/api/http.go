// Package api exposes the sync pipeline over HTTP: the cron trigger, a
// single-user sync, the progress view, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pixelcode/pixelsync/internal/domain/types"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	RunDailyBatch(ctx context.Context) (types.BatchReport, error)
	SyncUser(ctx context.Context, userID string) (types.SyncResult, error)
	Progress(ctx context.Context, userID string, days int) (types.ProgressView, error)
	DefaultDays() int
}

// Server wires HTTP routes for the API.
type Server struct {
	healthHandler   *HealthHandler
	cronHandler     *CronHandler
	snapshotHandler *SnapshotHandler
	progressHandler *ProgressHandler
}

// Option applies a configuration option to the Server.
type Option func(*settings)

type settings struct {
	cronSecret string
	logger     logger.Logger
}

// WithCronSecret sets the shared secret for the cron trigger.
func WithCronSecret(secret string) Option {
	return func(s *settings) { s.cronSecret = secret }
}

// WithLogger sets the logger used by handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	st := settings{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&st)
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		cronHandler:     NewCronHandler(deps, st.cronSecret, st.logger),
		snapshotHandler: NewSnapshotHandler(deps),
		progressHandler: NewProgressHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", MetricsHandler())
	mux.HandleFunc("POST /api/cron/daily-snapshot", MetricsMiddleware(s.cronHandler.HandleDailySnapshot, "cron"))
	mux.HandleFunc("POST /api/snapshot", MetricsMiddleware(s.snapshotHandler.HandleSnapshot, "snapshot"))
	mux.HandleFunc("GET /api/progress", MetricsMiddleware(s.progressHandler.HandleProgress, "progress"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// badRequest writes a 400 whose message is prefixed with ErrBadRequest.
func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
