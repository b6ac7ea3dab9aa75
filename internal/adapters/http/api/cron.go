package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/pixelcode/pixelsync/internal/domain/types"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

// CronSecretHeader carries the shared secret of the batch trigger.
const CronSecretHeader = "x-cron-secret"

// BatchRunner runs the daily batch.
type BatchRunner interface {
	RunDailyBatch(ctx context.Context) (types.BatchReport, error)
}

// CronHandler handles the external batch trigger.
type CronHandler struct {
	runner BatchRunner
	secret []byte
	logger logger.Logger
}

// NewCronHandler creates a cron handler. An empty secret rejects every call.
func NewCronHandler(runner BatchRunner, secret string, l logger.Logger) *CronHandler {
	return &CronHandler{runner: runner, secret: []byte(secret), logger: l}
}

// HandleDailySnapshot handles POST /api/cron/daily-snapshot.
func (h *CronHandler) HandleDailySnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.Header.Get(CronSecretHeader)) {
		writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
		return
	}

	// The batch outlives the caller: a dropped cron connection must not
	// abandon users that have not been synced yet.
	report, err := h.runner.RunDailyBatch(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Error(r.Context(), "batch trigger failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "batch_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *CronHandler) authorized(got string) bool {
	if len(h.secret) == 0 || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), h.secret) == 1
}
