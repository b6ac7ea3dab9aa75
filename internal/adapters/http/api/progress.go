package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	service "github.com/pixelcode/pixelsync/internal/app"
	"github.com/pixelcode/pixelsync/internal/domain/types"
)

var errDaysNotInteger = errors.New("days must be an integer")

// ProgressReader reads a user's progress window.
type ProgressReader interface {
	Progress(ctx context.Context, userID string, days int) (types.ProgressView, error)
	DefaultDays() int
}

// ProgressHandler handles progress queries.
type ProgressHandler struct {
	reader ProgressReader
}

// NewProgressHandler creates a progress handler.
func NewProgressHandler(reader ProgressReader) *ProgressHandler {
	return &ProgressHandler{reader: reader}
}

// HandleProgress handles GET /api/progress?userId=..&days=N.
func (h *ProgressHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	if userID == "" {
		badRequest(w, service.ErrMissingUserID)
		return
	}

	days := h.reader.DefaultDays()
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, errDaysNotInteger)
			return
		}
		days = n
	}

	view, err := h.reader.Progress(r.Context(), userID, days)
	switch {
	case errors.Is(err, service.ErrUnknownUser):
		writeError(w, http.StatusNotFound, "not_found", err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}
