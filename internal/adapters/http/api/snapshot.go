package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	service "github.com/pixelcode/pixelsync/internal/app"
	"github.com/pixelcode/pixelsync/internal/domain/types"
)

// UserSyncer records today's snapshot for one stored user.
type UserSyncer interface {
	SyncUser(ctx context.Context, userID string) (types.SyncResult, error)
}

// SnapshotHandler handles single-user sync requests.
type SnapshotHandler struct {
	syncer UserSyncer
}

// NewSnapshotHandler creates a snapshot handler.
func NewSnapshotHandler(syncer UserSyncer) *SnapshotHandler {
	return &SnapshotHandler{syncer: syncer}
}

type snapshotRequest struct {
	UserID string `json:"userId"`
}

// HandleSnapshot handles POST /api/snapshot.
func (h *SnapshotHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		badRequest(w, service.ErrMissingUserID)
		return
	}

	res, err := h.syncer.SyncUser(r.Context(), req.UserID)
	switch {
	case errors.Is(err, service.ErrUnknownUser):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrUsernameNotLinked), errors.Is(err, service.ErrMissingUserID):
		badRequest(w, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
