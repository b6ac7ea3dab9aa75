// Package types contains the JSON shapes handed to the outer layer.
package types

import (
	"time"

	"github.com/pixelcode/pixelsync/internal/domain/model"
)

// Status is the outcome of one sync attempt.
type Status string

// Sync statuses.
const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Skip reasons, plus the prefix of a failure caused by cancellation.
const (
	ReasonAlreadySnapshotted = "already-snapshotted"
	ReasonSyncInProgress     = "sync-in-progress"
	ReasonCancelled          = "cancelled"
)

// SyncResult is the outcome of recording one user's daily snapshot.
type SyncResult struct {
	UserID            string `json:"userId"`
	Status            Status `json:"status"`
	Reason            string `json:"reason,omitempty"`
	Retryable         bool   `json:"retryable,omitempty"`
	RetryAfterSeconds *int   `json:"retryAfterSeconds,omitempty"`
	// ErrorClass is set on failures: InputError, TransientExternalError,
	// PermanentExternalError or PersistenceError.
	ErrorClass string `json:"errorClass,omitempty"`
}

// ShouldRetry reports whether a retry may help.
func (r SyncResult) ShouldRetry() bool {
	return r.Status == StatusFailed && r.Retryable
}

// BatchReport is the ordered per-user outcome of a daily batch.
type BatchReport struct {
	Processed int          `json:"processed"`
	Results   []SyncResult `json:"results"`
}

// SnapshotView is the latest snapshot shown with progress.
type SnapshotView struct {
	SnapshotDate string `json:"snapshotDate"`
	model.Counts
}

// ProgressRow is one day of progress.
type ProgressRow struct {
	ProgressDate string `json:"progressDate"`
	DeltaEasy    int    `json:"deltaEasy"`
	DeltaMedium  int    `json:"deltaMedium"`
	DeltaHard    int    `json:"deltaHard"`
	DeltaTotal   int    `json:"deltaTotal"`
	XPEarned     int    `json:"xpEarned"`
	StreakAfter  int    `json:"streakAfter"`
}

// StateView is the user's current progression.
type StateView struct {
	TotalXP            int        `json:"totalXp"`
	Level              int        `json:"level"`
	Streak             int        `json:"streak"`
	StreakFreezeTokens int        `json:"streakFreezeTokens"`
	LastSnapshotAt     *time.Time `json:"lastSnapshotAt,omitempty"`
}

// ProgressView is returned by the progress endpoint.
type ProgressView struct {
	UserID         string        `json:"userId"`
	Days           int           `json:"days"`
	Progress       []ProgressRow `json:"progress"`
	LatestSnapshot *SnapshotView `json:"latestSnapshot"`
	State          StateView     `json:"state"`
}

// NewProgressView assembles the view from stored rows. latest may be nil.
func NewProgressView(userID string, days int, rows []model.DailyProgress, latest *model.StatSnapshot, st model.ProgressionState) ProgressView {
	v := ProgressView{
		UserID:   userID,
		Days:     days,
		Progress: make([]ProgressRow, 0, len(rows)),
		State: StateView{
			TotalXP:            st.TotalXP,
			Level:              st.Level,
			Streak:             st.Streak,
			StreakFreezeTokens: st.StreakFreezeTokens,
			LastSnapshotAt:     st.LastSnapshotAt,
		},
	}
	for _, r := range rows {
		v.Progress = append(v.Progress, ProgressRow{
			ProgressDate: model.DayKey(r.ProgressDate),
			DeltaEasy:    r.DeltaEasy,
			DeltaMedium:  r.DeltaMedium,
			DeltaHard:    r.DeltaHard,
			DeltaTotal:   r.DeltaTotal,
			XPEarned:     r.XPEarned,
			StreakAfter:  r.StreakAfter,
		})
	}
	if latest != nil {
		v.LatestSnapshot = &SnapshotView{SnapshotDate: model.DayKey(latest.SnapshotDate), Counts: latest.Counts}
	}
	return v
}
