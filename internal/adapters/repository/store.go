// Package repository persists snapshots, daily progress and progression state.
package repository

import (
	"context"
	"time"

	"github.com/pixelcode/pixelsync/internal/domain/model"
)

// Store is the read side plus the transaction boundary used by the recorder.
type Store interface {
	// FindSnapshot returns the snapshot for (userID, day) or ErrNotFound.
	FindSnapshot(ctx context.Context, userID string, day time.Time) (model.StatSnapshot, error)
	// LatestSnapshotBefore returns the newest snapshot strictly before day or ErrNotFound.
	LatestSnapshotBefore(ctx context.Context, userID string, day time.Time) (model.StatSnapshot, error)
	// LatestSnapshot returns the newest snapshot of the user or ErrNotFound.
	LatestSnapshot(ctx context.Context, userID string) (model.StatSnapshot, error)

	// InTx runs fn in one transaction. A non-nil error from fn rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// ListLinkedUsers returns users with an external username, ordered by id.
	ListLinkedUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	// UpsertUser creates the user or updates its external username.
	UpsertUser(ctx context.Context, u model.User) error

	GetProgressionState(ctx context.Context, userID string) (model.ProgressionState, error)
	// ProgressHistory returns the latest limit progress rows in ascending date order.
	ProgressHistory(ctx context.Context, userID string, limit int) ([]model.DailyProgress, error)

	Close() error
}

// Tx is the write side, valid only inside Store.InTx.
type Tx interface {
	// InsertSnapshot returns ErrDuplicateSnapshot when (user, day) already exists.
	InsertSnapshot(ctx context.Context, s *model.StatSnapshot) error
	GetProgressionState(ctx context.Context, userID string) (model.ProgressionState, error)
	InsertDailyProgress(ctx context.Context, p *model.DailyProgress) error
	UpdateProgressionState(ctx context.Context, st model.ProgressionState) error
}
