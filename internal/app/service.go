// Package service implements the daily sync pipeline: recording one user's
// snapshot, running the batch over every linked user, and reading progress.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pixelcode/pixelsync/internal/adapters/leetcode"
	"github.com/pixelcode/pixelsync/internal/adapters/repository"
	"github.com/pixelcode/pixelsync/internal/domain/dedupe"
	"github.com/pixelcode/pixelsync/internal/domain/model"
	"github.com/pixelcode/pixelsync/internal/domain/progression"
	"github.com/pixelcode/pixelsync/internal/domain/types"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

// Defaults.
const (
	DefaultPacing       = 200 * time.Millisecond
	DefaultRetryDelay   = time.Second
	DefaultMaxRetryWait = 3 * time.Second
	DefaultProgressDays = 14
	MinProgressDays     = 7
	MaxProgressDays     = 60
)

// Service wires the store, the stats client and the calculator.
type Service struct {
	store   repository.Store
	fetcher leetcode.Fetcher
	calc    *progression.Calculator
	deduper dedupe.Deduper
	now     func() time.Time

	workerCount  int
	queueSize    int
	pacing       time.Duration
	retryDefault time.Duration
	retryMax     time.Duration
	progressDays int

	logger logger.Logger
}

// New constructs a Service.
func New(store repository.Store, fetcher leetcode.Fetcher, opts ...Option) *Service {
	s := &Service{
		store:        store,
		fetcher:      fetcher,
		calc:         progression.NewCalculator(),
		deduper:      dedupe.NewInMemoryDeduper(),
		now:          time.Now,
		workerCount:  1,
		pacing:       DefaultPacing,
		retryDefault: DefaultRetryDelay,
		retryMax:     DefaultMaxRetryWait,
		progressDays: DefaultProgressDays,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampDays bounds a progress window to [7, 60].
func ClampDays(days int) int {
	if days < MinProgressDays {
		return MinProgressDays
	}
	if days > MaxProgressDays {
		return MaxProgressDays
	}
	return days
}

// DefaultDays is the progress window used when none is requested.
func (s *Service) DefaultDays() int { return s.progressDays }

// LinkUser creates the user or changes its platform username.
func (s *Service) LinkUser(ctx context.Context, userID, username string, freezeTokens int) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUserID
	}
	if freezeTokens < 0 {
		freezeTokens = 0
	}
	return s.store.UpsertUser(ctx, model.User{
		ID:                 userID,
		ExternalUsername:   strings.TrimSpace(username),
		StreakFreezeTokens: freezeTokens,
	})
}

// SyncUser records today's snapshot for a stored user.
func (s *Service) SyncUser(ctx context.Context, userID string) (types.SyncResult, error) {
	u, err := s.lookupUser(ctx, userID)
	if err != nil {
		return types.SyncResult{}, err
	}
	if u.ExternalUsername == "" {
		return types.SyncResult{}, ErrUsernameNotLinked
	}
	return s.RecordDailySnapshot(ctx, u.ID, u.ExternalUsername), nil
}

// Progress returns the latest days of progress for a user, oldest first.
func (s *Service) Progress(ctx context.Context, userID string, days int) (types.ProgressView, error) {
	u, err := s.lookupUser(ctx, userID)
	if err != nil {
		return types.ProgressView{}, err
	}
	days = ClampDays(days)

	rows, err := s.store.ProgressHistory(ctx, u.ID, days)
	if err != nil {
		return types.ProgressView{}, err
	}

	var latest *model.StatSnapshot
	snap, err := s.store.LatestSnapshot(ctx, u.ID)
	switch {
	case err == nil:
		latest = &snap
	case !errors.Is(err, repository.ErrNotFound):
		return types.ProgressView{}, err
	}

	st, err := s.store.GetProgressionState(ctx, u.ID)
	if err != nil {
		return types.ProgressView{}, err
	}
	return types.NewProgressView(u.ID, days, rows, latest, st), nil
}

func (s *Service) lookupUser(ctx context.Context, userID string) (model.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.User{}, ErrMissingUserID
	}
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}
