package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pixelcode/pixelsync/internal/adapters/leetcode"
	"github.com/pixelcode/pixelsync/internal/adapters/repository"
	"github.com/pixelcode/pixelsync/internal/domain/dedupe"
	"github.com/pixelcode/pixelsync/internal/domain/model"
	"github.com/pixelcode/pixelsync/internal/domain/progression"
	"github.com/pixelcode/pixelsync/internal/domain/types"
	"github.com/pixelcode/pixelsync/pkg/logger"
	"github.com/pixelcode/pixelsync/pkg/metrics"
)

// RecordDailySnapshot captures today's counts for one user exactly once and,
// when an earlier snapshot exists, applies the resulting progression in the
// same transaction. It never returns an error: every outcome is a SyncResult.
func (s *Service) RecordDailySnapshot(ctx context.Context, userID, username string) types.SyncResult {
	res := s.record(ctx, userID, username)
	res.UserID = userID
	metrics.RecordSyncResult(string(res.Status))

	fields := []logger.Field{
		logger.String("user_id", userID),
		logger.String("status", string(res.Status)),
	}
	if res.Reason != "" {
		fields = append(fields, logger.String("reason", res.Reason))
	}
	if res.Status == types.StatusFailed {
		fields = append(fields, logger.Bool("retryable", res.Retryable))
		s.logger.Warn(ctx, "daily snapshot failed", fields...)
	} else {
		s.logger.Info(ctx, "daily snapshot", fields...)
	}
	return res
}

func (s *Service) record(ctx context.Context, userID, username string) types.SyncResult {
	if strings.TrimSpace(username) == "" {
		return fetchFailure(leetcode.MissingUsername())
	}

	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	day := model.Day(s.now())
	key := dedupe.Key(userID, day)
	if s.deduper.SeenAndRecord(ctx, key) {
		return skipped(types.ReasonSyncInProgress)
	}
	defer s.deduper.Unrecord(ctx, key)

	_, err := s.store.FindSnapshot(ctx, userID, day)
	switch {
	case err == nil:
		return skipped(types.ReasonAlreadySnapshotted)
	case ctx.Err() != nil:
		return cancelled(ctx.Err())
	case !errors.Is(err, repository.ErrNotFound):
		return persistenceFailure(err)
	}

	stats, err := s.fetcher.FetchStats(ctx, username)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		if fe, ok := leetcode.AsFetchError(err); ok {
			return fetchFailure(fe)
		}
		return types.SyncResult{
			Status:     types.StatusFailed,
			Reason:     err.Error(),
			ErrorClass: string(leetcode.ClassPermanentExternal),
		}
	}

	// Fetched counts are persisted even if the caller goes away now, and the
	// write must not be torn mid-commit.
	txCtx := context.WithoutCancel(ctx)

	var prev *model.StatSnapshot
	p, err := s.store.LatestSnapshotBefore(txCtx, userID, day)
	switch {
	case err == nil:
		prev = &p
	case !errors.Is(err, repository.ErrNotFound):
		return persistenceFailure(err)
	}

	var applied *progression.Result
	err = s.store.InTx(txCtx, func(ctx context.Context, tx repository.Tx) error {
		applied = nil
		if err := tx.InsertSnapshot(ctx, &model.StatSnapshot{
			UserID:       userID,
			SnapshotDate: day,
			Counts:       stats.Counts,
			FetchedAt:    stats.FetchedAt,
		}); err != nil {
			return err
		}
		if prev == nil {
			return nil
		}
		r, err := s.applyProgress(ctx, tx, userID, day, prev.Counts, stats.Counts)
		if err != nil {
			return err
		}
		applied = &r
		return nil
	})
	if errors.Is(err, repository.ErrDuplicateSnapshot) {
		metrics.RecordTxRollback()
		return skipped(types.ReasonAlreadySnapshotted)
	}
	if err != nil {
		metrics.RecordTxRollback()
		return persistenceFailure(err)
	}

	if applied != nil {
		metrics.RecordXPAwarded(applied.XPEarned)
		if applied.UsedFreeze {
			metrics.RecordFreezeUsed()
		}
		for _, bucket := range progression.Regressions(prev.Counts, stats.Counts) {
			metrics.RecordCountRegression(bucket)
			s.logger.Warn(ctx, "solved count decreased, delta clamped to zero",
				logger.String("user_id", userID),
				logger.String("bucket", bucket),
			)
		}
	}
	return types.SyncResult{Status: types.StatusOK}
}

func (s *Service) applyProgress(ctx context.Context, tx repository.Tx, userID string, day time.Time, previous, current model.Counts) (progression.Result, error) {
	st, err := tx.GetProgressionState(ctx, userID)
	if err != nil {
		return progression.Result{}, err
	}

	r := s.calc.Calculate(progression.Input{
		Previous:        previous,
		Current:         current,
		PreviousStreak:  st.Streak,
		PreviousTotalXP: st.TotalXP,
		FreezeTokens:    st.StreakFreezeTokens,
	})

	if err := tx.InsertDailyProgress(ctx, &model.DailyProgress{
		UserID:       userID,
		ProgressDate: day,
		DeltaEasy:    r.Delta.Easy,
		DeltaMedium:  r.Delta.Medium,
		DeltaHard:    r.Delta.Hard,
		DeltaTotal:   r.Delta.Total,
		XPEarned:     r.XPEarned,
		StreakAfter:  r.NewStreak,
	}); err != nil {
		return progression.Result{}, err
	}

	tokens := st.StreakFreezeTokens
	if r.UsedFreeze {
		tokens = max(0, tokens-1)
	}
	now := s.now().UTC()
	st.TotalXP = r.NewTotalXP
	st.Level = r.NewLevel
	st.Streak = r.NewStreak
	st.StreakFreezeTokens = tokens
	st.LastSnapshotAt = &now
	if err := tx.UpdateProgressionState(ctx, st); err != nil {
		return progression.Result{}, err
	}
	return r, nil
}

func skipped(reason string) types.SyncResult {
	return types.SyncResult{Status: types.StatusSkipped, Reason: reason}
}

func fetchFailure(fe *leetcode.FetchError) types.SyncResult {
	return types.SyncResult{
		Status:            types.StatusFailed,
		Reason:            fe.Message,
		Retryable:         fe.Retryable,
		RetryAfterSeconds: fe.RetryAfter,
		ErrorClass:        string(fe.Class()),
	}
}

func cancelled(err error) types.SyncResult {
	return types.SyncResult{
		Status:     types.StatusFailed,
		Reason:     types.ReasonCancelled + ": " + err.Error(),
		ErrorClass: ErrorClassCancelled,
	}
}

func persistenceFailure(err error) types.SyncResult {
	return types.SyncResult{
		Status:     types.StatusFailed,
		Reason:     "persistence: " + err.Error(),
		ErrorClass: ErrorClassPersistence,
	}
}
