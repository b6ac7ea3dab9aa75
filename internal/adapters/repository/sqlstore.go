package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/pixelcode/pixelsync/internal/domain/model"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const (
	snapshotColumns = `id, user_id, snapshot_date, total_solved, easy_solved, medium_solved, hard_solved, fetched_at`
	progressColumns = `id, user_id, progress_date, delta_easy, delta_medium, delta_hard, delta_total, xp_earned, streak_after`
	stateColumns    = `id, total_xp, level, streak, streak_freeze_tokens, last_snapshot_at`
)

// SQLStore implements Store on top of sqlx.
type SQLStore struct {
	db           *sqlx.DB
	driver       string
	maxOpenConns int
	now          func() time.Time
	log          logger.Logger
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database, applies the schema and returns the store.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	s := &SQLStore{
		driver:       driver,
		maxOpenConns: 10,
		now:          time.Now,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// single writer
		s.maxOpenConns = 1
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(s.maxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info(ctx, "database ready", logger.String("driver", driver))
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if s.driver == DriverSQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// FindSnapshot implements Store.
func (s *SQLStore) FindSnapshot(ctx context.Context, userID string, day time.Time) (model.StatSnapshot, error) {
	var snap model.StatSnapshot
	q := s.db.Rebind(`SELECT ` + snapshotColumns + ` FROM stat_snapshots WHERE user_id = ? AND snapshot_date = ?`)
	if err := s.db.GetContext(ctx, &snap, q, userID, model.DayKey(day)); err != nil {
		return model.StatSnapshot{}, notFound("find snapshot", err)
	}
	return snap, nil
}

// LatestSnapshotBefore implements Store.
func (s *SQLStore) LatestSnapshotBefore(ctx context.Context, userID string, day time.Time) (model.StatSnapshot, error) {
	var snap model.StatSnapshot
	q := s.db.Rebind(`SELECT ` + snapshotColumns + ` FROM stat_snapshots
		WHERE user_id = ? AND snapshot_date < ?
		ORDER BY snapshot_date DESC LIMIT 1`)
	if err := s.db.GetContext(ctx, &snap, q, userID, model.DayKey(day)); err != nil {
		return model.StatSnapshot{}, notFound("latest prior snapshot", err)
	}
	return snap, nil
}

// LatestSnapshot implements Store.
func (s *SQLStore) LatestSnapshot(ctx context.Context, userID string) (model.StatSnapshot, error) {
	var snap model.StatSnapshot
	q := s.db.Rebind(`SELECT ` + snapshotColumns + ` FROM stat_snapshots
		WHERE user_id = ? ORDER BY snapshot_date DESC LIMIT 1`)
	if err := s.db.GetContext(ctx, &snap, q, userID); err != nil {
		return model.StatSnapshot{}, notFound("latest snapshot", err)
	}
	return snap, nil
}

// InTx implements Store.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error(ctx, "rollback failed", logger.Error(rbErr))
			}
		}
	}()

	if err = fn(ctx, &sqlTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListLinkedUsers implements Store.
func (s *SQLStore) ListLinkedUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.SelectContext(ctx, &users, `SELECT id, external_username, streak_freeze_tokens FROM users
		WHERE external_username IS NOT NULL AND external_username <> ''
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked users: %w", err)
	}
	return users, nil
}

// GetUser implements Store.
func (s *SQLStore) GetUser(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	q := s.db.Rebind(`SELECT id, COALESCE(external_username, '') AS external_username, streak_freeze_tokens
		FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &u, q, userID); err != nil {
		return model.User{}, notFound("get user", err)
	}
	return u, nil
}

// UpsertUser implements Store.
func (s *SQLStore) UpsertUser(ctx context.Context, u model.User) error {
	var username any
	if u.ExternalUsername != "" {
		username = u.ExternalUsername
	}
	q := s.db.Rebind(`INSERT INTO users (id, external_username, streak_freeze_tokens, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET external_username = excluded.external_username`)
	if _, err := s.db.ExecContext(ctx, q, u.ID, username, u.StreakFreezeTokens, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetProgressionState implements Store.
func (s *SQLStore) GetProgressionState(ctx context.Context, userID string) (model.ProgressionState, error) {
	return getState(ctx, s.db, userID)
}

// ProgressHistory implements Store.
func (s *SQLStore) ProgressHistory(ctx context.Context, userID string, limit int) ([]model.DailyProgress, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows := []model.DailyProgress{}
	q := s.db.Rebind(`SELECT ` + progressColumns + ` FROM (
		SELECT ` + progressColumns + ` FROM daily_progress
		WHERE user_id = ? ORDER BY progress_date DESC LIMIT ?
	) recent ORDER BY progress_date ASC`)
	if err := s.db.SelectContext(ctx, &rows, q, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to load progress history: %w", err)
	}
	return rows, nil
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) InsertSnapshot(ctx context.Context, snap *model.StatSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	q := t.tx.Rebind(`INSERT INTO stat_snapshots (` + snapshotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := t.tx.ExecContext(ctx, q,
		snap.ID, snap.UserID, model.DayKey(snap.SnapshotDate),
		snap.TotalSolved, snap.EasySolved, snap.MediumSolved, snap.HardSolved,
		snap.FetchedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSnapshot
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (t *sqlTx) GetProgressionState(ctx context.Context, userID string) (model.ProgressionState, error) {
	return getState(ctx, t.tx, userID)
}

func (t *sqlTx) InsertDailyProgress(ctx context.Context, p *model.DailyProgress) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	q := t.tx.Rebind(`INSERT INTO daily_progress (` + progressColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := t.tx.ExecContext(ctx, q,
		p.ID, p.UserID, model.DayKey(p.ProgressDate),
		p.DeltaEasy, p.DeltaMedium, p.DeltaHard, p.DeltaTotal, p.XPEarned, p.StreakAfter)
	if err != nil {
		return fmt.Errorf("failed to insert daily progress: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateProgressionState(ctx context.Context, st model.ProgressionState) error {
	var last any
	if st.LastSnapshotAt != nil {
		last = st.LastSnapshotAt.UTC()
	}
	q := t.tx.Rebind(`UPDATE users SET total_xp = ?, level = ?, streak = ?, streak_freeze_tokens = ?, last_snapshot_at = ?
		WHERE id = ?`)
	res, err := t.tx.ExecContext(ctx, q, st.TotalXP, st.Level, st.Streak, st.StreakFreezeTokens, last, st.UserID)
	if err != nil {
		return fmt.Errorf("failed to update progression state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update progression state: %w", ErrNotFound)
	}
	return nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func getState(ctx context.Context, q queryer, userID string) (model.ProgressionState, error) {
	var st model.ProgressionState
	query := q.Rebind(`SELECT ` + stateColumns + ` FROM users WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, &st, query, userID); err != nil {
		return model.ProgressionState{}, notFound("get progression state", err)
	}
	return st, nil
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
