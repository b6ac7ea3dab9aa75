package repository

// schema is portable between SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_username TEXT,
		total_xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 0,
		streak INTEGER NOT NULL DEFAULT 0,
		streak_freeze_tokens INTEGER NOT NULL DEFAULT 0 CHECK (streak_freeze_tokens >= 0),
		last_snapshot_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS stat_snapshots (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		snapshot_date DATE NOT NULL,
		total_solved INTEGER NOT NULL,
		easy_solved INTEGER NOT NULL,
		medium_solved INTEGER NOT NULL,
		hard_solved INTEGER NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, snapshot_date)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_progress (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		progress_date DATE NOT NULL,
		delta_easy INTEGER NOT NULL CHECK (delta_easy >= 0),
		delta_medium INTEGER NOT NULL CHECK (delta_medium >= 0),
		delta_hard INTEGER NOT NULL CHECK (delta_hard >= 0),
		delta_total INTEGER NOT NULL CHECK (delta_total >= 0),
		xp_earned INTEGER NOT NULL,
		streak_after INTEGER NOT NULL,
		UNIQUE (user_id, progress_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stat_snapshots_user_date ON stat_snapshots (user_id, snapshot_date)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_progress_user_date ON daily_progress (user_id, progress_date)`,
}
