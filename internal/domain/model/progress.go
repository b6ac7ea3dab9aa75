// Package model contains domain models passed between layers.
package model

import "time"

// Counts is a point-in-time view of a user's cumulative solved problems.
type Counts struct {
	TotalSolved  int `json:"totalSolved" db:"total_solved"`
	EasySolved   int `json:"easySolved" db:"easy_solved"`
	MediumSolved int `json:"mediumSolved" db:"medium_solved"`
	HardSolved   int `json:"hardSolved" db:"hard_solved"`
}

// Stats is what the external platform reported for a user at FetchedAt.
type Stats struct {
	Counts
	FetchedAt time.Time `json:"fetchedAt"`
}

// StatSnapshot is the immutable daily capture of a user's counts.
// (UserID, SnapshotDate) is the idempotence key.
type StatSnapshot struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	SnapshotDate time.Time `json:"snapshotDate" db:"snapshot_date"`
	Counts
	FetchedAt time.Time `json:"fetchedAt" db:"fetched_at"`
}

// DailyProgress is the derived, append-only result of diffing two snapshots.
type DailyProgress struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	ProgressDate time.Time `json:"progressDate" db:"progress_date"`
	DeltaEasy    int       `json:"deltaEasy" db:"delta_easy"`
	DeltaMedium  int       `json:"deltaMedium" db:"delta_medium"`
	DeltaHard    int       `json:"deltaHard" db:"delta_hard"`
	DeltaTotal   int       `json:"deltaTotal" db:"delta_total"`
	XPEarned     int       `json:"xpEarned" db:"xp_earned"`
	StreakAfter  int       `json:"streakAfter" db:"streak_after"`
}

// ProgressionState is the single mutable gamification record of a user.
type ProgressionState struct {
	UserID             string     `json:"userId" db:"id"`
	TotalXP            int        `json:"totalXp" db:"total_xp"`
	Level              int        `json:"level" db:"level"`
	Streak             int        `json:"streak" db:"streak"`
	StreakFreezeTokens int        `json:"streakFreezeTokens" db:"streak_freeze_tokens"`
	LastSnapshotAt     *time.Time `json:"lastSnapshotAt,omitempty" db:"last_snapshot_at"`
}

// User links an internal user id to an external platform username.
type User struct {
	ID               string `json:"id" db:"id"`
	ExternalUsername string `json:"externalUsername" db:"external_username"`
	// StreakFreezeTokens is only applied when the user is first created.
	StreakFreezeTokens int `json:"streakFreezeTokens" db:"streak_freeze_tokens"`
}

// SyncJob is one unit of batch work: sync a single user.
type SyncJob struct {
	Index    int    // position in the batch result list
	UserID   string // internal user id
	Username string // external platform username
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey formats the UTC calendar day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return Day(t).Format(time.DateOnly)
}
