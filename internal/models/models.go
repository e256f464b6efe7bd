package models

import (
	"time"

	"forestlog/internal/progression"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Bio          *string   `json:"bio"`
	AvatarURL    *string   `json:"avatar_url"`
	IsPublic     bool      `json:"is_public"`
	Timezone     string    `json:"timezone"`
	TotalPoints  int64     `json:"total_points"`
	CurrentLevel int       `json:"current_level"`
	EventCount   int64     `json:"-"`
	Version      int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileUpdate carries the editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Username  *string `json:"username"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatar_url"`
	IsPublic  *bool   `json:"is_public"`
	Timezone  *string `json:"timezone"`
}

// Log is one completion event. Rows are never updated.
type Log struct {
	ID           string             `json:"id"`
	UserID       string             `json:"-"`
	Seq          int64              `json:"-"`
	TaskText     string             `json:"task_text"`
	EffortLevel  progression.Effort `json:"effort_level"`
	PointsEarned int                `json:"points_earned"`
	TreeEmoji    string             `json:"tree_emoji"`
	DayKey       string             `json:"-"`
	WeekKey      string             `json:"-"`
	OutOfOrder   bool               `json:"-"`
	CreatedAt    time.Time          `json:"created_at"`
}

type Milestone struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	BadgeName   string    `json:"badge_name"`
	BadgeType   string    `json:"badge_type"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earned_at"`
}

// DayTotal is the point sum of one calendar day.
type DayTotal struct {
	Day    string `json:"date"`
	Points int64  `json:"points"`
	Count  int    `json:"count"`
}

type LeaderboardEntry struct {
	UserID        string  `json:"user_id"`
	Username      string  `json:"username"`
	AvatarURL     *string `json:"avatar_url"`
	TotalPoints   int64   `json:"total_points"`
	CurrentLevel  int     `json:"current_level"`
	CurrentStreak int     `json:"current_streak"`
	LongestStreak int     `json:"longest_streak"`
	LastPeriodKey string  `json:"-"`
}

// Share is a public link to a user's forest. Revoked links stay as inactive rows.
type Share struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Token     string     `json:"share_token"`
	ShareType string     `json:"share_type"`
	IsActive  bool       `json:"is_active"`
	ViewCount int64      `json:"view_count"`
	LikeCount int64      `json:"like_count"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type RecentTree struct {
	Tree   string `json:"tree"`
	Date   string `json:"date"`
	Points int    `json:"points"`
}

// PublicForest is what an anonymous visitor of a share link sees.
type PublicForest struct {
	Username     string       `json:"username"`
	TotalPoints  int64        `json:"total_points"`
	CurrentLevel int          `json:"current_level"`
	DailyStreak  int          `json:"daily_streak"`
	ViewCount    int64        `json:"view_count"`
	LikeCount    int64        `json:"like_count"`
	RecentTrees  []RecentTree `json:"recent_trees"`
}
