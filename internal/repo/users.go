package repo

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"forestlog/internal/db"
	"forestlog/internal/models"
)

const userColumns = `id, username, email, password_hash, bio, avatar_url, is_public, timezone,
	total_points, current_level, event_count, version, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u                    models.User
		bio, avatar          sql.NullString
		createdAt, updatedAt db.Time
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &bio, &avatar, &u.IsPublic, &u.Timezone,
		&u.TotalPoints, &u.CurrentLevel, &u.EventCount, &u.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if bio.Valid {
		u.Bio = &bio.String
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time
	return &u, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO users (id, username, email, password_hash, bio, avatar_url, is_public, timezone,
		total_points, current_level, event_count, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Username, u.Email, u.PasswordHash, optional(u.Bio), optional(u.AvatarURL), u.IsPublic, u.Timezone,
		u.TotalPoints, u.CurrentLevel, u.EventCount, u.Version, r.ts(u.CreatedAt), r.ts(u.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *Repo) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return scanUser(r.rq.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.rq.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

// UpdateProfile applies the non-nil fields of upd. Points, level and version are untouched.
func (r *Repo) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate, now time.Time) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+"=$"+strconv.Itoa(len(args)))
	}
	if upd.Username != nil {
		add("username", *upd.Username)
	}
	if upd.Bio != nil {
		add("bio", nullString(*upd.Bio))
	}
	if upd.AvatarURL != nil {
		add("avatar_url", nullString(*upd.AvatarURL))
	}
	if upd.IsPublic != nil {
		add("is_public", *upd.IsPublic)
	}
	if upd.Timezone != nil {
		add("timezone", *upd.Timezone)
	}
	add("updated_at", r.ts(now))
	args = append(args, userID)

	res, err := r.q.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id=$`+strconv.Itoa(len(args)), args...)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProgress writes the aggregate only if the row is still at expectedVersion.
func (r *Repo) UpdateProgress(ctx context.Context, userID string, expectedVersion int, totalPoints int64, level int, eventCount int64, now time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users
		SET total_points=$1, current_level=$2, event_count=$3, version=version+1, updated_at=$4
		WHERE id=$5 AND version=$6`,
		totalPoints, level, eventCount, r.ts(now), userID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListLeaderboard returns public users whose daily streak was last extended on
// or after sinceKey, best stored streak first. Older runs are already broken.
func (r *Repo) ListLeaderboard(ctx context.Context, sinceKey string, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := r.rq.QueryContext(ctx, `SELECT u.id, u.username, u.avatar_url, u.total_points,
			s.current_count, s.longest_count, s.last_period_key
		FROM users u
		JOIN streaks s ON s.user_id = u.id AND s.cadence = 'daily'
		WHERE u.is_public AND s.current_count > 0 AND s.last_period_key >= $1
		ORDER BY s.current_count DESC, s.longest_count DESC, u.username
		LIMIT $2`, sinceKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []models.LeaderboardEntry
	for rows.Next() {
		var (
			e       models.LeaderboardEntry
			avatar  sql.NullString
			lastKey sql.NullString
		)
		if err := rows.Scan(&e.UserID, &e.Username, &avatar, &e.TotalPoints, &e.CurrentStreak, &e.LongestStreak, &lastKey); err != nil {
			return nil, err
		}
		if avatar.Valid {
			e.AvatarURL = &avatar.String
		}
		e.LastPeriodKey = lastKey.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
