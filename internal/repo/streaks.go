package repo

import (
	"context"
	"database/sql"
	"time"

	"forestlog/internal/db"
	"forestlog/internal/models"
	"forestlog/internal/progression"
)

// GetStreaks returns the state for every cadence; cadences without a row start empty.
func (r *Repo) GetStreaks(ctx context.Context, userID string) (map[progression.Cadence]progression.StreakState, error) {
	states := make(map[progression.Cadence]progression.StreakState, len(progression.Cadences))
	for _, c := range progression.Cadences {
		states[c] = progression.NewStreakState(c)
	}
	rows, err := r.rq.QueryContext(ctx, `SELECT cadence, current_count, longest_count, last_period_key, started_key
		FROM streaks WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cadence          string
			s                progression.StreakState
			lastKey, started sql.NullString
		)
		if err := rows.Scan(&cadence, &s.CurrentCount, &s.LongestCount, &lastKey, &started); err != nil {
			return nil, err
		}
		s.Cadence = progression.Cadence(cadence)
		s.LastPeriodKey = lastKey.String
		s.StartedKey = started.String
		states[s.Cadence] = s
	}
	return states, rows.Err()
}

func (r *Repo) UpsertStreak(ctx context.Context, userID string, s progression.StreakState, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO streaks (user_id, cadence, current_count, longest_count, last_period_key, started_key, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, cadence) DO UPDATE SET
			current_count = excluded.current_count,
			longest_count = excluded.longest_count,
			last_period_key = excluded.last_period_key,
			started_key = excluded.started_key,
			updated_at = excluded.updated_at`,
		userID, string(s.Cadence), s.CurrentCount, s.LongestCount, nullString(s.LastPeriodKey), nullString(s.StartedKey), r.ts(now))
	return err
}

// InsertMilestone records a badge once per user. It reports whether a row was added.
func (r *Repo) InsertMilestone(ctx context.Context, m *models.Milestone) (bool, error) {
	res, err := r.q.ExecContext(ctx, `INSERT INTO milestones (id, user_id, badge_name, badge_type, description, earned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, badge_name) DO NOTHING`,
		m.ID, m.UserID, m.BadgeName, m.BadgeType, m.Description, r.ts(m.EarnedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListMilestones returns earned badges, most recent first.
func (r *Repo) ListMilestones(ctx context.Context, userID string) ([]models.Milestone, error) {
	rows, err := r.rq.QueryContext(ctx, `SELECT id, user_id, badge_name, badge_type, description, earned_at
		FROM milestones WHERE user_id=$1 ORDER BY earned_at DESC, badge_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	milestones := []models.Milestone{}
	for rows.Next() {
		var (
			m        models.Milestone
			earnedAt db.Time
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.BadgeName, &m.BadgeType, &m.Description, &earnedAt); err != nil {
			return nil, err
		}
		m.EarnedAt = earnedAt.Time
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}
