package repo

import (
	"context"
	"strconv"

	"forestlog/internal/db"
	"forestlog/internal/models"
	"forestlog/internal/progression"
)

const logColumns = `id, user_id, seq, task_text, effort_level, points_earned, tree_emoji, day_key, week_key, out_of_order, created_at`

func (r *Repo) InsertLog(ctx context.Context, l *models.Log) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.UserID, l.Seq, l.TaskText, string(l.EffortLevel), l.PointsEarned, l.TreeEmoji,
		l.DayKey, l.WeekKey, l.OutOfOrder, r.ts(l.CreatedAt))
	if isUniqueViolation(err) {
		return ErrVersionConflict
	}
	return err
}

// ListLogs returns a page of the user's logs, newest first.
func (r *Repo) ListLogs(ctx context.Context, userID string, skip, limit int) ([]models.Log, error) {
	return r.queryLogs(ctx, `SELECT `+logColumns+` FROM logs WHERE user_id=$1 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		userID, limit, skip)
}

// ListLogsByDay returns the logs whose daily period key is dayKey, newest first.
func (r *Repo) ListLogsByDay(ctx context.Context, userID, dayKey string) ([]models.Log, error) {
	return r.queryLogs(ctx, `SELECT `+logColumns+` FROM logs WHERE user_id=$1 AND day_key=$2 ORDER BY seq DESC`,
		userID, dayKey)
}

// ListLogsInRange returns logs with fromDay <= day_key <= toDay, newest first.
// An empty bound is open.
func (r *Repo) ListLogsInRange(ctx context.Context, userID, fromDay, toDay string) ([]models.Log, error) {
	query := `SELECT ` + logColumns + ` FROM logs WHERE user_id=$1`
	args := []any{userID}
	if fromDay != "" {
		args = append(args, fromDay)
		query += ` AND day_key >= $` + strconv.Itoa(len(args))
	}
	if toDay != "" {
		args = append(args, toDay)
		query += ` AND day_key <= $` + strconv.Itoa(len(args))
	}
	return r.queryLogs(ctx, query+` ORDER BY seq DESC`, args...)
}

// SumPointsByDay totals points per day key in [fromDay, toDay], oldest day first.
func (r *Repo) SumPointsByDay(ctx context.Context, userID, fromDay, toDay string) ([]models.DayTotal, error) {
	rows, err := r.rq.QueryContext(ctx, `SELECT day_key, SUM(points_earned), COUNT(*)
		FROM logs WHERE user_id=$1 AND day_key >= $2 AND day_key <= $3
		GROUP BY day_key ORDER BY day_key`, userID, fromDay, toDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []models.DayTotal
	for rows.Next() {
		var d models.DayTotal
		if err := rows.Scan(&d.Day, &d.Points, &d.Count); err != nil {
			return nil, err
		}
		totals = append(totals, d)
	}
	return totals, rows.Err()
}

// SumPoints returns the sum of points_earned and the number of logs for a user.
func (r *Repo) SumPoints(ctx context.Context, userID string) (int64, int64, error) {
	var sum, count int64
	err := r.rq.QueryRowContext(ctx, `SELECT COALESCE(SUM(points_earned), 0), COUNT(*) FROM logs WHERE user_id=$1`, userID).
		Scan(&sum, &count)
	return sum, count, err
}

func (r *Repo) queryLogs(ctx context.Context, query string, args ...any) ([]models.Log, error) {
	rows, err := r.rq.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs := []models.Log{}
	for rows.Next() {
		var (
			l         models.Log
			effort    string
			createdAt db.Time
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Seq, &l.TaskText, &effort, &l.PointsEarned, &l.TreeEmoji,
			&l.DayKey, &l.WeekKey, &l.OutOfOrder, &createdAt); err != nil {
			return nil, err
		}
		l.EffortLevel = progression.Effort(effort)
		l.CreatedAt = createdAt.Time
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
