package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"forestlog/internal/db"
	"forestlog/internal/models"
)

const shareColumns = `s.id, s.user_id, s.share_token, s.share_type, s.is_active, s.view_count,
	(SELECT COUNT(*) FROM forest_likes l WHERE l.shared_forest_id = s.id), s.created_at, s.expires_at`

func scanShare(row interface{ Scan(...any) error }) (*models.Share, error) {
	var (
		sh        models.Share
		createdAt db.Time
		expiresAt db.Time // NULL scans as zero
	)
	err := row.Scan(&sh.ID, &sh.UserID, &sh.Token, &sh.ShareType, &sh.IsActive, &sh.ViewCount,
		&sh.LikeCount, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sh.CreatedAt = createdAt.Time
	if !expiresAt.IsZero() {
		t := expiresAt.Time
		sh.ExpiresAt = &t
	}
	return &sh, nil
}

// CreateShare inserts a link. A taken token yields ErrDuplicate.
func (r *Repo) CreateShare(ctx context.Context, sh *models.Share) error {
	var expires any
	if sh.ExpiresAt != nil {
		expires = r.ts(*sh.ExpiresAt)
	}
	_, err := r.q.ExecContext(ctx, `INSERT INTO shared_forests (id, user_id, share_token, share_type, is_active, view_count, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sh.ID, sh.UserID, sh.Token, sh.ShareType, sh.IsActive, sh.ViewCount, r.ts(sh.CreatedAt), expires)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetActiveShare returns the link for token unless it was revoked.
func (r *Repo) GetActiveShare(ctx context.Context, token string) (*models.Share, error) {
	return scanShare(r.rq.QueryRowContext(ctx, `SELECT `+shareColumns+`
		FROM shared_forests s WHERE s.share_token=$1 AND s.is_active`, token))
}

// ListShares returns every link the user created, newest first.
func (r *Repo) ListShares(ctx context.Context, userID string) ([]models.Share, error) {
	rows, err := r.rq.QueryContext(ctx, `SELECT `+shareColumns+`
		FROM shared_forests s WHERE s.user_id=$1 ORDER BY s.created_at DESC, s.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	shares := []models.Share{}
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, *sh)
	}
	return shares, rows.Err()
}

// IncrementShareViews bumps the view counter of an active link and returns the new count.
func (r *Repo) IncrementShareViews(ctx context.Context, shareID string) (int64, error) {
	var views int64
	err := r.q.QueryRowContext(ctx, `UPDATE shared_forests SET view_count = view_count + 1
		WHERE id=$1 AND is_active RETURNING view_count`, shareID).Scan(&views)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return views, err
}

// DeactivateShare revokes the user's link. Revoking twice is not an error;
// links of other users read as missing.
func (r *Repo) DeactivateShare(ctx context.Context, userID, token string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE shared_forests SET is_active = FALSE
		WHERE share_token=$1 AND user_id=$2`, token, userID)
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

// InsertLike records one like per user and link. A repeat yields ErrDuplicate.
func (r *Repo) InsertLike(ctx context.Context, id, shareID, likerID string, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO forest_likes (id, shared_forest_id, liker_user_id, created_at)
		VALUES ($1, $2, $3, $4)`, id, shareID, likerID, r.ts(now))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// ListRecentLogs returns the newest logs on or after sinceDay, at most limit of them.
func (r *Repo) ListRecentLogs(ctx context.Context, userID, sinceDay string, limit int) ([]models.Log, error) {
	return r.queryLogs(ctx, `SELECT `+logColumns+` FROM logs WHERE user_id=$1 AND day_key >= $2 ORDER BY seq DESC LIMIT $3`,
		userID, sinceDay, limit)
}
