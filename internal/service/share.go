package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"forestlog/internal/metrics"
	"forestlog/internal/models"
	"forestlog/internal/progression"
	"forestlog/internal/repo"
)

const (
	ShareTypeProfile = "profile"
	ShareTypeWeekly  = "weekly"
	ShareTypeMonthly = "monthly"

	shareTokenBytes    = 5 // 8 base32 characters
	shareTokenAttempts = 5
	recentTreeDays     = 7
	recentTreeLimit    = 20
	maxShareDays       = 365
)

var shareTokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type ShareInput struct {
	Type          string
	ExpiresInDays int
}

func generateShareToken() (string, error) {
	buf := make([]byte, shareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToLower(shareTokenEncoding.EncodeToString(buf)), nil
}

// CreateShare opens a public link to the user's forest. Only public profiles may share.
func (s *Service) CreateShare(ctx context.Context, userID string, in ShareInput) (*models.Share, error) {
	shareType := strings.ToLower(strings.TrimSpace(in.Type))
	switch shareType {
	case "":
		shareType = ShareTypeProfile
	case ShareTypeProfile, ShareTypeWeekly, ShareTypeMonthly:
	default:
		return nil, progression.Validation("share_type must be profile, weekly or monthly")
	}
	if in.ExpiresInDays < 0 || in.ExpiresInDays > maxShareDays {
		return nil, progression.Validation("expires_in_days must be between 0 and 365")
	}

	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError("load user", err)
	}
	if !user.IsPublic {
		return nil, progression.Forbidden("profile must be public to share")
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	share := &models.Share{
		ID:        s.newID(),
		UserID:    userID,
		ShareType: shareType,
		IsActive:  true,
		CreatedAt: now,
	}
	if in.ExpiresInDays > 0 {
		expires := now.AddDate(0, 0, in.ExpiresInDays)
		share.ExpiresAt = &expires
	}
	for attempt := 1; ; attempt++ {
		if share.Token, err = generateShareToken(); err != nil {
			return nil, err
		}
		err = s.Repo.CreateShare(ctx, share)
		if !errors.Is(err, repo.ErrDuplicate) || attempt == shareTokenAttempts {
			break
		}
	}
	if err != nil {
		return nil, storeError("create share", err)
	}
	s.Logger.Info("share created", "user_id", userID, "share_type", shareType)
	return share, nil
}

func (s *Service) ListShares(ctx context.Context, userID string) ([]models.Share, error) {
	shares, err := s.Repo.ListShares(ctx, userID)
	return shares, storeError("list shares", err)
}

func (s *Service) RevokeShare(ctx context.Context, userID, token string) error {
	return storeError("revoke share", s.Repo.DeactivateShare(ctx, userID, token))
}

// activeShare loads a link a visitor may still see: not revoked, not expired,
// and owned by a user whose profile is still public.
func (s *Service) activeShare(ctx context.Context, tx *repo.Repo, token string) (*models.Share, *models.User, error) {
	share, err := tx.GetActiveShare(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if share.ExpiresAt != nil && !s.now().Before(*share.ExpiresAt) {
		return nil, nil, repo.ErrNotFound
	}
	owner, err := tx.GetUserByID(ctx, share.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !owner.IsPublic {
		return nil, nil, repo.ErrNotFound
	}
	return share, owner, nil
}

// PublicForest renders a share link for an anonymous visitor and counts the view.
func (s *Service) PublicForest(ctx context.Context, token string) (*models.PublicForest, error) {
	var forest *models.PublicForest
	err := s.Repo.WithTx(ctx, func(tx *repo.Repo) error {
		share, owner, err := s.activeShare(ctx, tx, token)
		if err != nil {
			return err
		}
		views, err := tx.IncrementShareViews(ctx, share.ID)
		if err != nil {
			return err
		}
		states, err := tx.GetStreaks(ctx, owner.ID)
		if err != nil {
			return err
		}
		loc := s.location(owner.Timezone)
		now := s.now().In(loc)
		since := progression.CadenceDaily.Key(now.AddDate(0, 0, 1-recentTreeDays), loc)
		logs, err := tx.ListRecentLogs(ctx, owner.ID, since, recentTreeLimit)
		if err != nil {
			return err
		}

		forest = &models.PublicForest{
			Username:     owner.Username,
			TotalPoints:  owner.TotalPoints,
			CurrentLevel: s.Levels.Level(owner.TotalPoints).Number,
			DailyStreak:  states[progression.CadenceDaily].CurrentAt(progression.CadenceDaily.Key(now, loc)),
			ViewCount:    views,
			LikeCount:    share.LikeCount,
			RecentTrees:  make([]models.RecentTree, 0, len(logs)),
		}
		for _, l := range logs {
			forest.RecentTrees = append(forest.RecentTrees, models.RecentTree{Tree: l.TreeEmoji, Date: l.DayKey, Points: l.PointsEarned})
		}
		return nil
	})
	if err != nil {
		return nil, storeError("view share", err)
	}
	metrics.ShareViews.Inc()
	return forest, nil
}

// LikeShare records one like per visitor and link.
func (s *Service) LikeShare(ctx context.Context, userID, token string) error {
	err := s.Repo.WithTx(ctx, func(tx *repo.Repo) error {
		share, _, err := s.activeShare(ctx, tx, token)
		if err != nil {
			return err
		}
		err = tx.InsertLike(ctx, s.newID(), share.ID, userID, s.now())
		if errors.Is(err, repo.ErrDuplicate) {
			return progression.Validation("already liked")
		}
		return err
	})
	return storeError("like share", err)
}
