package service

import (
	"context"
	"sort"

	"forestlog/internal/models"
	"forestlog/internal/progression"
	"forestlog/internal/repo"
)

const (
	DefaultPageSize  = 50
	MaxPageSize      = 100
	LeaderboardSize  = 10
	leaderboardFetch = 100
)

// ListLogs returns a page of the user's history, newest first.
func (s *Service) ListLogs(ctx context.Context, userID string, skip, limit int) ([]models.Log, error) {
	if skip < 0 {
		return nil, progression.Validation("skip must not be negative")
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, progression.Validation("limit must be between 1 and 100")
	}
	logs, err := s.Repo.ListLogs(ctx, userID, skip, limit)
	return logs, storeError("list logs", err)
}

// TodayLogs returns the events whose daily period key is the user's current day.
func (s *Service) TodayLogs(ctx context.Context, userID string) ([]models.Log, error) {
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError("load user", err)
	}
	today := progression.CadenceDaily.Key(s.now(), s.location(user.Timezone))
	logs, err := s.Repo.ListLogsByDay(ctx, userID, today)
	return logs, storeError("list today", err)
}

type WeekSummary struct {
	Days        []models.DayTotal `json:"days"`
	TotalPoints int64             `json:"total_points"`
	TotalLogs   int               `json:"total_logs"`
}

// Week totals points for the last seven days ending today, oldest first, with empty days filled in.
func (s *Service) Week(ctx context.Context, userID string) (*WeekSummary, error) {
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError("load user", err)
	}
	loc := s.location(user.Timezone)
	now := s.now().In(loc)
	keys := make([]string, 7)
	for i := range keys {
		keys[i] = progression.CadenceDaily.Key(now.AddDate(0, 0, i-6), loc)
	}
	totals, err := s.Repo.SumPointsByDay(ctx, userID, keys[0], keys[6])
	if err != nil {
		return nil, storeError("sum week", err)
	}
	byDay := make(map[string]models.DayTotal, len(totals))
	for _, t := range totals {
		byDay[t.Day] = t
	}
	summary := &WeekSummary{Days: make([]models.DayTotal, 0, 7)}
	for _, k := range keys {
		d, ok := byDay[k]
		if !ok {
			d = models.DayTotal{Day: k}
		}
		summary.Days = append(summary.Days, d)
		summary.TotalPoints += d.Points
		summary.TotalLogs += d.Count
	}
	return summary, nil
}

type StreaksView struct {
	Daily  progression.StreakView `json:"daily"`
	Weekly progression.StreakView `json:"weekly"`
}

// Streaks reports both streaks as seen now: a run whose last period is older
// than the previous period reads as 0 even though the stored state still holds it.
func (s *Service) Streaks(ctx context.Context, userID string) (*StreaksView, error) {
	var (
		user   *models.User
		states map[progression.Cadence]progression.StreakState
	)
	err := s.Repo.WithReadTx(ctx, func(tx *repo.Repo) error {
		var err error
		if user, err = tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		states, err = tx.GetStreaks(ctx, userID)
		return err
	})
	if err != nil {
		return nil, storeError("load streaks", err)
	}
	now, loc := s.now(), s.location(user.Timezone)
	return &StreaksView{
		Daily:  states[progression.CadenceDaily].View(progression.CadenceDaily.Key(now, loc)),
		Weekly: states[progression.CadenceWeekly].View(progression.CadenceWeekly.Key(now, loc)),
	}, nil
}

func (s *Service) Milestones(ctx context.Context, userID string) ([]models.Milestone, error) {
	milestones, err := s.Repo.ListMilestones(ctx, userID)
	return milestones, storeError("list milestones", err)
}

// Leaderboard ranks public users by their live daily streak, judged in the
// server's default zone.
func (s *Service) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	now := s.now().In(s.defaultLoc)
	today := progression.CadenceDaily.Key(now, s.defaultLoc)
	yesterday := progression.CadenceDaily.Key(now.AddDate(0, 0, -1), s.defaultLoc)
	entries, err := s.Repo.ListLeaderboard(ctx, yesterday, leaderboardFetch)
	if err != nil {
		return nil, storeError("leaderboard", err)
	}
	board := make([]models.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		state := progression.StreakState{Cadence: progression.CadenceDaily, CurrentCount: e.CurrentStreak, LastPeriodKey: e.LastPeriodKey}
		e.CurrentLevel = s.Levels.Level(e.TotalPoints).Number
		e.CurrentStreak = state.CurrentAt(today)
		if e.CurrentStreak == 0 {
			continue
		}
		board = append(board, e)
	}
	sort.SliceStable(board, func(i, j int) bool {
		if board[i].CurrentStreak != board[j].CurrentStreak {
			return board[i].CurrentStreak > board[j].CurrentStreak
		}
		return board[i].LongestStreak > board[j].LongestStreak
	})
	if len(board) > LeaderboardSize {
		board = board[:LeaderboardSize]
	}
	return board, nil
}
