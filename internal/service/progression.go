package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"forestlog/internal/metrics"
	"forestlog/internal/models"
	"forestlog/internal/progression"
	"forestlog/internal/repo"
)

const (
	MaxTaskTextRunes  = 500
	WarningOutOfOrder = "out_of_order_event"
)

// Completion is one finished task reported by a user. A zero At means now.
type Completion struct {
	UserID   string
	TaskText string
	Effort   progression.Effort
	At       time.Time
}

type CompletionResult struct {
	Log         models.Log
	TotalPoints int64
	LevelBefore progression.Level
	LevelAfter  progression.Level
	LevelUp     bool
	Daily       progression.StreakState
	Weekly      progression.StreakState
	Milestone   *models.Milestone
	Warnings    []string
}

// RecordCompletion scores a completion and commits the event, the new total and
// both streak transitions in one transaction. Completions of one user are
// serialized in-process and guarded in storage by the user row version; a lost
// version race is retried with the same points and event id.
func (s *Service) RecordCompletion(ctx context.Context, c Completion) (*CompletionResult, error) {
	text := strings.TrimSpace(c.TaskText)
	if text == "" {
		return nil, progression.Validation("task_text must not be empty")
	}
	if utf8.RuneCountInString(text) > MaxTaskTextRunes {
		return nil, progression.Validation(fmt.Sprintf("task_text must be at most %d characters", MaxTaskTextRunes))
	}
	points, err := s.Scorer.Score(c.Effort)
	if err != nil {
		return nil, err
	}

	at := c.At
	if at.IsZero() {
		at = s.now()
	}
	draft := models.Log{
		ID:           s.newID(),
		UserID:       c.UserID,
		TaskText:     text,
		EffortLevel:  c.Effort,
		PointsEarned: points,
		CreatedAt:    at.UTC().Truncate(time.Microsecond),
	}
	treeDraw := s.rand.IntN(1 << 20)

	unlock, err := s.locks.Lock(ctx, c.UserID)
	if err != nil {
		return nil, progression.Canceled("waiting for another completion of this user", err)
	}
	defer unlock()

	var result *CompletionResult
	for attempt := 1; ; attempt++ {
		result, err = s.recordOnce(ctx, draft, treeDraw)
		if err == nil || !errors.Is(err, repo.ErrVersionConflict) || attempt >= s.maxRetries {
			break
		}
		metrics.RecordRetries.Inc()
		s.Logger.Debug("completion retry", "user_id", c.UserID, "attempt", attempt)
	}
	if err != nil {
		err = storeErrorCtx(ctx, "record completion", err)
		metrics.RecordFailures.WithLabelValues(string(progression.KindOf(err))).Inc()
		s.Logger.Warn("completion failed", "user_id", c.UserID, "error", err)
		return nil, err
	}

	metrics.CompletionsRecorded.WithLabelValues(string(c.Effort)).Inc()
	metrics.PointsAwarded.Add(float64(points))
	if result.LevelUp {
		metrics.LevelUps.Inc()
	}
	if result.Log.OutOfOrder {
		metrics.OutOfOrderEvents.Inc()
	}
	s.Logger.Info("completion recorded",
		"user_id", c.UserID,
		"log_id", result.Log.ID,
		"effort", string(c.Effort),
		"points", points,
		"total_points", result.TotalPoints,
		"level", result.LevelAfter.Number,
		"level_up", result.LevelUp,
	)
	return result, nil
}

func (s *Service) recordOnce(ctx context.Context, draft models.Log, treeDraw int) (*CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var result *CompletionResult
	err := s.Repo.WithTx(ctx, func(tx *repo.Repo) error {
		user, err := tx.GetUserByID(ctx, draft.UserID)
		if err != nil {
			return err
		}
		if s.afterLoad != nil {
			if err := s.afterLoad(ctx, tx, user); err != nil {
				return err
			}
		}
		states, err := tx.GetStreaks(ctx, user.ID)
		if err != nil {
			return err
		}

		now := s.now()
		loc := s.location(user.Timezone)
		entry := draft
		entry.Seq = user.EventCount + 1
		entry.DayKey = progression.CadenceDaily.Key(entry.CreatedAt, loc)
		entry.WeekKey = progression.CadenceWeekly.Key(entry.CreatedAt, loc)

		before := s.Levels.Level(user.TotalPoints)
		total := user.TotalPoints + int64(entry.PointsEarned)
		after := s.Levels.Level(total)
		entry.TreeEmoji = progression.TreeFor(before.Number, treeDraw)

		res := &CompletionResult{
			TotalPoints: total,
			LevelBefore: before,
			LevelAfter:  after,
			LevelUp:     s.Levels.LeveledUp(user.TotalPoints, total),
		}

		var dailyTransition progression.Transition
		for _, cadence := range progression.Cadences {
			key := entry.DayKey
			if cadence == progression.CadenceWeekly {
				key = entry.WeekKey
			}
			next, transition, err := states[cadence].Advance(key)
			if err != nil {
				return err
			}
			if cadence == progression.CadenceDaily {
				dailyTransition = transition
			}
			switch transition {
			case progression.TransitionOutOfOrder:
				entry.OutOfOrder = true
			case progression.TransitionSamePeriod:
			default:
				if err := tx.UpsertStreak(ctx, user.ID, next, now); err != nil {
					return err
				}
			}
			states[cadence] = next
		}
		if entry.OutOfOrder {
			res.Warnings = append(res.Warnings, WarningOutOfOrder)
		}

		if err := tx.UpdateProgress(ctx, user.ID, user.Version, total, after.Number, entry.Seq, now); err != nil {
			return err
		}
		if err := tx.InsertLog(ctx, &entry); err != nil {
			return err
		}

		daily := states[progression.CadenceDaily]
		if dailyTransition == progression.TransitionStarted || dailyTransition == progression.TransitionExtended {
			if badge, ok := progression.BadgeForDailyStreak(daily.CurrentCount); ok {
				m := &models.Milestone{
					ID:          s.newID(),
					UserID:      user.ID,
					BadgeName:   badge.Name,
					BadgeType:   badge.Type,
					Description: badge.Description,
					EarnedAt:    entry.CreatedAt,
				}
				added, err := tx.InsertMilestone(ctx, m)
				if err != nil {
					return err
				}
				if added {
					res.Milestone = m
				}
			}
		}

		res.Log = entry
		res.Daily = daily
		res.Weekly = states[progression.CadenceWeekly]
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
