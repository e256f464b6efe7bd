// Package export renders a user's completion history as JSON or CSV.
//
// Output depends only on the snapshot it is given: no clock reads, no map
// iteration, so rendering the same snapshot twice yields identical bytes.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"forestlog/internal/models"
	"forestlog/internal/progression"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// CSVHeader is the first row of every CSV export.
var CSVHeader = []string{"task_text", "effort_level", "points_earned", "created_at"}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", &progression.Error{
			Kind:    progression.KindValidation,
			Message: fmt.Sprintf("export format %q is not one of json, csv", s),
			Err:     progression.ErrExportFormat,
		}
	}
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Filename is the download name for username's export.
func Filename(username string, f Format) string {
	var b strings.Builder
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "user"
	}
	return "forest_export_" + name + "." + string(f)
}

// Snapshot is everything an export contains, read in one consistent view.
type Snapshot struct {
	User       models.User
	Logs       []models.Log
	Milestones []models.Milestone
	Level      progression.Level
	Daily      progression.StreakState
	Weekly     progression.StreakState
}

type userRecord struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Bio       *string `json:"bio"`
	IsPublic  bool    `json:"is_public"`
	Timezone  string  `json:"timezone"`
	CreatedAt string  `json:"created_at"`
}

type logRecord struct {
	TaskText     string `json:"task_text"`
	EffortLevel  string `json:"effort_level"`
	PointsEarned int    `json:"points_earned"`
	TreeEmoji    string `json:"tree_emoji"`
	CreatedAt    string `json:"created_at"`
}

type milestoneRecord struct {
	BadgeName   string `json:"badge_name"`
	BadgeType   string `json:"badge_type"`
	Description string `json:"description"`
	EarnedAt    string `json:"earned_at"`
}

type streakRecord struct {
	CurrentCount  int    `json:"current_count"`
	LongestCount  int    `json:"longest_count"`
	LastPeriodKey string `json:"last_period_key"`
}

type summaryRecord struct {
	TotalPoints     int64        `json:"total_points"`
	CurrentLevel    int          `json:"current_level"`
	PointsIntoLevel int64        `json:"points_into_level"`
	PointsToNext    int64        `json:"points_to_next"`
	TotalLogs       int          `json:"total_logs"`
	Daily           streakRecord `json:"daily_streak"`
	Weekly          streakRecord `json:"weekly_streak"`
}

type document struct {
	User       userRecord        `json:"user"`
	Logs       []logRecord       `json:"logs"`
	Milestones []milestoneRecord `json:"milestones"`
	Summary    summaryRecord     `json:"summary"`
}

// Render encodes s in format f.
func Render(f Format, s Snapshot) ([]byte, error) {
	switch f {
	case FormatJSON:
		return renderJSON(s)
	case FormatCSV:
		return renderCSV(s)
	default:
		return nil, progression.ErrExportFormat
	}
}

func renderJSON(s Snapshot) ([]byte, error) {
	doc := document{
		User: userRecord{
			ID:        s.User.ID,
			Username:  s.User.Username,
			Bio:       s.User.Bio,
			IsPublic:  s.User.IsPublic,
			Timezone:  s.User.Timezone,
			CreatedAt: timestamp(s.User.CreatedAt),
		},
		Logs:       make([]logRecord, 0, len(s.Logs)),
		Milestones: make([]milestoneRecord, 0, len(s.Milestones)),
		Summary: summaryRecord{
			TotalPoints:     s.User.TotalPoints,
			CurrentLevel:    s.Level.Number,
			PointsIntoLevel: s.Level.IntoLevel,
			PointsToNext:    s.Level.ToNext,
			TotalLogs:       len(s.Logs),
			Daily:           streak(s.Daily),
			Weekly:          streak(s.Weekly),
		},
	}
	for _, l := range s.Logs {
		doc.Logs = append(doc.Logs, logRecord{
			TaskText:     l.TaskText,
			EffortLevel:  string(l.EffortLevel),
			PointsEarned: l.PointsEarned,
			TreeEmoji:    l.TreeEmoji,
			CreatedAt:    timestamp(l.CreatedAt),
		})
	}
	for _, m := range s.Milestones {
		doc.Milestones = append(doc.Milestones, milestoneRecord{
			BadgeName:   m.BadgeName,
			BadgeType:   m.BadgeType,
			Description: m.Description,
			EarnedAt:    timestamp(m.EarnedAt),
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return buf.Bytes(), nil
}

func renderCSV(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}
	for _, l := range s.Logs {
		row := []string{l.TaskText, string(l.EffortLevel), strconv.Itoa(l.PointsEarned), timestamp(l.CreatedAt)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv export: %w", err)
	}
	return buf.Bytes(), nil
}

func streak(s progression.StreakState) streakRecord {
	return streakRecord{CurrentCount: s.CurrentCount, LongestCount: s.LongestCount, LastPeriodKey: s.LastPeriodKey}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
