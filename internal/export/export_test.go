package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"forestlog/internal/models"
	"forestlog/internal/progression"
)

func sampleSnapshot() Snapshot {
	at := time.Date(2026, 10, 18, 7, 45, 0, 0, time.UTC)
	return Snapshot{
		User: models.User{ID: "u1", Username: "fern", TotalPoints: 73, Timezone: "UTC", CreatedAt: at.AddDate(0, -1, 0)},
		Logs: []models.Log{
			{TaskText: `wrote "the plan", finally`, EffortLevel: progression.EffortOak, PointsEarned: 65, TreeEmoji: "🌳", CreatedAt: at},
			{TaskText: "line one\nline two", EffortLevel: progression.EffortSeed, PointsEarned: 8, TreeEmoji: "🌲", CreatedAt: at.Add(-time.Hour)},
		},
		Level:  progression.DefaultLevelTable().Level(73),
		Daily:  progression.StreakState{Cadence: progression.CadenceDaily, CurrentCount: 1, LongestCount: 1, LastPeriodKey: "2026-10-18"},
		Weekly: progression.StreakState{Cadence: progression.CadenceWeekly, CurrentCount: 1, LongestCount: 1, LastPeriodKey: "2026-W42"},
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" CSV "); err != nil || f != FormatCSV {
		t.Fatalf("csv=%q err=%v", f, err)
	}
	_, err := ParseFormat("xml")
	if !errors.Is(err, progression.ErrExportFormat) || !errors.Is(err, progression.ErrValidation) {
		t.Fatalf("expected export format validation error, got %v", err)
	}
}

func TestCSVQuotingRoundTrip(t *testing.T) {
	s := sampleSnapshot()
	out, err := Render(FormatCSV, s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Contains(out, []byte(`"wrote ""the plan"", finally"`)) {
		t.Fatalf("task text not quoted with doubled quotes:\n%s", out)
	}
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	for i, want := range CSVHeader {
		if records[0][i] != want {
			t.Fatalf("header=%v", records[0])
		}
	}
	if records[1][0] != s.Logs[0].TaskText || records[2][0] != s.Logs[1].TaskText {
		t.Fatalf("task text not recovered: %q %q", records[1][0], records[2][0])
	}
	if records[1][2] != "65" || records[1][3] != "2026-10-18T07:45:00Z" {
		t.Fatalf("row=%v", records[1])
	}
}

func TestJSONShapeAndDeterminism(t *testing.T) {
	s := sampleSnapshot()
	first, err := Render(FormatJSON, s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, _ := Render(FormatJSON, s)
	if !bytes.Equal(first, second) {
		t.Fatalf("json export not deterministic")
	}

	var doc struct {
		Logs []struct {
			TaskText     string `json:"task_text"`
			PointsEarned int    `json:"points_earned"`
		} `json:"logs"`
		Milestones []json.RawMessage `json:"milestones"`
		Summary    struct {
			TotalPoints  int64 `json:"total_points"`
			CurrentLevel int   `json:"current_level"`
			Daily        struct {
				CurrentCount int `json:"current_count"`
			} `json:"daily_streak"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(first, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Logs) != 2 || doc.Logs[0].TaskText != s.Logs[0].TaskText {
		t.Fatalf("logs=%+v", doc.Logs)
	}
	if doc.Milestones == nil || len(doc.Milestones) != 0 {
		t.Fatalf("milestones should be an empty array")
	}
	if doc.Summary.TotalPoints != 73 || doc.Summary.CurrentLevel != 1 || doc.Summary.Daily.CurrentCount != 1 {
		t.Fatalf("summary=%+v", doc.Summary)
	}
	if !bytes.HasSuffix(bytes.TrimSpace(first), []byte("}\n}")) {
		t.Fatalf("summary should trail the document")
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("fern", FormatCSV); got != "forest_export_fern.csv" {
		t.Fatalf("filename=%s", got)
	}
	if got := Filename(`a/b"c`, FormatJSON); got != "forest_export_a_b_c.json" {
		t.Fatalf("filename=%s", got)
	}
}
