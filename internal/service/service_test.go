package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"forestlog/internal/auth"
	"forestlog/internal/db"
	"forestlog/internal/models"
	"forestlog/internal/progression"
	"forestlog/internal/repo"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *testClock, *db.DB) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.SQLite, filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.RunMigrations(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := &testClock{t: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	svc := New(repo.New(conn), auth.NewManager("test-secret", time.Hour), Options{
		Clock:  clock.Now,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc, clock, conn
}

func registerUser(t *testing.T, svc *Service, name string) *models.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Username: name,
		Email:    name + "@example.com",
		Password: "password1",
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return u
}

func day(d int) time.Time {
	return time.Date(2026, 10, d, 9, 0, 0, 0, time.UTC)
}

func record(t *testing.T, svc *Service, userID string, effort progression.Effort, at time.Time) *CompletionResult {
	t.Helper()
	res, err := svc.RecordCompletion(context.Background(), Completion{UserID: userID, TaskText: "water the garden", Effort: effort, At: at})
	if err != nil {
		t.Fatalf("record %s at %v: %v", effort, at, err)
	}
	return res
}

func assertTotalMatchesLogs(t *testing.T, svc *Service, userID string) {
	t.Helper()
	ctx := context.Background()
	user, err := svc.Repo.GetUserByID(ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	sum, count, err := svc.Repo.SumPoints(ctx, userID)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if user.TotalPoints != sum || user.EventCount != count {
		t.Fatalf("aggregate drifted: total=%d sum=%d events=%d count=%d", user.TotalPoints, sum, user.EventCount, count)
	}
}

func TestSingleSeedCompletion(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "fern")

	res := record(t, svc, u.ID, progression.EffortSeed, day(1))
	if res.Log.PointsEarned != 8 || res.TotalPoints != 8 || res.LevelAfter.Number != 1 || res.LevelUp {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Daily.CurrentCount != 1 || res.Daily.LongestCount != 1 {
		t.Fatalf("daily=%+v", res.Daily)
	}
	if res.Weekly.CurrentCount != 1 || res.Log.TreeEmoji == "" || len(res.Warnings) != 0 {
		t.Fatalf("weekly=%+v emoji=%q warnings=%v", res.Weekly, res.Log.TreeEmoji, res.Warnings)
	}
	assertTotalMatchesLogs(t, svc, u.ID)
}

func TestConsecutiveOakDays(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "oakley")

	record(t, svc, u.ID, progression.EffortOak, day(1))
	res := record(t, svc, u.ID, progression.EffortOak, day(2))
	if res.Daily.CurrentCount != 2 || res.Daily.LongestCount != 2 || res.TotalPoints != 130 {
		t.Fatalf("daily=%+v total=%d", res.Daily, res.TotalPoints)
	}
}

func TestSkippedDayResetsStreak(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "gappy")

	record(t, svc, u.ID, progression.EffortSeed, day(1))
	res := record(t, svc, u.ID, progression.EffortSeed, day(3))
	if res.Daily.CurrentCount != 1 || res.Daily.LongestCount != 1 {
		t.Fatalf("daily after gap=%+v", res.Daily)
	}
	if res.Daily.StartedKey != "2026-10-03" {
		t.Fatalf("started key=%q", res.Daily.StartedKey)
	}
}

func TestSamePeriodDoesNotInflate(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "busy")
	record(t, svc, u.ID, progression.EffortSeed, day(1))
	res := record(t, svc, u.ID, progression.EffortSeed, day(1).Add(3*time.Hour))
	if res.Daily.CurrentCount != 1 || res.TotalPoints != 16 {
		t.Fatalf("daily=%+v total=%d", res.Daily, res.TotalPoints)
	}
}

func TestLevelUpSignalMatchesLevelChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "climber")

	prevLevel := 1
	for i := 0; i < 20; i++ {
		res := record(t, svc, u.ID, progression.EffortOak, day(1).Add(time.Duration(i)*time.Minute))
		if res.LevelAfter.Number < prevLevel {
			t.Fatalf("level decreased: %d -> %d", prevLevel, res.LevelAfter.Number)
		}
		if res.LevelUp != (res.LevelAfter.Number > prevLevel) {
			t.Fatalf("level_up=%v but level %d -> %d", res.LevelUp, prevLevel, res.LevelAfter.Number)
		}
		prevLevel = res.LevelAfter.Number
	}
	if prevLevel != 3 {
		t.Fatalf("1300 points should be level 3, got %d", prevLevel)
	}
	p, err := svc.Profile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.CurrentLevel != 3 || p.Level.IntoLevel != 300 {
		t.Fatalf("profile level=%d progress=%+v", p.CurrentLevel, p.Level)
	}
}

func TestSaplingDrawsArePersisted(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "sapper")

	want := map[string]int{}
	for i := 0; i < 30; i++ {
		res := record(t, svc, u.ID, progression.EffortSapling, day(1).Add(time.Duration(i)*time.Minute))
		if res.Log.PointsEarned < 22 || res.Log.PointsEarned > 49 {
			t.Fatalf("sapling=%d", res.Log.PointsEarned)
		}
		want[res.Log.ID] = res.Log.PointsEarned
	}
	for round := 0; round < 2; round++ {
		logs, err := svc.ListLogs(context.Background(), u.ID, 0, 100)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, l := range logs {
			if want[l.ID] != l.PointsEarned {
				t.Fatalf("stored points changed for %s: %d != %d", l.ID, l.PointsEarned, want[l.ID])
			}
		}
	}
	assertTotalMatchesLogs(t, svc, u.ID)
}

func TestOutOfOrderEventKeepsPointsSkipsStreak(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "skew")

	record(t, svc, u.ID, progression.EffortSeed, day(10))
	before := record(t, svc, u.ID, progression.EffortSeed, day(11))
	res := record(t, svc, u.ID, progression.EffortOak, day(3))

	if len(res.Warnings) != 1 || res.Warnings[0] != WarningOutOfOrder || !res.Log.OutOfOrder {
		t.Fatalf("expected out of order warning, got %+v", res)
	}
	if res.TotalPoints != 81 {
		t.Fatalf("points not committed: %d", res.TotalPoints)
	}
	if res.Daily != before.Daily {
		t.Fatalf("daily streak changed: %+v -> %+v", before.Daily, res.Daily)
	}
	assertTotalMatchesLogs(t, svc, u.ID)
}

func TestValidationLeavesNoTrace(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "careful")
	ctx := context.Background()

	cases := []Completion{
		{UserID: u.ID, TaskText: "   ", Effort: progression.EffortSeed},
		{UserID: u.ID, TaskText: strings.Repeat("x", MaxTaskTextRunes+1), Effort: progression.EffortSeed},
		{UserID: u.ID, TaskText: "ok", Effort: "redwood"},
	}
	for _, c := range cases {
		_, err := svc.RecordCompletion(ctx, c)
		if !errors.Is(err, progression.ErrValidation) || progression.Retryable(err) {
			t.Fatalf("expected validation error for %+v, got %v", c, err)
		}
	}
	if _, err := svc.RecordCompletion(ctx, Completion{UserID: u.ID, TaskText: "ok", Effort: "redwood"}); !errors.Is(err, progression.ErrInvalidEffortTier) {
		t.Fatalf("expected invalid tier, got %v", err)
	}
	sum, count, _ := svc.Repo.SumPoints(ctx, u.ID)
	if sum != 0 || count != 0 {
		t.Fatalf("validation failure left state: sum=%d count=%d", sum, count)
	}

	_, err := svc.RecordCompletion(ctx, Completion{UserID: "missing", TaskText: "ok", Effort: progression.EffortSeed})
	if !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentCompletionsSameUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "swarm")
	other := registerUser(t, svc, "bystander")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.RecordCompletion(context.Background(), Completion{UserID: u.ID, TaskText: "parallel", Effort: progression.EffortOak})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.RecordCompletion(context.Background(), Completion{UserID: other.ID, TaskText: "parallel", Effort: progression.EffortSeed})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent record: %v", err)
		}
	}

	got, err := svc.Repo.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalPoints != n*65 || got.EventCount != n {
		t.Fatalf("total=%d events=%d", got.TotalPoints, got.EventCount)
	}
	assertTotalMatchesLogs(t, svc, u.ID)
	assertTotalMatchesLogs(t, svc, other.ID)

	logs, _ := svc.ListLogs(context.Background(), u.ID, 0, 100)
	seen := map[int64]bool{}
	for _, l := range logs {
		if seen[l.Seq] {
			t.Fatalf("duplicate seq %d", l.Seq)
		}
		seen[l.Seq] = true
	}
	if svc.locks.size() != 0 {
		t.Fatalf("user locks leaked: %d", svc.locks.size())
	}
}

func TestVersionConflictRetriesWithSameDraw(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "racer")

	conflicts := 1
	svc.afterLoad = func(ctx context.Context, tx *repo.Repo, user *models.User) error {
		if conflicts == 0 {
			return nil
		}
		conflicts--
		// Simulate another writer winning the race.
		return tx.UpdateProgress(ctx, user.ID, user.Version, user.TotalPoints, user.CurrentLevel, user.EventCount, time.Now())
	}
	res, err := svc.RecordCompletion(context.Background(), Completion{UserID: u.ID, TaskText: "retry me", Effort: progression.EffortSapling})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	logs, _ := svc.ListLogs(context.Background(), u.ID, 0, 10)
	if len(logs) != 1 || logs[0].ID != res.Log.ID || logs[0].PointsEarned != res.Log.PointsEarned {
		t.Fatalf("retry did not reuse draw/id: %+v vs %+v", logs, res.Log)
	}
}

func TestVersionConflictExhaustion(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "loser")

	attempts := 0
	svc.afterLoad = func(ctx context.Context, tx *repo.Repo, user *models.User) error {
		attempts++
		return tx.UpdateProgress(ctx, user.ID, user.Version, user.TotalPoints, user.CurrentLevel, user.EventCount, time.Now())
	}
	_, err := svc.RecordCompletion(context.Background(), Completion{UserID: u.ID, TaskText: "never lands", Effort: progression.EffortOak})
	if !errors.Is(err, progression.ErrConcurrencyConflict) || !progression.Retryable(err) {
		t.Fatalf("expected retryable conflict, got %v", err)
	}
	if attempts != DefaultMaxRetries {
		t.Fatalf("attempts=%d, want %d", attempts, DefaultMaxRetries)
	}
	assertTotalMatchesLogs(t, svc, u.ID)
	got, _ := svc.Repo.GetUserByID(context.Background(), u.ID)
	if got.TotalPoints != 0 {
		t.Fatalf("conflict leaked points: %d", got.TotalPoints)
	}
}

func TestPersistenceFailureIsRetryable(t *testing.T) {
	svc, _, conn := newTestService(t)
	u := registerUser(t, svc, "offline")
	conn.Close()

	_, err := svc.RecordCompletion(context.Background(), Completion{UserID: u.ID, TaskText: "lost", Effort: progression.EffortSeed})
	if !errors.Is(err, progression.ErrPersistence) || !progression.Retryable(err) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	_, err = svc.Export(context.Background(), u.ID, "xml", ExportRange{})
	if !errors.Is(err, progression.ErrExportFormat) {
		t.Fatalf("format must be rejected before storage access, got %v", err)
	}
}

func TestCancelledContextCommitsNothing(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "quitter")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.RecordCompletion(ctx, Completion{UserID: u.ID, TaskText: "never", Effort: progression.EffortSeed})
	if !errors.Is(err, progression.ErrCanceled) || !progression.Retryable(err) {
		t.Fatalf("expected canceled, got %v", err)
	}
	assertTotalMatchesLogs(t, svc, u.ID)
}

func TestLockWaitTimeoutIsCanceled(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "waiter")
	unlock, err := svc.locks.Lock(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.RecordCompletion(ctx, Completion{UserID: u.ID, TaskText: "blocked", Effort: progression.EffortOak})
	if !errors.Is(err, progression.ErrCanceled) || !progression.Retryable(err) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if progression.KindOf(err) != progression.KindCanceled {
		t.Fatalf("kind=%s", progression.KindOf(err))
	}
	assertTotalMatchesLogs(t, svc, u.ID)
}

func TestMilestoneAtThreeDays(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "steady")

	record(t, svc, u.ID, progression.EffortSeed, day(1))
	record(t, svc, u.ID, progression.EffortSeed, day(2))
	res := record(t, svc, u.ID, progression.EffortSeed, day(3))
	if res.Milestone == nil || res.Milestone.BadgeName != "3-Day Starter" {
		t.Fatalf("expected 3-day milestone, got %+v", res.Milestone)
	}
	again := record(t, svc, u.ID, progression.EffortSeed, day(3).Add(time.Hour))
	if again.Milestone != nil {
		t.Fatalf("milestone awarded twice")
	}
	list, err := svc.Milestones(context.Background(), u.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("milestones=%+v err=%v", list, err)
	}
}

func TestPeriodKeysFollowUserTimezone(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "tokyo")
	tz := "Asia/Tokyo"
	if _, err := svc.UpdateProfile(context.Background(), u.ID, models.ProfileUpdate{Timezone: &tz}); err != nil {
		t.Fatalf("update tz: %v", err)
	}
	res := record(t, svc, u.ID, progression.EffortSeed, time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC))
	if res.Log.DayKey != "2026-10-19" {
		t.Fatalf("day key=%s, want Tokyo date", res.Log.DayKey)
	}
}

func TestStreakViewBreaksAfterMissedPeriod(t *testing.T) {
	svc, clock, _ := newTestService(t)
	u := registerUser(t, svc, "lapsed")
	record(t, svc, u.ID, progression.EffortSeed, day(1))
	record(t, svc, u.ID, progression.EffortSeed, day(2))

	clock.Set(day(3))
	view, err := svc.Streaks(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("streaks: %v", err)
	}
	if view.Daily.CurrentCount != 2 || view.Daily.LongestCount != 2 {
		t.Fatalf("adjacent day view=%+v", view.Daily)
	}
	clock.Set(day(5))
	view, _ = svc.Streaks(context.Background(), u.ID)
	if view.Daily.CurrentCount != 0 || view.Daily.LongestCount != 2 {
		t.Fatalf("broken run view=%+v", view.Daily)
	}
}

func TestTodayAndWeek(t *testing.T) {
	svc, clock, _ := newTestService(t)
	u := registerUser(t, svc, "weekly")
	clock.Set(day(18))
	record(t, svc, u.ID, progression.EffortOak, day(18))
	record(t, svc, u.ID, progression.EffortSeed, day(16))
	record(t, svc, u.ID, progression.EffortSeed, day(5))

	today, err := svc.TodayLogs(context.Background(), u.ID)
	if err != nil || len(today) != 1 || today[0].PointsEarned != 65 {
		t.Fatalf("today=%+v err=%v", today, err)
	}
	week, err := svc.Week(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if len(week.Days) != 7 || week.Days[0].Day != "2026-10-12" || week.Days[6].Day != "2026-10-18" {
		t.Fatalf("week days=%+v", week.Days)
	}
	if week.TotalPoints != 73 || week.TotalLogs != 2 {
		t.Fatalf("week totals=%+v", week)
	}
}

func TestListLogsPaging(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "pager")
	for i := 0; i < 3; i++ {
		record(t, svc, u.ID, progression.EffortSeed, day(1).Add(time.Duration(i)*time.Minute))
	}
	logs, err := svc.ListLogs(context.Background(), u.ID, 0, 0)
	if err != nil || len(logs) != 3 || logs[0].Seq != 3 {
		t.Fatalf("logs=%+v err=%v", logs, err)
	}
	if _, err := svc.ListLogs(context.Background(), u.ID, 0, 101); !errors.Is(err, progression.ErrValidation) {
		t.Fatalf("expected limit validation, got %v", err)
	}
}

func TestExportIdempotentAndQuoted(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "exporter")
	tricky := `said "hi", then left`
	if _, err := svc.RecordCompletion(context.Background(), Completion{UserID: u.ID, TaskText: tricky, Effort: progression.EffortSapling, At: day(1)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	record(t, svc, u.ID, progression.EffortOak, day(2))

	for _, format := range []string{"json", "csv"} {
		first, err := svc.Export(context.Background(), u.ID, format, ExportRange{})
		if err != nil {
			t.Fatalf("export %s: %v", format, err)
		}
		second, err := svc.Export(context.Background(), u.ID, format, ExportRange{})
		if err != nil {
			t.Fatalf("export %s again: %v", format, err)
		}
		if !bytes.Equal(first.Data, second.Data) {
			t.Fatalf("%s export not byte-identical", format)
		}
		if first.Filename != fmt.Sprintf("forest_export_exporter.%s", format) {
			t.Fatalf("filename=%s", first.Filename)
		}
	}

	out, _ := svc.Export(context.Background(), u.ID, "csv", ExportRange{})
	records, err := csv.NewReader(bytes.NewReader(out.Data)).ReadAll()
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(records) != 3 || records[1][1] != "oak" || records[2][0] != tricky {
		t.Fatalf("records=%v", records)
	}
	if !strings.HasPrefix(out.ContentType, "text/csv") {
		t.Fatalf("content type=%s", out.ContentType)
	}

	ranged, err := svc.Export(context.Background(), u.ID, "csv", ExportRange{From: "2026-10-02", To: "2026-10-02"})
	if err != nil {
		t.Fatalf("ranged export: %v", err)
	}
	rows, _ := csv.NewReader(bytes.NewReader(ranged.Data)).ReadAll()
	if len(rows) != 2 || rows[1][1] != "oak" {
		t.Fatalf("ranged rows=%v", rows)
	}
	if _, err := svc.Export(context.Background(), u.ID, "csv", ExportRange{From: "10/02/2026"}); !errors.Is(err, progression.ErrValidation) {
		t.Fatalf("expected bad date validation, got %v", err)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	u := registerUser(t, svc, "member")
	if u.TotalPoints != 0 || u.CurrentLevel != 1 || u.Timezone != "UTC" {
		t.Fatalf("new user=%+v", u)
	}
	if _, err := svc.Register(ctx, RegisterInput{Username: "member2", Email: "member@example.com", Password: "password1"}); !errors.Is(err, progression.ErrValidation) {
		t.Fatalf("expected duplicate email validation, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Username: "m3", Email: "not-an-email", Password: "password1"}); !errors.Is(err, progression.ErrValidation) {
		t.Fatalf("expected validation, got %v", err)
	}

	session, err := svc.Login(ctx, "MEMBER@example.com", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.Auth.ParseToken(session.Token)
	if err != nil || claims.UserID != u.ID {
		t.Fatalf("token claims=%+v err=%v", claims, err)
	}
	if _, err := svc.Login(ctx, "member@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "ghost@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestProfileUpdateKeepsPoints(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerUser(t, svc, "profiled")
	record(t, svc, u.ID, progression.EffortOak, day(1))

	bio := "growing a forest"
	private := false
	p, err := svc.UpdateProfile(context.Background(), u.ID, models.ProfileUpdate{Bio: &bio, IsPublic: &private})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Bio == nil || *p.Bio != bio || p.IsPublic || p.TotalPoints != 65 {
		t.Fatalf("profile=%+v", p.User)
	}
	bad := "Nowhere/Special"
	if _, err := svc.UpdateProfile(context.Background(), u.ID, models.ProfileUpdate{Timezone: &bad}); !errors.Is(err, progression.ErrValidation) {
		t.Fatalf("expected timezone validation, got %v", err)
	}
}

func TestLeaderboardUsesLiveStreak(t *testing.T) {
	svc, clock, _ := newTestService(t)
	active := registerUser(t, svc, "active")
	stale := registerUser(t, svc, "stale")

	record(t, svc, stale.ID, progression.EffortSeed, day(1))
	record(t, svc, stale.ID, progression.EffortSeed, day(2))
	record(t, svc, stale.ID, progression.EffortSeed, day(3))
	record(t, svc, active.ID, progression.EffortSeed, day(9))
	record(t, svc, active.ID, progression.EffortSeed, day(10))

	clock.Set(day(10))
	board, err := svc.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].Username != "active" || board[0].CurrentStreak != 2 {
		t.Fatalf("board=%+v", board)
	}
}

func TestUserLockHonoursContext(t *testing.T) {
	locks := newUserLocks()
	unlock, err := locks.Lock(context.Background(), "u")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.Lock(ctx, "u"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	other, err := locks.Lock(context.Background(), "v")
	if err != nil {
		t.Fatalf("other user blocked: %v", err)
	}
	other()
	unlock()
	unlock()
	if locks.size() != 0 {
		t.Fatalf("locks left: %d", locks.size())
	}
}

func TestLeaderboardFindsLiveStreakBehindManyStaleOnes(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	created := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < leaderboardFetch+1; i++ {
		u := &models.User{
			ID:           fmt.Sprintf("stale-%03d", i),
			Username:     fmt.Sprintf("stale%03d", i),
			Email:        fmt.Sprintf("stale%03d@example.com", i),
			PasswordHash: "x",
			IsPublic:     true,
			Timezone:     "UTC",
			CurrentLevel: 1,
			Version:      1,
			CreatedAt:    created,
			UpdatedAt:    created,
		}
		if err := svc.Repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("create %s: %v", u.Username, err)
		}
		state := progression.StreakState{
			Cadence:       progression.CadenceDaily,
			CurrentCount:  5,
			LongestCount:  5,
			LastPeriodKey: "2026-10-01",
			StartedKey:    "2026-09-27",
		}
		if err := svc.Repo.UpsertStreak(ctx, u.ID, state, created); err != nil {
			t.Fatalf("streak %s: %v", u.Username, err)
		}
	}
	live := registerUser(t, svc, "sprout")
	record(t, svc, live.ID, progression.EffortSeed, day(10))

	clock.Set(day(10))
	board, err := svc.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].Username != "sprout" || board[0].CurrentStreak != 1 {
		t.Fatalf("board=%+v", board)
	}
}

func TestReadsDoNotWaitForOpenWrite(t *testing.T) {
	svc, _, conn := newTestService(t)
	reader := registerUser(t, svc, "reader")
	writer := registerUser(t, svc, "writer")
	record(t, svc, reader.ID, progression.EffortOak, day(18))

	tx, err := conn.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE users SET bio = 'busy' WHERE id = $1`, writer.ID); err != nil {
		t.Fatalf("hold write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	file, err := svc.Export(ctx, reader.ID, "csv", ExportRange{})
	if err != nil {
		t.Fatalf("export during write: %v", err)
	}
	if !bytes.Contains(file.Data, []byte("oak,65")) {
		t.Fatalf("export=%s", file.Data)
	}
	view, err := svc.Streaks(ctx, reader.ID)
	if err != nil || view.Daily.CurrentCount != 1 {
		t.Fatalf("streaks during write: %+v %v", view, err)
	}
}

func TestShareLinkLifecycle(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	owner := registerUser(t, svc, "grove")
	visitor := registerUser(t, svc, "hiker")
	record(t, svc, owner.ID, progression.EffortSeed, day(1))
	record(t, svc, owner.ID, progression.EffortOak, day(17))
	record(t, svc, owner.ID, progression.EffortSeed, day(18))
	clock.Set(day(18))

	share, err := svc.CreateShare(ctx, owner.ID, ShareInput{})
	if err != nil {
		t.Fatalf("create share: %v", err)
	}
	if len(share.Token) != 8 || share.ShareType != ShareTypeProfile || !share.IsActive || share.ExpiresAt != nil {
		t.Fatalf("share=%+v", share)
	}

	forest, err := svc.PublicForest(ctx, share.Token)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if forest.Username != "grove" || forest.TotalPoints != 81 || forest.DailyStreak != 2 || forest.ViewCount != 1 {
		t.Fatalf("forest=%+v", forest)
	}
	if len(forest.RecentTrees) != 2 || forest.RecentTrees[0].Date != "2026-10-18" || forest.RecentTrees[1].Points != 65 {
		t.Fatalf("recent trees=%+v", forest.RecentTrees)
	}
	if forest, err = svc.PublicForest(ctx, share.Token); err != nil || forest.ViewCount != 2 {
		t.Fatalf("second view: %+v %v", forest, err)
	}

	if err := svc.LikeShare(ctx, visitor.ID, share.Token); err != nil {
		t.Fatalf("like: %v", err)
	}
	if err := svc.LikeShare(ctx, visitor.ID, share.Token); !errors.Is(err, progression.ErrValidation) {
		t.Fatalf("second like: %v", err)
	}
	shares, err := svc.ListShares(ctx, owner.ID)
	if err != nil || len(shares) != 1 || shares[0].ViewCount != 2 || shares[0].LikeCount != 1 {
		t.Fatalf("shares=%+v err=%v", shares, err)
	}

	if err := svc.RevokeShare(ctx, visitor.ID, share.Token); !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("revoke by stranger: %v", err)
	}
	if err := svc.RevokeShare(ctx, owner.ID, share.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.PublicForest(ctx, share.Token); !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("revoked view: %v", err)
	}
	if err := svc.LikeShare(ctx, owner.ID, share.Token); !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("revoked like: %v", err)
	}
	if shares, _ := svc.ListShares(ctx, owner.ID); len(shares) != 1 || shares[0].IsActive {
		t.Fatalf("revoked share still listed active: %+v", shares)
	}
}

func TestShareNeedsPublicProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	u := registerUser(t, svc, "hermit")
	share, err := svc.CreateShare(ctx, u.ID, ShareInput{Type: "weekly"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	private := false
	if _, err := svc.UpdateProfile(ctx, u.ID, models.ProfileUpdate{IsPublic: &private}); err != nil {
		t.Fatalf("go private: %v", err)
	}
	_, err = svc.CreateShare(ctx, u.ID, ShareInput{})
	if !errors.Is(err, progression.ErrForbidden) || progression.Retryable(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.PublicForest(ctx, share.Token); !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("private owner still visible: %v", err)
	}
	if _, err := svc.CreateShare(ctx, u.ID, ShareInput{Type: "yearly"}); !errors.Is(err, progression.ErrValidation) {
		t.Fatalf("bad type: %v", err)
	}
}

func TestShareExpires(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	u := registerUser(t, svc, "mayfly")
	share, err := svc.CreateShare(ctx, u.ID, ShareInput{ExpiresInDays: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if share.ExpiresAt == nil {
		t.Fatalf("expiry not set")
	}
	if _, err := svc.PublicForest(ctx, share.Token); err != nil {
		t.Fatalf("fresh link: %v", err)
	}
	clock.Set(clock.Now().Add(25 * time.Hour))
	if _, err := svc.PublicForest(ctx, share.Token); !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("expired link: %v", err)
	}
}
