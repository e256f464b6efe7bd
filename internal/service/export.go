package service

import (
	"context"
	"fmt"

	"forestlog/internal/export"
	"forestlog/internal/metrics"
	"forestlog/internal/progression"
	"forestlog/internal/repo"
)

// ExportRange limits an export to logs whose day key lies in [From, To]. Empty bounds are open.
type ExportRange struct {
	From string
	To   string
}

type ExportFile struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Export renders the user's history and aggregate. The format is checked before
// any storage access and everything is read in one transaction.
func (s *Service) Export(ctx context.Context, userID, format string, rng ExportRange) (*ExportFile, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	for _, bound := range []string{rng.From, rng.To} {
		if bound == "" {
			continue
		}
		if _, err := progression.CadenceDaily.Start(bound); err != nil {
			return nil, progression.Validation(fmt.Sprintf("date %q must be YYYY-MM-DD", bound))
		}
	}
	if rng.From != "" && rng.To != "" && rng.From > rng.To {
		return nil, progression.Validation("from must not be after to")
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var snap export.Snapshot
	err = s.Repo.WithReadTx(ctx, func(tx *repo.Repo) error {
		user, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		states, err := tx.GetStreaks(ctx, userID)
		if err != nil {
			return err
		}
		logs, err := tx.ListLogsInRange(ctx, userID, rng.From, rng.To)
		if err != nil {
			return err
		}
		milestones, err := tx.ListMilestones(ctx, userID)
		if err != nil {
			return err
		}
		s.present(user)
		snap = export.Snapshot{
			User:       *user,
			Logs:       logs,
			Milestones: milestones,
			Level:      s.Levels.Level(user.TotalPoints),
			Daily:      states[progression.CadenceDaily],
			Weekly:     states[progression.CadenceWeekly],
		}
		return nil
	})
	if err != nil {
		return nil, storeError("export", err)
	}

	data, err := export.Render(f, snap)
	if err != nil {
		return nil, err
	}
	metrics.Exports.WithLabelValues(string(f)).Inc()
	s.Logger.Info("export rendered", "user_id", userID, "format", string(f), "logs", len(snap.Logs), "bytes", len(data))
	return &ExportFile{Data: data, ContentType: f.ContentType(), Filename: export.Filename(snap.User.Username, f)}, nil
}
