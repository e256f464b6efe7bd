package progression

import (
	"fmt"
	"time"
)

// Cadence is a streak period length.
type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// Cadences lists every tracked cadence in a stable order.
var Cadences = []Cadence{CadenceDaily, CadenceWeekly}

const dayLayout = "2006-01-02"

func (c Cadence) IsValid() bool {
	return c == CadenceDaily || c == CadenceWeekly
}

// Key returns the period identifier of t in loc: a calendar date for daily,
// an ISO year-week ("2026-W07") for weekly. Keys of one cadence sort chronologically.
func (c Cadence) Key(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	switch c {
	case CadenceWeekly:
		y, w := local.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	default:
		return local.Format(dayLayout)
	}
}

// Next returns the period key immediately following key.
func (c Cadence) Next(key string) (string, error) {
	start, err := c.Start(key)
	if err != nil {
		return "", err
	}
	switch c {
	case CadenceWeekly:
		return c.Key(start.AddDate(0, 0, 7), time.UTC), nil
	default:
		return c.Key(start.AddDate(0, 0, 1), time.UTC), nil
	}
}

// Start returns midnight UTC of the first day in the period named by key.
func (c Cadence) Start(key string) (time.Time, error) {
	switch c {
	case CadenceDaily:
		t, err := time.Parse(dayLayout, key)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid daily period key %q: %w", key, err)
		}
		return t, nil
	case CadenceWeekly:
		var year, week int
		if _, err := fmt.Sscanf(key, "%04d-W%02d", &year, &week); err != nil {
			return time.Time{}, fmt.Errorf("invalid weekly period key %q: %w", key, err)
		}
		if week < 1 || week > 53 {
			return time.Time{}, fmt.Errorf("invalid weekly period key %q: week out of range", key)
		}
		// January 4th always falls in ISO week 1.
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
		offset := (int(jan4.Weekday()) + 6) % 7
		monday := jan4.AddDate(0, 0, -offset+(week-1)*7)
		return monday, nil
	default:
		return time.Time{}, fmt.Errorf("unknown cadence %q", string(c))
	}
}
