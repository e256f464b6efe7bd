package db

import (
	"fmt"
	"time"
)

// TextLayout is the fixed-width UTC form SQLite timestamps are stored in, so
// that text ordering matches time ordering.
const TextLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime returns t as a bind argument for dialect.
func FormatTime(dialect Dialect, t time.Time) any {
	t = t.UTC()
	if dialect == SQLite {
		return t.Format(TextLayout)
	}
	return t
}

// Time scans a timestamp column written by either engine.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (t *Time) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan time: unrecognized format %q", s)
}
