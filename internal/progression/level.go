package progression

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// DefaultLevelStep is the points-per-level past the explicit thresholds.
const DefaultLevelStep = 500

// LevelTable is the tunable level curve. Thresholds[i] is the cumulative total needed to
// reach level i+2; beyond the last threshold every Step points is one more level.
type LevelTable struct {
	Thresholds []int64 `toml:"thresholds"`
	Step       int64   `toml:"step"`
}

// Level describes where a point total sits on the curve.
type Level struct {
	Number    int   `json:"level"`
	IntoLevel int64 `json:"points_into_level"`
	ToNext    int64 `json:"points_to_next"`
}

func DefaultLevelTable() LevelTable {
	return LevelTable{Step: DefaultLevelStep}
}

// LoadLevelTable reads a TOML level table. An empty path yields the default table.
func LoadLevelTable(path string) (LevelTable, error) {
	if path == "" {
		return DefaultLevelTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return LevelTable{}, fmt.Errorf("read level table: %w", err)
	}
	var t LevelTable
	if _, err := toml.Decode(string(raw), &t); err != nil {
		return LevelTable{}, fmt.Errorf("decode level table %s: %w", path, err)
	}
	if t.Step == 0 {
		t.Step = DefaultLevelStep
	}
	if err := t.Validate(); err != nil {
		return LevelTable{}, err
	}
	return t, nil
}

func (t LevelTable) Validate() error {
	if t.Step <= 0 {
		return errors.New("level table: step must be positive")
	}
	var prev int64
	for i, th := range t.Thresholds {
		if th <= prev {
			return fmt.Errorf("level table: threshold %d (%d) must be greater than %d", i, th, prev)
		}
		prev = th
	}
	return nil
}

// Required returns the cumulative points needed to be at level n.
func (t LevelTable) Required(n int) int64 {
	if n <= 1 {
		return 0
	}
	if n-2 < len(t.Thresholds) {
		return t.Thresholds[n-2]
	}
	return t.last() + int64(n-1-len(t.Thresholds))*t.step()
}

// Level maps a point total to its level. Level 1 starts at 0 points.
func (t LevelTable) Level(total int64) Level {
	if total < 0 {
		total = 0
	}
	n := sort.Search(len(t.Thresholds), func(i int) bool { return t.Thresholds[i] > total })
	var number int
	if n < len(t.Thresholds) {
		number = n + 1
	} else {
		number = len(t.Thresholds) + 1 + int((total-t.last())/t.step())
	}
	floor := t.Required(number)
	next := t.Required(number + 1)
	return Level{Number: number, IntoLevel: total - floor, ToNext: next - total}
}

// LeveledUp reports whether moving from before to after crosses at least one threshold.
func (t LevelTable) LeveledUp(before, after int64) bool {
	return t.Level(after).Number > t.Level(before).Number
}

func (t LevelTable) last() int64 {
	if len(t.Thresholds) == 0 {
		return 0
	}
	return t.Thresholds[len(t.Thresholds)-1]
}

func (t LevelTable) step() int64 {
	if t.Step <= 0 {
		return DefaultLevelStep
	}
	return t.Step
}
