package progression

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

type Effort string

const (
	EffortSeed    Effort = "seed"
	EffortSapling Effort = "sapling"
	EffortOak     Effort = "oak"
)

const (
	SeedPoints       = 8
	SaplingMinPoints = 22
	SaplingMaxPoints = 49
	OakPoints        = 65
)

func (e Effort) IsValid() bool {
	switch e {
	case EffortSeed, EffortSapling, EffortOak:
		return true
	default:
		return false
	}
}

// ParseEffort normalizes user input into an Effort.
func ParseEffort(input string) (Effort, error) {
	e := Effort(strings.ToLower(strings.TrimSpace(input)))
	if !e.IsValid() {
		return "", &Error{Kind: KindValidation, Message: fmt.Sprintf("effort_level %q is not one of seed, sapling, oak", input), Err: ErrInvalidEffortTier}
	}
	return e, nil
}

// Rand is the gameplay randomness source. It is not used for anything security sensitive.
type Rand interface {
	IntN(n int) int
}

type defaultRand struct{}

func (defaultRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand draws from the process-wide math/rand/v2 source.
var DefaultRand Rand = defaultRand{}

// Scorer maps an effort tier to awarded points.
type Scorer struct {
	Rand Rand
}

func NewScorer(r Rand) *Scorer {
	if r == nil {
		r = DefaultRand
	}
	return &Scorer{Rand: r}
}

// Score returns the points for one event. Sapling draws happen here exactly once;
// the result must be persisted, never recomputed.
func (s *Scorer) Score(e Effort) (int, error) {
	switch e {
	case EffortSeed:
		return SeedPoints, nil
	case EffortSapling:
		return SaplingMinPoints + s.Rand.IntN(SaplingMaxPoints-SaplingMinPoints+1), nil
	case EffortOak:
		return OakPoints, nil
	default:
		return 0, &Error{Kind: KindValidation, Message: fmt.Sprintf("effort_level %q is not one of seed, sapling, oak", string(e)), Err: ErrInvalidEffortTier}
	}
}
