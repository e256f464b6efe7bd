package progression

// StreakState is the per (user, cadence) streak record.
type StreakState struct {
	Cadence       Cadence `json:"cadence"`
	CurrentCount  int     `json:"current_count"`
	LongestCount  int     `json:"longest_count"`
	LastPeriodKey string  `json:"last_period_key,omitempty"`
	StartedKey    string  `json:"started_key,omitempty"`
}

// Transition names what an event did to a streak.
type Transition string

const (
	TransitionStarted    Transition = "started"
	TransitionSamePeriod Transition = "same_period"
	TransitionExtended   Transition = "extended"
	TransitionReset      Transition = "reset"
	TransitionOutOfOrder Transition = "out_of_order"
)

// NewStreakState is the initial state for a user with no events.
func NewStreakState(c Cadence) StreakState {
	return StreakState{Cadence: c}
}

// Advance applies an event falling in period key. Events in a period before
// LastPeriodKey leave the state untouched and report TransitionOutOfOrder.
// The returned error is only non-nil for malformed keys.
func (s StreakState) Advance(key string) (StreakState, Transition, error) {
	if _, err := s.Cadence.Start(key); err != nil {
		return s, "", err
	}
	if s.LastPeriodKey == "" {
		s.CurrentCount = 1
		s.LastPeriodKey = key
		s.StartedKey = key
		if s.LongestCount < 1 {
			s.LongestCount = 1
		}
		return s, TransitionStarted, nil
	}
	switch {
	case key == s.LastPeriodKey:
		return s, TransitionSamePeriod, nil
	case key < s.LastPeriodKey:
		return s, TransitionOutOfOrder, nil
	}

	next, err := s.Cadence.Next(s.LastPeriodKey)
	if err != nil {
		return s, "", err
	}
	transition := TransitionReset
	if key == next {
		s.CurrentCount++
		transition = TransitionExtended
	} else {
		s.CurrentCount = 1
		s.StartedKey = key
	}
	s.LastPeriodKey = key
	if s.CurrentCount > s.LongestCount {
		s.LongestCount = s.CurrentCount
	}
	return s, transition, nil
}

// CurrentAt is the streak as seen at period nowKey: a run whose last period is
// neither nowKey nor the one just before it is broken and reads as 0.
func (s StreakState) CurrentAt(nowKey string) int {
	if s.LastPeriodKey == "" {
		return 0
	}
	if nowKey == s.LastPeriodKey {
		return s.CurrentCount
	}
	next, err := s.Cadence.Next(s.LastPeriodKey)
	if err != nil || next != nowKey {
		return 0
	}
	return s.CurrentCount
}

// StreakView is the read model returned to clients.
type StreakView struct {
	CurrentCount  int    `json:"current_count"`
	LongestCount  int    `json:"longest_count"`
	LastPeriodKey string `json:"last_period_key,omitempty"`
}

// View renders the state as seen at nowKey.
func (s StreakState) View(nowKey string) StreakView {
	return StreakView{
		CurrentCount:  s.CurrentAt(nowKey),
		LongestCount:  s.LongestCount,
		LastPeriodKey: s.LastPeriodKey,
	}
}
