package progression

// Badge is a milestone awarded when the daily streak reaches Threshold.
type Badge struct {
	Threshold   int
	Name        string
	Type        string
	Description string
}

var DailyStreakBadges = []Badge{
	{Threshold: 3, Name: "3-Day Starter", Type: "streak", Description: "Logged for 3 consecutive days"},
	{Threshold: 7, Name: "7-Day Warrior", Type: "streak", Description: "Logged for 7 consecutive days"},
	{Threshold: 10, Name: "10-Day Champion", Type: "streak", Description: "Logged for 10 consecutive days"},
	{Threshold: 30, Name: "30-Day Legend", Type: "streak", Description: "Logged for 30 consecutive days"},
}

// BadgeForDailyStreak returns the badge reached exactly at count, if any.
func BadgeForDailyStreak(count int) (Badge, bool) {
	for _, b := range DailyStreakBadges {
		if b.Threshold == count {
			return b, true
		}
	}
	return Badge{}, false
}
