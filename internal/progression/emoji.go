package progression

var (
	commonTrees    = []string{"🌲", "🌳", "🌿"}
	uncommonTrees  = []string{"🌴", "🌵", "🎍"}
	rareTrees      = []string{"🌸", "🍂", "🍄", "🍀"}
	legendaryTrees = []string{"🎋", "🎐", "⛲"}
)

const (
	UncommonTreeLevel  = 3
	RareTreeLevel      = 7
	LegendaryTreeLevel = 15
)

// TreePool returns the emoji a user at level may grow.
func TreePool(level int) []string {
	pool := append([]string(nil), commonTrees...)
	if level >= UncommonTreeLevel {
		pool = append(pool, uncommonTrees...)
	}
	if level >= RareTreeLevel {
		pool = append(pool, rareTrees...)
	}
	if level >= LegendaryTreeLevel {
		pool = append(pool, legendaryTrees...)
	}
	return pool
}

// TreeFor maps a draw taken earlier onto the pool for level.
func TreeFor(level, draw int) string {
	pool := TreePool(level)
	if draw < 0 {
		draw = -draw
	}
	return pool[draw%len(pool)]
}
