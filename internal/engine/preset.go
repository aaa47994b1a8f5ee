package engine

import "strings"

// Difficulty maps a requested strength to a search budget. The easiest
// level also rolls a chance to answer from a depth-1 search, which plays
// noticeably weaker than any time budget alone.
type Difficulty struct {
	Name               string
	MoveTimeMillis     int
	SkillLevel         int
	ShallowProbability float64
}

var difficulties = map[string]Difficulty{
	"easy":   {Name: "easy", MoveTimeMillis: 300, SkillLevel: 3, ShallowProbability: 0.35},
	"medium": {Name: "medium", MoveTimeMillis: 800, SkillLevel: 10},
	"hard":   {Name: "hard", MoveTimeMillis: 2000, SkillLevel: 20},
}

// DifficultyFor resolves a difficulty by name, defaulting to medium.
func DifficultyFor(name string) Difficulty {
	if d, ok := difficulties[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d
	}
	return difficulties["medium"]
}

type searchLimits struct {
	Depth          int
	MoveTimeMillis int
	SkillLevel     int
}
