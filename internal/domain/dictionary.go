package domain

import "time"

// Dictionary is a versioned competency tree: competency -> ordered levels ->
// definition + ordered key behaviors. Immutable once referenced by an active
// project; the HTTP layer rejects edits while in use.
type Dictionary struct {
	ID           string
	Name         string
	Version      int
	Competencies []Competency
	CreatedAt    time.Time
}

// Competency is one named competency with its level ladder.
type Competency struct {
	Name   string            `json:"name"`
	Levels []CompetencyLevel `json:"levels"`
}

// CompetencyLevel is one rung of the ladder.
type CompetencyLevel struct {
	Level        int      `json:"level"`
	Definition   string   `json:"definition"`
	KeyBehaviors []string `json:"key_behaviors"`
}

// Competency returns the competency with the given name, or false.
func (d Dictionary) Competency(name string) (Competency, bool) {
	for _, c := range d.Competencies {
		if c.Name == name {
			return c, true
		}
	}
	return Competency{}, false
}

// Level returns the definition for level n, or false.
func (c Competency) Level(n int) (CompetencyLevel, bool) {
	for _, l := range c.Levels {
		if l.Level == n {
			return l, true
		}
	}
	return CompetencyLevel{}, false
}

// MaxLevel returns the highest defined level, 0 for an empty ladder.
func (c Competency) MaxLevel() int {
	max := 0
	for _, l := range c.Levels {
		if l.Level > max {
			max = l.Level
		}
	}
	return max
}
