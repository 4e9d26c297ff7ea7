package pipeline

import "sort"

// LevelOutcome is the judged result for one competency level.
type LevelOutcome struct {
	Level     int
	Total     int
	Fulfilled int
	Passed    bool
}

// passes applies the configurable pass threshold. A level with no key
// behaviors judged fulfilled (or none defined) never passes.
func passes(fulfilled, total int, threshold float64) bool {
	if total == 0 || fulfilled == 0 {
		return false
	}
	return float64(fulfilled)/float64(total) >= threshold
}

// finalLevel computes the achieved level under the prefix-closure rule: the
// largest N such that every level 1..N passed. A passed level above a failed
// one never counts ("you can't be certified at level 4 if you failed
// level 2").
func finalLevel(outcomes []LevelOutcome) int {
	byLevel := make(map[int]bool, len(outcomes))
	maxLevel := 0
	for _, o := range outcomes {
		byLevel[o.Level] = o.Passed
		if o.Level > maxLevel {
			maxLevel = o.Level
		}
	}

	final := 0
	for lvl := 1; lvl <= maxLevel; lvl++ {
		passed, judged := byLevel[lvl]
		if !judged || !passed {
			break
		}
		final = lvl
	}
	return final
}

// hasAnomaly reports whether any lower level failed while a higher level
// passed. Such inconsistencies must surface in the narrative rather than
// silently inflate or deflate the score.
func hasAnomaly(outcomes []LevelOutcome) bool {
	sorted := append([]LevelOutcome(nil), outcomes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	failedBelow := false
	for _, o := range sorted {
		if o.Passed && failedBelow {
			return true
		}
		if !o.Passed {
			failedBelow = true
		}
	}
	return false
}

// anomalyLevels returns the failed levels that sit below at least one passed
// level, for the persisted anomaly note.
func anomalyLevels(outcomes []LevelOutcome) (failed []int) {
	sorted := append([]LevelOutcome(nil), outcomes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	highestPassed := 0
	for _, o := range sorted {
		if o.Passed {
			highestPassed = o.Level
		}
	}
	for _, o := range sorted {
		if !o.Passed && o.Level < highestPassed {
			failed = append(failed, o.Level)
		}
	}
	return failed
}
