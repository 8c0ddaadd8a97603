package domain

import "time"

// recentDays is how many daily history entries a summary carries.
const recentDays = 7

// DeckStats summarizes a deck for display.
type DeckStats struct {
	Total         int
	ByState       [4]int
	Due           int
	AvgDifficulty float64
	// AvgStability only covers cards that have a stability estimate.
	AvgStability float64
	TotalLapses  int
	TodayCount   int
	MaxPerDay    int
	Recent       []DayCount
}

// Summarize computes deck statistics. due is the number of currently due cards.
func Summarize(cards []Card, meta DeckMetadata, due int, today time.Time) DeckStats {
	st := DeckStats{
		Total:      len(cards),
		Due:        due,
		TodayCount: meta.TodayCount(today),
		MaxPerDay:  meta.MaxPerDay,
		Recent:     meta.Recent(recentDays),
	}

	var diffSum, stabSum float64
	var stabN int
	for _, c := range cards {
		if c.State.Valid() {
			st.ByState[c.State]++
		}
		diffSum += c.Difficulty
		if c.Stability > 0 {
			stabSum += c.Stability
			stabN++
		}
		st.TotalLapses += c.Lapses
	}
	if len(cards) > 0 {
		st.AvgDifficulty = diffSum / float64(len(cards))
	}
	if stabN > 0 {
		st.AvgStability = stabSum / float64(stabN)
	}
	return st
}
