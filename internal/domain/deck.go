package domain

import (
	"sort"
	"time"
)

// DefaultMaxPerDay is the daily review quota of a fresh deck.
const DefaultMaxPerDay = 20

// DeckMetadata holds the per-(user, deck) daily quota and review history.
type DeckMetadata struct {
	MaxPerDay   int            `json:"max_per_day"`
	DailyCounts map[string]int `json:"daily_counts"`
	// AllowOverLimitToday lets the current session exceed MaxPerDay.
	AllowOverLimitToday bool `json:"allow_over_limit_today"`
}

// NewDeckMetadata returns metadata with the default quota and no history.
func NewDeckMetadata() DeckMetadata {
	return DeckMetadata{
		MaxPerDay:   DefaultMaxPerDay,
		DailyCounts: map[string]int{},
	}
}

// TodayCount returns the number of reviews graded on today's date.
func (m DeckMetadata) TodayCount(today time.Time) int {
	return m.DailyCounts[DateKey(today)]
}

// CanReviewMore reports whether another review fits today's quota.
func (m DeckMetadata) CanReviewMore(today time.Time) bool {
	if m.AllowOverLimitToday {
		return true
	}
	return m.TodayCount(today) < m.MaxPerDay
}

// Remaining is the unused part of today's quota, never negative.
func (m DeckMetadata) Remaining(today time.Time) int {
	return max(0, m.MaxPerDay-m.TodayCount(today))
}

// IncrementToday records one graded review on today's date.
func (m *DeckMetadata) IncrementToday(today time.Time) {
	if m.DailyCounts == nil {
		m.DailyCounts = map[string]int{}
	}
	m.DailyCounts[DateKey(today)]++
}

// Truncate limits due to what today's quota still allows. With the
// over-limit flag set, due is returned unchanged.
func (m DeckMetadata) Truncate(due []Card, today time.Time) []Card {
	if m.AllowOverLimitToday {
		return due
	}
	remaining := m.Remaining(today)
	if len(due) > remaining {
		return due[:remaining]
	}
	return due
}

// DayCount is one entry of the daily review history.
type DayCount struct {
	Date  string
	Count int
}

// Recent returns up to n history entries, newest date first.
func (m DeckMetadata) Recent(n int) []DayCount {
	days := make([]DayCount, 0, len(m.DailyCounts))
	for d, c := range m.DailyCounts {
		days = append(days, DayCount{Date: d, Count: c})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })
	if len(days) > n {
		days = days[:n]
	}
	return days
}
