package storage

import (
	"encoding/json"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/fsrs"
)

func TestMerge(t *testing.T) {
	items := []domain.Item{
		{Front: "あ", Back: "a"},
		{Front: "い", Back: "i", State: domain.Review, LastSeen: "2024-01-01"},
		{Front: "う", Back: "u"},
	}
	saved := map[string]domain.CardRecord{
		"い":    {Stability: 4, Difficulty: 3, IntervalDays: 4, Lapses: 2, State: domain.Relearning, LastSeen: ptr("2024-03-01")},
		"う":    {State: domain.State(42), Difficulty: 5},
		"gone": {Stability: 9, State: domain.Review},
	}

	cards := Merge(items, saved)

	if len(cards) != 3 {
		t.Fatalf("Expected one card per item, got %d", len(cards))
	}
	fresh := cards[0]
	if fresh.State != domain.New || fresh.Stability != 0 || fresh.LastSeen != "" || fresh.Difficulty != domain.DefaultDifficulty {
		t.Errorf("Expected a fresh New card, got %+v", fresh)
	}
	merged := cards[1]
	if merged.State != domain.Relearning || merged.LastSeen != "2024-03-01" || merged.Lapses != 2 || merged.Back != "i" {
		t.Errorf("Expected saved state to override the mirror, got %+v", merged)
	}
	if cards[2].State != domain.New {
		t.Errorf("Expected an unknown saved state to read as New, got %s", cards[2].State)
	}

	orphans := Orphans(items, saved)
	if !reflect.DeepEqual(orphans, []string{"gone"}) {
		t.Errorf("Expected [gone] to be orphaned, got %v", orphans)
	}
}

func TestMergeNullLastSeenClearsMirror(t *testing.T) {
	items := []domain.Item{{Front: "あ", State: domain.Review, LastSeen: "2024-01-01"}}
	saved := map[string]domain.CardRecord{"あ": {State: domain.Learning, Difficulty: 5}}
	if c := Merge(items, saved)[0]; c.LastSeen != "" {
		t.Errorf("Expected null last_seen in the record to win, got %q", c.LastSeen)
	}
}

func TestMergeSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	sched := fsrs.NewScheduler()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	items := []domain.Item{{Front: "あ"}, {Front: "い"}, {Front: "う"}, {Front: "え"}}
	cards := Merge(items, nil)
	for i := range cards {
		for n := 0; n <= i; n++ {
			cards[i] = sched.GradeCard(cards[i], (i+n)%2 == 0, day.AddDate(0, 0, n))
		}
	}
	cards = append(cards[:3:3], Merge(items[3:], nil)...)

	if err := s.SaveCardState("alice", "d", cards); err != nil {
		t.Fatalf("SaveCardState() returned an unexpected error: %v", err)
	}
	saved, err := s.LoadCardState("alice", "d")
	if err != nil {
		t.Fatalf("LoadCardState() returned an unexpected error: %v", err)
	}

	got := Merge(items, saved)
	if !reflect.DeepEqual(got, cards) {
		t.Errorf("Round trip changed cards:\nwant %+v\ngot  %+v", cards, got)
	}

	fronts := make([]string, 0, len(saved))
	for f := range saved {
		fronts = append(fronts, f)
	}
	sort.Strings(fronts)
	if !reflect.DeepEqual(fronts, []string{"あ", "い", "う", "え"}) {
		t.Errorf("Expected one record per front, got %v", fronts)
	}
}

func TestMergeMirroredStateWithoutRecordIsNew(t *testing.T) {
	items := []domain.Item{{Front: "a", State: domain.Review, LastSeen: "2024-01-01"}}
	card := Merge(items, nil)[0]
	if card.State != domain.New || card.Stability != 0 || card.LastSeen != "2024-01-01" {
		t.Fatalf("Expected a New card keeping lastSeen, got %+v", card)
	}

	sched := fsrs.NewScheduler()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !sched.IsDue(card, day) {
		t.Error("Expected the New card to be due")
	}
	prev := 0.0
	for n := 0; n < 5; n++ {
		card = sched.GradeCard(card, false, day.AddDate(0, 0, n))
		if card.Stability <= prev {
			t.Fatalf("Expected stability to grow on Good %d, got %.2f after %.2f", n+1, card.Stability, prev)
		}
		prev = card.Stability
	}
	if card.State != domain.Review || card.IntervalDays <= 1 {
		t.Errorf("Expected a Review card with a growing interval, got %+v", card)
	}
}

func TestMergePartialRecord(t *testing.T) {
	var saved map[string]domain.CardRecord
	data := `{
		"あ": {"stability": 4, "interval_days": 4},
		"い": {"stability": 2, "difficulty": 7, "state": 3, "last_seen": null}
	}`
	if err := json.Unmarshal([]byte(data), &saved); err != nil {
		t.Fatal(err)
	}
	items := []domain.Item{
		{Front: "あ", State: domain.Review, LastSeen: "2024-01-01"},
		{Front: "い", State: domain.Review, LastSeen: "2024-01-01"},
	}

	cards := Merge(items, saved)

	partial := cards[0]
	if partial.Difficulty != domain.DefaultDifficulty {
		t.Errorf("Expected missing difficulty to default to %v, got %v", domain.DefaultDifficulty, partial.Difficulty)
	}
	if partial.State != domain.Review || partial.LastSeen != "2024-01-01" {
		t.Errorf("Expected missing state and last_seen to keep the mirror, got %+v", partial)
	}
	if partial.Stability != 4 || partial.IntervalDays != 4 {
		t.Errorf("Expected recorded fields to apply, got %+v", partial)
	}

	full := cards[1]
	if full.State != domain.Relearning || full.Difficulty != 7 || full.LastSeen != "" {
		t.Errorf("Expected the full record to win, got %+v", full)
	}
}
