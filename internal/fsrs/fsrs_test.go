package fsrs

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

var today = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newCard() domain.Card {
	return domain.NewCard(domain.Item{Front: "あ", Back: "a"})
}

func TestConfigure(t *testing.T) {
	s := NewScheduler()

	p := s.Params()
	if p.StabilityGrowth != 1.25 || p.DiffAdjust != 1.0 {
		t.Fatalf("Expected default coefficients 1.25/1.0, got %v/%v", p.StabilityGrowth, p.DiffAdjust)
	}

	t.Run("recomputes from scratch", func(t *testing.T) {
		s.Configure(8, 0.85)
		s.Configure(2, 0.85)
		p := s.Params()
		if math.Abs(p.StabilityGrowth-0.8) > 1e-9 || math.Abs(p.DiffAdjust-0.7) > 1e-9 {
			t.Errorf("Expected 0.8/0.7 at intensity 2, got %v/%v", p.StabilityGrowth, p.DiffAdjust)
		}
		if p.RequestRetention != 0.85 {
			t.Errorf("Expected retention 0.85, got %v", p.RequestRetention)
		}
	})

	t.Run("clamps inputs", func(t *testing.T) {
		s.Configure(15, 1.5)
		if p := s.Params(); p.Intensity != 10 || p.RequestRetention != 1 {
			t.Errorf("Expected clamp to 10 and 1.0, got %v and %v", p.Intensity, p.RequestRetention)
		}
		s.Configure(-5, 0.1)
		if p := s.Params(); p.Intensity != 0 || p.RequestRetention != 0.5 {
			t.Errorf("Expected clamp to 0 and 0.5, got %v and %v", p.Intensity, p.RequestRetention)
		}
	})
}

func TestGradeNewCard(t *testing.T) {
	s := NewScheduler()

	t.Run("Good", func(t *testing.T) {
		c := s.GradeCard(newCard(), false, today)
		if c.State != domain.Review {
			t.Errorf("Expected state Review, got %s", c.State)
		}
		if c.Stability != 3.0 {
			t.Errorf("Expected stability 3.0, got %.2f", c.Stability)
		}
		if c.Difficulty >= 5.0 {
			t.Errorf("Expected difficulty to decrease from 5.0, got %.2f", c.Difficulty)
		}
		if c.Lapses != 0 {
			t.Errorf("Expected no lapses, got %d", c.Lapses)
		}
		if c.IntervalDays != 3 {
			t.Errorf("Expected a 3 day interval, got %d", c.IntervalDays)
		}
		if c.LastSeen != "2024-03-10" {
			t.Errorf("Expected lastSeen 2024-03-10, got %q", c.LastSeen)
		}
	})

	t.Run("Again", func(t *testing.T) {
		c := s.GradeCard(newCard(), true, today)
		if c.State != domain.Learning {
			t.Errorf("Expected state Learning, got %s", c.State)
		}
		if c.Stability != 0.4 {
			t.Errorf("Expected stability 0.4, got %.2f", c.Stability)
		}
		if c.Lapses != 1 {
			t.Errorf("Expected 1 lapse, got %d", c.Lapses)
		}
		if c.IntervalDays != 1 {
			t.Errorf("Expected a 1 day interval, got %d", c.IntervalDays)
		}
	})

	t.Run("initial stability ignores intensity", func(t *testing.T) {
		high := NewScheduler()
		high.Configure(10, 0.9)
		if c := high.GradeCard(newCard(), false, today); c.Stability != 3.0 {
			t.Errorf("Expected stability 3.0 at intensity 10, got %.2f", c.Stability)
		}
	})
}

func TestGradeReviewCard(t *testing.T) {
	s := NewScheduler()
	card := domain.Card{Front: "か", State: domain.Review, Stability: 5.0, Difficulty: 5.0, IntervalDays: 5, LastSeen: "2024-03-05"}

	t.Run("Good", func(t *testing.T) {
		c := s.GradeCard(card, false, today)
		if c.Stability <= 5.0 {
			t.Errorf("Expected stability to increase, got %.2f", c.Stability)
		}
		// S' = 5 * 2.5 * (11 - 4.5) / 10 / 1.25 = 6.5
		if math.Abs(c.Stability-6.5) > 1e-9 {
			t.Errorf("Expected stability 6.5, got %.4f", c.Stability)
		}
		if c.Difficulty >= 5.0 {
			t.Errorf("Expected difficulty to decrease, got %.2f", c.Difficulty)
		}
		if c.State != domain.Review {
			t.Errorf("Expected state to remain Review, got %s", c.State)
		}
		// 6.5 rounds half to even.
		if c.IntervalDays != 6 {
			t.Errorf("Expected a 6 day interval, got %d", c.IntervalDays)
		}
	})

	t.Run("Again", func(t *testing.T) {
		c := s.GradeCard(card, true, today)
		if c.Stability != 2.5 {
			t.Errorf("Expected stability to halve to 2.5, got %.2f", c.Stability)
		}
		if c.Difficulty != 6.0 {
			t.Errorf("Expected difficulty 6.0, got %.2f", c.Difficulty)
		}
		if c.State != domain.Relearning {
			t.Errorf("Expected Relearning, got %s", c.State)
		}
	})

	t.Run("input is not mutated", func(t *testing.T) {
		before := card
		s.GradeCard(card, true, today)
		if card != before {
			t.Errorf("Expected input card to be unchanged, got %+v", card)
		}
	})
}

func TestNextState(t *testing.T) {
	testCases := []struct {
		current  domain.State
		isAgain  bool
		expected domain.State
	}{
		{domain.New, true, domain.Learning},
		{domain.New, false, domain.Review},
		{domain.Learning, true, domain.Relearning},
		{domain.Learning, false, domain.Review},
		{domain.Review, true, domain.Relearning},
		{domain.Review, false, domain.Review},
		{domain.Relearning, true, domain.Relearning},
		{domain.Relearning, false, domain.Review},
		{domain.State(9), true, domain.Learning},
	}
	for _, tc := range testCases {
		if got := NextState(tc.current, tc.isAgain); got != tc.expected {
			t.Errorf("NextState(%s, %v) = %s, want %s", tc.current, tc.isAgain, got, tc.expected)
		}
	}
}

func TestIntensityShortensIntervals(t *testing.T) {
	card := domain.Card{Front: "さ", State: domain.Review, Stability: 5.0, Difficulty: 5.0}

	prev := math.MaxInt
	for intensity := 0.0; intensity <= 10; intensity++ {
		s := NewScheduler()
		s.Configure(intensity, 0.9)
		got := s.GradeCard(card, false, today).IntervalDays
		if got > prev {
			t.Errorf("Interval grew from %d to %d at intensity %.0f", prev, got, intensity)
		}
		prev = got
	}

	low, high := NewScheduler(), NewScheduler()
	low.Configure(1, 0.9)
	high.Configure(10, 0.9)
	if l, h := low.GradeCard(card, false, today).IntervalDays, high.GradeCard(card, false, today).IntervalDays; l <= h {
		t.Errorf("Expected low intensity interval %d to exceed high intensity interval %d", l, h)
	}
}

func TestInterval(t *testing.T) {
	s := NewScheduler()
	testCases := []struct {
		name      string
		retention float64
		stability float64
		expected  int
	}{
		{"zero stability", 0.9, 0, 1},
		{"negative stability", 0.9, -3, 1},
		{"NaN stability", 0.9, math.NaN(), 1},
		{"sub-day stability", 0.9, 0.4, 1},
		{"baseline retention", 0.9, 10, 10},
		{"higher retention shortens", 0.95, 10, 5},
		{"lower retention lengthens", 0.8, 10, 21},
		{"perfect retention", 1.0, 10, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s.Configure(DefaultIntensity, tc.retention)
			if got := s.Interval(tc.stability); got != tc.expected {
				t.Errorf("Interval(%v) = %d, want %d", tc.stability, got, tc.expected)
			}
		})
	}
}

func TestGradeGuardsExternalValues(t *testing.T) {
	s := NewScheduler()
	testCases := []struct {
		name string
		card domain.Card
	}{
		{"difficulty above range", domain.Card{State: domain.Review, Stability: 4, Difficulty: 42}},
		{"difficulty below range", domain.Card{State: domain.Review, Stability: 4, Difficulty: -3}},
		{"NaN difficulty", domain.Card{State: domain.Review, Stability: 4, Difficulty: math.NaN()}},
		{"negative stability", domain.Card{State: domain.Review, Stability: -4, Difficulty: 5}},
		{"unknown state", domain.Card{State: domain.State(12), Difficulty: 5}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, again := range []bool{true, false} {
				c := s.GradeCard(tc.card, again, today)
				if c.Difficulty < MinDifficulty || c.Difficulty > MaxDifficulty {
					t.Errorf("Difficulty %.2f escaped [1, 10]", c.Difficulty)
				}
				if c.Stability < 0 || math.IsNaN(c.Stability) {
					t.Errorf("Stability %.2f is invalid", c.Stability)
				}
				if c.IntervalDays < 1 {
					t.Errorf("Interval %d is below 1", c.IntervalDays)
				}
				if !c.State.Valid() {
					t.Errorf("State %s is invalid", c.State)
				}
			}
		})
	}
}

func TestRandomGradeSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		s := NewScheduler()
		s.Configure(rng.Float64()*10, 0.5+rng.Float64()*0.5)
		c := newCard()
		day := today
		for i := 0; i < 40; i++ {
			again := rng.Intn(3) == 0
			next := s.GradeCard(c, again, day)

			if next.Lapses < c.Lapses {
				t.Fatalf("Lapses decreased from %d to %d", c.Lapses, next.Lapses)
			}
			if again && next.Lapses != c.Lapses+1 {
				t.Fatalf("Expected Again to add exactly one lapse")
			}
			if next.Difficulty < MinDifficulty || next.Difficulty > MaxDifficulty {
				t.Fatalf("Difficulty %.3f escaped [1, 10]", next.Difficulty)
			}
			if next.Stability < 0 {
				t.Fatalf("Stability %.3f went negative", next.Stability)
			}
			if next.State == domain.New || next.LastSeen == "" {
				t.Fatalf("Reviewed card must leave New and record lastSeen, got %s/%q", next.State, next.LastSeen)
			}
			c = next
			day = day.AddDate(0, 0, c.IntervalDays)
		}
	}
}

func TestIsDue(t *testing.T) {
	s := NewScheduler()
	testCases := []struct {
		name     string
		card     domain.Card
		expected bool
	}{
		{"new card", domain.Card{State: domain.New, LastSeen: "2024-03-10", IntervalDays: 30}, true},
		{"never seen", domain.Card{State: domain.Review, IntervalDays: 30}, true},
		{"malformed lastSeen", domain.Card{State: domain.Review, LastSeen: "10/03/2024", IntervalDays: 30}, true},
		{"not yet due", domain.Card{State: domain.Review, LastSeen: "2024-03-08", IntervalDays: 3}, false},
		{"due today", domain.Card{State: domain.Review, LastSeen: "2024-03-07", IntervalDays: 3}, true},
		{"overdue", domain.Card{State: domain.Relearning, LastSeen: "2024-01-01", IntervalDays: 1}, true},
		{"zero interval", domain.Card{State: domain.Learning, LastSeen: "2024-03-10"}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.IsDue(tc.card, today); got != tc.expected {
				t.Errorf("IsDue = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestIsDueIgnoresTimeOfDay(t *testing.T) {
	s := NewScheduler()
	card := domain.Card{State: domain.Review, LastSeen: "2024-03-09", IntervalDays: 1}
	early := time.Date(2024, 3, 10, 0, 0, 1, 0, time.FixedZone("UTC+9", 9*3600))
	if !s.IsDue(card, early) {
		t.Error("Expected card to be due from the start of its due date")
	}
}

func TestDueCards(t *testing.T) {
	s := NewScheduler()
	cards := []domain.Card{
		{Front: "c", State: domain.Review, LastSeen: "2024-03-01", IntervalDays: 2},
		{Front: "x", State: domain.Review, LastSeen: "2024-03-09", IntervalDays: 20},
		{Front: "a", State: domain.New},
		{Front: "b", State: domain.Learning, LastSeen: "bogus"},
	}
	due := s.DueCards(cards, today)

	expected := []string{"c", "a", "b"}
	if len(due) != len(expected) {
		t.Fatalf("Expected %d due cards, got %d", len(expected), len(due))
	}
	for i, front := range expected {
		if due[i].Front != front {
			t.Errorf("Expected due[%d] to be %q, got %q", i, front, due[i].Front)
		}
	}
}

func TestGradeRestartsCardWithoutStability(t *testing.T) {
	s := NewScheduler()
	testCases := []struct {
		name      string
		again     bool
		stability float64
	}{
		{"good", false, 3.0},
		{"again", true, 0.4},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			card := domain.Card{State: domain.Review, Stability: 0, Difficulty: 5, LastSeen: "2024-01-01"}
			c := s.GradeCard(card, tc.again, today)
			if c.Stability != tc.stability {
				t.Errorf("Expected stability to restart at %v, got %v", tc.stability, c.Stability)
			}
		})
	}

	card := domain.Card{State: domain.Review, Difficulty: 5}
	for n := 0; n < 5; n++ {
		card = s.GradeCard(card, false, today.AddDate(0, 0, n))
	}
	if card.Stability <= 3.0 || card.IntervalDays <= 3 {
		t.Errorf("Expected stability to keep growing, got %+v", card)
	}
}
