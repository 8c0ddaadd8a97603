package fsrs

import (
	"math"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
)

const (
	// DefaultIntensity reproduces the fixed-parameter scheduler exactly.
	DefaultIntensity = 5.0
	// DefaultRetention is the default target probability of recall.
	DefaultRetention = 0.9

	MinIntensity = 0.0
	MaxIntensity = 10.0
	MinRetention = 0.5
	MaxRetention = 1.0

	MinDifficulty = 1.0
	MaxDifficulty = 10.0

	initialStabilityAgain = 0.4
	initialStabilityGood  = 3.0
	stabilityFactorGood   = 2.5
	stabilityFactorAgain  = 0.5
	difficultyIncrease    = 1.0
	difficultyDecay       = -0.5

	// baselineRetention is the retention that stability is measured against.
	baselineRetention = 0.9
)

// Params are the tunable coefficients of the scheduler, all derived from
// intensity and request retention.
type Params struct {
	Intensity        float64
	RequestRetention float64
	// StabilityGrowth divides the growth of stability on success; larger
	// values mean shorter intervals.
	StabilityGrowth float64
	// DiffAdjust scales how far difficulty moves per outcome.
	DiffAdjust float64
}

// NewParams derives Params from intensity and retention, clamping both
// into their valid ranges first.
func NewParams(intensity, retention float64) Params {
	intensity = clamp(intensity, MinIntensity, MaxIntensity, DefaultIntensity)
	retention = clamp(retention, MinRetention, MaxRetention, DefaultRetention)
	return Params{
		Intensity:        intensity,
		RequestRetention: retention,
		StabilityGrowth:  0.5 + 0.15*intensity,
		DiffAdjust:       0.5 + 0.10*intensity,
	}
}

// transitions is indexed by [current state][outcome], outcome 1 being Again.
var transitions = [4][2]domain.State{
	domain.New:        {domain.Review, domain.Learning},
	domain.Learning:   {domain.Review, domain.Relearning},
	domain.Review:     {domain.Review, domain.Relearning},
	domain.Relearning: {domain.Review, domain.Relearning},
}

// NextState looks up the state a card moves to after a graded review.
func NextState(current domain.State, isAgain bool) domain.State {
	if !current.Valid() {
		current = domain.New
	}
	outcome := 0
	if isAgain {
		outcome = 1
	}
	return transitions[current][outcome]
}

// Scheduler grades cards and decides which ones are due. It holds no
// clock: every operation takes today's date from the caller.
type Scheduler struct {
	params Params
}

// NewScheduler returns a scheduler at the default intensity and retention.
func NewScheduler() *Scheduler {
	return &Scheduler{params: NewParams(DefaultIntensity, DefaultRetention)}
}

// Configure recomputes the scheduler's coefficients from scratch.
func (s *Scheduler) Configure(intensity, retention float64) {
	s.params = NewParams(intensity, retention)
}

// Params returns the coefficients currently in effect.
func (s *Scheduler) Params() Params {
	return s.params
}

// GradeCard applies one review outcome to card and returns the updated
// card; the argument is left untouched.
func (s *Scheduler) GradeCard(card domain.Card, isAgain bool, today time.Time) domain.Card {
	c := card
	state := c.State
	if !state.Valid() {
		state = domain.New
	}

	c.Difficulty = s.nextDifficulty(c.Difficulty, isAgain)
	c.Stability = s.nextStability(state, c.Stability, c.Difficulty, isAgain)
	c.IntervalDays = s.Interval(c.Stability)
	if isAgain {
		c.Lapses = max(0, c.Lapses) + 1
	}
	c.State = NextState(state, isAgain)
	c.LastSeen = domain.DateKey(today)
	return c
}

func (s *Scheduler) nextDifficulty(difficulty float64, isAgain bool) float64 {
	difficulty = clamp(difficulty, MinDifficulty, MaxDifficulty, domain.DefaultDifficulty)
	delta := difficultyDecay
	if isAgain {
		delta = difficultyIncrease
	}
	return clamp(difficulty+s.params.DiffAdjust*delta, MinDifficulty, MaxDifficulty, domain.DefaultDifficulty)
}

// nextStability restarts from the initial values for New cards and for any
// card without a positive stability, which would otherwise never grow.
func (s *Scheduler) nextStability(state domain.State, stability, difficulty float64, isAgain bool) float64 {
	if state == domain.New || !(stability > 0) {
		if isAgain {
			return initialStabilityAgain
		}
		return initialStabilityGood
	}

	if isAgain {
		return stability * stabilityFactorAgain
	}
	difficultyFactor := 11 - difficulty
	return stability * stabilityFactorGood * (difficultyFactor / 10) / s.params.StabilityGrowth
}

// Interval converts stability into whole days until the next review.
// Halves round to even.
func (s *Scheduler) Interval(stability float64) int {
	if !(stability > 0) {
		return 1
	}
	days := math.RoundToEven(stability * (math.Log(s.params.RequestRetention) / math.Log(baselineRetention)))
	if days > math.MaxInt32 {
		return math.MaxInt32
	}
	return max(1, int(days))
}

// IsDue reports whether card should be reviewed on today's date. Cards
// with an unreadable lastSeen are due.
func (s *Scheduler) IsDue(card domain.Card, today time.Time) bool {
	if card.State == domain.New {
		return true
	}
	last, ok := card.LastSeenDate()
	if !ok {
		return true
	}
	next := last.AddDate(0, 0, card.IntervalDays)
	return !domain.Day(today).Before(next)
}

// DueCards returns the due cards in their original order.
func (s *Scheduler) DueCards(cards []domain.Card, today time.Time) []domain.Card {
	var due []domain.Card
	for _, c := range cards {
		if s.IsDue(c, today) {
			due = append(due, c)
		}
	}
	return due
}

// clamp limits v to [lo, hi]; NaN becomes fallback.
func clamp(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}
