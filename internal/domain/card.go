package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for lastSeen and daily counts.
const DateLayout = "2006-01-02"

// DefaultDifficulty is the difficulty of a card that has never been graded.
const DefaultDifficulty = 5.0

// State is the learning stage of a card. The integer values are the
// on-disk encoding used by both the item CSV and the JSON state records.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

var stateNames = [...]string{New: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	return s >= New && s <= Relearning
}

// String returns the state name, or "State(n)" for unknown values.
func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Item is one entry of the canonical item list: the display text of a card.
// Front is the card's identity within a deck.
type Item struct {
	Front string
	Back  string
	// State and LastSeen are the lightweight mirror kept in the item file.
	// They only matter when no richer state record exists for Front.
	State    State
	LastSeen string
}

// Card is a learning item together with its scheduling state.
type Card struct {
	Front        string
	Back         string
	State        State
	Stability    float64
	Difficulty   float64
	IntervalDays int
	Lapses       int
	// LastSeen is the YYYY-MM-DD date of the most recent graded review.
	// Empty means the card was never reviewed. It is kept as text so that
	// a malformed value read from disk survives and is treated as due.
	LastSeen string
}

// NewCard returns a never-reviewed card for item.
func NewCard(item Item) Card {
	return Card{
		Front:      item.Front,
		Back:       item.Back,
		State:      item.State,
		Difficulty: DefaultDifficulty,
		LastSeen:   item.LastSeen,
	}
}

// LastSeenDate parses LastSeen. ok is false when it is absent or malformed.
func (c Card) LastSeenDate() (t time.Time, ok bool) {
	if c.LastSeen == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, c.LastSeen)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Record returns the persisted scheduling fields of the card.
func (c Card) Record() CardRecord {
	r := CardRecord{
		Stability:    c.Stability,
		Difficulty:   c.Difficulty,
		IntervalDays: c.IntervalDays,
		Lapses:       c.Lapses,
		State:        c.State,
	}
	if c.LastSeen != "" {
		ls := c.LastSeen
		r.LastSeen = &ls
	}
	return r
}

// Apply overwrites the scheduling fields of c with r. State and lastSeen
// keep the card's values when the decoded record did not carry them.
func (c *Card) Apply(r CardRecord) {
	c.Stability = r.Stability
	c.Difficulty = r.Difficulty
	c.IntervalDays = r.IntervalDays
	c.Lapses = r.Lapses
	if !r.stateMissing {
		c.State = r.State
	}
	if !r.lastSeenMissing {
		c.LastSeen = ""
		if r.LastSeen != nil {
			c.LastSeen = *r.LastSeen
		}
	}
}

// CardRecord is the per-card scheduling state persisted under the card's front.
type CardRecord struct {
	Stability    float64 `json:"stability"`
	Difficulty   float64 `json:"difficulty"`
	IntervalDays int     `json:"interval_days"`
	Lapses       int     `json:"lapses"`
	State        State   `json:"state"`
	// LastSeen is null for a card that was never reviewed.
	LastSeen *string `json:"last_seen"`

	stateMissing    bool
	lastSeenMissing bool
}

// UnmarshalJSON decodes a record, treating absent keys as unknown: a
// missing difficulty is DefaultDifficulty, and a missing state or last_seen
// leaves the card's own value in place on Apply. An explicit null
// last_seen still clears it.
func (r *CardRecord) UnmarshalJSON(data []byte) error {
	type plain CardRecord
	p := plain{Difficulty: DefaultDifficulty}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	state, ok := keys["state"]
	p.stateMissing = !ok || string(state) == "null"
	_, ok = keys["last_seen"]
	p.lastSeenMissing = !ok
	*r = CardRecord(p)
	return nil
}

// ReviewLog records a single graded review.
type ReviewLog struct {
	ID           string  `db:"id"`
	SessionID    string  `db:"session_id"`
	User         string  `db:"user_name"`
	Deck         string  `db:"deck"`
	CardHash     string  `db:"card_hash"`
	Front        string  `db:"front"`
	Again        bool    `db:"again"`
	StateBefore  State   `db:"state_before"`
	StateAfter   State   `db:"state_after"`
	Stability    float64 `db:"stability"`
	Difficulty   float64 `db:"difficulty"`
	IntervalDays int     `db:"interval_days"`
	ReviewedOn   string  `db:"reviewed_on"`
}

// Day truncates t to its calendar date, expressed as midnight UTC so that
// it compares cleanly against dates parsed with DateLayout.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats the calendar date of t.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}
