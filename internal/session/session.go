package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/fsrs"
	"github.com/conorfennell/knoldeck/internal/knol"
	"github.com/conorfennell/knoldeck/internal/settings"
	"github.com/google/uuid"
)

var (
	// ErrQuotaExceeded means today's quota is spent and over-limit
	// reviewing has not been allowed for this session.
	ErrQuotaExceeded = errors.New("daily review limit reached")
	ErrCardNotFound  = errors.New("card not found")
)

// Store is the persistence the session needs.
type Store interface {
	LoadCards(user, deck, itemsPath string) ([]domain.Card, error)
	SaveCardState(user, deck string, cards []domain.Card) error
	LoadDeckMetadata(user, deck string) (domain.DeckMetadata, error)
	SaveDeckMetadata(user, deck string, meta domain.DeckMetadata) error
	SaveSnapshot(itemsPath string, cards []domain.Card) error
}

// Recorder receives a log entry for every graded review.
type Recorder interface {
	Record(ctx context.Context, log domain.ReviewLog) error
}

// Options identify the deck a session works on.
type Options struct {
	User      string
	Deck      string
	ItemsPath string
	// WriteSnapshot mirrors state and lastSeen back into the item file
	// after each save.
	WriteSnapshot bool
	// History is optional.
	History Recorder
}

// Session is one user's review session over one deck. It is not safe for
// concurrent use; each grade is a single read-modify-write of one card and
// the deck metadata.
type Session struct {
	id       string
	opts     Options
	store    Store
	settings *settings.UserSettings
	sched    *fsrs.Scheduler
	cards    []domain.Card
	meta     domain.DeckMetadata
}

// Open loads the deck and configures a scheduler from the user's settings.
// A persisted over-limit opt-in does not carry into a new session.
func Open(store Store, us *settings.UserSettings, opts Options) (*Session, error) {
	s := &Session{
		id:       uuid.NewString(),
		opts:     opts,
		store:    store,
		settings: us,
		sched:    fsrs.NewScheduler(),
	}
	if err := s.LoadCards(); err != nil {
		return nil, err
	}
	meta, err := store.LoadDeckMetadata(opts.User, opts.Deck)
	if err != nil {
		return nil, fmt.Errorf("failed to load deck metadata: %w", err)
	}
	if meta.AllowOverLimitToday {
		slog.Info("Resetting over-limit opt-in from a previous session", "user", opts.User, "deck", opts.Deck)
		meta.AllowOverLimitToday = false
	}
	s.meta = meta
	s.Reconfigure()
	return s, nil
}

// ID identifies the session in review history.
func (s *Session) ID() string {
	return s.id
}

// LoadCards re-reads the item file and saved state, replacing the cards
// held in memory.
func (s *Session) LoadCards() error {
	cards, err := s.store.LoadCards(s.opts.User, s.opts.Deck, s.opts.ItemsPath)
	if err != nil {
		return fmt.Errorf("failed to load cards: %w", err)
	}
	s.cards = cards
	return nil
}

// SaveCards persists the scheduling state of every card, and the item
// snapshot when enabled.
func (s *Session) SaveCards() error {
	if err := s.store.SaveCardState(s.opts.User, s.opts.Deck, s.cards); err != nil {
		return fmt.Errorf("failed to save card state: %w", err)
	}
	if s.opts.WriteSnapshot {
		if err := s.store.SaveSnapshot(s.opts.ItemsPath, s.cards); err != nil {
			return fmt.Errorf("failed to save item snapshot: %w", err)
		}
	}
	return nil
}

// Cards returns a copy of the deck's cards in item order.
func (s *Session) Cards() []domain.Card {
	return append([]domain.Card(nil), s.cards...)
}

// Metadata returns a copy of the deck metadata.
func (s *Session) Metadata() domain.DeckMetadata {
	meta := s.meta
	meta.DailyCounts = make(map[string]int, len(s.meta.DailyCounts))
	for d, c := range s.meta.DailyCounts {
		meta.DailyCounts[d] = c
	}
	return meta
}

// Configure sets the scheduler coefficients directly.
func (s *Session) Configure(intensity, retention float64) {
	s.sched.Configure(intensity, retention)
	slog.Debug("Scheduler configured", "params", s.sched.Params())
}

// Reconfigure derives the scheduler coefficients from the user's settings.
// Call it after changing settings mid-session.
func (s *Session) Reconfigure() {
	s.Configure(s.settings.EffectiveIntensity(), s.settings.RequestRetention())
}

// EffectiveIntensity is the intensity the user's settings currently yield.
func (s *Session) EffectiveIntensity() float64 {
	return s.settings.EffectiveIntensity()
}

// Params returns the scheduler coefficients in effect.
func (s *Session) Params() fsrs.Params {
	return s.sched.Params()
}

// DueCards returns every due card in item order, ignoring the quota.
func (s *Session) DueCards(today time.Time) []domain.Card {
	return s.sched.DueCards(s.cards, today)
}

// Queue returns the due cards that fit today's quota. It returns
// ErrQuotaExceeded when cards are due but the quota is spent; AllowOverLimit
// lifts that for the rest of the session.
func (s *Session) Queue(today time.Time) ([]domain.Card, error) {
	due := s.DueCards(today)
	if len(due) == 0 {
		return nil, nil
	}
	if !s.meta.CanReviewMore(today) {
		return nil, ErrQuotaExceeded
	}
	return s.meta.Truncate(due, today), nil
}

// CanReviewMore reports whether today's quota allows another review.
func (s *Session) CanReviewMore(today time.Time) bool {
	return s.meta.CanReviewMore(today)
}

// IncrementToday counts one review against today's quota and saves.
func (s *Session) IncrementToday(today time.Time) error {
	s.meta.IncrementToday(today)
	return s.saveMetadata()
}

// AllowOverLimit lets this session review past today's quota.
func (s *Session) AllowOverLimit() error {
	s.meta.AllowOverLimitToday = true
	return s.saveMetadata()
}

// SetMaxPerDay changes the deck's daily quota; values below one become one.
func (s *Session) SetMaxPerDay(n int) error {
	s.meta.MaxPerDay = max(1, n)
	return s.saveMetadata()
}

// GradeCard applies a review outcome to the card with the given front,
// counts it against today's quota and persists both. The updated card is
// returned. If saving fails the new state is kept in memory and a later
// SaveCards can retry.
func (s *Session) GradeCard(ctx context.Context, front string, isAgain bool, today time.Time) (domain.Card, error) {
	var before, after domain.Card
	found := false
	for i, c := range s.cards {
		if c.Front != front {
			continue
		}
		if !found {
			before = c
			after = s.sched.GradeCard(c, isAgain, today)
			found = true
		}
		// Duplicate fronts share one state record.
		s.cards[i] = after
	}
	if !found {
		return domain.Card{}, fmt.Errorf("%w: %q", ErrCardNotFound, front)
	}

	s.meta.IncrementToday(today)
	if err := s.SaveCards(); err != nil {
		return after, err
	}
	if err := s.saveMetadata(); err != nil {
		return after, err
	}

	slog.Debug("Card graded", "front", front, "again", isAgain, "state", after.State, "interval_days", after.IntervalDays)
	s.record(ctx, before, after, isAgain, today)
	return after, nil
}

// Stats summarizes the deck as of today.
func (s *Session) Stats(today time.Time) domain.DeckStats {
	return domain.Summarize(s.cards, s.meta, len(s.DueCards(today)), today)
}

func (s *Session) saveMetadata() error {
	if err := s.store.SaveDeckMetadata(s.opts.User, s.opts.Deck, s.meta); err != nil {
		return fmt.Errorf("failed to save deck metadata: %w", err)
	}
	return nil
}

// record appends to review history. History is secondary to the JSON
// records, so a failure is logged and the grade stands.
func (s *Session) record(ctx context.Context, before, after domain.Card, isAgain bool, today time.Time) {
	if s.opts.History == nil {
		return
	}
	log := domain.ReviewLog{
		SessionID:    s.id,
		User:         s.opts.User,
		Deck:         s.opts.Deck,
		CardHash:     knol.Hash(after.Front),
		Front:        after.Front,
		Again:        isAgain,
		StateBefore:  before.State,
		StateAfter:   after.State,
		Stability:    after.Stability,
		Difficulty:   after.Difficulty,
		IntervalDays: after.IntervalDays,
		ReviewedOn:   domain.DateKey(today),
	}
	if err := s.opts.History.Record(ctx, log); err != nil {
		slog.Warn("Failed to record review history", "front", after.Front, "error", err)
	}
}
