package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// History is the sqlite-backed log of graded reviews. It is a secondary
// record; the JSON files remain the source of truth for card state.
type History struct {
	conn *sqlx.DB
}

// OpenHistory opens the history database and ensures the schema exists.
func OpenHistory(dsn string) (*History, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open history database: %w", ErrPersistence, err)
	}
	// One writer, and an in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to apply schema: %w", ErrPersistence, err)
	}
	return &History{conn: db}, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.conn.Close()
}

// Record appends a review log. An empty ID is filled with a new UUID.
func (h *History) Record(ctx context.Context, log domain.ReviewLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	_, err := h.conn.NamedExecContext(ctx, `
		INSERT INTO review_logs (
			id, session_id, user_name, deck, card_hash, front, again,
			state_before, state_after, stability, difficulty, interval_days, reviewed_on
		) VALUES (
			:id, :session_id, :user_name, :deck, :card_hash, :front, :again,
			:state_before, :state_after, :stability, :difficulty, :interval_days, :reviewed_on
		)
	`, log)
	if err != nil {
		return fmt.Errorf("%w: failed to record review of %s: %w", ErrPersistence, log.CardHash, err)
	}
	return nil
}

// Recent returns up to limit logs of a deck, newest first.
func (h *History) Recent(ctx context.Context, user, deck string, limit int) ([]domain.ReviewLog, error) {
	var logs []domain.ReviewLog
	err := h.conn.SelectContext(ctx, &logs, `
		SELECT id, session_id, user_name, deck, card_hash, front, again,
			state_before, state_after, stability, difficulty, interval_days, reviewed_on
		FROM review_logs
		WHERE user_name = ? AND deck = ?
		ORDER BY reviewed_on DESC, rowid DESC
		LIMIT ?
	`, user, deck, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list reviews for %s/%s: %w", ErrPersistence, user, deck, err)
	}
	return logs, nil
}

// CardHistory returns every log of one card in a deck, oldest first.
func (h *History) CardHistory(ctx context.Context, user, deck, cardHash string) ([]domain.ReviewLog, error) {
	var logs []domain.ReviewLog
	err := h.conn.SelectContext(ctx, &logs, `
		SELECT id, session_id, user_name, deck, card_hash, front, again,
			state_before, state_after, stability, difficulty, interval_days, reviewed_on
		FROM review_logs
		WHERE user_name = ? AND deck = ? AND card_hash = ?
		ORDER BY reviewed_on, rowid
	`, user, deck, cardHash)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get history for card %s: %w", ErrPersistence, cardHash, err)
	}
	return logs, nil
}
