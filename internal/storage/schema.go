package storage

const schema = `
-- The 'review_logs' table is an append-only record of every graded review.
CREATE TABLE IF NOT EXISTS review_logs (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_name TEXT NOT NULL,
    deck TEXT NOT NULL,
    card_hash TEXT NOT NULL,
    front TEXT NOT NULL,
    again INTEGER NOT NULL,
    state_before INTEGER NOT NULL,
    state_after INTEGER NOT NULL,
    stability REAL NOT NULL,
    difficulty REAL NOT NULL,
    interval_days INTEGER NOT NULL,
    reviewed_on TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_logs_user_deck ON review_logs (user_name, deck, reviewed_on);
CREATE INDEX IF NOT EXISTS idx_review_logs_card ON review_logs (card_hash);
`
