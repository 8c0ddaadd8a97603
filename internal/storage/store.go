package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/parser"
	"github.com/go-playground/validator/v10"
	"github.com/google/renameio/v2"
)

const (
	cardStateFile    = "cards_metadata.json"
	deckMetadataFile = "deck_metadata.json"
	settingsFile     = "settings.json"

	// A name must be usable as exactly one path segment.
	nameRule = `required,max=255,excludesall=/\,ne=.,ne=..`
)

// Store keeps per-user and per-deck records as JSON files under a base
// directory: <base>/<user>/settings.json and <base>/<user>/<deck>/*.json.
// Every write replaces the previous file atomically.
type Store struct {
	baseDir  string
	validate *validator.Validate
}

// NewStore returns a Store rooted at baseDir. Nothing is created until the
// first write.
func NewStore(baseDir string) *Store {
	return &Store{
		baseDir:  baseDir,
		validate: validator.New(),
	}
}

// BaseDir returns the directory the store writes under.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) userDir(user string) (string, error) {
	if err := s.validate.Var(user, nameRule); err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidUser, user)
	}
	return filepath.Join(s.baseDir, user), nil
}

func (s *Store) deckDir(user, deck string) (string, error) {
	dir, err := s.userDir(user)
	if err != nil {
		return "", err
	}
	if err := s.validate.Var(deck, nameRule); err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidDeck, deck)
	}
	return filepath.Join(dir, deck), nil
}

// ListUsers returns the names of all users with a directory, sorted.
func (s *Store) ListUsers() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list users: %w", ErrPersistence, err)
	}
	var users []string
	for _, e := range entries {
		if e.IsDir() {
			users = append(users, e.Name())
		}
	}
	sort.Strings(users)
	return users, nil
}

// UserExists reports whether user has a directory.
func (s *Store) UserExists(user string) (bool, error) {
	dir, err := s.userDir(user)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to stat user %s: %w", ErrPersistence, user, err)
	}
	return info.IsDir(), nil
}

// CreateUser makes the user's directory if it does not exist yet.
func (s *Store) CreateUser(user string) error {
	dir, err := s.userDir(user)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create user %s: %w", ErrPersistence, user, err)
	}
	return nil
}

// LoadCardState reads the per-card scheduling records of a deck, keyed by
// front. A missing file yields an empty map.
func (s *Store) LoadCardState(user, deck string) (map[string]domain.CardRecord, error) {
	dir, err := s.deckDir(user, deck)
	if err != nil {
		return nil, err
	}
	records := map[string]domain.CardRecord{}
	if _, err := readJSON(filepath.Join(dir, cardStateFile), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveCardState writes one record per distinct front; when a front occurs
// more than once the last card wins.
func (s *Store) SaveCardState(user, deck string, cards []domain.Card) error {
	dir, err := s.deckDir(user, deck)
	if err != nil {
		return err
	}
	records := make(map[string]domain.CardRecord, len(cards))
	for _, c := range cards {
		records[c.Front] = c.Record()
	}
	return writeJSON(filepath.Join(dir, cardStateFile), records)
}

// LoadDeckMetadata reads the deck's quota record, returning defaults when
// none was saved.
func (s *Store) LoadDeckMetadata(user, deck string) (domain.DeckMetadata, error) {
	dir, err := s.deckDir(user, deck)
	if err != nil {
		return domain.DeckMetadata{}, err
	}
	meta := domain.NewDeckMetadata()
	if _, err := readJSON(filepath.Join(dir, deckMetadataFile), &meta); err != nil {
		return domain.DeckMetadata{}, err
	}
	if meta.MaxPerDay <= 0 {
		meta.MaxPerDay = domain.DefaultMaxPerDay
	}
	if meta.DailyCounts == nil {
		meta.DailyCounts = map[string]int{}
	}
	for d, c := range meta.DailyCounts {
		if c < 0 {
			meta.DailyCounts[d] = 0
		}
	}
	return meta, nil
}

// SaveDeckMetadata replaces the deck's quota record.
func (s *Store) SaveDeckMetadata(user, deck string, meta domain.DeckMetadata) error {
	dir, err := s.deckDir(user, deck)
	if err != nil {
		return err
	}
	if meta.DailyCounts == nil {
		meta.DailyCounts = map[string]int{}
	}
	return writeJSON(filepath.Join(dir, deckMetadataFile), meta)
}

// LoadSettings reads a user's settings. found is false when none were
// saved. A settings file that cannot be decoded is replaced by defaults.
func (s *Store) LoadSettings(user string) (rec domain.SettingsRecord, found bool, err error) {
	dir, err := s.userDir(user)
	if err != nil {
		return domain.SettingsRecord{}, false, err
	}
	path := filepath.Join(dir, settingsFile)
	rec = domain.DefaultSettings()
	found, err = readJSON(path, &rec)
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			slog.Warn("Settings file is corrupted, using defaults", "user", user, "path", path, "error", err)
			return domain.DefaultSettings(), false, nil
		}
		return domain.SettingsRecord{}, false, err
	}
	return rec, found, nil
}

// SaveSettings replaces a user's settings record.
func (s *Store) SaveSettings(user string, rec domain.SettingsRecord) error {
	dir, err := s.userDir(user)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, settingsFile), rec)
}

// LoadCards reads the canonical item file at itemsPath and merges it with
// the deck's saved scheduling state.
func (s *Store) LoadCards(user, deck, itemsPath string) ([]domain.Card, error) {
	items, err := parser.ReadItemsFile(itemsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read items %s: %w", ErrPersistence, itemsPath, err)
	}
	saved, err := s.LoadCardState(user, deck)
	if err != nil {
		return nil, err
	}
	if orphans := Orphans(items, saved); len(orphans) > 0 {
		slog.Warn("Dropping saved state for items no longer in the deck",
			"user", user, "deck", deck, "count", len(orphans))
	}
	return Merge(items, saved), nil
}

// SaveSnapshot rewrites the canonical item file with the cards' current
// state and lastSeen.
func (s *Store) SaveSnapshot(itemsPath string, cards []domain.Card) error {
	var buf bytes.Buffer
	if err := parser.WriteItems(&buf, cards); err != nil {
		return fmt.Errorf("%w: failed to encode items: %w", ErrPersistence, err)
	}
	return writeFile(itemsPath, buf.Bytes())
}

// readJSON decodes the file at path into v. found is false, and v left
// untouched, when the file does not exist.
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to read %s: %w", ErrPersistence, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: failed to decode %s: %w", ErrPersistence, path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("%w: failed to encode %s: %w", ErrPersistence, path, err)
	}
	return writeFile(path, buf.Bytes())
}

// writeFile replaces path with data via a temporary file and a rename, so
// a failed write leaves the previous contents intact.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory for %s: %w", ErrPersistence, path, err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", ErrPersistence, path, err)
	}
	return nil
}
