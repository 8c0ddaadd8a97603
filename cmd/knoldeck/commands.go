package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/knoldeck/internal/config"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/session"
	"github.com/conorfennell/knoldeck/internal/settings"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/conorfennell/knoldeck/internal/sync"
)

const defaultHistoryLimit = 20

type app struct {
	cfg   *config.Config
	store *storage.Store
	in    *bufio.Reader
	out   io.Writer
	today time.Time
}

func newApp(cfg *config.Config, store *storage.Store, in io.Reader, out io.Writer, today time.Time) *app {
	return &app{cfg: cfg, store: store, in: bufio.NewReader(in), out: out, today: today}
}

// openSession opens the configured user's deck, creating the user on first
// use. The returned func closes review history.
func (a *app) openSession() (*session.Session, *settings.UserSettings, func(), error) {
	noop := func() {}
	if err := a.ensureUser(); err != nil {
		return nil, nil, noop, err
	}
	us, err := settings.Load(a.store, a.cfg.User)
	if err != nil {
		return nil, nil, noop, err
	}

	opts := session.Options{
		User:          a.cfg.User,
		Deck:          a.cfg.Deck,
		ItemsPath:     a.cfg.DeckFile,
		WriteSnapshot: a.cfg.Snapshot,
	}
	closer := noop
	if a.cfg.HistoryEnabled() {
		history, err := a.openHistory()
		if err != nil {
			return nil, nil, noop, err
		}
		opts.History = history
		closer = func() {
			if err := history.Close(); err != nil {
				slog.Warn("Failed to close history database", "error", err)
			}
		}
	}

	s, err := session.Open(a.store, us, opts)
	if err != nil {
		closer()
		return nil, nil, noop, err
	}
	return s, us, closer, nil
}

func (a *app) openHistory() (*storage.History, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.HistoryDB), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return storage.OpenHistory(a.cfg.HistoryDB)
}

func (a *app) ensureUser() error {
	if a.cfg.User == "" {
		return errors.New("no user given, use --user or KNOLDECK_USER")
	}
	exists, err := a.store.UserExists(a.cfg.User)
	if err != nil {
		return err
	}
	if !exists {
		if err := a.store.CreateUser(a.cfg.User); err != nil {
			return err
		}
		slog.Info("Created user", "user", a.cfg.User)
	}
	return nil
}

func (a *app) review(ctx context.Context) error {
	s, _, closeSession, err := a.openSession()
	defer closeSession()
	if err != nil {
		return err
	}

	queue, err := s.Queue(a.today)
	if errors.Is(err, session.ErrQuotaExceeded) {
		meta := s.Metadata()
		fmt.Fprintf(a.out, "Daily limit reached (%d/%d). Continue anyway? [y/N] ", meta.TodayCount(a.today), meta.MaxPerDay)
		answer, _ := a.readLine()
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			return nil
		}
		if err := s.AllowOverLimit(); err != nil {
			return err
		}
		queue, err = s.Queue(a.today)
	}
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		fmt.Fprintln(a.out, "Nothing due today.")
		return nil
	}

	reviewed := 0
	for i, card := range queue {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(a.out, "\n[%d/%d] %s\n", i+1, len(queue), card.Front)
		fmt.Fprint(a.out, "Press Enter to show the answer...")
		if _, err := a.readLine(); err != nil {
			break
		}
		fmt.Fprintln(a.out, card.Back)

		isAgain, ok := a.askGrade()
		if !ok {
			break
		}
		graded, err := s.GradeCard(ctx, card.Front, isAgain, a.today)
		if err != nil {
			return err
		}
		reviewed++
		fmt.Fprintf(a.out, "Next review in %d day(s).\n", graded.IntervalDays)
	}

	meta := s.Metadata()
	fmt.Fprintf(a.out, "\nReviewed %d card(s). Today: %d/%d.\n", reviewed, meta.TodayCount(a.today), meta.MaxPerDay)
	return nil
}

// askGrade reads a/g until it gets one. ok is false on q or end of input.
func (a *app) askGrade() (isAgain, ok bool) {
	for {
		fmt.Fprint(a.out, "(a)gain, (g)ood or (q)uit: ")
		line, err := a.readLine()
		switch strings.ToLower(line) {
		case "a", "again":
			return true, true
		case "g", "good":
			return false, true
		case "q", "quit":
			return false, false
		}
		if err != nil {
			return false, false
		}
	}
}

// readLine returns the next input line without its line ending. A final
// line without a newline is returned before io.EOF.
func (a *app) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return strings.TrimSpace(line), err
}

func (a *app) due() error {
	s, _, closeSession, err := a.openSession()
	defer closeSession()
	if err != nil {
		return err
	}
	due := s.DueCards(a.today)
	meta := s.Metadata()
	fmt.Fprintf(a.out, "%d card(s) due, %d left in today's quota.\n", len(due), meta.Remaining(a.today))
	for _, c := range due {
		fmt.Fprintf(a.out, "  %-12s %s\n", c.State, c.Front)
	}
	return nil
}

func (a *app) stats() error {
	s, _, closeSession, err := a.openSession()
	defer closeSession()
	if err != nil {
		return err
	}
	printStats(a.out, a.cfg.Deck, s.Stats(a.today))
	return nil
}

func printStats(w io.Writer, deck string, st domain.DeckStats) {
	fmt.Fprintf(w, "Deck %s: %d card(s), %d due\n", deck, st.Total, st.Due)
	for state, n := range st.ByState {
		fmt.Fprintf(w, "  %-12s %d\n", domain.State(state), n)
	}
	fmt.Fprintf(w, "Average difficulty: %.2f\n", st.AvgDifficulty)
	fmt.Fprintf(w, "Average stability:  %.2f days\n", st.AvgStability)
	fmt.Fprintf(w, "Total lapses:       %d\n", st.TotalLapses)
	fmt.Fprintf(w, "Today:              %d/%d\n", st.TodayCount, st.MaxPerDay)
	if len(st.Recent) > 0 {
		fmt.Fprintln(w, "Recent activity:")
		for _, d := range st.Recent {
			fmt.Fprintf(w, "  %s  %d\n", d.Date, d.Count)
		}
	}
}

func (a *app) settings(args []string) error {
	s, us, closeSession, err := a.openSession()
	defer closeSession()
	if err != nil {
		return err
	}

	if len(args) > 0 {
		if len(args) != 2 {
			return errors.New("usage: settings <minutes|retention|intensity|max-per-day> <value>")
		}
		if err := applySetting(s, us, args[0], args[1]); err != nil {
			return err
		}
		s.Reconfigure()
	}

	p := s.Params()
	mode := "from minutes per day"
	if _, manual := us.ManualIntensity(); manual {
		mode = "manual"
	}
	fmt.Fprintf(a.out, "Minutes per day:   %d\n", us.MinutesPerDay())
	fmt.Fprintf(a.out, "Request retention: %.2f\n", us.RequestRetention())
	fmt.Fprintf(a.out, "Intensity:         %.2f (%s)\n", us.EffectiveIntensity(), mode)
	fmt.Fprintf(a.out, "Stability growth:  %.3f\n", p.StabilityGrowth)
	fmt.Fprintf(a.out, "Difficulty adjust: %.3f\n", p.DiffAdjust)
	fmt.Fprintf(a.out, "Max per day:       %d\n", s.Metadata().MaxPerDay)
	return nil
}

func applySetting(s *session.Session, us *settings.UserSettings, key, value string) error {
	switch key {
	case "minutes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid minutes %q: %w", value, err)
		}
		return us.SetMinutesPerDay(n)
	case "retention":
		r, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid retention %q: %w", value, err)
		}
		return us.SetRetention(r)
	case "intensity":
		if value == "auto" {
			return us.SetManualIntensity(nil)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid intensity %q: %w", value, err)
		}
		return us.SetManualIntensity(&v)
	case "max-per-day":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max-per-day %q: %w", value, err)
		}
		return s.SetMaxPerDay(n)
	}
	return fmt.Errorf("unknown setting %q", key)
}

func (a *app) users(args []string) error {
	if len(args) == 2 && args[0] == "add" {
		if err := a.store.CreateUser(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created user %s\n", args[1])
		return nil
	}
	if len(args) != 0 {
		return errors.New("usage: users [add <name>]")
	}
	users, err := a.store.ListUsers()
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintln(a.out, u)
	}
	return nil
}

func (a *app) importItems(paths []string) error {
	if len(paths) == 0 {
		return errors.New("usage: import <path>...")
	}
	res, err := sync.Import(a.store, a.cfg.DeckFile, paths...)
	if err != nil {
		return err
	}
	a.printImport(res)
	return nil
}

func (a *app) pull(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: pull <git-url>")
	}
	localPath, err := sync.Pull(ctx, args[0], a.cfg.ReposDir)
	if err != nil {
		return err
	}
	res, err := sync.Import(a.store, a.cfg.DeckFile, localPath)
	if err != nil {
		return err
	}
	a.printImport(res)
	return nil
}

func (a *app) printImport(res sync.Result) {
	fmt.Fprintf(a.out, "Added %d new item(s) to %s, %d already present.\n", res.Added, a.cfg.DeckFile, res.Skipped)
	for _, err := range res.Errors {
		fmt.Fprintf(a.out, "  error: %v\n", err)
	}
}

func (a *app) history(ctx context.Context, args []string) error {
	if !a.cfg.HistoryEnabled() {
		return errors.New("review history is disabled")
	}
	if a.cfg.User == "" {
		return errors.New("no user given, use --user or KNOLDECK_USER")
	}
	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	h, err := a.openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	logs, err := h.Recent(ctx, a.cfg.User, a.cfg.Deck, limit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Fprintln(a.out, "No reviews recorded.")
		return nil
	}
	for _, l := range logs {
		outcome := "good"
		if l.Again {
			outcome = "again"
		}
		fmt.Fprintf(a.out, "%s  %-5s  %s -> %s  %3dd  %s\n", l.ReviewedOn, outcome, l.StateBefore, l.StateAfter, l.IntervalDays, l.Front)
	}
	return nil
}
