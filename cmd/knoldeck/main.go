package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/knoldeck/internal/config"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/spf13/pflag"
)

const usage = `Usage: knoldeck [flags] <command> [args]

Commands:
  review                      review due cards
  due                         list due cards
  stats                       show deck statistics
  settings [key value]        show or change settings
                              (minutes, retention, intensity, max-per-day)
  users [add <name>]          list or create users
  import <path>...            add items from .md, .xlsx or .csv files
  pull <git-url>              clone or update a deck repository and import it
  history [limit]             show recent reviews

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, time.Now()); err != nil {
		slog.Error("knoldeck failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, now time.Time) error {
	flags := config.NewFlagSet("knoldeck")
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	cfg, err := config.Load(flags, args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("no command given")
	}

	a := newApp(cfg, storage.NewStore(cfg.UsersDir()), stdin, stdout, now)
	command, rest := flags.Arg(0), flags.Args()[1:]
	slog.Debug("Running command", "command", command, "user", cfg.User, "deck", cfg.Deck)

	switch command {
	case "review":
		return a.review(ctx)
	case "due":
		return a.due()
	case "stats":
		return a.stats()
	case "settings":
		return a.settings(rest)
	case "users":
		return a.users(rest)
	case "import":
		return a.importItems(rest)
	case "pull":
		return a.pull(ctx, rest)
	case "history":
		return a.history(ctx, rest)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
