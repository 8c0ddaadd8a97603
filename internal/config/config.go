package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks the environment variables that configure knoldeck.
const EnvPrefix = "KNOLDECK_"

// DisabledHistory turns review history off when given as history_db.
const DisabledHistory = "none"

// Config is the resolved application configuration.
type Config struct {
	DataDir   string `koanf:"data_dir" validate:"required"`
	User      string `koanf:"user" validate:"omitempty,max=255,excludesall=/\\"`
	Deck      string `koanf:"deck" validate:"required,max=255,excludesall=/\\"`
	DeckFile  string `koanf:"deck_file"`
	HistoryDB string `koanf:"history_db"`
	ReposDir  string `koanf:"repos_dir"`
	// Snapshot mirrors card state back into the deck file after each review.
	Snapshot bool `koanf:"snapshot"`
	Log      Log  `koanf:"log"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// UsersDir is where per-user records live.
func (c *Config) UsersDir() string {
	return filepath.Join(c.DataDir, "users")
}

// HistoryEnabled reports whether reviews are logged to sqlite.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != ""
}

// NewFlagSet defines the global flags. Flag defaults are the lowest
// configuration layer.
func NewFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String("config", "", "Path to a YAML config file")
	flags.String("env-file", ".env", "Path to a .env file, ignored if missing")
	flags.String("data-dir", "data", "Directory holding user records and history")
	flags.StringP("user", "u", "", "User name")
	flags.StringP("deck", "d", "hiragana", "Deck name")
	flags.String("deck-file", "", "Canonical item CSV (default <deck>.csv)")
	flags.String("history-db", "", "Review history database (default <data-dir>/history.db, \"none\" disables)")
	flags.String("repos-dir", "", "Where pulled deck repositories go (default <data-dir>/repos)")
	flags.Bool("snapshot", true, "Write card state back into the deck file")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	return flags
}

// Load parses args into flags and resolves the configuration. Layers, lowest
// first: flag defaults, YAML file, .env file, KNOLDECK_ environment
// variables, flags given on the command line.
func Load(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	k := koanf.New(".")

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if path, _ := flags.GetString("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Passing k keeps defaults of unset flags from overriding the layers above.
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.resolve()

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// resolve fills the paths that default relative to other keys.
func (c *Config) resolve() {
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.DeckFile == "" {
		c.DeckFile = c.Deck + ".csv"
	}
	switch c.HistoryDB {
	case "":
		c.HistoryDB = filepath.Join(c.DataDir, "history.db")
	case DisabledHistory:
		c.HistoryDB = ""
	}
	if c.ReposDir == "" {
		c.ReposDir = filepath.Join(c.DataDir, "repos")
	}
}

// envKey maps KNOLDECK_LOG_LEVEL to log.level and KNOLDECK_DATA_DIR to data_dir.
func envKey(s string) string {
	return nestLog(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)))
}

// flagKey maps --log-level to log.level and --data-dir to data_dir.
func flagKey(flags *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		return nestLog(strings.ReplaceAll(f.Name, "-", "_")), posflag.FlagVal(flags, f)
	}
}

func nestLog(key string) string {
	if rest, ok := strings.CutPrefix(key, "log_"); ok {
		return "log." + rest
	}
	return key
}
