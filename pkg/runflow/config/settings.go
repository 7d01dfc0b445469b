package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Condition languages accepted by Settings.ConditionLanguage.
const (
	ConditionNative = "native"
	ConditionCEL    = "cel"
)

// Ledger backends accepted by Settings.Store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Settings holds the engine configuration read from the "engine" section
// of a config file.
type Settings struct {
	MaxSteps          int
	StepPause         time.Duration
	PoolSize          int
	ConditionLanguage string
	TruncateStatus    bool

	Store      string
	SQLitePath string

	LogLevel  string
	LogFormat string
	Metrics   bool
	Tracing   bool
}

// Defaults returns the settings used when no configuration is supplied.
func Defaults() Settings {
	return Settings{
		MaxSteps:          1000,
		StepPause:         10 * time.Millisecond,
		PoolSize:          64,
		ConditionLanguage: ConditionNative,
		Store:             StoreMemory,
		SQLitePath:        "runflow.db",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// FromConfig reads Settings from cfg. Keys may live at the top level or
// under an "engine" section; the section wins when both are present.
func FromConfig(cfg Config) (Settings, error) {
	if cfg.Has("engine") {
		cfg = cfg.Section("engine")
	}
	d := Defaults()
	s := Settings{
		MaxSteps:          cfg.Int("max_steps", d.MaxSteps),
		StepPause:         cfg.Duration("step_pause", d.StepPause),
		PoolSize:          cfg.Int("pool_size", d.PoolSize),
		ConditionLanguage: strings.ToLower(cfg.String("condition_language", d.ConditionLanguage)),
		TruncateStatus:    cfg.Bool("truncate_status", d.TruncateStatus),
		Store:             strings.ToLower(cfg.String("store", d.Store)),
		SQLitePath:        cfg.String("sqlite_path", d.SQLitePath),
		LogLevel:          strings.ToLower(cfg.String("log_level", d.LogLevel)),
		LogFormat:         strings.ToLower(cfg.String("log_format", d.LogFormat)),
		Metrics:           cfg.Bool("metrics", d.Metrics),
		Tracing:           cfg.Bool("tracing", d.Tracing),
	}
	return s, s.Validate()
}

// Load reads Settings from a YAML or JSON file. With an empty path it reads
// the file named by $RUNFLOW_CONFIG, or returns Defaults if that is unset.
func Load(path string) (Settings, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Defaults(), nil
	}
	cfg, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	return FromConfig(cfg)
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max_steps must be positive, got %d", s.MaxSteps))
	}
	if s.StepPause < 0 {
		errs = append(errs, fmt.Errorf("step_pause must not be negative, got %s", s.StepPause))
	}
	if s.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("pool_size must be positive, got %d", s.PoolSize))
	}
	switch s.ConditionLanguage {
	case ConditionNative, ConditionCEL:
	default:
		errs = append(errs, fmt.Errorf("unknown condition_language %q", s.ConditionLanguage))
	}
	switch s.Store {
	case StoreMemory:
	case StoreSQLite:
		if s.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", s.Store))
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", s.LogFormat))
	}
	return errors.Join(errs...)
}

// Logger builds a slog.Logger writing to stderr at the configured level
// and format.
func (s Settings) Logger() *slog.Logger {
	level, err := parseLevel(s.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
	return level, nil
}
