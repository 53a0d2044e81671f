package slogobs

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug and carries wire-level detail such as
// individual stream deltas. It is filtered out unless explicitly enabled.
const LevelTrace = slog.LevelDebug - 4

// Option configures the observer built by [New].
type Option func(*config)

type config struct {
	level  slog.Level
	json   bool
	output io.Writer

	// logger, when set, is used as-is and the other options are ignored.
	logger *slog.Logger
}

// WithLevel sets the minimum level emitted.
func WithLevel(level slog.Level) Option {
	return func(c *config) { c.level = level }
}

// WithJSON switches output from text records to one JSON object per line.
func WithJSON() Option {
	return func(c *config) { c.json = true }
}

// WithOutput redirects the records; the default is stdout.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.output = w }
}

// WithLogger bypasses handler construction and routes everything through an
// existing slog.Logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func defaultConfig() config {
	return config{
		level:  levelFromEnv(),
		json:   strings.EqualFold(os.Getenv("BRIDGE_LOG_FORMAT"), "json"),
		output: os.Stdout,
	}
}

// ParseLevel maps a level name onto slog.Level. Unknown names fall back to
// INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelFromEnv() slog.Level {
	if name := os.Getenv("BRIDGE_LOG_LEVEL"); name != "" {
		return ParseLevel(name)
	}
	return slog.LevelInfo
}
