// Package logging builds the *slog.Logger push threads through its
// constructors (internal/agentloop.AgentLoop, internal/session.Store,
// internal/provider.AnthropicProvider), grounded on the teacher's
// internal/observability.NewLogger (haasonsaas-nexus) level/format handling,
// but without that package's wrapper type and redaction machinery — push has
// no HTTP middleware or multi-channel PII surface to protect, so a bare
// *slog.Logger (the way the teacher threads RuntimeOptions.Logger through
// internal/agent) is the right level of ceremony here.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler format and minimum level. Its fields mirror
// internal/config.LoggingConfig so callers can pass that struct directly.
type Config struct {
	Level  string
	Format string
}

// New builds a *slog.Logger writing to os.Stderr (so stdout stays reserved
// for assistant text and --json output). An empty Level defaults to "info";
// an empty or unrecognized Format defaults to "text".
func New(cfg Config) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter is New with an explicit writer, split out for tests.
func NewWithWriter(w *os.File, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromString(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForMode picks the handler format the CLI surface dictates (§6): JSON in
// --json / headless mode, text for interactive use.
func ForMode(cfg Config, jsonMode bool) *slog.Logger {
	if jsonMode {
		cfg.Format = "json"
	} else if cfg.Format == "" {
		cfg.Format = "text"
	}
	return New(cfg)
}
