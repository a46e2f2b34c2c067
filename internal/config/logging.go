package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// redactedKeys are attribute keys whose values never reach a log sink.
var redactedKeys = []string{"api_key", "password", "pass", "token_secret"}

// SetupLogger creates the process logger for one binary: text to stderr,
// plus JSON to cfg.LogFile when it is set. Every record carries the
// component name. Returns the logger and a cleanup function to close the file.
func SetupLogger(cfg Config, component string) (*slog.Logger, func() error) {
	if cfg.LogFile == "" {
		return slog.New(handlerFor(os.Stderr, cfg.LogLevel, false)).With("component", component), func() error { return nil }
	}

	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(handlerFor(os.Stderr, cfg.LogLevel, false)).With("component", component)
		logger.Error("failed to open log file, using stderr only", "error", err, "file", cfg.LogFile)
		return logger, func() error { return nil }
	}

	logger := SetupLoggerWithWriters(os.Stderr, file, cfg.LogLevel).With("component", component)
	return logger, file.Close
}

// SetupLoggerWithWriters fans out to a text handler on stderr and a JSON
// handler on file.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		handlerFor(stderr, level, false),
		handlerFor(file, level, true),
	))
}

func handlerFor(w io.Writer, level slog.Level, json bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, k := range redactedKeys {
		if key == k {
			return slog.String(a.Key, "[redacted]")
		}
	}
	return a
}
