package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging settings.
type Config struct {
	// Level is the minimum level to emit: debug, info, warn, or error.
	Level string

	// Format selects the handler: "text" or "json" (default).
	Format string

	// Output selects the destination: "stderr" or "stdout" (default).
	Output string
}

// Logger wraps slog.Logger with monitorlib-specific defaults.
type Logger struct {
	*slog.Logger
}

// New creates a Logger with the specified configuration.
func New(cfg Config) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "monitorlib"),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	pipeLog := log.With("component", "pipeline")
//	pipeLog.Warn("flush failed") // includes component=pipeline
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default creates a logger for use before configuration is available.
// It writes JSON to stdout at info level.
func Default() *Logger {
	return New(Config{Level: "info", Format: "json", Output: "stdout"})
}

// Discard creates a logger that drops every record. Components treat a nil
// logger as Discard().
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}
