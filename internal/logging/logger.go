package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const loggerContextKey contextKey = "logger"

// secretPatterns defines regex patterns for fields that should be redacted.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i).*_TOKEN$`),
	regexp.MustCompile(`(?i).*_SECRET$`),
	regexp.MustCompile(`(?i).*PASSWORD.*`),
	regexp.MustCompile(`(?i)^authorization$`),
}

// ParseLevel maps "debug", "info", "warn" or "error" (case-insensitive) to a
// slog level. Anything else is info.
func ParseLevel(level string) slog.Level {
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

// New creates a new JSON logger on stderr with the specified level.
// Stdout is left to record and event output.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a new JSON logger with a custom writer.
// This is useful for testing or custom output destinations.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(NewHandler(w, "json", level))
}

// NewHandler builds the handler for a format: "json" (default), "text" or
// "pretty". Pretty output is colored only when w is a terminal.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	logLevel := ParseLevel(level)

	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel, ReplaceAttr: redactSecrets})
	case "pretty":
		return tint.NewHandler(w, &tint.Options{
			Level:       logLevel,
			TimeFormat:  time.Kitchen,
			NoColor:     !isTerminal(w),
			ReplaceAttr: redactSecrets,
		})
	default:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel, ReplaceAttr: redactSecrets})
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// redactSecrets is a ReplaceAttr function that redacts sensitive fields.
func redactSecrets(groups []string, a slog.Attr) slog.Attr {
	// Check if the attribute key matches any secret pattern
	for _, pattern := range secretPatterns {
		if pattern.MatchString(a.Key) {
			return slog.Attr{
				Key:   a.Key,
				Value: slog.StringValue("***REDACTED***"),
			}
		}
	}
	return a
}

// WithContext attaches a logger to a context.
// This allows the logger to be passed through call chains via context.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext retrieves a logger from the context.
// If no logger is found, it returns a default logger at info level.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	// Return default logger if none is found in context
	return New("info")
}

// WithFields creates a new logger with additional fields.
// This is useful for adding common fields like invocation_id, record_id, etc.
func WithFields(logger *slog.Logger, fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return logger.With(args...)
}

// NewFromConfig creates a logger based on configuration settings.
// Supports format (json/text/pretty), level (debug/info/warn/error), and
// output ("stderr", "stdout", "discard" or a file path). The returned closer
// releases an opened log file and is a no-op otherwise.
func NewFromConfig(format, level, output string) (*slog.Logger, io.Closer, error) {
	var writer io.Writer
	var closer io.Closer = nopCloser{}

	switch output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	case "discard", "/dev/null":
		writer = io.Discard
	default:
		// Open file for writing
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", output, err)
		}
		writer = f
		closer = f
	}

	return slog.New(NewHandler(writer, format, level)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
