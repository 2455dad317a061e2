// Package observability provides the runtime's structured logging, metrics,
// and tracing, built on slog, prometheus, and OpenTelemetry respectively.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
)

// LogConfig configures Logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Format is "json" or "text".
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
	// AddSource includes file:line in records.
	AddSource bool
	// RedactPatterns are additional regexes whose matches are replaced
	// with "[REDACTED]" before a record is written. A default set
	// covering bearer tokens and long-lived HA tokens is always applied.
	RedactPatterns []string
}

type ctxKey string

const turnIDKey ctxKey = "turn_id"

// WithTurnID attaches a turn/request id to ctx for log correlation.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey, id)
}

func turnIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(turnIDKey).(string); ok {
		return v
	}
	return ""
}

var defaultRedactions = []string{
	`(?i)(bearer\s+)[a-z0-9._-]{10,}`,
	`(?i)(access_token"?\s*[:=]\s*"?)[a-z0-9._-]{10,}`,
	`(?i)(api[_-]?key"?\s*[:=]\s*"?)[a-z0-9._-]{10,}`,
}

// Logger wraps slog with redaction and turn-id correlation.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// NewLogger builds a Logger from cfg.
func NewLogger(cfg LogConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	patterns := append([]string{}, defaultRedactions...)
	patterns = append(patterns, cfg.RedactPatterns...)
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			res = append(res, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: res}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) redact(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "$1[REDACTED]")
	}
	return s
}

func (l *Logger) attrs(ctx context.Context, args []any) []any {
	out := make([]any, 0, len(args)+2)
	if id := turnIDFrom(ctx); id != "" {
		out = append(out, "turn_id", id)
	}
	for i := 0; i < len(args); i++ {
		if s, ok := args[i].(string); ok {
			args[i] = l.redact(s)
		}
	}
	out = append(out, args...)
	return out
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.logger.Debug(l.redact(msg), l.attrs(ctx, args)...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.Info(l.redact(msg), l.attrs(ctx, args)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.Warn(l.redact(msg), l.attrs(ctx, args)...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.Error(l.redact(msg), l.attrs(ctx, args)...)
}

// Slog returns the underlying *slog.Logger for callers that need it
// directly (e.g. to pass to a library expecting one).
func (l *Logger) Slog() *slog.Logger { return l.logger }
