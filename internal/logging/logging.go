// Package logging builds the single *slog.Logger each component
// receives explicitly — never a package-level global (spec.md §9).
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fc2-live-dl/fc2-live-dl-go/internal/config"
)

// TraceKey tags log records emitted through Trace at "trace"
// granularity, since slog has no level below Debug.
const TraceKey = "trace"

// New builds a logger for the given level/format. LogSilent installs a
// handler that discards everything.
func New(level config.LogLevel, format string) *slog.Logger {
	if level == config.LogSilent {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug, config.LogTrace:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Trace logs at Debug level tagged trace=true, used for the
// high-volume frame-level detail that "trace" adds over "debug".
func Trace(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.DebugContext(ctx, msg, append(args, slog.Bool(TraceKey, true))...)
}
