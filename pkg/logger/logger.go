// Package logger configures the process-wide slog handler and provides
// component- and stage-scoped loggers.
package logger

import (
	"log/slog"
	"os"
)

// Setup installs the default slog handler for the process. Format is "json"
// or "text"; level is one of debug, info, warn, error.
func Setup(level string, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithComponent returns a logger scoped to an infrastructure component.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// WithStage returns a logger scoped to a pipeline stage and its input queue.
func WithStage(stage, queue string) *slog.Logger {
	return slog.Default().With("stage", stage, "queue", queue)
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
