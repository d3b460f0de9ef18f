// Package logging wires up the process-wide slog logger with tint for
// colored console output; cmd/root.go calls Setup at startup.
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

// Setup installs a slog default logger configured from cfg.Logging.
func Setup(cfg config.Logging) {
	level := levelFor(cfg.Level)

	if cfg.Format == config.LogFormatJSON {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(handler))
		return
	}

	out := os.Stdout
	if level >= slog.LevelWarn {
		out = os.Stderr
	}
	handler := tint.NewHandler(out, &tint.Options{Level: level})
	slog.SetDefault(slog.New(handler))
}

func levelFor(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	case config.LogLevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
