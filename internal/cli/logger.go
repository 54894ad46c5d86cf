package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// setupLogger configures the global slog logger: JSON by default, or the
// colored console format for "text".
func setupLogger(w io.Writer, level, format string) {
	logLevel := parseLevel(level)

	var handler slog.Handler
	switch format {
	case "text":
		handler = log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			Level:           log.Level(logLevel),
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: logLevel,
		})
	}
	slog.SetDefault(slog.New(handler))
}

// parseLevel maps a level name to a slog level. Unknown names mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
