package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// NewLogHandler builds a slog handler writing to w.
//
// Formats: "text" uses tint's coloured console handler, "plain" the stdlib
// text handler, "json" the stdlib JSON handler.
func NewLogHandler(w io.Writer, level slog.Level, format string, noColor bool) (slog.Handler, error) {
	switch format {
	case "text", "":
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    noColor,
		}), nil
	case "plain":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

// ErrAttr returns a slog attribute for an error.
func ErrAttr(err error) slog.Attr {
	return tint.Err(err)
}
