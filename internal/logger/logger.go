package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

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

func Setup(level string) {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.TimeOnly,
	})
	slog.SetDefault(slog.New(handler))
}

// SetupWithActivityLog mirrors every record into an append-only activity log.
// Colour is disabled so the file stays greppable. The returned closer releases the file.
func SetupWithActivityLog(level, path string) (io.Closer, error) {
	if path == "" {
		Setup(level)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create activity log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}

	handler := tint.NewHandler(io.MultiWriter(os.Stderr, f), &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.DateTime,
		NoColor:    true,
	})
	slog.SetDefault(slog.New(handler))
	return f, nil
}
