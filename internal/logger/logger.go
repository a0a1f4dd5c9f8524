package logger

import (
	"log/slog"
	"os"
	"strings"
)

var L *slog.Logger = slog.Default()

// Init configures the global logger. Call once at startup, after config load.
// Logs go to stderr so they never interleave with prompt output on stdout.
func Init(levelStr string) {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	L = slog.New(handler)
	slog.SetDefault(L)
}
