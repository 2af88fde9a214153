package log

import (
	"log/slog"
	"os"
	"strings"
)

const serviceName = "routepack"

// Setup installs the process-wide text logger. Every record carries the
// service attribute so routepack lines stay identifiable in shared streams.
func Setup(logLevel string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})

	slog.SetDefault(slog.New(handler).With("service", serviceName))
}

// ParseLevel maps a level name onto slog's levels, defaulting to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
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

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
