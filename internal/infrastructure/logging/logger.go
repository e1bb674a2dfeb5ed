package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
)

// serviceName is attached to every record.
const serviceName = "chimp"

// Logger is the relay's structured logger. It embeds *slog.Logger, so it
// satisfies the small Info/Warn/Error logger interfaces declared by the
// mqtt, actuator, credentials, speech and history packages.
//
// Safe for concurrent use, including from broker callback goroutines.
type Logger struct {
	*slog.Logger
}

// New builds the logger described by the logging section of the config,
// writing to stdout unless cfg.Output is "stderr".
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(out, cfg, version)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
// Tests use it to capture the lines a run produces.
func NewWithWriter(out io.Writer, cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(out, cfg.Format, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}).WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// newHandler picks JSON for "json" and the console-friendly text format
// for anything else.
func newHandler(out io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// parseLevel maps debug/warn/warning/error to their slog levels.
// Unknown strings fall back to info.
func parseLevel(level string) slog.Level {
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

// With returns a child logger whose records carry args in addition to the
// parent's attributes. The parent is unchanged.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags records with the subsystem that wrote them,
// for example log.Component("actuator").
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}
