package actuator

import (
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
)

// consumerName labels the requested GPIO line in the kernel.
const consumerName = "chimp"

// BlinkSpec describes one blink pattern.
type BlinkSpec struct {
	OnDuration  time.Duration
	OffDuration time.Duration
	RepeatCount int
}

// BlinkFromConfig converts the configured pattern to a BlinkSpec.
func BlinkFromConfig(cfg config.BlinkConfig) BlinkSpec {
	return BlinkSpec{
		OnDuration:  time.Duration(cfg.OnMS) * time.Millisecond,
		OffDuration: time.Duration(cfg.OffMS) * time.Millisecond,
		RepeatCount: cfg.Repeat,
	}
}

// Driver controls the indicator light.
//
// Activate never blocks and never fails, so it is safe to call from broker
// callbacks.
type Driver interface {
	// Activate starts playing the pattern, replacing any pattern in progress.
	Activate(spec BlinkSpec)

	// Available reports whether a physical output is driven.
	Available() bool

	// Close stops blinking and releases the hardware.
	Close() error
}

// Logger is the logging surface the drivers need.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New resolves the driver variant once at startup.
//
// When the actuator is disabled (--no-gpio) or the GPIO line cannot be
// requested, the returned Driver only logs that shaking is not available.
func New(cfg config.ActuatorConfig, log Logger) Driver {
	if !cfg.Enabled {
		log.Info("GPIO disabled, indicator light not available")
		return Unavailable(log)
	}

	l, err := gpiocdev.RequestLine(cfg.Chip, cfg.Line,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(consumerName),
	)
	if err != nil {
		log.Warn("GPIO line request failed, indicator light not available",
			"chip", cfg.Chip,
			"line", cfg.Line,
			"error", err,
		)
		return Unavailable(log)
	}

	log.Info("indicator light ready", "chip", cfg.Chip, "line", cfg.Line)
	return newBlinker(l, log)
}

// unavailable is the Driver used when no hardware is present.
type unavailable struct {
	log Logger
}

// Unavailable returns a Driver that logs instead of touching hardware.
func Unavailable(log Logger) Driver {
	return unavailable{log: log}
}

func (u unavailable) Activate(BlinkSpec) {
	u.log.Info("Shaking not available")
}

func (unavailable) Available() bool { return false }

func (unavailable) Close() error { return nil }
