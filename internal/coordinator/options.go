package coordinator

import (
	"log/slog"
	"time"

	"keyoverlay/internal/metrics"
	"keyoverlay/internal/monitor"
	"keyoverlay/internal/notify"
)

// DefaultEscapeInterval is the window for the double-Escape exit gesture.
const DefaultEscapeInterval = 400 * time.Millisecond

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithReloads feeds configuration reload outcomes into the tick loop.
func WithReloads(ch <-chan monitor.Outcome) Option {
	return func(c *Coordinator) {
		c.reloads = ch
	}
}

// WithClock replaces time.Now for dt computation.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTickRate fixes the tick rate in Hz, ignoring the config's tickRate
// across reloads.
func WithTickRate(hz int) Option {
	return func(c *Coordinator) {
		if hz > 0 {
			c.tickRate = hz
			c.fixedRate = true
		}
	}
}

// WithMetrics records pipeline metrics into reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Coordinator) {
		if reg != nil {
			c.metrics = metrics.NewPipeline(reg)
		}
	}
}

// WithNotifier reports capture loss on the desktop.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDoubleEscapeExit ends Run with ErrExitRequested when Escape is
// pressed twice within interval. Zero uses DefaultEscapeInterval.
func WithDoubleEscapeExit(interval time.Duration) Option {
	return func(c *Coordinator) {
		if interval <= 0 {
			interval = DefaultEscapeInterval
		}
		c.escapeWindow = interval
	}
}

// WithFocus gates the double-Escape gesture on focused, which is called
// from the tick goroutine. Without it every press counts.
func WithFocus(focused func() bool) Option {
	return func(c *Coordinator) {
		c.focused = focused
	}
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}
