// Package coordinator runs the tick loop that joins input capture,
// configuration reloads and the bar field.
//
// Each tick drains queued input, applies at most one reload, advances the
// field by the elapsed time, applies the drained input and publishes a
// snapshot. The field is only ever touched by the goroutine calling Tick
// or Run; other goroutines read the published snapshot.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"keyoverlay/internal/bars"
	"keyoverlay/internal/config"
	"keyoverlay/internal/input"
	"keyoverlay/internal/logging"
	"keyoverlay/internal/metrics"
	"keyoverlay/internal/monitor"
	"keyoverlay/internal/notify"
)

// DefaultEventBuffer is the capacity of the channel between the input
// source and the tick loop.
const DefaultEventBuffer = 1024

const notifyTimeout = 2 * time.Second

var (
	// ErrCaptureStart wraps the input source's Start error.
	ErrCaptureStart = errors.New("coordinator: input capture failed to start")

	// ErrCaptureLost is returned by Run when the source stops on its own.
	ErrCaptureLost = errors.New("coordinator: input capture lost")

	// ErrExitRequested is returned by Run after the double-Escape gesture.
	ErrExitRequested = errors.New("coordinator: exit requested")
)

// frame is what the tick loop publishes for readers.
type frame struct {
	snapshot bars.Snapshot
	config   *config.Config

	tickedAt  time.Time
	reloadAt  time.Time
	reloadErr error
}

// Coordinator owns the bar field and drives it from input and reloads.
type Coordinator struct {
	src     input.Source
	events  chan input.Event
	reloads <-chan monitor.Outcome

	cfg      *config.Config
	field    *bars.Field
	lastTick time.Time
	now      func() time.Time

	tickRate  int
	fixedRate bool

	escapeWindow time.Duration
	lastEscape   time.Time
	escapeDown   bool
	focused      func() bool

	reloadAt  time.Time
	reloadErr error

	bufferSize int
	metrics    *metrics.Pipeline
	notifier   notify.Notifier
	logger     *slog.Logger

	current atomic.Pointer[frame]

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a Coordinator for cfg reading from src. A nil cfg uses
// config.Default().
func New(cfg *config.Config, src input.Source, opts ...Option) *Coordinator {
	if cfg == nil {
		cfg = config.Default()
	}

	c := &Coordinator{
		src:        src,
		cfg:        cfg,
		now:        time.Now,
		tickRate:   cfg.TickRate,
		bufferSize: DefaultEventBuffer,
		metrics:    metrics.NewPipeline(metrics.NewRegistry("keyoverlay", "")),
		notifier:   notify.Nop{},
		logger:     logging.Default().WithComponent("coordinator").Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tickRate <= 0 {
		c.tickRate = config.DefaultTickRate
	}

	c.events = make(chan input.Event, c.bufferSize)
	c.field = bars.FromConfig(cfg)
	c.lastTick = c.now()
	c.publish()
	return c
}

// Start starts the input source.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return fmt.Errorf("%w: coordinator already shut down", ErrCaptureStart)
	}
	if c.started {
		return nil
	}
	if err := c.src.Start(c.events); err != nil {
		return fmt.Errorf("%w: %w", ErrCaptureStart, err)
	}
	c.started = true
	c.lastTick = c.now()
	c.logger.Info("input capture started", "keys", len(c.cfg.Keys), "tick_rate", c.tickRate)
	return nil
}

// Tick advances the pipeline by one step. It must not be called
// concurrently with itself or Run. It returns ErrExitRequested when the
// double-Escape gesture completes during this tick.
func (c *Coordinator) Tick() error {
	start := time.Now()

	pending := c.drainEvents()
	c.drainReload()

	now := c.now()
	dt := float32(now.Sub(c.lastTick).Seconds())
	c.lastTick = now
	c.field.Update(dt)

	var exit bool
	for _, ev := range pending {
		c.metrics.RecordEvent(c.field.HandleEvent(ev))
		if c.escapePressed(ev, now) {
			exit = true
		}
	}

	snap := c.publish()
	c.metrics.RecordTick(time.Since(start), snap.TotalBars())

	if exit {
		return ErrExitRequested
	}
	return nil
}

// drainEvents takes whatever is queued now. Events arriving while draining
// wait for the next tick.
func (c *Coordinator) drainEvents() []input.Event {
	n := len(c.events)
	if n == 0 {
		return nil
	}
	pending := make([]input.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-c.events:
			pending = append(pending, ev)
		default:
			return pending
		}
	}
	return pending
}

func (c *Coordinator) drainReload() {
	if c.reloads == nil {
		return
	}

	var out monitor.Outcome
	select {
	case o, ok := <-c.reloads:
		if !ok {
			c.reloads = nil
			return
		}
		out = o
	default:
		return
	}

	c.metrics.RecordReload(out.Applied())
	c.reloadAt = out.At
	if c.reloadAt.IsZero() {
		c.reloadAt = time.Now()
	}
	c.reloadErr = out.Err
	if !out.Applied() {
		c.logger.Warn("keeping previous config", "error", out.Err)
		return
	}

	c.cfg = out.Config
	c.field = bars.FromConfig(out.Config)
	if !c.fixedRate && out.Config.TickRate > 0 {
		c.tickRate = out.Config.TickRate
	}
	for _, w := range out.Config.Warnings {
		c.logger.Warn("config warning", "warning", w)
	}
	c.logger.Info("config applied", "keys", len(out.Config.Keys), "bar_speed", out.Config.BarSpeed)
}

// escapePressed tracks the double-Escape gesture. Only presses made while
// the window has focus count, and a press without a release in between is
// ignored.
func (c *Coordinator) escapePressed(ev input.Event, now time.Time) bool {
	if c.escapeWindow <= 0 || ev.Key != input.KeyEscape {
		return false
	}
	if ev.Kind == input.Released {
		c.escapeDown = false
		return false
	}
	if ev.Kind != input.Pressed || c.escapeDown {
		return false
	}
	c.escapeDown = true
	if c.focused != nil && !c.focused() {
		c.lastEscape = time.Time{}
		return false
	}
	at := ev.Time
	if at.IsZero() {
		at = now
	}
	if !c.lastEscape.IsZero() && at.Sub(c.lastEscape) <= c.escapeWindow {
		c.lastEscape = time.Time{}
		return true
	}
	c.lastEscape = at
	return false
}

func (c *Coordinator) publish() bars.Snapshot {
	snap := c.field.Snapshot()
	c.current.Store(&frame{
		snapshot:  snap,
		config:    c.cfg,
		tickedAt:  time.Now(),
		reloadAt:  c.reloadAt,
		reloadErr: c.reloadErr,
	})
	return snap
}

// Snapshot returns the most recently published state. It is safe to call
// from any goroutine.
func (c *Coordinator) Snapshot() bars.Snapshot {
	return c.current.Load().snapshot
}

// Config returns the configuration the latest snapshot was built from.
func (c *Coordinator) Config() *config.Config {
	return c.current.Load().config
}

// Frame returns the latest snapshot together with the configuration it
// was built from, read from the same publish.
func (c *Coordinator) Frame() (*config.Config, bars.Snapshot) {
	f := c.current.Load()
	return f.config, f.snapshot
}

// LastTick returns the wall-clock time of the latest publish.
func (c *Coordinator) LastTick() time.Time {
	return c.current.Load().tickedAt
}

// LastReload reports when the latest reload outcome was consumed and the
// error it carried. Both are zero before the first reload.
func (c *Coordinator) LastReload() (time.Time, error) {
	f := c.current.Load()
	return f.reloadAt, f.reloadErr
}

// TickRate returns the current tick rate in Hz.
func (c *Coordinator) TickRate() int {
	return c.tickRate
}

// Metrics returns the pipeline metrics.
func (c *Coordinator) Metrics() *metrics.Pipeline {
	return c.metrics
}

func interval(hz int) time.Duration {
	return time.Second / time.Duration(hz)
}

// Run starts capture and ticks until ctx is done, capture is lost or an
// exit is requested. The source is stopped before Run returns. Cancelling
// ctx is a clean exit and returns nil.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	defer c.Shutdown()

	var lost <-chan struct{}
	term, _ := c.src.(input.Terminator)
	if term != nil {
		lost = term.Done()
	}

	rate := c.tickRate
	ticker := time.NewTicker(interval(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-lost:
			err := ErrCaptureLost
			if cause := term.Err(); cause != nil {
				err = fmt.Errorf("%w: %w", ErrCaptureLost, cause)
			}
			c.logger.Error("input capture stopped", "error", err)
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			if nerr := c.notifier.Notify(nctx, "keyoverlay: input capture lost", err.Error()); nerr != nil {
				c.logger.Debug("notification failed", "error", nerr)
			}
			cancel()
			return err

		case <-ticker.C:
			if err := c.Tick(); err != nil {
				c.logger.Info("exit requested")
				return err
			}
			if c.tickRate != rate {
				rate = c.tickRate
				ticker.Reset(interval(rate))
			}
		}
	}
}

// Shutdown stops the input source. Only the first call after Start does
// anything.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.stopped {
		return nil
	}
	c.stopped = true
	if err := c.src.Stop(); err != nil {
		c.logger.Warn("input source did not stop cleanly", "error", err)
		return err
	}
	return nil
}
