// Package monitor watches the configuration file and reloads it when it
// changes on disk.
//
// The parent directory is watched rather than the file itself so editors
// that save by writing a temporary file and renaming it over the original
// are still seen. Bursts of events are coalesced with a debounce timer;
// each reload produces one Outcome.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"keyoverlay/internal/config"
	"keyoverlay/internal/logging"
	"keyoverlay/internal/notify"
)

// DefaultDebounce is how long the file must be quiet before a reload.
const DefaultDebounce = 150 * time.Millisecond

// notifyTimeout bounds a single desktop notification.
const notifyTimeout = 2 * time.Second

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("monitor: already started")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("monitor: stopped")
)

// LoadFunc reads and validates the configuration at path.
type LoadFunc func(path string) (*config.Config, error)

// Outcome is the result of one reload attempt.
type Outcome struct {
	// Config is the newly loaded configuration. Nil when Err is set.
	Config *config.Config
	// Err is why the file was rejected.
	Err error
	At  time.Time
}

// Applied reports whether the outcome carries a usable configuration.
func (o Outcome) Applied() bool {
	return o.Err == nil && o.Config != nil
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDebounce sets the quiet period before a reload. Non-positive values
// keep the default.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithLoader replaces config.Load.
func WithLoader(fn LoadFunc) Option {
	return func(m *Monitor) {
		if fn != nil {
			m.load = fn
		}
	}
}

// WithNotifier sends a desktop notification for every rejected reload.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Monitor) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// Monitor reloads one configuration file on change.
type Monitor struct {
	path string
	dir  string
	name string

	debounce time.Duration
	load     LoadFunc
	notifier notify.Notifier
	logger   *slog.Logger

	fsWatcher *fsnotify.Watcher
	outcomes  chan Outcome
	trigger   chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopOnce sync.Once
}

// New creates a Monitor for path, which must exist.
func New(path string, opts ...Option) (*Monitor, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", absPath)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	m := &Monitor{
		path:      absPath,
		dir:       filepath.Dir(absPath),
		name:      filepath.Base(absPath),
		debounce:  DefaultDebounce,
		load:      config.Load,
		notifier:  notify.Nop{},
		logger:    logging.Default().WithComponent("monitor").Logger,
		fsWatcher: fsWatcher,
		outcomes:  make(chan Outcome, 1),
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Path returns the absolute path being watched.
func (m *Monitor) Path() string {
	return m.path
}

// Outcomes delivers reload results. Only the newest undelivered outcome is
// kept. The channel is closed by Stop.
func (m *Monitor) Outcomes() <-chan Outcome {
	return m.outcomes
}

// Start begins watching.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	if err := m.fsWatcher.Add(m.dir); err != nil {
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}
	m.started = true

	m.wg.Add(1)
	go m.eventLoop()

	m.logger.Debug("watching config", "path", m.path, "debounce", m.debounce)
	return nil
}

// Trigger requests a reload without waiting for a file event. Requests
// made while one is already pending are merged.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Stop ends watching and closes Outcomes. It is safe to call more than once.
func (m *Monitor) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()

		close(m.done)
		err = m.fsWatcher.Close()
		m.wg.Wait()
		close(m.outcomes)
	})
	return err
}

func (m *Monitor) eventLoop() {
	defer m.wg.Done()

	timer := time.NewTimer(m.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-m.done:
			return

		case event, ok := <-m.fsWatcher.Events:
			if !ok {
				return
			}
			if !m.relevant(event) {
				continue
			}
			timer.Reset(m.debounce)

		case err, ok := <-m.fsWatcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watcher error", "error", err)

		case <-m.trigger:
			timer.Stop()
			m.reload()

		case <-timer.C:
			m.reload()
		}
	}
}

func (m *Monitor) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Base(event.Name) == m.name && filepath.Clean(filepath.Dir(event.Name)) == m.dir
}

func (m *Monitor) reload() {
	cfg, err := m.load(m.path)
	out := Outcome{Config: cfg, Err: err, At: time.Now()}
	if err != nil {
		out.Config = nil
		m.logger.Warn("config rejected", "path", m.path, "error", err)

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		if nerr := m.notifier.Notify(ctx, "keyoverlay: configuration rejected", err.Error()); nerr != nil {
			m.logger.Debug("notification failed", "error", nerr)
		}
		cancel()
	} else {
		m.logger.Info("config reloaded", "path", m.path, "keys", len(cfg.Keys))
	}
	m.publish(out)
}

// publish hands out to the consumer, discarding an older outcome it has
// not picked up yet.
func (m *Monitor) publish(out Outcome) {
	for {
		select {
		case m.outcomes <- out:
			return
		default:
		}
		select {
		case stale := <-m.outcomes:
			m.logger.Debug("dropping superseded reload", "at", stale.At)
		default:
		}
	}
}
