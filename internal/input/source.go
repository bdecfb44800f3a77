// Package input captures keyboard and mouse button activity.
//
// A Source delivers press and release events for named keys into a channel
// supplied by the caller. Capture runs on a goroutine owned by the source;
// the caller only ever sees Start and Stop.
//
// Platform support:
// - Linux: reads /dev/input/event* (requires the input group or root)
// - Other platforms: not available; Start returns ErrNotAvailable
//
// Tests use Scripted, which replays a fixed sequence of events.
package input

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source produces input events.
type Source interface {
	// Start begins delivering events into sink and returns immediately.
	Start(sink chan<- Event) error

	// Stop asks capture to cease and waits for the capture goroutine to
	// exit, giving up after StopTimeout.
	Stop() error
}

// Terminator is implemented by sources whose capture goroutine can die
// on its own. Done is closed when the goroutine exits; Err reports why.
type Terminator interface {
	Done() <-chan struct{}
	Err() error
}

// StopTimeout bounds how long Stop waits for the capture goroutine.
const StopTimeout = 2 * time.Second

var (
	// ErrNotAvailable is returned when capture isn't possible on this platform.
	ErrNotAvailable = errors.New("input: capture not available on this platform")

	// ErrPermissionDenied is returned when input devices cannot be opened.
	ErrPermissionDenied = errors.New("input: insufficient permissions to read input devices")

	// ErrAlreadyRunning is returned when Start is called while running.
	ErrAlreadyRunning = errors.New("input: source already running")

	// ErrStopTimeout is returned when the capture goroutine does not exit in time.
	ErrStopTimeout = errors.New("input: timed out waiting for capture to stop")

	// ErrDeviceLost is reported when every opened device has gone away.
	ErrDeviceLost = errors.New("input: all input devices disconnected")
)

// BaseSource provides the start/stop bookkeeping shared by implementations.
type BaseSource struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	err     error
	timeout time.Duration
}

// begin marks the source running and returns the stop channel the capture
// goroutine must watch.
func (b *BaseSource) begin() (<-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil, ErrAlreadyRunning
	}
	b.running = true
	b.err = nil
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	return b.stop, nil
}

// finish is called exactly once by the capture goroutine on exit.
func (b *BaseSource) finish(err error) {
	b.mu.Lock()
	b.err = err
	done := b.done
	b.mu.Unlock()
	close(done)
}

// halt signals the capture goroutine and waits for it.
func (b *BaseSource) halt() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.stop)
	done := b.done
	timeout := b.timeout
	b.mu.Unlock()

	if timeout <= 0 {
		timeout = StopTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Done is closed when the capture goroutine exits. It is nil before Start.
func (b *BaseSource) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Err returns the error the capture goroutine exited with, if any.
func (b *BaseSource) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (b *BaseSource) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// emit sends ev into sink unless stop closes first. A send abandoned
// because of stop is dropped, never a panic.
func emit(sink chan<- Event, stop <-chan struct{}, ev Event) bool {
	select {
	case sink <- ev:
		return true
	case <-stop:
		return false
	}
}

// SourceOption configures a platform source.
type SourceOption func(*sourceOptions)

type sourceOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger for device discovery and capture errors.
func WithLogger(l *slog.Logger) SourceOption {
	return func(o *sourceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewPlatformSource creates the capture backend for the current platform.
func NewPlatformSource(opts ...SourceOption) Source {
	o := sourceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return newPlatformSource(o)
}

// Availability is implemented by platform sources that can explain,
// before Start, why capture would fail.
type Availability interface {
	Available() (bool, string)
}

func wrapPermission(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, path, err)
}
