// Package notify shows desktop notifications for events the user should
// see even when the overlay has no visible error surface, such as a
// rejected configuration reload.
package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAvailable is returned when no notification service can be reached.
var ErrNotAvailable = errors.New("notify: desktop notifications not available")

// Notifier delivers a short message to the user.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Nop discards every notification.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string, string) error { return nil }

// Message is one delivered notification.
type Message struct {
	Title string
	Body  string
}

// Recorder keeps every notification it receives. It is safe for
// concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	notified chan struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notified: make(chan struct{}, 64)}
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, title, body string) error {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Title: title, Body: body})
	r.mu.Unlock()

	select {
	case r.notified <- struct{}{}:
	default:
	}
	return nil
}

// Messages returns a copy of everything received so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Notified is signalled after each delivery.
func (r *Recorder) Notified() <-chan struct{} {
	return r.notified
}
