//go:build !linux

package notify

import "context"

// DBus is only available on Linux.
type DBus struct{}

// NewDBus always fails outside Linux.
func NewDBus(string) (*DBus, error) {
	return nil, ErrNotAvailable
}

// Notify implements Notifier.
func (*DBus) Notify(context.Context, string, string) error {
	return ErrNotAvailable
}

// Close is a no-op.
func (*DBus) Close() error { return nil }
