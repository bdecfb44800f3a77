//go:build linux

package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = notificationsService + ".Notify"

	// expireTimeout is in milliseconds.
	expireTimeout int32 = 8000
)

// DBus sends notifications through org.freedesktop.Notifications on the
// session bus.
type DBus struct {
	appName string

	mu   sync.Mutex
	conn *dbus.Conn
	// lastID lets a new message replace the previous one on screen.
	lastID uint32
}

// NewDBus connects to the session bus. It fails with ErrNotAvailable when
// no session bus or notification daemon is present.
func NewDBus(appName string) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}

	var owned bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, notificationsService).Store(&owned)
	if err != nil || !owned {
		conn.Close()
		return nil, fmt.Errorf("%w: %s has no owner", ErrNotAvailable, notificationsService)
	}

	return &DBus{appName: appName, conn: conn}, nil
}

// Notify implements Notifier.
func (d *DBus) Notify(ctx context.Context, title, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return ErrNotAvailable
	}

	obj := d.conn.Object(notificationsService, dbus.ObjectPath(notificationsPath))
	call := obj.CallWithContext(ctx, notifyMethod, 0,
		d.appName,
		d.lastID,
		"dialog-warning",
		title,
		body,
		[]string{},
		map[string]dbus.Variant{},
		expireTimeout,
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err == nil {
		d.lastID = id
	}
	return nil
}

// Close releases the bus connection.
func (d *DBus) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
