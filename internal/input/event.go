package input

import (
	"fmt"
	"time"
)

// EventKind distinguishes press from release.
type EventKind int

const (
	// Pressed is sent once per physical press.
	Pressed EventKind = iota + 1
	// Released is sent when the key or button goes up.
	Released
)

func (k EventKind) String() string {
	switch k {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Event is a single press or release of a monitored key.
type Event struct {
	Kind EventKind
	Key  KeyID
	// Time is when the source observed the event. Zero when unknown.
	Time time.Time
}

// Press returns a Pressed event for k stamped with the current time.
func Press(k KeyID) Event {
	return Event{Kind: Pressed, Key: k, Time: time.Now()}
}

// Release returns a Released event for k stamped with the current time.
func Release(k KeyID) Event {
	return Event{Kind: Released, Key: k, Time: time.Now()}
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Key, e.Kind)
}
