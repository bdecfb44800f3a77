// Package bars holds the per-key animation state: one Column of scrolling
// bars per monitored key, grouped into a Field.
//
// Nothing in this package locks or blocks. A Field and its columns belong
// to a single goroutine; other goroutines only ever see Snapshots.
package bars

import (
	"keyoverlay/internal/config"
)

// Bar is one animated segment, spawned by a press.
type Bar struct {
	// Offset is how far the bar's trailing (bottom) edge has traveled
	// from the spawn edge. The top edge sits at Offset+Length.
	Offset float32

	// Length grows while the key is held.
	Length float32

	Color        config.Color
	PressedColor config.Color

	Held bool
}

// State is the lifecycle state of a Column.
type State int

const (
	// Idle has no bars and nothing held.
	Idle State = iota
	// Held has a growing bar at the end of the column.
	Held
	// Releasing has bars still scrolling but none held.
	Releasing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Held:
		return "held"
	case Releasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// Column is the bar state machine for one key.
//
// Invariant: at most one bar is held, and when one is, it is the last.
type Column struct {
	bars    []Bar
	held    bool
	presses uint64

	minLength    float32
	color        config.Color
	pressedColor config.Color
}

// NewColumn creates an idle column whose bars spawn with minLength.
func NewColumn(minLength float32, color, pressedColor config.Color) *Column {
	return &Column{
		minLength:    minLength,
		color:        color,
		pressedColor: pressedColor,
	}
}

// Press starts a new bar. A press while already held is suppressed and
// returns false: no bar is added and the count does not change.
func (c *Column) Press() bool {
	if c.held {
		return false
	}
	c.bars = append(c.bars, Bar{
		Length:       c.minLength,
		Color:        c.color,
		PressedColor: c.pressedColor,
		Held:         true,
	})
	c.held = true
	c.presses++
	return true
}

// Release stops the held bar from growing. It returns false if nothing
// was held.
func (c *Column) Release() bool {
	if !c.held {
		return false
	}
	c.bars[len(c.bars)-1].Held = false
	c.held = false
	return true
}

// Update advances every bar by speed*dt and grows the held bar by the
// same amount. Non-positive dt is a no-op.
func (c *Column) Update(dt, speed float32) {
	if dt <= 0 {
		return
	}
	delta := speed * dt
	for i := range c.bars {
		c.bars[i].Offset += delta
	}
	if c.held {
		c.bars[len(c.bars)-1].Length += delta
	}
}

// Evict removes bars that have scrolled entirely past traversal, keeping
// the order of the rest. It returns how many were removed.
func (c *Column) Evict(traversal float32) int {
	kept := c.bars[:0]
	for _, b := range c.bars {
		if b.Offset > traversal+b.Length {
			continue
		}
		kept = append(kept, b)
	}
	removed := len(c.bars) - len(kept)
	clear(c.bars[len(kept):])
	c.bars = kept
	return removed
}

// State reports the lifecycle state.
func (c *Column) State() State {
	switch {
	case c.held:
		return Held
	case len(c.bars) > 0:
		return Releasing
	default:
		return Idle
	}
}

// Presses returns the number of accepted presses.
func (c *Column) Presses() uint64 {
	return c.presses
}

// IsHeld reports whether the key is currently down.
func (c *Column) IsHeld() bool {
	return c.held
}

// Bars returns a copy of the live bars, oldest first. Never nil.
func (c *Column) Bars() []Bar {
	out := make([]Bar, len(c.bars))
	copy(out, c.bars)
	return out
}
