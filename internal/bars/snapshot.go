package bars

import (
	"keyoverlay/internal/config"
	"keyoverlay/internal/input"
)

// Snapshot is an immutable copy of a Field, safe to hand to another
// goroutine.
type Snapshot struct {
	// Columns are in configured key order.
	Columns []ColumnState

	// Traversal is the distance a bar travels before leaving the field.
	Traversal float32

	Fading  bool
	Counter bool
}

// ColumnState is the renderer's view of one column.
type ColumnState struct {
	Key     input.KeyID
	Name    string
	Size    float32
	Color   config.Color
	Bars    []Bar
	Presses uint64
	Held    bool
}

// Column returns the state for k.
func (s Snapshot) Column(k input.KeyID) (ColumnState, bool) {
	for _, c := range s.Columns {
		if c.Key == k {
			return c, true
		}
	}
	return ColumnState{}, false
}

// TotalBars counts bars across all columns.
func (s Snapshot) TotalBars() int {
	n := 0
	for _, c := range s.Columns {
		n += len(c.Bars)
	}
	return n
}

// Equal reports whether two snapshots describe the same state.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Traversal != o.Traversal || s.Fading != o.Fading || s.Counter != o.Counter {
		return false
	}
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if !s.Columns[i].Equal(o.Columns[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether two column states are identical.
func (c ColumnState) Equal(o ColumnState) bool {
	if c.Key != o.Key || c.Name != o.Name || c.Size != o.Size || c.Color != o.Color ||
		c.Presses != o.Presses || c.Held != o.Held || len(c.Bars) != len(o.Bars) {
		return false
	}
	for i := range c.Bars {
		if c.Bars[i] != o.Bars[i] {
			return false
		}
	}
	return true
}
