package bars

import (
	"keyoverlay/internal/config"
	"keyoverlay/internal/input"
)

// DefaultSpeed is used when a non-positive speed is configured.
const DefaultSpeed = config.DefaultBarSpeed

// Params configures a Field.
type Params struct {
	// Keys lists the monitored keys in display order. Duplicates collapse
	// to the first occurrence.
	Keys []input.KeyID

	// Colors gives each key its bar color. Missing keys get white.
	Colors map[input.KeyID]config.Color

	// Names are display labels; missing keys use the KeyID.
	Names map[input.KeyID]string

	// Sizes are width multipliers; missing keys use 1.
	Sizes map[input.KeyID]float32

	Speed               float32
	Traversal           float32
	MinLength           float32
	PressedAlphaDivisor float32

	Fading  bool
	Counter bool
}

// Field is the set of columns for every monitored key.
//
// A Field is not safe for concurrent use. It is owned by one goroutine
// and replaced wholesale when the configuration changes.
type Field struct {
	order   []input.KeyID
	columns map[input.KeyID]*Column
	names   map[input.KeyID]string
	sizes   map[input.KeyID]float32

	speed     float32
	traversal float32
	fading    bool
	counter   bool
}

// NewField creates a Field with an idle column per key.
func NewField(p Params) *Field {
	speed := p.Speed
	if speed <= 0 {
		speed = DefaultSpeed
	}

	f := &Field{
		columns:   make(map[input.KeyID]*Column, len(p.Keys)),
		names:     make(map[input.KeyID]string, len(p.Keys)),
		sizes:     make(map[input.KeyID]float32, len(p.Keys)),
		speed:     speed,
		traversal: p.Traversal,
		fading:    p.Fading,
		counter:   p.Counter,
	}

	white := config.Color{R: 255, G: 255, B: 255, A: 255}
	for _, k := range p.Keys {
		if _, dup := f.columns[k]; dup {
			continue
		}
		color, ok := p.Colors[k]
		if !ok {
			color = white
		}
		f.order = append(f.order, k)
		f.columns[k] = NewColumn(p.MinLength, color, color.Dimmed(p.PressedAlphaDivisor))

		f.names[k] = string(k)
		if name, ok := p.Names[k]; ok && name != "" {
			f.names[k] = name
		}
		f.sizes[k] = 1
		if size, ok := p.Sizes[k]; ok && size > 0 {
			f.sizes[k] = size
		}
	}
	return f
}

// FromConfig builds a fresh Field from a validated configuration.
func FromConfig(cfg *config.Config) *Field {
	p := Params{
		Keys:                make([]input.KeyID, 0, len(cfg.Keys)),
		Colors:              make(map[input.KeyID]config.Color, len(cfg.Keys)),
		Names:               make(map[input.KeyID]string, len(cfg.Keys)),
		Sizes:               make(map[input.KeyID]float32, len(cfg.Keys)),
		Speed:               cfg.BarSpeed,
		Traversal:           cfg.Height,
		MinLength:           cfg.MinBarLength,
		PressedAlphaDivisor: cfg.PressedAlphaDivisor,
		Fading:              cfg.Fading,
		Counter:             cfg.Counter,
	}
	for _, k := range cfg.Keys {
		if _, dup := p.Colors[k.Key]; dup {
			continue
		}
		p.Keys = append(p.Keys, k.Key)
		p.Colors[k.Key] = k.Color
		p.Names[k.Key] = k.Name
		p.Sizes[k.Key] = k.Size
	}
	return NewField(p)
}

// HandleEvent routes ev to its column. Events for keys that are not
// monitored are dropped and false is returned.
func (f *Field) HandleEvent(ev input.Event) bool {
	col, ok := f.columns[ev.Key]
	if !ok {
		return false
	}
	switch ev.Kind {
	case input.Pressed:
		col.Press()
	case input.Released:
		col.Release()
	default:
		return false
	}
	return true
}

// Update advances every column by dt seconds, then evicts bars that have
// left the field. It returns the number of bars evicted.
func (f *Field) Update(dt float32) int {
	if dt <= 0 {
		return 0
	}
	evicted := 0
	for _, k := range f.order {
		col := f.columns[k]
		col.Update(dt, f.speed)
		evicted += col.Evict(f.traversal)
	}
	return evicted
}

// Column returns the column for k, or nil if k is not monitored.
func (f *Field) Column(k input.KeyID) *Column {
	return f.columns[k]
}

// Keys returns the monitored keys in display order.
func (f *Field) Keys() []input.KeyID {
	return append([]input.KeyID(nil), f.order...)
}

// Speed returns the effective bar speed.
func (f *Field) Speed() float32 {
	return f.speed
}

// Snapshot returns a deep copy of the current state.
func (f *Field) Snapshot() Snapshot {
	s := Snapshot{
		Columns:   make([]ColumnState, 0, len(f.order)),
		Traversal: f.traversal,
		Fading:    f.fading,
		Counter:   f.counter,
	}
	for _, k := range f.order {
		col := f.columns[k]
		s.Columns = append(s.Columns, ColumnState{
			Key:     k,
			Name:    f.names[k],
			Size:    f.sizes[k],
			Color:   col.color,
			Bars:    col.Bars(),
			Presses: col.presses,
			Held:    col.held,
		})
	}
	return s
}
