// Package config handles configuration loading and validation for keyoverlay.
package config

import (
	"keyoverlay/internal/input"
)

// Defaults for the [general] section.
const (
	DefaultHeight           = 700
	DefaultKeySize          = 70
	DefaultBarSpeed         = 600
	DefaultMargin           = 25
	DefaultOutlineThickness = 5
	DefaultFPS              = 60
	DefaultTickRate         = 120
	DefaultMinBarLength     = 1.0
	DefaultLogLevel         = "info"

	// DefaultPressedAlphaDivisor dims a bar while its key is held.
	DefaultPressedAlphaDivisor = 1.41421356
)

// Config is a fully resolved, validated configuration. Every field has a
// usable value; callers never need to consult defaults themselves.
type Config struct {
	// Height is the window height and the distance a bar travels before
	// it leaves the screen.
	Height float32

	// KeySize is the base column width in pixels.
	KeySize float32

	// BarSpeed is how fast bars move, in pixels per second.
	BarSpeed float32

	Background Color

	Margin           float32
	OutlineThickness float32

	// Fading fades bars out near the far edge.
	Fading bool

	// Counter shows a press count under each key.
	Counter bool

	// FPS is the renderer frame rate.
	FPS int

	// TickRate is how often the animation state advances, in Hz.
	TickRate int

	// PressedAlphaDivisor divides bar alpha while the key is held.
	PressedAlphaDivisor float32

	// MinBarLength is the length of a freshly spawned bar.
	MinBarLength float32

	LogLevel  string
	LogToFile bool

	// Keys are the monitored keys in display order.
	Keys []KeyConfig

	// Warnings are non-fatal problems found while loading, already corrected.
	Warnings []string
}

// KeyConfig describes one monitored key column.
type KeyConfig struct {
	// Key is the canonical key identity.
	Key input.KeyID

	// Name is the label shown under the column, as written in the file.
	Name string

	Color Color

	// Size multiplies KeySize for this column's width.
	Size float32
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Height:              DefaultHeight,
		KeySize:             DefaultKeySize,
		BarSpeed:            DefaultBarSpeed,
		Background:          Color{0, 0, 0, 255},
		Margin:              DefaultMargin,
		OutlineThickness:    DefaultOutlineThickness,
		Fading:              true,
		Counter:             true,
		FPS:                 DefaultFPS,
		TickRate:            DefaultTickRate,
		PressedAlphaDivisor: DefaultPressedAlphaDivisor,
		MinBarLength:        DefaultMinBarLength,
		LogLevel:            DefaultLogLevel,
		Keys:                DefaultKeys(),
	}
}

// DefaultKeys returns the columns used when the file lists none.
func DefaultKeys() []KeyConfig {
	return []KeyConfig{
		{Key: "Z", Name: "Z", Color: Color{255, 0, 0, 255}, Size: 1},
		{Key: "X", Name: "X", Color: Color{0, 255, 255, 255}, Size: 1},
	}
}

// KeyIDs returns the configured keys in display order.
func (c *Config) KeyIDs() []input.KeyID {
	ids := make([]input.KeyID, len(c.Keys))
	for i, k := range c.Keys {
		ids[i] = k.Key
	}
	return ids
}
