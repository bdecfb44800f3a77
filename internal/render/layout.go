// Package render paints a bar snapshot with Gio.
//
// Bars rise from the bottom of the canvas: a bar's Offset is the distance
// of its lower edge from the bottom, and its Length extends upward. The
// painter holds no animation state; everything it draws comes from the
// snapshot it is given.
//
// Configuration and bar geometry are in Dp. The painter converts to pixels
// with the window's PxPerDp at draw time.
package render

import (
	"keyoverlay/internal/bars"
	"keyoverlay/internal/config"
)

// FadeRegionRatio is the share of the canvas height, measured from the
// top, over which bars fade out.
const FadeRegionRatio = 0.25

// FadeAlpha returns the opacity in [0, 1] for a bar whose top edge is top
// pixels above the bottom of a canvas of the given height. Bars fully
// below the fade region are opaque; bars past the top are transparent.
func FadeAlpha(top, height, fadeHeight float32) float32 {
	if fadeHeight <= 0 {
		if top >= height {
			return 0
		}
		return 1
	}
	remaining := height - top
	switch {
	case remaining <= 0:
		return 0
	case remaining >= fadeHeight:
		return 1
	default:
		return remaining / fadeHeight
	}
}

// ColumnWidth is the drawn width of a bar for a key of the given size
// multiplier.
func ColumnWidth(cfg *config.Config, size float32) float32 {
	if size <= 0 {
		size = 1
	}
	return cfg.KeySize * size
}

// ColumnPositions returns the left edge of every configured column's slot,
// in key order. Each slot is the bar width plus an outline on both sides,
// and slots are separated by the margin.
func ColumnPositions(cfg *config.Config) []float32 {
	positions := make([]float32, 0, len(cfg.Keys))
	x := cfg.Margin
	for _, k := range cfg.Keys {
		positions = append(positions, x)
		x += ColumnWidth(cfg, k.Size) + 2*cfg.OutlineThickness + cfg.Margin
	}
	return positions
}

// WindowWidth is the width needed to fit every column and its margins.
func WindowWidth(cfg *config.Config) float32 {
	w := cfg.Margin
	for _, k := range cfg.Keys {
		w += ColumnWidth(cfg, k.Size) + 2*cfg.OutlineThickness + cfg.Margin
	}
	return w
}

// WindowHeight is the canvas height. Bars travel its full height.
func WindowHeight(cfg *config.Config) float32 {
	return cfg.Height
}

// BarSpan returns the pixel rows covered by bar on a canvas canvasPx tall,
// clipped to the canvas. scale is pixels per Dp. visible is false when no
// part of the bar is on the canvas.
func BarSpan(bar bars.Bar, canvasPx, scale float32) (top, bottom float32, visible bool) {
	if scale <= 0 {
		scale = 1
	}
	bottom = canvasPx - bar.Offset*scale
	top = bottom - bar.Length*scale
	if bottom <= 0 || top >= canvasPx {
		return 0, 0, false
	}
	return max(top, 0), min(bottom, canvasPx), true
}
