package render

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"keyoverlay/internal/bars"
	"keyoverlay/internal/config"
)

const (
	labelScale   = 0.32
	counterScale = 0.24
	minLabelSp   = 12
	minCounterSp = 10
	labelPadding = 8
)

var outlineColor = config.Color{R: 255, G: 255, B: 255, A: 255}

// Painter draws snapshots. It is used from the window goroutine only.
type Painter struct {
	theme *material.Theme
}

// NewPainter creates a Painter with the default Gio theme.
func NewPainter() *Painter {
	return &Painter{theme: material.NewTheme()}
}

// Layout draws snap using the geometry in cfg and fills the constraints.
func (p *Painter) Layout(gtx layout.Context, cfg *config.Config, snap bars.Snapshot) layout.Dimensions {
	paint.Fill(gtx.Ops, cfg.Background.NRGBA())

	scale := gtx.Metric.PxPerDp
	if scale <= 0 {
		scale = 1
	}
	canvas := float32(gtx.Constraints.Max.Y)
	positions := ColumnPositions(cfg)

	for i, col := range snap.Columns {
		if i >= len(positions) {
			break
		}
		left := (positions[i] + cfg.OutlineThickness) * scale
		right := left + ColumnWidth(cfg, col.Size)*scale

		for j, bar := range col.Bars {
			p.drawBar(gtx, cfg, bar, col.Held && j == len(col.Bars)-1, left, right, canvas, scale, snap.Fading)
		}
		p.drawLabels(gtx, cfg, col, left, right, canvas, scale, snap.Counter)
	}

	return layout.Dimensions{Size: gtx.Constraints.Max}
}

func (p *Painter) drawBar(gtx layout.Context, cfg *config.Config, bar bars.Bar, active bool,
	left, right, canvas, scale float32, fading bool) {
	top, bottom, ok := BarSpan(bar, canvas, scale)
	if !ok {
		return
	}
	rect := image.Rect(round(left), round(top), round(right), round(bottom))
	if rect.Empty() {
		return
	}

	// Fading is measured in Dp against the configured height, the same
	// distance the field evicts at.
	alpha := float32(1)
	if fading {
		alpha = FadeAlpha(bar.Offset+bar.Length, cfg.Height, cfg.Height*FadeRegionRatio)
	}

	fill := bar.Color
	if active {
		fill = bar.PressedColor
	}
	paint.FillShape(gtx.Ops, fill.WithAlpha(alpha).NRGBA(), clip.Rect(rect).Op())

	if cfg.OutlineThickness > 0 {
		stroke := clip.Stroke{Path: clip.Rect(rect).Path(), Width: cfg.OutlineThickness * scale}.Op()
		paint.FillShape(gtx.Ops, outlineColor.WithAlpha(alpha).NRGBA(), stroke)
	}
}

func (p *Painter) drawLabels(gtx layout.Context, cfg *config.Config, col bars.ColumnState,
	left, right, canvas, scale float32, counter bool) {
	width := round(right - left)

	labelSp := max(cfg.KeySize*labelScale, minLabelSp)
	p.drawText(gtx, col.Name, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, labelSp,
		round(left), round(canvas-labelPadding*scale), width)

	if !counter {
		return
	}
	counterSp := max(cfg.KeySize*counterScale, minCounterSp)
	p.drawText(gtx, strconv.FormatUint(col.Presses, 10), col.Color.NRGBA(), counterSp,
		round(left), round(canvas-(cfg.KeySize+2*labelPadding)*scale), width)
}

// drawText centers txt horizontally in a slot of the given width with its
// baseline box ending at bottom.
func (p *Painter) drawText(gtx layout.Context, txt string, c color.NRGBA, sp float32, x, bottom, width int) {
	lineHeight := gtx.Sp(unit.Sp(sp))
	defer op.Offset(image.Pt(x, bottom-lineHeight)).Push(gtx.Ops).Pop()

	gtx.Constraints = layout.Exact(image.Pt(width, lineHeight))
	lbl := material.Label(p.theme, unit.Sp(sp), txt)
	lbl.Color = c
	lbl.Alignment = text.Middle
	lbl.MaxLines = 1
	lbl.Layout(gtx)
}

func round(v float32) int {
	return int(math.Round(float64(v)))
}
