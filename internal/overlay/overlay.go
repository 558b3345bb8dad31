// Package overlay draws detection boxes and the readiness badge over the
// live video.
//
// The renderer only visualizes a detection set and a verdict; it makes no
// decisions of its own.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/ayusman/facegate/internal/face"
	"github.com/ayusman/facegate/internal/policy"
)

// Geometry relates the native video resolution to the displayed size.
type Geometry struct {
	NativeWidth   int
	NativeHeight  int
	DisplayWidth  int
	DisplayHeight int
}

// Scale returns the per-axis factors mapping native to display pixels. An
// unknown native size maps 1:1.
func (g Geometry) Scale() (sx, sy float64) {
	sx, sy = 1, 1
	if g.NativeWidth > 0 {
		sx = float64(g.DisplayWidth) / float64(g.NativeWidth)
	}
	if g.NativeHeight > 0 {
		sy = float64(g.DisplayHeight) / float64(g.NativeHeight)
	}
	return sx, sy
}

// Style controls colors and sizes.
type Style struct {
	Normal       color.Color
	Highlight    color.Color
	Label        color.Color
	BadgeReady   color.Color
	BadgeBlocked color.Color
	LineWidth    int
	CornerLength int
	DotRadius    int
}

// DefaultStyle returns the kiosk palette.
func DefaultStyle() Style {
	return Style{
		Normal:       color.RGBA{R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff},
		Highlight:    color.RGBA{R: 0x10, G: 0xb9, B: 0x81, A: 0xff},
		Label:        color.White,
		BadgeReady:   color.RGBA{R: 0x05, G: 0x96, B: 0x69, A: 0xd0},
		BadgeBlocked: color.RGBA{R: 0xdc, G: 0x26, B: 0x26, A: 0xd0},
		LineWidth:    2,
		CornerLength: 20,
		DotRadius:    3,
	}
}

// Renderer paints detections onto a Surface.
type Renderer struct {
	style Style
}

// NewRenderer creates a renderer with the given style.
func NewRenderer(style Style) *Renderer {
	return &Renderer{style: style}
}

// Render clears the surface and draws set and the verdict badge. Boxes are
// in native coordinates and are scaled to the display geometry.
func (r *Renderer) Render(s Surface, set face.Set, v policy.Verdict, g Geometry) {
	s.Resize(g.DisplayWidth, g.DisplayHeight)
	s.Clear()

	sx, sy := g.Scale()
	for _, d := range set {
		r.drawDetection(s, d, sx, sy)
	}
	r.drawBadge(s, v)
}

// ColorFor returns the box color for a confidence.
func (r *Renderer) ColorFor(confidence float64) color.Color {
	if policy.IsHighlighted(confidence) {
		return r.style.Highlight
	}
	return r.style.Normal
}

func (r *Renderer) drawDetection(s Surface, d face.Detection, sx, sy float64) {
	rect := image.Rect(
		int(math.Round(d.Box.X*sx)),
		int(math.Round(d.Box.Y*sy)),
		int(math.Round((d.Box.X+d.Box.Width)*sx)),
		int(math.Round((d.Box.Y+d.Box.Height)*sy)),
	)
	col := r.ColorFor(d.Confidence)
	lw := r.style.LineWidth

	s.StrokeRect(rect, col, lw)

	// Arms keep their full length on small boxes; the surface clips them.
	arm := r.style.CornerLength
	x0, y0, x1, y1 := rect.Min.X, rect.Min.Y, rect.Max.X-1, rect.Max.Y-1
	corners := [4][2]int{{x0, y0}, {x1, y0}, {x0, y1}, {x1, y1}}
	for _, c := range corners {
		dx, dy := arm, arm
		if c[0] == x1 {
			dx = -arm
		}
		if c[1] == y1 {
			dy = -arm
		}
		s.Line(c[0], c[1], c[0]+dx, c[1], col, lw*2)
		s.Line(c[0], c[1], c[0], c[1]+dy, col, lw*2)
	}

	label := fmt.Sprintf("%d%%", int(math.Round(d.Confidence*100)))
	ly := rect.Min.Y - 6
	if ly < 13 {
		ly = rect.Min.Y + 16
	}
	s.Text(rect.Min.X, ly, label, col)

	cx := (rect.Min.X + rect.Max.X) / 2
	cy := (rect.Min.Y + rect.Max.Y) / 2
	s.FillCircle(cx, cy, r.style.DotRadius, col)
}

// BadgeText returns the short status label for a verdict.
func BadgeText(v policy.Verdict) string {
	switch v.Reason {
	case policy.ReasonOK:
		return "READY"
	case policy.ReasonNoFace:
		return "NO FACE"
	case policy.ReasonMultipleFaces:
		return "MULTIPLE FACES"
	case policy.ReasonLowConfidence:
		return "LOW CONFIDENCE"
	case policy.ReasonDeviceNotReady:
		return "NO VIDEO"
	default:
		return "WAITING"
	}
}

func (r *Renderer) drawBadge(s Surface, v policy.Verdict) {
	text := BadgeText(v)
	bg := r.style.BadgeBlocked
	if v.Ready {
		bg = r.style.BadgeReady
	}

	const pad, height = 6, 22
	width := s.TextWidth(text) + 2*pad
	s.FillRect(image.Rect(8, 8, 8+width, 8+height), bg)
	s.Text(8+pad, 8+height-pad-1, text, r.style.Label)
}

// Compose scales frame to the overlay's size and draws the overlay on top.
func Compose(frame image.Image, overlay *image.RGBA) *image.RGBA {
	b := overlay.Bounds()
	out := image.NewRGBA(b)
	if frame != nil {
		draw.ApproxBiLinear.Scale(out, b, frame, frame.Bounds(), draw.Src, nil)
	}
	draw.Draw(out, b, overlay, b.Min, draw.Over)
	return out
}
