package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Surface is a drawing target the renderer paints onto.
type Surface interface {
	Resize(width, height int)
	Clear()
	Bounds() image.Rectangle
	StrokeRect(r image.Rectangle, c color.Color, width int)
	Line(x0, y0, x1, y1 int, c color.Color, width int)
	FillRect(r image.Rectangle, c color.Color)
	FillCircle(cx, cy, radius int, c color.Color)
	// Text draws s with its baseline starting at (x, y).
	Text(x, y int, s string, c color.Color)
	TextWidth(s string) int
}

// labelFace is the bitmap font used for labels and badges.
var labelFace font.Face = basicfont.Face7x13

// Canvas is a Surface backed by an RGBA image with a transparent
// background.
type Canvas struct {
	img *image.RGBA
}

// NewCanvas creates a transparent canvas of the given size.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))}
}

// Image returns the backing image. It is replaced on Resize.
func (c *Canvas) Image() *image.RGBA { return c.img }

func (c *Canvas) Bounds() image.Rectangle { return c.img.Bounds() }

// Resize reallocates the backing image when the size changes.
func (c *Canvas) Resize(width, height int) {
	width, height = max(width, 0), max(height, 0)
	b := c.img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return
	}
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Clear resets every pixel to transparent.
func (c *Canvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

func (c *Canvas) FillRect(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), image.NewUniform(col), image.Point{}, draw.Over)
}

// StrokeRect draws the outline of r inset by the line width.
func (c *Canvas) StrokeRect(r image.Rectangle, col color.Color, width int) {
	r = r.Canon()
	width = max(width, 1)
	c.FillRect(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), col)
	c.FillRect(image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), col)
	c.FillRect(image.Rect(r.Min.X, r.Min.Y+width, r.Min.X+width, r.Max.Y-width), col)
	c.FillRect(image.Rect(r.Max.X-width, r.Min.Y+width, r.Max.X, r.Max.Y-width), col)
}

// Line draws a line of the given width. Axis-aligned lines are filled as
// rectangles; others are rasterized with Bresenham.
func (c *Canvas) Line(x0, y0, x1, y1 int, col color.Color, width int) {
	width = max(width, 1)
	switch {
	case y0 == y1:
		c.FillRect(image.Rect(min(x0, x1), y0, max(x0, x1)+1, y0+width), col)
		return
	case x0 == x1:
		c.FillRect(image.Rect(x0, min(y0, y1), x0+width, max(y0, y1)+1), col)
		return
	}

	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	e := dx + dy
	for {
		c.FillRect(image.Rect(x0, y0, x0+width, y0+width), col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (c *Canvas) FillCircle(cx, cy, radius int, col color.Color) {
	src := image.NewUniform(col)
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > radius*radius {
				continue
			}
			p := image.Pt(cx+x, cy+y)
			if !p.In(c.img.Bounds()) {
				continue
			}
			draw.Draw(c.img, image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))}, src, image.Point{}, draw.Over)
		}
	}
}

func (c *Canvas) Text(x, y int, s string, col color.Color) {
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: labelFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (c *Canvas) TextWidth(s string) int {
	return font.MeasureString(labelFace, s).Ceil()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}
