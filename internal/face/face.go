// Package face provides the shared types that flow through the face-presence
// pipeline: video frames, per-frame detections and captured samples.
package face

import (
	"image"
	"math"
)

// Box is an axis-aligned rectangle in source-frame pixel units.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the box area. Degenerate boxes have zero area.
func (b Box) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Clamp returns the box clipped to a frame of the given size.
func (b Box) Clamp(width, height int) Box {
	w, h := float64(width), float64(height)

	x0 := math.Max(0, b.X)
	y0 := math.Max(0, b.Y)
	x1 := math.Min(w, b.X+b.Width)
	y1 := math.Min(h, b.Y+b.Height)

	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}

	return Box{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Detection is one observed face in one frame.
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Set is the ordered sequence of detections for the most recent frame.
// Only its cardinality and the confidences matter to the gating policy.
type Set []Detection

// Clone returns an independent copy of the set so consumers can never
// observe a later mutation of the producer's slice.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// MaxConfidence returns the highest confidence in the set, or 0 for an
// empty set.
func (s Set) MaxConfidence() float64 {
	best := 0.0
	for _, d := range s {
		if d.Confidence > best {
			best = d.Confidence
		}
	}
	return best
}

// Frame is a single decoded video frame.
type Frame struct {
	Image     image.Image
	Width     int
	Height    int
	Timestamp int64 // epoch millis
}

// NewFrame wraps an image, taking width and height from its bounds.
func NewFrame(img image.Image, timestamp int64) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: timestamp,
	}
}

// Sample is one confirmed capture of a registration sequence or a login
// attempt. It is immutable once created.
type Sample struct {
	SequenceIndex int     `json:"sequence_index"` // 1-based
	Image         []byte  `json:"-"`              // encoded still frame (JPEG)
	CapturedAt    int64   `json:"captured_at"`    // epoch millis
	Confidence    float64 `json:"confidence"`
}
