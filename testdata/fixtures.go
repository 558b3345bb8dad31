// Package testdata generates synthetic frames and JPEG stills for tests.
// Each subject has a distinct difference hash so the reference service
// tells them apart.
package testdata

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"github.com/ayusman/facegate/internal/face"
)

// Subject selects a synthetic still.
type Subject int

const (
	// SubjectA brightens left to right.
	SubjectA Subject = iota
	// SubjectB darkens left to right.
	SubjectB
	// SubjectC has alternating vertical bands.
	SubjectC
)

// Width and Height are the default frame dimensions.
const (
	Width  = 640
	Height = 480
)

// Image renders a subject at the given size. Brightness shifts every pixel
// by delta, clamped, and leaves the subject's hash unchanged.
func Image(s Subject, width, height int, brightness int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bandWidth := width / 9
	for x := 0; x < width; x++ {
		var v int
		switch s {
		case SubjectA:
			v = 20 + 200*x/width
		case SubjectB:
			v = 220 - 200*x/width
		default:
			if (x/bandWidth)%2 == 0 {
				v = 40
			} else {
				v = 210
			}
		}
		v = clamp(v + brightness)
		c := color.RGBA{R: uint8(v), G: uint8(v), B: uint8(v), A: 255}
		for y := 0; y < height; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Frame wraps a default-sized subject image as a video frame.
func Frame(s Subject) *face.Frame {
	return face.NewFrame(Image(s, Width, Height, 0), time.Now().UnixMilli())
}

// JPEG encodes a subject at the default size.
func JPEG(s Subject) []byte {
	return Encode(Image(s, Width, Height, 0))
}

// Encode JPEG-encodes img, panicking on failure.
func Encode(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return v
	}
}
