package detector

import (
	"context"

	"github.com/ayusman/facegate/internal/face"
)

// FallbackConfidence is the confidence reported by the Fallback detector.
const FallbackConfidence = 0.95

// Fallback is a deterministic stand-in used when no model is available. It
// always reports one centered face so that the capture flows remain usable.
type Fallback struct{}

// Detect returns a single detection at (0.3W, 0.25H) sized 0.4W x 0.5H.
func (Fallback) Detect(_ context.Context, frame *face.Frame) (face.Set, error) {
	w, h := float64(frame.Width), float64(frame.Height)
	return face.Set{{
		Box: face.Box{
			X:      w * 0.3,
			Y:      h * 0.25,
			Width:  w * 0.4,
			Height: h * 0.5,
		},
		Confidence: FallbackConfidence,
	}}, nil
}

// Close is a no-op.
func (Fallback) Close() error { return nil }
