// Package detector provides face detection behind a small capability
// interface, a deterministic fallback, and the resilient Source the
// detection loop polls.
package detector

import (
	"context"
	"errors"

	"github.com/ayusman/facegate/internal/face"
)

var (
	// ErrNotReady is returned while a model-backed detector is still
	// loading its assets.
	ErrNotReady = errors.New("detector not ready")

	// ErrUnavailable is returned when a model-backed detector failed to
	// initialize. It is permanent for the lifetime of the detector.
	ErrUnavailable = errors.New("detector unavailable")
)

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a frame and returns the faces found in it, in frame
	// pixel coordinates. Returns an empty set if no faces are found.
	Detect(ctx context.Context, frame *face.Frame) (face.Set, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face detection.
type Config struct {
	// MinConfidence drops raw detections below this score (0.0-1.0).
	// It filters model noise and is distinct from the readiness threshold.
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.5,
	}
}
