package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/ayusman/facegate/internal/face"
)

// FrameReader yields the current video frame.
type FrameReader interface {
	ReadFrame() (*face.Frame, error)
}

// Encoder turns a still image into bytes.
type Encoder func(image.Image) ([]byte, error)

// Snapshotter captures encoded still frames from a FrameReader.
type Snapshotter struct {
	src    FrameReader
	encode Encoder
}

// NewSnapshotter creates a Snapshotter that JPEG-encodes frames from src.
func NewSnapshotter(src FrameReader) *Snapshotter {
	return NewSnapshotterWithEncoder(src, EncodeJPEG)
}

// NewSnapshotterWithEncoder creates a Snapshotter using encode.
func NewSnapshotterWithEncoder(src FrameReader, encode Encoder) *Snapshotter {
	return &Snapshotter{src: src, encode: encode}
}

// Capture grabs the current frame and returns it JPEG-encoded. It fails
// with ErrNoFrame when the source has nothing to offer.
func (s *Snapshotter) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := s.src.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	if frame == nil || frame.Image == nil || frame.Width == 0 || frame.Height == 0 {
		return nil, ErrNoFrame
	}

	data, err := s.encode(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("capture still: %w", err)
	}
	return data, nil
}
