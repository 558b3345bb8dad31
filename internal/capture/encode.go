package capture

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// JPEGQuality is the quality used for captured stills and stream frames.
const JPEGQuality = 90

// EncodeJPEG encodes an image as JPEG through OpenCV.
func EncodeJPEG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNoFrame
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close, so copy out.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
