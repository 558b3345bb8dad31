package authsvc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"

	"golang.org/x/image/draw"
)

// DefaultMatchDistance is the largest Hamming distance between two stills
// that still counts as the same face.
const DefaultMatchDistance = 10

// DHash computes a 64-bit difference hash: the image is reduced to 9x8
// grayscale and each bit records whether a pixel is brighter than its right
// neighbour.
func DHash(img image.Image) uint64 {
	small := image.NewRGBA(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	bit := 63
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if luma(small.At(x, y)) > luma(small.At(x+1, y)) {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

func luma(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

// HammingDistance returns the number of differing bits.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// decodeStill decodes an encoded still.
func decodeStill(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode still: %w", err)
	}
	return img, nil
}

// trainingQuality scores how consistent a set of hashes is: 1 when all
// stills hash identically, falling toward 0 as they diverge.
func trainingQuality(hashes []uint64) float64 {
	if len(hashes) < 2 {
		return 1
	}
	var total, pairs int
	for i := range hashes {
		for j := i + 1; j < len(hashes); j++ {
			total += HammingDistance(hashes[i], hashes[j])
			pairs++
		}
	}
	q := 1 - float64(total)/float64(pairs)/64
	return float64(int(q*100+0.5)) / 100
}
