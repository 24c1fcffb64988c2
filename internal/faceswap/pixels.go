package faceswap

import (
	"fmt"
	"image"
	"math"
)

// Pixels is a row-major H×W×C array with C = 3 (RGB) or 4 (RGBA). Exactly
// one of Uint8 or Float holds the samples. Float samples are clamped to
// [0, 255] and truncated; an alpha channel is discarded.
type Pixels struct {
	Shape []int
	Uint8 []uint8
	Float []float64
}

func (p Pixels) validate() error {
	if len(p.Shape) != 3 || p.Shape[0] <= 0 || p.Shape[1] <= 0 || (p.Shape[2] != 3 && p.Shape[2] != 4) {
		return fmt.Errorf("pixel array must be HxWx3 or HxWx4, got shape %v", p.Shape)
	}
	if (p.Uint8 == nil) == (p.Float == nil) {
		return fmt.Errorf("pixel array must carry exactly one of uint8 or float samples")
	}
	// Room for the 4-byte-per-pixel destination implies room for the samples.
	if p.Shape[0] > math.MaxInt/p.Shape[1]/4 {
		return fmt.Errorf("pixel array shape %v is too large", p.Shape)
	}
	want := p.Shape[0] * p.Shape[1] * p.Shape[2]
	if got := p.len(); got != want {
		return fmt.Errorf("pixel array has %d samples, shape %v needs %d", got, p.Shape, want)
	}
	return nil
}

func (p Pixels) len() int {
	if p.Uint8 != nil {
		return len(p.Uint8)
	}
	return len(p.Float)
}

func (p Pixels) at(i int) uint8 {
	if p.Uint8 != nil {
		return p.Uint8[i]
	}
	return clampByte(p.Float[i])
}

// toImage builds an opaque RGB image from the first three channels.
func (p Pixels) toImage() (*image.NRGBA, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	h, w, c := p.Shape[0], p.Shape[1], p.Shape[2]
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			src := (y*w + x) * c
			row[x*4+0] = p.at(src)
			row[x*4+1] = p.at(src + 1)
			row[x*4+2] = p.at(src + 2)
			row[x*4+3] = 0xff
		}
	}
	return dst, nil
}

func clampByte(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
