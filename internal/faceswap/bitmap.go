package faceswap

import (
	"image"
	"reflect"

	"github.com/disintegration/imaging"
)

// isNilImage reports whether img is nil or a nil pointer held in the
// interface.
func isNilImage(img image.Image) bool {
	if img == nil {
		return true
	}
	v := reflect.ValueOf(img)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// toRGB returns a fresh copy of img with its origin at (0, 0) and every
// pixel fully opaque. Color channels are kept as-is; alpha is dropped,
// not composited.
func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func openRGB(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return toRGB(img), nil
}
