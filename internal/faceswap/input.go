package faceswap

import (
	"fmt"
	"image"
)

type inputKind uint8

const (
	inputAbsent inputKind = iota
	inputPath
	inputImage
	inputPixels
	inputUnsupported
)

// Input is one of the image forms the adapter accepts: a file path, a
// decoded image, or a raw pixel array. The zero value is the absent input.
// The adapter never takes ownership of in-memory data.
type Input struct {
	kind     inputKind
	path     string
	img      image.Image
	pixels   Pixels
	typeName string
}

// FromPath wraps an existing image file. The adapter passes it through
// unchanged and never deletes it.
func FromPath(path string) Input {
	return Input{kind: inputPath, path: path}
}

// FromImage wraps a decoded image. A nil image, including a typed nil
// pointer, is the absent input.
func FromImage(img image.Image) Input {
	if isNilImage(img) {
		return Input{}
	}
	return Input{kind: inputImage, img: img}
}

// FromPixels wraps a raw H×W×C pixel array.
func FromPixels(p Pixels) Input {
	return Input{kind: inputPixels, pixels: p}
}

// InputOf maps a dynamically typed value onto Input. Values of any other
// type produce an input that fails staging with ErrInvalidImage.
func InputOf(v any) Input {
	switch v := v.(type) {
	case nil:
		return Input{}
	case Input:
		return v
	case string:
		return FromPath(v)
	case image.Image:
		return FromImage(v)
	case Pixels:
		return FromPixels(v)
	case *Pixels:
		if v == nil {
			return Input{}
		}
		return FromPixels(*v)
	default:
		return Input{kind: inputUnsupported, typeName: fmt.Sprintf("%T", v)}
	}
}

// IsPath reports whether the input refers to a caller-owned file.
func (in Input) IsPath() bool { return in.kind == inputPath }

func (in Input) String() string {
	switch in.kind {
	case inputPath:
		return "path:" + in.path
	case inputImage:
		if isNilImage(in.img) {
			return "absent"
		}
		b := in.img.Bounds()
		return fmt.Sprintf("image:%dx%d", b.Dx(), b.Dy())
	case inputPixels:
		return fmt.Sprintf("pixels:%v", in.pixels.Shape)
	case inputUnsupported:
		return "unsupported:" + in.typeName
	default:
		return "absent"
	}
}
