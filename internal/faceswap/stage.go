package faceswap

import (
	"errors"
	"image"
	"io/fs"
	"os"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// stagedFile is an on-disk PNG handed to the remote call. owned is set only
// for files the adapter created; caller paths are never removed.
type stagedFile struct {
	path  string
	owned bool
}

// stage materializes in as a readable file. In-memory inputs are written as
// PNG to a new temp file under dir. A failed stage leaves no file behind.
func stage(in Input, dir string) (stagedFile, error) {
	const op = "stage"

	switch in.kind {
	case inputAbsent:
		return stagedFile{}, invalidImage(op, "image is nil")

	case inputPath:
		info, err := os.Stat(in.path)
		if err != nil {
			return stagedFile{}, wrapError(KindInvalidImage, op, err, "file not found: %s", in.path)
		}
		if !info.Mode().IsRegular() {
			return stagedFile{}, invalidImage(op, "not a regular file: %s", in.path)
		}
		return stagedFile{path: in.path}, nil

	case inputImage:
		if isNilImage(in.img) {
			return stagedFile{}, invalidImage(op, "image is nil")
		}
		return stageImage(toRGB(in.img), dir)

	case inputPixels:
		img, err := in.pixels.toImage()
		if err != nil {
			return stagedFile{}, wrapError(KindInvalidImage, op, err, "invalid pixel array")
		}
		return stageImage(img, dir)

	default:
		return stagedFile{}, invalidImage(op, "unsupported image type %s: use a path, an image.Image or Pixels", in.typeName)
	}
}

func stageImage(img image.Image, dir string) (stagedFile, error) {
	f, err := os.CreateTemp(dir, "faceswap-*.png")
	if err != nil {
		return stagedFile{}, wrapError(KindInvalidImage, "stage", err, "create temp file")
	}
	name := f.Name()

	err = imaging.Encode(f, img, imaging.PNG)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(name)
		return stagedFile{}, wrapError(KindInvalidImage, "stage", err, "encode png")
	}
	return stagedFile{path: name, owned: true}, nil
}

// release removes an adapter-owned file. Failures are logged and dropped.
func (s stagedFile) release(logger *zap.Logger) {
	if !s.owned || s.path == "" {
		return
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Debug("failed to remove staged file", zap.String("path", s.path), zap.Error(err))
	}
}
