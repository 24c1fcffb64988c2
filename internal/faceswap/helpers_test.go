package faceswap

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := imaging.Save(img, p); err != nil {
		t.Fatalf("save %s: %v", p, err)
	}
	return p
}

func mustOpenRGB(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	img, err := openRGB(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return img
}

func assertSameImage(t *testing.T, want, got *image.NRGBA) {
	t.Helper()
	if want.Rect != got.Rect {
		t.Fatalf("bounds differ: want %v, got %v", want.Rect, got.Rect)
	}
	for y := 0; y < want.Rect.Dy(); y++ {
		for x := 0; x < want.Rect.Dx(); x++ {
			if w, g := want.NRGBAAt(x, y), got.NRGBAAt(x, y); w != g {
				t.Fatalf("pixel (%d,%d) differs: want %v, got %v", x, y, w, g)
			}
		}
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func assertGone(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err=%v", path, err)
	}
}
