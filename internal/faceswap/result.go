package faceswap

import (
	"fmt"
	"image"
	"os"
)

// Result is the decoded shape of a remote reply. Exactly one of FileRecord,
// PathString, Sequence, Bitmap or Unknown.
type Result interface {
	resultShape() string
}

// FileRecord is a structured reply that names an output file.
type FileRecord struct {
	Path string
	URL  string
}

// PathString is a bare path to an existing output file.
type PathString string

// Sequence wraps other replies; only the first element is used.
type Sequence []any

// Bitmap is an already decoded image.
type Bitmap struct {
	Image image.Image
}

// Unknown is any reply that matches none of the shapes above.
type Unknown struct {
	Type string
}

func (FileRecord) resultShape() string { return "file record" }
func (PathString) resultShape() string { return "path" }
func (Sequence) resultShape() string   { return "sequence" }
func (Bitmap) resultShape() string     { return "bitmap" }
func (Unknown) resultShape() string    { return "unknown" }

// ClassifyResult assigns v to a Result shape. Checks run in order: a
// record with a non-empty path, a string naming an existing file, a
// non-empty sequence, a decoded image. Anything else is Unknown.
func ClassifyResult(v any) Result {
	switch r := v.(type) {
	case FileRecord:
		if r.Path != "" {
			return r
		}
	case map[string]any:
		if p, ok := r["path"].(string); ok && p != "" {
			url, _ := r["url"].(string)
			return FileRecord{Path: p, URL: url}
		}
	case PathString:
		if fileExists(string(r)) {
			return r
		}
	case string:
		if fileExists(r) {
			return PathString(r)
		}
	case Sequence:
		if len(r) > 0 {
			return r
		}
	case []any:
		if len(r) > 0 {
			return Sequence(r)
		}
	case Bitmap:
		if !isNilImage(r.Image) {
			return r
		}
	case image.Image:
		if !isNilImage(r) {
			return Bitmap{Image: r}
		}
	}
	return Unknown{Type: describe(v)}
}

// DecodeResult converts a remote reply into a canonical RGB image.
func DecodeResult(v any) (*image.NRGBA, error) {
	const op = "decode_result"

	switch r := ClassifyResult(v).(type) {
	case FileRecord:
		img, err := openRGB(r.Path)
		if err != nil {
			return nil, wrapError(KindRemoteCall, op, err, "open result %s", r.Path)
		}
		return img, nil
	case PathString:
		img, err := openRGB(string(r))
		if err != nil {
			return nil, wrapError(KindRemoteCall, op, err, "open result %s", string(r))
		}
		return img, nil
	case Sequence:
		return DecodeResult(r[0])
	case Bitmap:
		return toRGB(r.Image), nil
	case Unknown:
		return nil, &Error{Kind: KindRemoteCall, Op: op, Msg: "unexpected result type from remote: " + r.Type}
	default:
		return nil, &Error{Kind: KindRemoteCall, Op: op, Msg: fmt.Sprintf("unhandled result shape %T", r)}
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func describe(v any) string {
	switch r := v.(type) {
	case nil:
		return "<nil>"
	case string, PathString:
		return fmt.Sprintf("%T (no such file)", r)
	case []any, Sequence:
		return fmt.Sprintf("empty %T", r)
	case map[string]any, FileRecord:
		return fmt.Sprintf("%T without path", r)
	case Bitmap:
		return fmt.Sprintf("%T without image", r)
	case image.Image:
		return fmt.Sprintf("nil %T", r)
	default:
		return fmt.Sprintf("%T", r)
	}
}
