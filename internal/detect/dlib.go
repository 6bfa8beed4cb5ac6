//go:build dlib
// +build dlib

package detect

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/skintone/internal/types"
)

// Dlib runs dlib's HOG face detector through cgo.
type Dlib struct {
	rec *face.Recognizer
}

func newDlib(cfg Config) (Detector, error) {
	rec, err := face.NewRecognizer(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", cfg.ModelDir, err)
	}
	log.Debugf("detect: dlib models loaded from %s", cfg.ModelDir)
	return &Dlib{rec: rec}, nil
}

// Detect hands dlib a JPEG copy of img; the recognizer only accepts JPEG input.
func (d *Dlib) Detect(ctx context.Context, img image.Image) ([]types.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}

	faces, err := d.rec.Recognize(buf.Bytes())
	if err != nil {
		return nil, err
	}

	boxes := make([]types.BoundingBox, 0, len(faces))
	for _, f := range faces {
		r := f.Rectangle
		boxes = append(boxes, types.BoundingBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()})
	}
	return boxes, nil
}

// Close frees the dlib models.
func (d *Dlib) Close() error {
	d.rec.Close()
	return nil
}
