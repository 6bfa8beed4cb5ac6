package detect

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/andresmejia3/skintone/internal/imgproc"
	"github.com/andresmejia3/skintone/internal/types"
	pigo "github.com/esimov/pigo/core"
)

// iouThreshold merges overlapping cascade hits into a single face.
const iouThreshold = 0.2

// Pigo is a pure Go pixel-intensity-comparison cascade detector.
type Pigo struct {
	classifier *pigo.Pigo
	minSize    int
	threshold  float32
}

// NewPigo unpacks the cascade file named in cfg.
func NewPigo(cfg Config) (*Pigo, error) {
	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade %s: %w", cfg.CascadePath, err)
	}

	minSize := cfg.MinSize
	if minSize < 1 {
		minSize = 20
	}

	log.Debugf("detect: pigo cascade loaded from %s", cfg.CascadePath)
	return &Pigo{classifier: classifier, minSize: minSize, threshold: float32(cfg.Threshold)}, nil
}

// Detect runs the cascade over the grayscale image and converts the clustered
// detections (center + scale) to top-left boxes. Boxes near the border can start
// at negative coordinates.
func (p *Pigo) Detect(ctx context.Context, img image.Image) ([]types.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := imgproc.ToRGB(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	maxSize := cols
	if rows > maxSize {
		maxSize = rows
	}

	params := pigo.CascadeParams{
		MinSize:     p.minSize,
		MaxSize:     maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, iouThreshold)
	return toBoxes(dets, p.threshold), nil
}

// toBoxes drops detections scoring below threshold and turns the rest from
// center + scale into top-left boxes.
func toBoxes(dets []pigo.Detection, threshold float32) []types.BoundingBox {
	var boxes []types.BoundingBox
	for _, d := range dets {
		if d.Q < threshold {
			continue
		}
		boxes = append(boxes, types.BoundingBox{
			X:     d.Col - d.Scale/2,
			Y:     d.Row - d.Scale/2,
			W:     d.Scale,
			H:     d.Scale,
			Score: float64(d.Q),
		})
	}
	return boxes
}

// Close is a no-op; the cascade lives in Go memory.
func (p *Pigo) Close() error { return nil }
