package detect

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/andresmejia3/skintone/internal/types"
	"github.com/andresmejia3/skintone/internal/worker"
	"github.com/disintegration/imaging"
)

// Python forwards images to an MTCNN worker process.
type Python struct {
	w *worker.PythonWorker
}

// NewPython starts the worker script named in cfg.
func NewPython(ctx context.Context, cfg Config) (*Python, error) {
	w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
		Script:      cfg.Script,
		Threshold:   cfg.Threshold,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Python{w: w}, nil
}

// Worker exposes the process so callers can surface its captured stderr.
func (p *Python) Worker() *worker.PythonWorker { return p.w }

// Detect encodes img as PNG and waits for the worker's reply.
func (p *Python) Detect(ctx context.Context, img image.Image) ([]types.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image for worker: %w", err)
	}
	return p.w.ProcessImage(buf.Bytes())
}

// Close stops the worker process.
func (p *Python) Close() error {
	p.w.Close()
	return nil
}
