// Package detect wraps the face detectors available to the labeler.
package detect

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/andresmejia3/skintone/internal/event"
	"github.com/andresmejia3/skintone/internal/types"
)

var log = event.Log

// Detector finds faces in a decoded image.
type Detector interface {
	// Detect returns zero or more face boxes in detector order.
	Detect(ctx context.Context, img image.Image) ([]types.BoundingBox, error)

	// Close releases model memory or child processes.
	Close() error
}

// Config selects and tunes a Detector.
type Config struct {
	// Kind is one of "pigo", "python" or "dlib".
	Kind string

	// CascadePath is the pigo cascade file.
	CascadePath string
	// MinSize is the smallest face edge, in pixels, the pigo cascade scans for.
	MinSize int
	// Threshold is the minimum detection score. Its scale depends on Kind.
	Threshold float64

	// Script is the Python worker entrypoint.
	Script string
	// ReadTimeout bounds a single Python detection round trip.
	ReadTimeout time.Duration

	// ModelDir holds the dlib model files.
	ModelDir string
}

// DefaultConfig returns the settings used by `skintone label` when no flags are given.
func DefaultConfig() Config {
	return Config{
		Kind:        "pigo",
		CascadePath: "cascade/facefinder",
		MinSize:     40,
		Threshold:   5.0,
		Script:      "python/detect_worker.py",
		ReadTimeout: 60 * time.Second,
		ModelDir:    "models/dlib",
	}
}

// DefaultThreshold is the score cutoff for kind when the user gives none.
// MTCNN and dlib report every face they find.
func DefaultThreshold(kind string) float64 {
	switch kind {
	case "python", "dlib":
		return 0
	default:
		return 5.0
	}
}

// New builds the detector named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Detector, error) {
	switch cfg.Kind {
	case "", "pigo":
		return NewPigo(cfg)
	case "python":
		return NewPython(ctx, cfg)
	case "dlib":
		return newDlib(cfg)
	default:
		return nil, fmt.Errorf("unknown detector %q (want pigo, python or dlib)", cfg.Kind)
	}
}

// Largest returns the box with the greatest area. On ties the earliest box wins.
// ok is false when boxes is empty.
func Largest(boxes []types.BoundingBox) (best types.BoundingBox, ok bool) {
	if len(boxes) == 0 {
		return best, false
	}
	best = boxes[0]
	for _, b := range boxes[1:] {
		if b.Area() > best.Area() {
			best = b
		}
	}
	return best, true
}
