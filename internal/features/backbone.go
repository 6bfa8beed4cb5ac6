// Package features provides the frozen feature extractors the classifier head sits on.
package features

import (
	"fmt"
	"image"

	"github.com/andresmejia3/skintone/internal/event"
)

var log = event.Log

// Backbone maps a face crop to a fixed-length feature vector. Implementations
// never change their parameters once constructed.
type Backbone interface {
	Name() string
	Dim() int
	Features(img image.Image) ([]float64, error)
	Close() error
}

const (
	ColorStatsName = "colorstats"
	TFLiteName     = "tflite"
)

// New builds the backbone called name. modelPath is only used by tflite.
func New(name, modelPath string) (Backbone, error) {
	switch name {
	case "", ColorStatsName:
		return NewColorStats(), nil
	case TFLiteName:
		return NewTFLite(modelPath)
	default:
		return nil, fmt.Errorf("unknown backbone %q (want %s or %s)", name, ColorStatsName, TFLiteName)
	}
}
