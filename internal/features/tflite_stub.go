//go:build !tflite

package features

import "fmt"

// NewTFLite needs the TensorFlow Lite C library; build with -tags tflite.
func NewTFLite(modelPath string) (Backbone, error) {
	return nil, fmt.Errorf("tflite backbone not compiled in (rebuild with -tags tflite)")
}
