//go:build !dlib
// +build !dlib

package detect

import "fmt"

func newDlib(cfg Config) (Detector, error) {
	return nil, fmt.Errorf("dlib detector not available: rebuild with -tags dlib")
}
