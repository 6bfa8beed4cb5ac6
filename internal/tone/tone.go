// Package tone turns an average face color into one of the ordered skin-tone classes.
package tone

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/skintone/internal/types"
)

// Bucket edges. Every interval is right-open except the last, which includes MaxLuminance.
const (
	MediumFloor  = 130.0
	FairFloor    = 170.0
	MaxLuminance = 255.0
)

// roundingSlack absorbs float error above 255 for pure white input (0.299+0.587+0.114 is not exactly 1 in binary).
const roundingSlack = 1e-9

// ErrOutOfRange is returned for a luminance outside [0, 255].
var ErrOutOfRange = errors.New("luminance out of range")

var classes = []types.SkinTone{types.ToneDeep, types.ToneMedium, types.ToneFair}

// Classes returns the tones in canonical output order.
func Classes() []types.SkinTone {
	out := make([]types.SkinTone, len(classes))
	copy(out, classes)
	return out
}

// Index returns the position of t in Classes(), or -1.
func Index(t types.SkinTone) int {
	for i, c := range classes {
		if c == t {
			return i
		}
	}
	return -1
}

// Luminance computes y = 0.299r + 0.587g + 0.114b.
func Luminance(c types.RGB) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

// Bucket maps a luminance to its class using [0,130) [130,170) [170,255].
func Bucket(y float64) (types.SkinTone, error) {
	switch {
	case y != y || y < 0 || y > MaxLuminance+roundingSlack:
		return "", fmt.Errorf("%w: %v", ErrOutOfRange, y)
	case y < MediumFloor:
		return types.ToneDeep, nil
	case y < FairFloor:
		return types.ToneMedium, nil
	default:
		return types.ToneFair, nil
	}
}

// Classify is Bucket(Luminance(c)).
func Classify(c types.RGB) (types.SkinTone, error) {
	return Bucket(Luminance(c))
}
