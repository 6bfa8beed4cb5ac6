package train

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/disintegration/imaging"
)

// Augment applies a random horizontal flip (p=0.5) and a uniform rotation in
// [-maxDegrees, maxDegrees]. The rotated image is cropped back to the input
// size around its center; uncovered corners are black.
func Augment(img image.Image, rng *rand.Rand, maxDegrees float64) image.Image {
	b := img.Bounds()
	out := img
	if rng.Float64() < 0.5 {
		out = imaging.FlipH(out)
	}
	if maxDegrees > 0 {
		angle := (rng.Float64()*2 - 1) * maxDegrees
		out = imaging.CropCenter(imaging.Rotate(out, angle, color.Black), b.Dx(), b.Dy())
	}
	return out
}
