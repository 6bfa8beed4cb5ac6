// Package imgproc holds the pixel-level helpers shared by the labeler, trainer and predictor.
package imgproc

import (
	"fmt"
	"image"

	"github.com/andresmejia3/skintone/internal/types"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TargetSize is the square edge of processed crops and classifier input.
const TargetSize = 224

// Open decodes an image file into an RGB-only NRGBA copy anchored at (0,0).
// Alpha is discarded, not composited.
func Open(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return ToRGB(img), nil
}

// ToRGB copies img into an opaque NRGBA at the origin.
func ToRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// Crop cuts box out of src. Parts of the box outside the image are dropped.
func Crop(src *image.NRGBA, box types.BoundingBox) (*image.NRGBA, error) {
	r := image.Rect(box.X, box.Y, box.X+box.W, box.Y+box.H).Intersect(src.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("face box %s lies outside the %dx%d image", box, src.Bounds().Dx(), src.Bounds().Dy())
	}
	return imaging.Crop(src, r), nil
}

// CenterRect is the sampling window for a w x h face: rows [h/4, 3h/4), cols [w/4, 3w/4).
func CenterRect(w, h int) image.Rectangle {
	return image.Rect(w/4, h/4, 3*w/4, 3*h/4)
}

// CenterAverage averages the RGB channels of crop over CenterRect(w, h), where w and h are the
// face box dimensions. The window is clipped to the crop. Means are truncated to integers.
func CenterAverage(crop *image.NRGBA, w, h int) (types.RGB, error) {
	r := CenterRect(w, h).Intersect(crop.Bounds())
	if r.Empty() {
		return types.RGB{}, fmt.Errorf("empty color sample region for %dx%d face", w, h)
	}

	var sr, sg, sb, n int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := crop.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			sr += int(crop.Pix[i])
			sg += int(crop.Pix[i+1])
			sb += int(crop.Pix[i+2])
			n++
			i += 4
		}
	}
	return types.RGB{R: sr / n, G: sg / n, B: sb / n}, nil
}

// Resize scales img to a size x size square with a bicubic kernel, ignoring aspect ratio.
func Resize(img image.Image, size int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Save writes img, choosing the encoder from the file extension.
func Save(img image.Image, path string) error {
	return imaging.Save(img, path)
}
