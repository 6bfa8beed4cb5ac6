package features

import (
	"image"
	"math"

	"github.com/andresmejia3/skintone/internal/imgproc"
)

const colorBins = 16

// ColorStats is a fixed, parameter-free backbone: per-channel histograms,
// per-channel mean and standard deviation, and a luminance histogram, all
// computed on the TargetSize input scaled to [0,1].
type ColorStats struct{}

func NewColorStats() *ColorStats { return &ColorStats{} }

func (*ColorStats) Name() string { return ColorStatsName }

// Dim is 3 channel histograms + 3 means + 3 std devs + 1 luminance histogram.
func (*ColorStats) Dim() int { return 4*colorBins + 6 }

func (*ColorStats) Close() error { return nil }

func (c *ColorStats) Features(img image.Image) ([]float64, error) {
	src := imgproc.ToRGB(img)
	if b := src.Bounds(); b.Dx() != imgproc.TargetSize || b.Dy() != imgproc.TargetSize {
		src = imgproc.Resize(src, imgproc.TargetSize)
	}

	out := make([]float64, c.Dim())
	hist := out[:3*colorBins]
	lumHist := out[3*colorBins : 4*colorBins]
	moments := out[4*colorBins:]

	var sum, sumSq [3]float64
	n := 0
	for i := 0; i+3 < len(src.Pix); i += 4 {
		px := [3]float64{
			float64(src.Pix[i]) / 255,
			float64(src.Pix[i+1]) / 255,
			float64(src.Pix[i+2]) / 255,
		}
		for ch, v := range px {
			hist[ch*colorBins+bin(v)]++
			sum[ch] += v
			sumSq[ch] += v * v
		}
		lumHist[bin(0.299*px[0]+0.587*px[1]+0.114*px[2])]++
		n++
	}

	for i := range hist {
		hist[i] /= float64(n)
	}
	for i := range lumHist {
		lumHist[i] /= float64(n)
	}
	for ch := 0; ch < 3; ch++ {
		mean := sum[ch] / float64(n)
		variance := sumSq[ch]/float64(n) - mean*mean
		moments[ch] = mean
		moments[3+ch] = math.Sqrt(math.Max(variance, 0))
	}

	log.Tracef("features: colorstats mean rgb %.3f %.3f %.3f", moments[0], moments[1], moments[2])
	return out, nil
}

// bin maps v in [0,1] to a histogram slot.
func bin(v float64) int {
	b := int(v * colorBins)
	if b >= colorBins {
		b = colorBins - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}
