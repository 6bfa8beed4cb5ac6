package features

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestNew(t *testing.T) {
	b, err := New("", "")
	require.NoError(t, err)
	assert.Equal(t, ColorStatsName, b.Name())

	_, err = New("resnet", "")
	assert.Error(t, err)
}

func TestColorStatsSolidColor(t *testing.T) {
	cs := NewColorStats()
	f, err := cs.Features(solid(224, 224, color.NRGBA{R: 255, G: 128, B: 0, A: 255}))
	require.NoError(t, err)
	require.Len(t, f, cs.Dim())

	// red saturates into the last bin, green lands in bin 8, blue in bin 0
	assert.InDelta(t, 1.0, f[colorBins-1], 1e-12)
	assert.InDelta(t, 1.0, f[colorBins+8], 1e-12)
	assert.InDelta(t, 1.0, f[2*colorBins], 1e-12)

	// y = (0.299*255 + 0.587*128) / 255 ~ 0.594, bin 9
	assert.InDelta(t, 1.0, f[3*colorBins+9], 1e-12)

	moments := f[4*colorBins:]
	assert.InDelta(t, 1.0, moments[0], 1e-9)
	assert.InDelta(t, 128.0/255, moments[1], 1e-9)
	assert.InDelta(t, 0.0, moments[2], 1e-9)
	for _, sd := range moments[3:] {
		assert.InDelta(t, 0.0, sd, 1e-6)
	}
}

func TestColorStatsResizesInput(t *testing.T) {
	cs := NewColorStats()
	small, err := cs.Features(solid(40, 30, color.NRGBA{R: 90, G: 60, B: 30, A: 255}))
	require.NoError(t, err)
	full, err := cs.Features(solid(224, 224, color.NRGBA{R: 90, G: 60, B: 30, A: 255}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, full, small, 0.01)
}

func TestColorStatsSeparatesBrightness(t *testing.T) {
	cs := NewColorStats()
	dark, err := cs.Features(solid(224, 224, color.NRGBA{R: 80, G: 50, B: 40, A: 255}))
	require.NoError(t, err)
	light, err := cs.Features(solid(224, 224, color.NRGBA{R: 240, G: 210, B: 190, A: 255}))
	require.NoError(t, err)
	assert.NotEqual(t, dark, light)
	assert.Less(t, dark[4*colorBins], light[4*colorBins])
}

func TestColorStatsIgnoresAlpha(t *testing.T) {
	cs := NewColorStats()
	a, err := cs.Features(solid(224, 224, color.NRGBA{R: 90, G: 60, B: 30, A: 10}))
	require.NoError(t, err)
	b, err := cs.Features(solid(224, 224, color.NRGBA{R: 90, G: 60, B: 30, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
