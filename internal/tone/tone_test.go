package tone

import (
	"math"
	"testing"

	"github.com/andresmejia3/skintone/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket(t *testing.T) {
	tests := []struct {
		y    float64
		want types.SkinTone
	}{
		{0, types.ToneDeep},
		{129.9, types.ToneDeep},
		{130, types.ToneMedium},
		{169.9, types.ToneMedium},
		{170, types.ToneFair},
		{254.99, types.ToneFair},
		{255, types.ToneFair},
	}

	for _, tt := range tests {
		got, err := Bucket(tt.y)
		require.NoError(t, err, "y=%v", tt.y)
		assert.Equal(t, tt.want, got, "y=%v", tt.y)
	}
}

func TestBucketOutOfRange(t *testing.T) {
	for _, y := range []float64{-0.1, 255.5, 1000, math.NaN()} {
		_, err := Bucket(y)
		assert.ErrorIs(t, err, ErrOutOfRange, "y=%v", y)
	}
}

func TestClassifyWhiteIsFair(t *testing.T) {
	got, err := Classify(types.RGB{R: 255, G: 255, B: 255})
	require.NoError(t, err)
	assert.Equal(t, types.ToneFair, got)

	got, err = Classify(types.RGB{})
	require.NoError(t, err)
	assert.Equal(t, types.ToneDeep, got)
}

func TestLuminance(t *testing.T) {
	assert.InDelta(t, 0.299*200+0.587*150+0.114*100, Luminance(types.RGB{R: 200, G: 150, B: 100}), 1e-9)
}

func TestClassesOrder(t *testing.T) {
	assert.Equal(t, []types.SkinTone{types.ToneDeep, types.ToneMedium, types.ToneFair}, Classes())
	assert.Equal(t, 2, Index(types.ToneFair))
	assert.Equal(t, -1, Index("Olive"))

	// Callers get a copy.
	c := Classes()
	c[0] = "x"
	assert.Equal(t, types.ToneDeep, Classes()[0])
}
