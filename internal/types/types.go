package types

import "fmt"

// BoundingBox is a detected face location in source image pixels.
type BoundingBox struct {
	X int
	Y int
	W int
	H int
	// Score is the detector's confidence. Its scale depends on the detector.
	Score float64
}

// Area returns w*h.
func (b BoundingBox) Area() int {
	return b.W * b.H
}

// Clamp moves a negative origin back onto the image. Width and height are left alone.
func (b BoundingBox) Clamp() BoundingBox {
	if b.X < 0 {
		b.X = 0
	}
	if b.Y < 0 {
		b.Y = 0
	}
	return b
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", b.X, b.Y, b.W, b.H)
}

// RGB is an averaged color sample, each channel in 0..255.
type RGB struct {
	R int
	G int
	B int
}

// LabelRecord is one row of labels.csv
type LabelRecord struct {
	Image string
	Box   BoundingBox
	Avg   RGB
}

// SkinTone is one of the three ordered brightness classes.
type SkinTone string

const (
	ToneDeep   SkinTone = "Deep"
	ToneMedium SkinTone = "Medium"
	ToneFair   SkinTone = "Fair"
)

// Prediction is the classifier output for a single image.
type Prediction struct {
	Tone          SkinTone
	Confidence    float64
	Probabilities map[SkinTone]float64
}
