package dataset

import (
	"fmt"

	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/types"
)

// Sample is a label record with its derived class.
type Sample struct {
	Record    types.LabelRecord
	Luminance float64
	Tone      types.SkinTone
}

// Assign derives luminance and tone for every record. Records whose luminance
// cannot be bucketed are returned separately with the reason.
func Assign(records []types.LabelRecord) (samples []Sample, rejected []error) {
	for _, r := range records {
		y := tone.Luminance(r.Avg)
		t, err := tone.Bucket(y)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("%s: %w", r.Image, err))
			continue
		}
		samples = append(samples, Sample{Record: r, Luminance: y, Tone: t})
	}
	return samples, rejected
}

// Split divides samples into training and validation sets, stratified by tone.
// For each class the first floor(n*fraction) samples, in input order, go to
// validation. Input order is preserved inside both sets.
func Split(samples []Sample, fraction float64) (train, val []Sample) {
	total := Counts(samples)
	quota := make(map[types.SkinTone]int, len(total))
	for t, n := range total {
		quota[t] = int(float64(n) * fraction)
	}

	for _, s := range samples {
		if quota[s.Tone] > 0 {
			quota[s.Tone]--
			val = append(val, s)
			continue
		}
		train = append(train, s)
	}
	return train, val
}

// Counts returns the number of samples per tone.
func Counts(samples []Sample) map[types.SkinTone]int {
	out := make(map[types.SkinTone]int)
	for _, s := range samples {
		out[s.Tone]++
	}
	return out
}
