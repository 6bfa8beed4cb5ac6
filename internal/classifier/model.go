// Package classifier is the trainable head that sits on a frozen backbone:
// dropout, a ReLU hidden layer and a softmax over the skin-tone classes.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/andresmejia3/skintone/internal/event"
	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/types"
	"gonum.org/v1/gonum/mat"
)

var log = event.Log

// probFloor keeps log() finite when a predicted probability underflows.
const probFloor = 1e-7

// ErrInferenceOnly is returned when training a model that was loaded from disk.
var ErrInferenceOnly = errors.New("model was loaded for inference only")

// Config sizes the head.
type Config struct {
	// Backbone names the feature extractor the head was fitted on.
	Backbone     string
	InputDim     int
	Hidden       int
	Dropout      float64
	LearningRate float64
}

// DefaultConfig returns the head used by the trainer for a given input size.
func DefaultConfig(backbone string, inputDim int) Config {
	return Config{
		Backbone:     backbone,
		InputDim:     inputDim,
		Hidden:       128,
		Dropout:      0.3,
		LearningRate: 0.001,
	}
}

func (c Config) validate() error {
	switch {
	case c.InputDim <= 0:
		return fmt.Errorf("input dimension must be positive, got %d", c.InputDim)
	case c.Hidden <= 0:
		return fmt.Errorf("hidden width must be positive, got %d", c.Hidden)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0,1), got %v", c.Dropout)
	}
	return nil
}

// Model holds the head weights. Rows of w1 index input features; columns of w2
// index classes in tone.Classes() order.
type Model struct {
	cfg     Config
	classes []types.SkinTone
	w1      *mat.Dense
	b1      []float64
	w2      *mat.Dense
	b2      []float64

	opt *adam
	rng *rand.Rand
}

// New initializes a head with Glorot-uniform weights and zero biases.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", cfg.LearningRate)
	}

	classes := tone.Classes()
	m := &Model{
		cfg:     cfg,
		classes: classes,
		w1:      mat.NewDense(cfg.InputDim, cfg.Hidden, glorot(rng, cfg.InputDim, cfg.Hidden)),
		b1:      make([]float64, cfg.Hidden),
		w2:      mat.NewDense(cfg.Hidden, len(classes), glorot(rng, cfg.Hidden, len(classes))),
		b2:      make([]float64, len(classes)),
		rng:     rng,
	}
	m.opt = newAdam(cfg.LearningRate, m.params())
	return m, nil
}

func glorot(rng *rand.Rand, fanIn, fanOut int) []float64 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	w := make([]float64, fanIn*fanOut)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return w
}

// params returns the weight storage in a fixed order. The slices alias the model.
func (m *Model) params() [][]float64 {
	return [][]float64{m.w1.RawMatrix().Data, m.b1, m.w2.RawMatrix().Data, m.b2}
}

func (m *Model) Backbone() string { return m.cfg.Backbone }

func (m *Model) InputDim() int { return m.cfg.InputDim }

func (m *Model) Classes() []types.SkinTone {
	out := make([]types.SkinTone, len(m.classes))
	copy(out, m.classes)
	return out
}

type pass struct {
	x  *mat.Dense // input after dropout
	z1 *mat.Dense
	h  *mat.Dense
	p  *mat.Dense
}

func (m *Model) forward(x *mat.Dense, train bool) pass {
	xd := x
	if train && m.cfg.Dropout > 0 {
		keep := 1 - m.cfg.Dropout
		xd = mat.DenseCopyOf(x)
		raw := xd.RawMatrix().Data
		for i := range raw {
			if m.rng.Float64() < m.cfg.Dropout {
				raw[i] = 0
			} else {
				raw[i] /= keep
			}
		}
	}

	z1 := new(mat.Dense)
	z1.Mul(xd, m.w1)
	addBias(z1, m.b1)

	h := mat.DenseCopyOf(z1)
	h.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, h)

	z2 := new(mat.Dense)
	z2.Mul(h, m.w2)
	addBias(z2, m.b2)
	softmaxRows(z2)

	return pass{x: xd, z1: z1, h: h, p: z2}
}

func addBias(z *mat.Dense, b []float64) {
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		for j := range row {
			row[j] += b[j]
		}
	}
}

func softmaxRows(z *mat.Dense) {
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		hi := row[0]
		for _, v := range row[1:] {
			hi = math.Max(hi, v)
		}
		var sum float64
		for j, v := range row {
			row[j] = math.Exp(v - hi)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
}

func (m *Model) batch(x [][]float64, y []int) (*mat.Dense, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if y != nil && len(y) != len(x) {
		return nil, fmt.Errorf("batch has %d inputs but %d labels", len(x), len(y))
	}
	data := make([]float64, 0, len(x)*m.cfg.InputDim)
	for i, row := range x {
		if len(row) != m.cfg.InputDim {
			return nil, fmt.Errorf("input %d has %d features, model expects %d", i, len(row), m.cfg.InputDim)
		}
		if y != nil && (y[i] < 0 || y[i] >= len(m.classes)) {
			return nil, fmt.Errorf("label %d out of range", y[i])
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(x), m.cfg.InputDim, data), nil
}

// lossAndAccuracy returns mean categorical cross-entropy and the argmax hit rate.
func lossAndAccuracy(p *mat.Dense, y []int) (loss, acc float64) {
	n := len(y)
	hits := 0
	for i, c := range y {
		row := p.RawRowView(i)
		loss -= math.Log(math.Max(row[c], probFloor))
		if argmax(row) == c {
			hits++
		}
	}
	return loss / float64(n), float64(hits) / float64(n)
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// gradients runs one forward/backward pass and returns the loss gradients in
// params() order.
func (m *Model) gradients(x *mat.Dense, y []int, train bool) (loss, acc float64, grads [][]float64) {
	fp := m.forward(x, train)
	loss, acc = lossAndAccuracy(fp.p, y)

	n, _ := x.Dims()
	dz2 := mat.DenseCopyOf(fp.p)
	for i, c := range y {
		dz2.Set(i, c, dz2.At(i, c)-1)
	}
	dz2.Scale(1/float64(n), dz2)

	dw2 := new(mat.Dense)
	dw2.Mul(fp.h.T(), dz2)
	db2 := colSums(dz2)

	dh := new(mat.Dense)
	dh.Mul(dz2, m.w2.T())
	dh.Apply(func(i, j int, v float64) float64 {
		if fp.z1.At(i, j) > 0 {
			return v
		}
		return 0
	}, dh)

	dw1 := new(mat.Dense)
	dw1.Mul(fp.x.T(), dh)
	db1 := colSums(dh)

	return loss, acc, [][]float64{dw1.RawMatrix().Data, db1, dw2.RawMatrix().Data, db2}
}

func colSums(a *mat.Dense) []float64 {
	r, c := a.Dims()
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		for j, v := range a.RawRowView(i) {
			out[j] += v
		}
	}
	return out
}

// TrainBatch takes one Adam step on a batch with dropout active. y holds class
// indices. The returned loss and accuracy are measured before the update.
func (m *Model) TrainBatch(x [][]float64, y []int) (loss, acc float64, err error) {
	if m.opt == nil {
		return 0, 0, ErrInferenceOnly
	}
	xb, err := m.batch(x, y)
	if err != nil {
		return 0, 0, err
	}
	loss, acc, grads := m.gradients(xb, y, true)
	m.opt.step(grads)
	return loss, acc, nil
}

// Evaluate measures loss and accuracy without dropout.
func (m *Model) Evaluate(x [][]float64, y []int) (loss, acc float64, err error) {
	xb, err := m.batch(x, y)
	if err != nil {
		return 0, 0, err
	}
	loss, acc = lossAndAccuracy(m.forward(xb, false).p, y)
	return loss, acc, nil
}

// Probabilities returns the softmax output for one feature vector.
func (m *Model) Probabilities(features []float64) ([]float64, error) {
	xb, err := m.batch([][]float64{features}, nil)
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, m.forward(xb, false).p), nil
}

// Predict picks the most probable class. Confidence is its softmax probability.
func (m *Model) Predict(features []float64) (types.Prediction, error) {
	probs, err := m.Probabilities(features)
	if err != nil {
		return types.Prediction{}, err
	}
	best := argmax(probs)
	pred := types.Prediction{
		Tone:          m.classes[best],
		Confidence:    probs[best],
		Probabilities: make(map[types.SkinTone]float64, len(probs)),
	}
	for i, p := range probs {
		pred.Probabilities[m.classes[i]] = p
	}
	log.Debugf("classifier: predicted %s (%.3f)", pred.Tone, pred.Confidence)
	return pred, nil
}
