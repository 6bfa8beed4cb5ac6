package classifier

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/types"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

// Artifact names written by the trainer.
const (
	NativeFile = "skin_tone_classifier.gob"
	MobileFile = "makeup_advisor.lite"

	nativeExt = ".gob"
	mobileExt = ".lite"

	formatVersion = 1
)

// native is the full-precision on-disk layout.
type native struct {
	Version  int
	Backbone string
	Classes  []string
	InputDim int
	Hidden   int
	Dropout  float64
	W1, B1   []float64
	W2, B2   []float64
}

// tensor is an int8 per-tensor quantized weight block: value = q * Scale.
type tensor struct {
	Scale  float64 `msgpack:"scale"`
	Values []int8  `msgpack:"values"`
}

// mobile is the compact layout. It is msgpack encoded inside a zstd frame.
type mobile struct {
	Version  int      `msgpack:"version"`
	Backbone string   `msgpack:"backbone"`
	Classes  []string `msgpack:"classes"`
	InputDim int      `msgpack:"input_dim"`
	Hidden   int      `msgpack:"hidden"`
	W1       tensor   `msgpack:"w1"`
	B1       tensor   `msgpack:"b1"`
	W2       tensor   `msgpack:"w2"`
	B2       tensor   `msgpack:"b2"`
}

func classNames(classes []types.SkinTone) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = string(c)
	}
	return out
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

// SaveNative writes the full-precision model.
func (m *Model) SaveNative(path string) error {
	snap := native{
		Version:  formatVersion,
		Backbone: m.cfg.Backbone,
		Classes:  classNames(m.classes),
		InputDim: m.cfg.InputDim,
		Hidden:   m.cfg.Hidden,
		Dropout:  m.cfg.Dropout,
		W1:       clone(m.w1.RawMatrix().Data),
		B1:       clone(m.b1),
		W2:       clone(m.w2.RawMatrix().Data),
		B2:       clone(m.b2),
	}
	return writeAtomic(path, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(snap)
	})
}

// SaveMobile writes the int8-quantized, compressed model.
func (m *Model) SaveMobile(path string) error {
	snap := mobile{
		Version:  formatVersion,
		Backbone: m.cfg.Backbone,
		Classes:  classNames(m.classes),
		InputDim: m.cfg.InputDim,
		Hidden:   m.cfg.Hidden,
		W1:       quantize(m.w1.RawMatrix().Data),
		B1:       quantize(m.b1),
		W2:       quantize(m.w2.RawMatrix().Data),
		B2:       quantize(m.b2),
	}
	return writeAtomic(path, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return err
		}
		if err := msgpack.NewEncoder(enc).Encode(&snap); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	})
}

func quantize(v []float64) tensor {
	var hi float64
	for _, x := range v {
		hi = math.Max(hi, math.Abs(x))
	}
	scale := hi / 127
	if scale == 0 {
		scale = 1
	}
	q := make([]int8, len(v))
	for i, x := range v {
		r := math.Round(x / scale)
		q[i] = int8(math.Max(-127, math.Min(127, r)))
	}
	return tensor{Scale: scale, Values: q}
}

func (t tensor) dequantize() []float64 {
	out := make([]float64, len(t.Values))
	for i, q := range t.Values {
		out[i] = float64(q) * t.Scale
	}
	return out
}

// writeAtomic writes to a temporary sibling and renames it over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Load reads a model saved by SaveNative (.gob) or SaveMobile (.lite).
// Loaded models can predict and evaluate but not train.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case nativeExt:
		var snap native
		if err := gob.NewDecoder(f).Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return restore(snap.Version, snap.Backbone, snap.Classes, snap.InputDim, snap.Hidden, snap.Dropout,
			snap.W1, snap.B1, snap.W2, snap.B2)

	case mobileExt:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()

		var snap mobile
		if err := msgpack.NewDecoder(dec).Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return restore(snap.Version, snap.Backbone, snap.Classes, snap.InputDim, snap.Hidden, 0,
			snap.W1.dequantize(), snap.B1.dequantize(), snap.W2.dequantize(), snap.B2.dequantize())

	default:
		return nil, fmt.Errorf("unknown model format %q (want %s or %s)", filepath.Ext(path), nativeExt, mobileExt)
	}
}

func restore(version int, backbone string, classes []string, in, hidden int, dropout float64, w1, b1, w2, b2 []float64) (*Model, error) {
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported model version %d", version)
	}

	want := tone.Classes()
	if len(classes) != len(want) {
		return nil, fmt.Errorf("model has %d classes, expected %d", len(classes), len(want))
	}
	for i, c := range classes {
		if types.SkinTone(c) != want[i] {
			return nil, fmt.Errorf("model class %d is %q, expected %q", i, c, want[i])
		}
	}

	cfg := Config{Backbone: backbone, InputDim: in, Hidden: hidden, Dropout: dropout}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("corrupt model: %w", err)
	}
	if len(w1) != in*hidden || len(b1) != hidden || len(w2) != hidden*len(want) || len(b2) != len(want) {
		return nil, fmt.Errorf("corrupt model: weight shapes do not match %dx%dx%d", in, hidden, len(want))
	}

	return &Model{
		cfg:     cfg,
		classes: want,
		w1:      mat.NewDense(in, hidden, w1),
		b1:      b1,
		w2:      mat.NewDense(hidden, len(want), w2),
		b2:      b2,
	}, nil
}
