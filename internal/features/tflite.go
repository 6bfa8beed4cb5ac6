//go:build tflite

package features

import (
	"fmt"
	"image"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/andresmejia3/skintone/internal/imgproc"
	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/xnnpack"
)

// TFLite runs a pretrained feature-extractor model, e.g. MobileNetV3Small with
// average pooling and no top. Its output tensor is the feature vector.
type TFLite struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	name        string
	dim         int
	inFloats    []float32
}

// NewTFLite loads modelPath and allocates its tensors.
func NewTFLite(modelPath string) (Backbone, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("tflite backbone requires a model path")
	}

	log.Infof("features: loading %s", filepath.Base(modelPath))

	model := tflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, fmt.Errorf("features: load model %s failed", modelPath)
	}

	options := tflite.NewInterpreterOptions()
	options.AddDelegate(xnnpack.New(xnnpack.DelegateOptions{NumThreads: 2}))
	options.SetNumThread(4)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		log.Warnf("features: tflite: %s", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("features: create interpreter failed")
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("features: allocate tensors failed")
	}

	input := interpreter.GetInputTensor(0)
	if input.Type() != tflite.Float32 {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("features: model input must be float32, got %v", input.Type())
	}
	if input.Dim(1) != imgproc.TargetSize || input.Dim(2) != imgproc.TargetSize || input.Dim(3) != 3 {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("features: model input must be 1x%dx%dx3", imgproc.TargetSize, imgproc.TargetSize)
	}

	output := interpreter.GetOutputTensor(0)

	return &TFLite{
		model:       model,
		options:     options,
		interpreter: interpreter,
		name:        TFLiteName + ":" + filepath.Base(modelPath),
		dim:         output.Dim(output.NumDims() - 1),
		inFloats:    make([]float32, imgproc.TargetSize*imgproc.TargetSize*3),
	}, nil
}

func (t *TFLite) Name() string { return t.name }

func (t *TFLite) Dim() int { return t.dim }

// Features scales img to TargetSize, divides by 255 and runs inference.
func (t *TFLite) Features(img image.Image) (out []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("features: %s (inference panic)\nstack: %s", r, debug.Stack())
		}
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	src := imgproc.ToRGB(img)
	if b := src.Bounds(); b.Dx() != imgproc.TargetSize || b.Dy() != imgproc.TargetSize {
		src = imgproc.Resize(src, imgproc.TargetSize)
	}

	ff := t.inFloats
	for i, j := 0, 0; i+3 < len(src.Pix); i, j = i+4, j+3 {
		ff[j] = float32(src.Pix[i]) / 255
		ff[j+1] = float32(src.Pix[i+1]) / 255
		ff[j+2] = float32(src.Pix[i+2]) / 255
	}
	copy(t.interpreter.GetInputTensor(0).Float32s(), ff)

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("features: run inference failed")
	}

	scores := t.interpreter.GetOutputTensor(0).Float32s()
	out = make([]float64, len(scores))
	for i, v := range scores {
		out[i] = float64(v)
	}
	return out, nil
}

func (t *TFLite) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interpreter != nil {
		t.interpreter.Delete()
		t.options.Delete()
		t.model.Delete()
		t.interpreter = nil
	}
	return nil
}
