// Package train fits the skin-tone head on labeled face crops and exports it.
package train

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/andresmejia3/skintone/internal/classifier"
	"github.com/andresmejia3/skintone/internal/dataset"
	"github.com/andresmejia3/skintone/internal/event"
	"github.com/andresmejia3/skintone/internal/features"
	"github.com/andresmejia3/skintone/internal/imgproc"
	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/utils"
)

var log = event.Log

// ErrLabelsMissing is returned before any work when the data directory has no labels.csv.
var ErrLabelsMissing = errors.New("labels.csv not found")

// Progress is satisfied by *progressbar.ProgressBar.
type Progress interface {
	Add(int) error
}

// Config is everything a training run needs.
type Config struct {
	DataDir         string
	OutputDir       string
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	Seed            int64
	// Rotation is the maximum augmentation angle in degrees.
	Rotation     float64
	Hidden       int
	Dropout      float64
	LearningRate float64
	// Progress, when set, is called once with the number of epochs.
	Progress func(total int) Progress
}

// DefaultConfig returns the stock training schedule.
func DefaultConfig() Config {
	return Config{
		DataDir:         "processed",
		OutputDir:       "models",
		Epochs:          6,
		BatchSize:       8,
		ValidationSplit: 0.2,
		Seed:            42,
		Rotation:        10,
		Hidden:          128,
		Dropout:         0.3,
		LearningRate:    0.001,
	}
}

func (c Config) validate() error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.ValidationSplit < 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("validation split must be in [0,1), got %v", c.ValidationSplit)
	}
	return nil
}

type example struct {
	name  string
	img   image.Image
	label int
}

// Run trains a head on bb and writes the native model, the mobile model and
// the report into cfg.OutputDir. Nothing is written unless every epoch completes.
func Run(ctx context.Context, cfg Config, bb features.Backbone) (Report, error) {
	report := Report{
		Backbone:   bb.Name(),
		FeatureDim: bb.Dim(),
		Epochs:     cfg.Epochs,
		BatchSize:  cfg.BatchSize,
		Seed:       cfg.Seed,
	}

	if err := cfg.validate(); err != nil {
		return report, err
	}

	csvPath, err := LabelsPath(cfg.DataDir)
	if err != nil {
		return report, err
	}

	records, err := dataset.ReadFile(csvPath)
	if err != nil {
		return report, fmt.Errorf("failed to read %s: %w", csvPath, err)
	}
	report.Records = len(records)

	samples, rejected := dataset.Assign(records)
	for _, r := range rejected {
		log.Warnf("train: skipping %s", r)
	}
	report.Rejected = len(rejected)

	usable := samples[:0:0]
	for _, s := range samples {
		if !utils.FileExists(filepath.Join(cfg.DataDir, s.Record.Image)) {
			log.Warnf("train: image %s listed in labels.csv is missing, skipping", s.Record.Image)
			report.Missing++
			continue
		}
		usable = append(usable, s)
	}
	if len(usable) == 0 {
		return report, fmt.Errorf("no usable samples in %s", csvPath)
	}

	report.ClassCounts = make(map[string]int)
	for t, n := range dataset.Counts(usable) {
		report.ClassCounts[string(t)] = n
	}

	trainSet, valSet := dataset.Split(usable, cfg.ValidationSplit)
	if len(trainSet) == 0 {
		return report, fmt.Errorf("validation split %.2f leaves no training samples", cfg.ValidationSplit)
	}
	report.TrainSize = len(trainSet)
	report.ValSize = len(valSet)
	log.Infof("train: %d training and %d validation samples", len(trainSet), len(valSet))

	trainEx, err := load(cfg.DataDir, trainSet)
	if err != nil {
		return report, err
	}
	valEx, err := load(cfg.DataDir, valSet)
	if err != nil {
		return report, err
	}

	valX, valY, err := extract(bb, valEx)
	if err != nil {
		return report, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	model, err := classifier.New(classifier.Config{
		Backbone:     bb.Name(),
		InputDim:     bb.Dim(),
		Hidden:       cfg.Hidden,
		Dropout:      cfg.Dropout,
		LearningRate: cfg.LearningRate,
	}, rng)
	if err != nil {
		return report, err
	}

	var bar Progress
	if cfg.Progress != nil {
		bar = cfg.Progress(cfg.Epochs)
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		stats, err := runEpoch(model, bb, trainEx, rng, cfg)
		if err != nil {
			return report, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		stats.Epoch = epoch

		if len(valX) > 0 {
			vl, va, err := model.Evaluate(valX, valY)
			if err != nil {
				return report, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
			stats.ValLoss, stats.ValAccuracy = &vl, &va
			log.Infof("train: epoch %d/%d loss %.4f acc %.3f val_loss %.4f val_acc %.3f",
				epoch, cfg.Epochs, stats.Loss, stats.Accuracy, vl, va)
		} else {
			log.Infof("train: epoch %d/%d loss %.4f acc %.3f", epoch, cfg.Epochs, stats.Loss, stats.Accuracy)
		}

		report.History = append(report.History, stats)
		if bar != nil {
			bar.Add(1)
		}
	}

	if err := utils.EnsureDir(cfg.OutputDir); err != nil {
		return report, err
	}

	nativePath := filepath.Join(cfg.OutputDir, classifier.NativeFile)
	if err := model.SaveNative(nativePath); err != nil {
		return report, fmt.Errorf("failed to save native model: %w", err)
	}
	mobilePath := filepath.Join(cfg.OutputDir, classifier.MobileFile)
	if err := model.SaveMobile(mobilePath); err != nil {
		removeArtifacts(nativePath)
		return report, fmt.Errorf("failed to convert model for mobile: %w", err)
	}
	report.Artifacts = []string{nativePath, mobilePath}

	reportPath := filepath.Join(cfg.OutputDir, ReportFile)
	if err := WriteReport(reportPath, report); err != nil {
		removeArtifacts(nativePath, mobilePath)
		report.Artifacts = nil
		return report, fmt.Errorf("failed to write %s: %w", reportPath, err)
	}
	return report, nil
}

// LabelsPath returns the labels.csv inside dataDir, or ErrLabelsMissing.
func LabelsPath(dataDir string) (string, error) {
	csvPath := filepath.Join(dataDir, dataset.LabelsFile)
	if !utils.FileExists(csvPath) {
		return csvPath, fmt.Errorf("%w: %s", ErrLabelsMissing, csvPath)
	}
	return csvPath, nil
}

// removeArtifacts deletes models written by a run that failed afterwards.
func removeArtifacts(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warnf("train: failed to remove partial artifact %s: %s", p, err)
		}
	}
}

func runEpoch(model *classifier.Model, bb features.Backbone, set []example, rng *rand.Rand, cfg Config) (EpochStats, error) {
	var stats EpochStats
	order := rng.Perm(len(set))

	for start := 0; start < len(order); start += cfg.BatchSize {
		end := min(start+cfg.BatchSize, len(order))

		x := make([][]float64, 0, end-start)
		y := make([]int, 0, end-start)
		for _, i := range order[start:end] {
			f, err := bb.Features(Augment(set[i].img, rng, cfg.Rotation))
			if err != nil {
				return stats, fmt.Errorf("features for %s: %w", set[i].name, err)
			}
			x = append(x, f)
			y = append(y, set[i].label)
		}

		loss, acc, err := model.TrainBatch(x, y)
		if err != nil {
			return stats, err
		}
		n := float64(len(y))
		stats.Loss += loss * n
		stats.Accuracy += acc * n
	}

	stats.Loss /= float64(len(set))
	stats.Accuracy /= float64(len(set))
	return stats, nil
}

func load(dir string, samples []dataset.Sample) ([]example, error) {
	out := make([]example, 0, len(samples))
	for _, s := range samples {
		img, err := imgproc.Open(filepath.Join(dir, s.Record.Image))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", s.Record.Image, err)
		}
		out = append(out, example{name: s.Record.Image, img: img, label: tone.Index(s.Tone)})
	}
	return out, nil
}

func extract(bb features.Backbone, set []example) ([][]float64, []int, error) {
	x := make([][]float64, 0, len(set))
	y := make([]int, 0, len(set))
	for _, e := range set {
		f, err := bb.Features(e.img)
		if err != nil {
			return nil, nil, fmt.Errorf("features for %s: %w", e.name, err)
		}
		x = append(x, f)
		y = append(y, e.label)
	}
	return x, y, nil
}
