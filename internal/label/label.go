// Package label turns raw photos into face crops and the labels.csv ground truth.
package label

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/andresmejia3/skintone/internal/dataset"
	"github.com/andresmejia3/skintone/internal/detect"
	"github.com/andresmejia3/skintone/internal/event"
	"github.com/andresmejia3/skintone/internal/imgproc"
	"github.com/andresmejia3/skintone/internal/types"
	"github.com/andresmejia3/skintone/internal/utils"
)

var log = event.Log

// ErrNoFace marks an image where the detector found nothing.
var ErrNoFace = errors.New("no face detected")

// Progress is satisfied by *progressbar.ProgressBar.
type Progress interface {
	Add(int) error
}

// Config is everything a labeling run needs.
type Config struct {
	InputDir  string
	OutputDir string
	// Parquet additionally writes labels.parquet at the end of the run.
	Parquet bool
	// Progress, when set, is called once with the number of inputs.
	Progress func(total int) Progress
}

// Summary reports what a run did.
type Summary struct {
	Total     int
	Processed int
	NoFace    int
	Failed    int
	Records   []types.LabelRecord
}

// Inputs lists every entry matching *.* in dir, in lexical order.
func Inputs(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.*"))
}

// Run labels every input image. Per-file failures are logged and counted; only
// setup failures (output dir, CSV) and cancellation end the run early.
func Run(ctx context.Context, cfg Config, det detect.Detector) (Summary, error) {
	var sum Summary

	if err := utils.EnsureDir(cfg.OutputDir); err != nil {
		return sum, err
	}

	csvPath := filepath.Join(cfg.OutputDir, dataset.LabelsFile)
	w, err := dataset.Create(csvPath)
	if err != nil {
		return sum, fmt.Errorf("failed to create %s: %w", csvPath, err)
	}
	defer w.Close()

	inputs, err := Inputs(cfg.InputDir)
	if err != nil {
		return sum, err
	}
	sum.Total = len(inputs)

	var bar Progress
	if cfg.Progress != nil {
		bar = cfg.Progress(len(inputs))
	}

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec, err := ProcessFile(ctx, det, path, cfg.OutputDir)
		switch {
		case errors.Is(err, ErrNoFace):
			log.Infof("label: no face in %s", filepath.Base(path))
			sum.NoFace++
		case err != nil:
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			log.Errorf("label: %s: %s", filepath.Base(path), err)
			sum.Failed++
		default:
			if err := w.Write(rec); err != nil {
				return sum, fmt.Errorf("failed to append to %s: %w", csvPath, err)
			}
			log.Infof("label: processed %s avg %v", rec.Image, rec.Avg)
			sum.Records = append(sum.Records, rec)
			sum.Processed++
		}

		if bar != nil {
			bar.Add(1)
		}
	}

	if err := w.Close(); err != nil {
		return sum, err
	}

	if cfg.Parquet {
		pq := filepath.Join(cfg.OutputDir, dataset.ParquetFile)
		if err := dataset.WriteParquet(pq, sum.Records); err != nil {
			return sum, fmt.Errorf("failed to write %s: %w", pq, err)
		}
	}

	return sum, nil
}

// ProcessFile labels a single image: detect, pick the largest face, clamp, crop,
// sample the center color, and save the 224x224 crop under the same name in outDir.
func ProcessFile(ctx context.Context, det detect.Detector, path, outDir string) (types.LabelRecord, error) {
	var rec types.LabelRecord

	img, err := imgproc.Open(path)
	if err != nil {
		return rec, fmt.Errorf("decode: %w", err)
	}

	boxes, err := det.Detect(ctx, img)
	if err != nil {
		return rec, fmt.Errorf("detect: %w", err)
	}

	box, ok := detect.Largest(boxes)
	if !ok {
		return rec, ErrNoFace
	}
	box = box.Clamp()

	crop, err := imgproc.Crop(img, box)
	if err != nil {
		return rec, err
	}

	avg, err := imgproc.CenterAverage(crop, box.W, box.H)
	if err != nil {
		return rec, err
	}

	name := filepath.Base(path)
	if err := imgproc.Save(imgproc.Resize(crop, imgproc.TargetSize), filepath.Join(outDir, name)); err != nil {
		return rec, fmt.Errorf("save crop: %w", err)
	}

	return types.LabelRecord{
		Image: name,
		Box:   types.BoundingBox{X: box.X, Y: box.Y, W: box.W, H: box.H},
		Avg:   avg,
	}, nil
}
