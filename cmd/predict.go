package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/skintone/internal/classifier"
	"github.com/andresmejia3/skintone/internal/detect"
	"github.com/andresmejia3/skintone/internal/features"
	"github.com/andresmejia3/skintone/internal/imgproc"
	"github.com/andresmejia3/skintone/internal/label"
	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/utils"
	"github.com/spf13/cobra"
)

// PredictOptions holds the flags of the predict command.
type PredictOptions struct {
	ModelPath     string
	BackboneModel string
	CropFace      bool
	CascadePath   string
}

var predictOpts PredictOptions

var predictCmd = &cobra.Command{
	Use:   "predict <image>",
	Short: "Classify the skin tone of one face image with an exported model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPredict(cmd, args[0], predictOpts)
	},
}

func init() {
	predictCmd.Flags().StringVarP(&predictOpts.ModelPath, "model", "m", filepath.Join("models", classifier.MobileFile), "Exported model (.lite or .gob)")
	predictCmd.Flags().StringVar(&predictOpts.BackboneModel, "backbone-model", "", "Feature-extractor .tflite file, for models trained on the tflite backbone")
	predictCmd.Flags().BoolVar(&predictOpts.CropFace, "crop-face", false, "Detect and crop the largest face first (pigo)")
	predictCmd.Flags().StringVar(&predictOpts.CascadePath, "cascade", detect.DefaultConfig().CascadePath, "Pigo cascade file used with --crop-face")
	rootCmd.AddCommand(predictCmd)
}

// backboneFor returns the backbone name a model was trained with. tflite
// models record "tflite:<file>".
func backboneFor(model *classifier.Model) string {
	name := model.Backbone()
	if strings.HasPrefix(name, features.TFLiteName) {
		return features.TFLiteName
	}
	return name
}

func runPredict(cmd *cobra.Command, path string, opts PredictOptions) error {
	ctx := cmd.Context()

	if !utils.FileExists(path) {
		err := fmt.Errorf("%s does not exist or is not a file", path)
		utils.ShowError("Invalid image", err, nil)
		return err
	}

	model, err := classifier.Load(opts.ModelPath)
	if err != nil {
		utils.ShowError("Failed to load model", err, nil)
		return err
	}

	bb, err := features.New(backboneFor(model), opts.BackboneModel)
	if err != nil {
		utils.ShowError("Failed to load backbone", err, nil)
		return err
	}
	defer bb.Close()
	if bb.Dim() != model.InputDim() {
		err := fmt.Errorf("backbone %s yields %d features, model expects %d", bb.Name(), bb.Dim(), model.InputDim())
		utils.ShowError("Model and backbone do not match", err, nil)
		return err
	}

	img, err := imgproc.Open(path)
	if err != nil {
		utils.ShowError("Failed to decode image", err, nil)
		return err
	}

	if opts.CropFace {
		cfg := detect.DefaultConfig()
		cfg.CascadePath = opts.CascadePath
		det, err := detect.NewPigo(cfg)
		if err != nil {
			utils.ShowError("Failed to start face detector", err, nil)
			return err
		}
		boxes, err := det.Detect(ctx, img)
		det.Close()
		if err != nil {
			utils.ShowError("Face detection failed", err, nil)
			return err
		}
		box, ok := detect.Largest(boxes)
		if !ok {
			utils.ShowError("Face detection failed", label.ErrNoFace, nil)
			return label.ErrNoFace
		}
		if img, err = imgproc.Crop(img, box.Clamp()); err != nil {
			utils.ShowError("Failed to crop face", err, nil)
			return err
		}
	}

	feats, err := bb.Features(imgproc.Resize(img, imgproc.TargetSize))
	if err != nil {
		utils.ShowError("Feature extraction failed", err, nil)
		return err
	}
	pred, err := model.Predict(feats)
	if err != nil {
		utils.ShowError("Prediction failed", err, nil)
		return err
	}

	fmt.Printf("%s\t%.3f\n", pred.Tone, pred.Confidence)
	for _, t := range tone.Classes() {
		fmt.Fprintf(os.Stderr, "   %-7s %.3f\n", t, pred.Probabilities[t])
	}
	return nil
}
