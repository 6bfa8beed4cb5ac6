package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/skintone/internal/features"
	"github.com/andresmejia3/skintone/internal/store"
	"github.com/andresmejia3/skintone/internal/train"
	"github.com/andresmejia3/skintone/internal/utils"
	"github.com/spf13/cobra"
)

// TrainOptions holds the flags of the train command.
type TrainOptions struct {
	DataDir       string
	OutputDir     string
	Epochs        int
	BatchSize     int
	Seed          int64
	Backbone      string
	BackboneModel string
}

var trainOpts TrainOptions

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the skin-tone classifier on labeled crops and export it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrain(cmd, trainOpts)
	},
}

func init() {
	def := train.DefaultConfig()
	trainCmd.Flags().StringVarP(&trainOpts.DataDir, "data", "d", def.DataDir, "Directory holding labels.csv and the face crops")
	trainCmd.Flags().StringVarP(&trainOpts.OutputDir, "output", "o", def.OutputDir, "Directory for the exported models")
	trainCmd.Flags().IntVarP(&trainOpts.Epochs, "epochs", "e", def.Epochs, "Training epochs")
	trainCmd.Flags().IntVarP(&trainOpts.BatchSize, "batch-size", "b", def.BatchSize, "Mini-batch size")
	trainCmd.Flags().Int64Var(&trainOpts.Seed, "seed", def.Seed, "Seed for initialization, shuffling, dropout and augmentation")
	trainCmd.Flags().StringVar(&trainOpts.Backbone, "backbone", features.ColorStatsName, "Frozen feature extractor: colorstats or tflite")
	trainCmd.Flags().StringVar(&trainOpts.BackboneModel, "backbone-model", "", "Feature-extractor .tflite file (tflite backbone only)")
	rootCmd.AddCommand(trainCmd)
}

// trainConfig validates the train flags and merges them into the default schedule.
func trainConfig(opts TrainOptions) (train.Config, error) {
	cfg := train.DefaultConfig()
	if opts.Epochs < 1 {
		return cfg, fmt.Errorf("epochs must be >= 1, got %d", opts.Epochs)
	}
	if opts.BatchSize < 1 {
		return cfg, fmt.Errorf("batch-size must be >= 1, got %d", opts.BatchSize)
	}
	switch opts.Backbone {
	case features.ColorStatsName:
	case features.TFLiteName:
		if opts.BackboneModel == "" {
			return cfg, fmt.Errorf("--backbone-model is required with the tflite backbone")
		}
	default:
		return cfg, fmt.Errorf("unknown backbone %q (want %s or %s)", opts.Backbone, features.ColorStatsName, features.TFLiteName)
	}

	cfg.DataDir = opts.DataDir
	cfg.OutputDir = opts.OutputDir
	cfg.Epochs = opts.Epochs
	cfg.BatchSize = opts.BatchSize
	cfg.Seed = opts.Seed
	return cfg, nil
}

func runTrain(cmd *cobra.Command, opts TrainOptions) error {
	ctx := cmd.Context()

	cfg, err := trainConfig(opts)
	if err != nil {
		utils.ShowError("Invalid train flags", err, nil)
		return err
	}
	cfg.Progress = func(total int) train.Progress {
		return newBar(total, "🧠 Training")
	}

	if _, err := train.LabelsPath(cfg.DataDir); err != nil {
		utils.ShowError("No labels found, run `skintone label` first", err, nil)
		return err
	}

	bb, err := features.New(opts.Backbone, opts.BackboneModel)
	if err != nil {
		utils.ShowError("Failed to load backbone", err, nil)
		return err
	}
	defer bb.Close()

	report, err := train.Run(ctx, cfg, bb)
	if err != nil {
		utils.ShowError("Training failed", err, nil)
		return err
	}

	final, _ := report.Final()
	fmt.Fprintf(os.Stderr, "✅ Trained on %d samples (%d held out) with %s\n", report.TrainSize, report.ValSize, report.Backbone)
	if final.ValAccuracy != nil {
		fmt.Fprintf(os.Stderr, "📈 Final loss %.4f, accuracy %.1f%%, validation accuracy %.1f%%\n",
			final.Loss, final.Accuracy*100, *final.ValAccuracy*100)
	} else {
		fmt.Fprintf(os.Stderr, "📈 Final loss %.4f, accuracy %.1f%% (no validation samples)\n", final.Loss, final.Accuracy*100)
	}
	for _, a := range report.Artifacts {
		fmt.Fprintf(os.Stderr, "💾 %s\n", a)
	}

	db, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Label mirror unavailable", err, nil)
		return err
	}
	if db != nil {
		id, err := db.RecordTrainingRun(ctx, store.TrainingRun{
			Backbone:    report.Backbone,
			Epochs:      report.Epochs,
			TrainSize:   report.TrainSize,
			ValSize:     report.ValSize,
			Loss:        final.Loss,
			Accuracy:    final.Accuracy,
			ValAccuracy: final.ValAccuracy,
			Artifact:    report.Artifacts[len(report.Artifacts)-1],
		})
		if err != nil {
			utils.ShowError("Failed to record training run", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🗄️  Recorded training run #%d\n", id)
	}
	return nil
}
