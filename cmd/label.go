package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/skintone/internal/detect"
	"github.com/andresmejia3/skintone/internal/label"
	"github.com/andresmejia3/skintone/internal/utils"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

// LabelOptions holds the flags of the label command.
type LabelOptions struct {
	InputDir           string
	OutputDir          string
	Detector           string
	CascadePath        string
	DetectionThreshold float64
	MinFace            int
	WorkerScript       string
	WorkerTimeout      string
	DlibModels         string
	Parquet            bool
}

var labelOpts LabelOptions

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Detect, crop and color-sample the largest face in every raw image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLabel(cmd, labelOpts)
	},
}

func init() {
	def := detect.DefaultConfig()
	labelCmd.Flags().StringVarP(&labelOpts.InputDir, "input", "i", "raw", "Directory of raw images")
	labelCmd.Flags().StringVarP(&labelOpts.OutputDir, "output", "o", "processed", "Directory for face crops and labels.csv")
	labelCmd.Flags().StringVar(&labelOpts.Detector, "detector", def.Kind, "Face detector: pigo, python (MTCNN worker) or dlib")
	labelCmd.Flags().StringVar(&labelOpts.CascadePath, "cascade", def.CascadePath, "Pigo cascade file (the repo ships cascade/facefinder)")
	labelCmd.Flags().Float64Var(&labelOpts.DetectionThreshold, "detection-threshold", -1, "Minimum detection score (default depends on the detector)")
	labelCmd.Flags().IntVar(&labelOpts.MinFace, "min-face", def.MinSize, "Smallest face edge in pixels (pigo)")
	labelCmd.Flags().StringVar(&labelOpts.WorkerScript, "worker-script", def.Script, "Python MTCNN worker script")
	labelCmd.Flags().StringVar(&labelOpts.WorkerTimeout, "worker-timeout", def.ReadTimeout.String(), "Per-image timeout for the Python worker (e.g. '60s')")
	labelCmd.Flags().StringVar(&labelOpts.DlibModels, "dlib-models", def.ModelDir, "Directory with dlib model files")
	labelCmd.Flags().BoolVar(&labelOpts.Parquet, "parquet", false, "Also write labels.parquet")
	rootCmd.AddCommand(labelCmd)
}

// detectorConfig validates the label flags and turns them into a detector config.
func detectorConfig(opts LabelOptions) (detect.Config, error) {
	cfg := detect.DefaultConfig()

	info, err := os.Stat(opts.InputDir)
	if err != nil {
		return cfg, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return cfg, fmt.Errorf("input path %s is not a directory", opts.InputDir)
	}

	switch opts.Detector {
	case "pigo", "python", "dlib":
	default:
		return cfg, fmt.Errorf("unknown detector %q (want pigo, python or dlib)", opts.Detector)
	}
	if opts.MinFace < 1 {
		return cfg, fmt.Errorf("min-face must be >= 1, got %d", opts.MinFace)
	}
	timeout, err := time.ParseDuration(opts.WorkerTimeout)
	if err != nil {
		return cfg, fmt.Errorf("invalid worker-timeout (use '60s', '500ms'): %w", err)
	}

	cfg.Kind = opts.Detector
	cfg.CascadePath = opts.CascadePath
	cfg.MinSize = opts.MinFace
	cfg.Script = opts.WorkerScript
	cfg.ReadTimeout = timeout
	cfg.ModelDir = opts.DlibModels
	cfg.Threshold = opts.DetectionThreshold
	if cfg.Threshold < 0 {
		cfg.Threshold = detect.DefaultThreshold(cfg.Kind)
	}
	return cfg, nil
}

func runLabel(cmd *cobra.Command, opts LabelOptions) error {
	ctx := cmd.Context()

	cfg, err := detectorConfig(opts)
	if err != nil {
		utils.ShowError("Invalid label flags", err, nil)
		return err
	}

	det, err := detect.New(ctx, cfg)
	if err != nil {
		utils.ShowError("Failed to start face detector", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "🔍 Labeling %s/ with the %s detector\n", opts.InputDir, cfg.Kind)

	sum, err := label.Run(ctx, label.Config{
		InputDir:  opts.InputDir,
		OutputDir: opts.OutputDir,
		Parquet:   opts.Parquet,
		Progress: func(total int) label.Progress {
			return newBar(total, "🏷️  Labeling")
		},
	}, det)

	// The worker's stderr buffer is only safe to read once the process has exited.
	det.Close()
	sc := workerCommand(det)

	if err != nil {
		utils.ShowError("Labeling failed", err, sc)
		return err
	}
	if sum.Failed > 0 && sc != nil && sc.Stderr.Len() > 0 {
		utils.ShowError(fmt.Sprintf("%s could not be labeled", english.Plural(sum.Failed, "image", "")), nil, sc)
	}

	fmt.Fprintf(os.Stderr, "✅ Labeled %s of %d (%d without a face, %d failed)\n",
		english.Plural(sum.Processed, "image", ""), sum.Total, sum.NoFace, sum.Failed)

	db, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Label mirror unavailable", err, nil)
		return err
	}
	if db != nil {
		if err := db.ReplaceLabels(ctx, sum.Records); err != nil {
			utils.ShowError("Failed to mirror labels to database", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🗄️  Mirrored %s to PostgreSQL\n", english.Plural(len(sum.Records), "label", ""))
	}
	return nil
}

// workerCommand returns the Python worker process behind det, if any.
func workerCommand(det detect.Detector) *utils.SafeCommand {
	if py, ok := det.(*detect.Python); ok {
		return py.Worker().Cmd
	}
	return nil
}
