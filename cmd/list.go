package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/skintone/internal/dataset"
	"github.com/andresmejia3/skintone/internal/store"
	"github.com/andresmejia3/skintone/internal/tone"
	"github.com/andresmejia3/skintone/internal/utils"
	"github.com/spf13/cobra"
)

var (
	listDataDir string
	listFromDB  bool
	listRuns    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List labeled faces with their luminance and tone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listRuns || listFromDB {
			return runListDB(cmd)
		}
		return runListCSV()
	},
}

func init() {
	listCmd.Flags().StringVarP(&listDataDir, "data", "d", "processed", "Directory holding labels.csv")
	listCmd.Flags().BoolVar(&listFromDB, "from-db", false, "Read labels from the PostgreSQL mirror instead of labels.csv")
	listCmd.Flags().BoolVar(&listRuns, "runs", false, "List recorded training runs (requires a database)")
	rootCmd.AddCommand(listCmd)
}

func runListCSV() error {
	path := filepath.Join(listDataDir, dataset.LabelsFile)
	records, err := dataset.ReadFile(path)
	if err != nil {
		utils.ShowError("Failed to read labels", err, nil)
		return err
	}

	rows := make([]store.LabelRow, 0, len(records))
	for _, r := range records {
		y := tone.Luminance(r.Avg)
		t, _ := tone.Bucket(y)
		rows = append(rows, store.LabelRow{LabelRecord: r, Luminance: y, Tone: t})
	}
	printLabels(os.Stdout, rows)
	return nil
}

func runListDB(cmd *cobra.Command) error {
	ctx := cmd.Context()
	db, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Label mirror unavailable", err, nil)
		return err
	}
	if db == nil {
		err := fmt.Errorf("no database configured (set --db or POSTGRES_HOST)")
		utils.ShowError("Label mirror unavailable", err, nil)
		return err
	}

	if listRuns {
		runs, err := db.ListTrainingRuns(ctx)
		if err != nil {
			utils.ShowError("Failed to list training runs", err, nil)
			return err
		}
		printRuns(os.Stdout, runs)
		return nil
	}

	rows, err := db.ListLabels(ctx)
	if err != nil {
		utils.ShowError("Failed to list labels", err, nil)
		return err
	}
	printLabels(os.Stdout, rows)
	return nil
}

func printLabels(out io.Writer, rows []store.LabelRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No labels found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tFACE\tAVG RGB\tLUMINANCE\tTONE")
	fmt.Fprintln(w, "-----\t----\t-------\t---------\t----")

	counts := map[string]int{}
	for _, r := range rows {
		t := string(r.Tone)
		if t == "" {
			t = "-"
		}
		counts[t]++
		fmt.Fprintf(w, "%s\t%s\t%d,%d,%d\t%.1f\t%s\n", r.Image, r.Box, r.Avg.R, r.Avg.G, r.Avg.B, r.Luminance, t)
	}
	w.Flush()

	fmt.Fprintln(out)
	for _, t := range tone.Classes() {
		fmt.Fprintf(out, "%-7s %d\n", t, counts[string(t)])
	}
	if n := counts["-"]; n > 0 {
		fmt.Fprintf(out, "%-7s %d\n", "invalid", n)
	}
}

func printRuns(out io.Writer, runs []store.TrainingRun) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No training runs recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tBACKBONE\tEPOCHS\tTRAIN/VAL\tLOSS\tACC\tVAL ACC\tCREATED")
	fmt.Fprintln(w, "--\t--------\t------\t---------\t----\t---\t-------\t-------")
	for _, r := range runs {
		va := "-"
		if r.ValAccuracy != nil {
			va = fmt.Sprintf("%.3f", *r.ValAccuracy)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d/%d\t%.4f\t%.3f\t%s\t%s\n",
			r.ID, r.Backbone, r.Epochs, r.TrainSize, r.ValSize, r.Loss, r.Accuracy, va,
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
