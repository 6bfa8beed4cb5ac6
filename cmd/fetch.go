package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/skintone/internal/acquire"
	"github.com/andresmejia3/skintone/internal/utils"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the sample face images into raw/",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(os.Stderr, "📥 Fetching %s into %s/\n",
			english.Plural(len(acquire.DefaultSources), "sample image", ""), acquire.DefaultDir)

		sum, err := acquire.Run(cmd.Context(), acquire.Config{
			Dir:     acquire.DefaultDir,
			Sources: acquire.DefaultSources,
		})
		if err != nil {
			utils.ShowError("Fetch aborted", err, nil)
			return err
		}

		fmt.Fprintf(os.Stderr, "✅ Downloaded %s, %d already present, %d failed\n",
			english.Plural(sum.Downloaded, "image", ""), sum.Skipped, sum.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
