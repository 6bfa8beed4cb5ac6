package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/andresmejia3/skintone/internal/event"
	"github.com/andresmejia3/skintone/internal/store"
	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	// DB is the optional label mirror. It stays nil unless --db or POSTGRES_HOST is set.
	DB *store.Store
	// dbURL is the connection string
	dbURL   string
	verbose bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "skintone",
	Short: "Face skin-tone labeling and classifier training pipeline",
	Long: `skintone fetches sample portraits, crops and color-samples the largest face
in each, and trains a three-class (Deep / Medium / Fair) skin-tone classifier.

Stages are run one at a time: fetch -> label -> train. Each stage reads the
previous stage's directory.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file if present (ignore errors)
		_ = godotenv.Load()
		event.SetVerbose(verbose)

		if dbURL == "" {
			dbURL = dbURLFromEnv()
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// The command context may already be cancelled (Ctrl+C); closing still needs to reach the server.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// Execute runs the CLI. fang handles --version, styled errors and SIGINT/SIGTERM.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the label mirror (default: built from POSTGRES_* env vars, disabled if unset)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// dbURLFromEnv builds a connection string from POSTGRES_* variables, or returns
// "" when POSTGRES_HOST is not set.
func dbURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// openStore connects the label mirror on first use. It returns nil, nil when no
// database is configured.
func openStore(ctx context.Context) (*store.Store, error) {
	if DB != nil || dbURL == "" {
		return DB, nil
	}
	s, err := store.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return DB, nil
}

func newBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
