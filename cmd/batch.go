package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/genre-sonar/internal/app"
)

var (
	batchMaxConcurrency int
	batchTimeout        time.Duration
	batchQuiet          bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [flags] <file|dir> [file|dir...]",
	Short: "Classify many audio files concurrently",
	Long: `Classify every .wav and .mp3 file under the given paths and print a summary.

Directories are walked recursively. Files named explicitly are always
attempted, so unsupported ones show up as failures in the summary. The run
stops early only when the model itself fails.

Examples:
  genre-sonar batch ./library
  genre-sonar batch --max-concurrency 8 -o json --output-file summary.json ./a ./b`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchMaxConcurrency, "max-concurrency", 0,
		"files analysed in parallel (default from pipeline.max_concurrency)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 0,
		"per-file analysis deadline (default from pipeline.timeout)")
	batchCmd.Flags().BoolVarP(&batchQuiet, "quiet", "q", false,
		"hide the progress bar")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	appCtx := newAppContext(cmd)
	appCtx.MaxConcurrent = batchMaxConcurrency
	appCtx.Timeout = batchTimeout
	appCtx.Quiet = batchQuiet

	classifier, err := app.NewClassifierApp(appCtx)
	if err != nil {
		return err
	}
	defer classifier.Close()

	return classifier.RunBatch(ctx, args)
}
