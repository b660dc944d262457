package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/genre-sonar/internal/app"
)

var (
	classifyTimeout      time.Duration
	classifyShowFeatures bool
	classifyKeepPlayback bool
	classifyPlaybackDir  string
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify [flags] <file> [file...]",
	Short: "Predict the genre of one or more audio files",
	Long: `Decode each file, extract its feature vector and print the predicted genre.

Only .wav and .mp3 files are accepted. Clips longer than the analysis window
are truncated to their first 30 seconds. A file that cannot be classified
prints a message and the remaining files are still processed.

Examples:
  # Classify a single file
  genre-sonar classify song.mp3

  # Show the raw and standardized feature vector as JSON
  genre-sonar classify --show-features -o json song.wav

  # Keep the playback copy of each upload
  genre-sonar classify --keep-playback --playback-dir ./uploads a.wav b.mp3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().DurationVar(&classifyTimeout, "timeout", 0,
		"per-file analysis deadline (default from pipeline.timeout)")
	classifyCmd.Flags().BoolVar(&classifyShowFeatures, "show-features", false,
		"include the feature vector in the output")
	classifyCmd.Flags().BoolVar(&classifyKeepPlayback, "keep-playback", false,
		"keep the playback copy of each upload")
	classifyCmd.Flags().StringVar(&classifyPlaybackDir, "playback-dir", "",
		"directory for playback copies (default is the system temp dir)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	appCtx := newAppContext(cmd)
	appCtx.Timeout = classifyTimeout
	appCtx.ShowFeatures = classifyShowFeatures
	appCtx.KeepPlayback = classifyKeepPlayback
	appCtx.PlaybackDir = classifyPlaybackDir

	classifier, err := app.NewClassifierApp(appCtx)
	if err != nil {
		return err
	}
	defer classifier.Close()

	for _, path := range args {
		if err := classifier.Classify(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// newAppContext builds the application context shared by all commands
func newAppContext(cmd *cobra.Command) *app.Context {
	return &app.Context{
		OutputFile:     outputFile,
		ClassifierPath: classifierPath,
		ScalerPath:     scalerPath,
		Verbose:        verbose || viper.GetBool("verbose"),
		Stdout:         cmd.OutOrStdout(),
		Stderr:         cmd.ErrOrStderr(),
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
