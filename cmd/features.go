package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/genre-sonar/internal/app"
)

var featuresScaled bool

var featuresCmd = &cobra.Command{
	Use:   "features [flags] <file>",
	Short: "Print the feature vector of an audio file",
	Long: `Decode a file and print its 32 named features in model order.

With --scaled the standardized values the classifier sees are printed
alongside the raw ones.

Examples:
  genre-sonar features song.wav
  genre-sonar features --scaled -o csv song.mp3 > features.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresCmd.Flags().BoolVar(&featuresScaled, "scaled", false,
		"also print the standardized feature values")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	appCtx := newAppContext(cmd)
	appCtx.Scaled = featuresScaled

	classifier, err := app.NewClassifierApp(appCtx)
	if err != nil {
		return err
	}
	defer classifier.Close()

	return classifier.Features(ctx, args[0])
}
