package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/genre-sonar/configs"
	"github.com/RyanBlaney/genre-sonar/internal/app"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect and convert model artifacts",
}

var modelValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the configured artifacts and describe them",
	Long: `Load the classifier and scaler exactly as the classify command would and
print their metadata. Exits non-zero when either artifact is missing or does
not match the 32-feature schema.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		classifier, err := app.NewClassifierApp(newAppContext(cmd))
		if err != nil {
			return err
		}
		defer classifier.Close()

		return classifier.DescribeModel()
	},
}

var modelConvertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Re-encode a classifier or scaler artifact",
	Long: `Read a classifier or scaler artifact and write it in the encoding implied
by the output extension (.json, .yaml, .yml, .msgpack or .mp). The artifact
must match the configured audio settings.

Example:
  genre-sonar model convert genre_classifier.json genre_classifier.msgpack`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configs.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		kind, err := app.ConvertArtifact(args[0], args[1], cfg.FeatureConfig())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s artifact to %s\n", kind, args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelValidateCmd)
	modelCmd.AddCommand(modelConvertCmd)
}
