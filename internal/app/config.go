package app

import (
	"fmt"

	"github.com/RyanBlaney/genre-sonar/configs"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/model"
)

// loadAndMergeConfig loads configuration from viper and overlays CLI flags
func loadAndMergeConfig(ctx *Context) (*configs.Config, error) {
	cfg := ctx.Config
	if cfg == nil {
		loaded, err := configs.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load base configuration: %w", err)
		}
		cfg = loaded
	}

	mergeContext(cfg, ctx)

	if err := configs.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// mergeContext overrides configuration values with explicitly set CLI flags
func mergeContext(cfg *configs.Config, ctx *Context) {
	if ctx.OutputFormat != "" {
		cfg.OutputFormat = ctx.OutputFormat
	}
	if ctx.Timeout > 0 {
		cfg.Pipeline.Timeout = ctx.Timeout
	}
	if ctx.MaxConcurrent > 0 {
		cfg.Pipeline.MaxConcurrency = ctx.MaxConcurrent
	}
	if ctx.ClassifierPath != "" {
		cfg.Model.ClassifierPath = ctx.ClassifierPath
	}
	if ctx.ScalerPath != "" {
		cfg.Model.ScalerPath = ctx.ScalerPath
	}
	if ctx.PlaybackDir != "" {
		cfg.Pipeline.PlaybackDir = ctx.PlaybackDir
	}
	if ctx.KeepPlayback {
		cfg.Pipeline.KeepPlayback = true
	}
	if ctx.ShowFeatures {
		cfg.Output.ShowFeatures = true
	}
	if ctx.Quiet {
		cfg.Output.Progress = false
	}
	if ctx.Verbose {
		cfg.Verbose = true
		cfg.LogLevel = "debug"
	}
}

// loadArtifacts reads and validates the scaler and classifier. Any failure is
// a StartupError.
func loadArtifacts(cfg *configs.Config) (*model.Scaler, model.Classifier, error) {
	features := cfg.FeatureConfig()

	if cfg.Model.ScalerPath == "" {
		return nil, nil, common.NewStartupError("model.scaler_path is not configured", nil)
	}
	if cfg.Model.ClassifierPath == "" {
		return nil, nil, common.NewStartupError("model.classifier_path is not configured", nil)
	}

	scaler, err := model.LoadScaler(cfg.Model.ScalerPath, features)
	if err != nil {
		return nil, nil, err
	}

	classifier, err := model.LoadClassifier(cfg.Model.ClassifierPath, features)
	if err != nil {
		return nil, nil, err
	}

	return scaler, classifier, nil
}

// ConvertArtifact re-encodes a classifier or scaler artifact into the
// encoding implied by the output extension. The artifact is validated against
// features before it is written; nil means the default feature config.
func ConvertArtifact(inPath, outPath string, features *config.FeatureConfig) (string, error) {
	if _, err := model.EncodingForPath(outPath); err != nil {
		return "", err
	}
	if features == nil {
		features = config.DefaultFeatureConfig()
	}

	var clf model.ClassifierArtifact
	clfErr := model.ReadArtifact(inPath, &clf)
	if clfErr == nil && clf.Kind != "" {
		if err := clf.Header.Validate(features); err != nil {
			return "", fmt.Errorf("classifier does not match the feature schema: %w", err)
		}
		if _, err := model.NewClassifier(&clf); err != nil {
			return "", fmt.Errorf("classifier is invalid: %w", err)
		}
		return "classifier", model.WriteArtifact(outPath, &clf)
	}

	var scaler model.Scaler
	if err := model.ReadArtifact(inPath, &scaler); err != nil {
		return "", fmt.Errorf("%s is neither a classifier nor a scaler artifact: %w", inPath, err)
	}
	if len(scaler.Mean) == 0 {
		return "", fmt.Errorf("%s is neither a classifier nor a scaler artifact", inPath)
	}
	if err := scaler.Header.Validate(features); err != nil {
		return "", fmt.Errorf("scaler does not match the feature schema: %w", err)
	}
	if _, err := model.NewScaler(scaler.Mean, scaler.Scale); err != nil {
		return "", fmt.Errorf("scaler is invalid: %w", err)
	}
	return "scaler", model.WriteArtifact(outPath, &scaler)
}
