package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/metrics"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	OutputFormat string `mapstructure:"output_format"`

	// Audio loading and feature extraction
	Audio AudioConfig `mapstructure:"audio"`

	// Model artifacts
	Model ModelConfig `mapstructure:"model"`

	// Request pipeline settings
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Output configuration
	Output OutputConfig `mapstructure:"output"`

	// DogStatsD metrics
	Metrics metrics.Config `mapstructure:"metrics"`
}

// AudioConfig contains audio processing settings. The feature parameters must
// match the ones the model artifacts were fitted with.
type AudioConfig struct {
	config.FeatureConfig `mapstructure:",squash"`

	MaxInputBytes int64 `mapstructure:"max_input_bytes"`
}

// ModelConfig locates the classifier and scaler artifacts
type ModelConfig struct {
	ClassifierPath string `mapstructure:"classifier_path"`
	ScalerPath     string `mapstructure:"scaler_path"`
}

// PipelineConfig contains per-request execution settings
type PipelineConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	PlaybackDir    string        `mapstructure:"playback_dir"`
	KeepPlayback   bool          `mapstructure:"keep_playback"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Pretty       bool `mapstructure:"pretty"`
	ShowFeatures bool `mapstructure:"show_features"`
	Precision    int  `mapstructure:"precision"`
	Progress     bool `mapstructure:"progress"`
}

// LoadConfig loads configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(viper.GetViper())
}

// LoadConfigFrom decodes and validates configuration from v, filling any
// unset key with its default
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if err := cfg.Audio.Validate(); err != nil {
		return fmt.Errorf("invalid audio configuration: %w", err)
	}

	if cfg.Audio.MaxInputBytes < 0 {
		return fmt.Errorf("max input bytes cannot be negative")
	}

	if cfg.Pipeline.Timeout < 0 {
		return fmt.Errorf("pipeline timeout cannot be negative")
	}

	if cfg.Pipeline.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive")
	}

	if cfg.Output.Precision < 0 {
		return fmt.Errorf("output precision cannot be negative")
	}

	switch strings.ToLower(cfg.OutputFormat) {
	case "json", "yaml", "yml", "csv", "table":
	default:
		return fmt.Errorf("unsupported output format: %q", cfg.OutputFormat)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log format: %q", cfg.LogFormat)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}

	return nil
}

// FeatureConfig returns a copy of the feature extraction parameters
func (c *Config) FeatureConfig() *config.FeatureConfig {
	fc := c.Audio.FeatureConfig
	return &fc
}
