package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/loader"
	"github.com/RyanBlaney/genre-sonar/pkg/metrics"
)

// SetDefaults sets default configuration values for all components
func SetDefaults(v *viper.Viper) {
	features := config.DefaultFeatureConfig()

	// Audio defaults
	setDefault(v, "audio.sample_rate", features.SampleRate)
	setDefault(v, "audio.max_duration", features.MaxDuration)
	setDefault(v, "audio.window_size", features.WindowSize)
	setDefault(v, "audio.hop_size", features.HopSize)
	setDefault(v, "audio.window_type", string(features.WindowType))
	setDefault(v, "audio.freq_range", []float64{features.FreqRange[0], features.FreqRange[1]})
	setDefault(v, "audio.mel_bins", features.MelBins)
	setDefault(v, "audio.mfcc_coefficients", features.MFCCCoefficients)
	setDefault(v, "audio.chroma_bins", features.ChromaBins)
	setDefault(v, "audio.rolloff_percent", features.RolloffPercent)
	setDefault(v, "audio.top_db", features.TopDB)
	setDefault(v, "audio.silence_threshold", features.SilenceThreshold)
	setDefault(v, "audio.max_input_bytes", loader.DefaultMaxInputBytes)

	// Model defaults
	setDefault(v, "model.classifier_path", filepath.Join(DefaultDataDir(), "genre_classifier.json"))
	setDefault(v, "model.scaler_path", filepath.Join(DefaultDataDir(), "scaler.json"))

	// Pipeline defaults
	setDefault(v, "pipeline.timeout", 60*time.Second)
	setDefault(v, "pipeline.playback_dir", "")
	setDefault(v, "pipeline.keep_playback", false)
	setDefault(v, "pipeline.max_concurrency", 4)

	// Output defaults
	setDefault(v, "output.pretty", true)
	setDefault(v, "output.show_features", false)
	setDefault(v, "output.precision", 4)
	setDefault(v, "output.progress", true)

	// Metrics defaults
	setDefault(v, "metrics.enabled", false)
	setDefault(v, "metrics.address", "127.0.0.1:8125")
	setDefault(v, "metrics.namespace", "genre_sonar.")
	setDefault(v, "metrics.tags", []string{})

	// Application defaults
	setDefault(v, "verbose", false)
	setDefault(v, "log_level", "info")
	setDefault(v, "log_format", "console")
	setDefault(v, "output_format", "table")
}

func setDefault(v *viper.Viper, key string, value any) {
	if !v.IsSet(key) {
		v.SetDefault(key, value)
	}
}

// DefaultDataDir is where model artifacts are looked up when no path is configured
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "models")
	}
	return filepath.Join(home, ".local", "share", "genre-sonar")
}

// GetDefaultConfig returns a Config struct with all default values set
func GetDefaultConfig() *Config {
	return &Config{
		// Application settings defaults
		Verbose:      false,
		LogLevel:     "info",
		LogFormat:    "console",
		OutputFormat: "table",

		Audio:    GetDefaultAudioConfig(),
		Model:    GetDefaultModelConfig(),
		Pipeline: GetDefaultPipelineConfig(),
		Output:   GetDefaultOutputConfig(),
		Metrics: metrics.Config{
			Address:   "127.0.0.1:8125",
			Namespace: "genre_sonar.",
		},
	}
}

// GetDefaultAudioConfig returns default audio processing settings
func GetDefaultAudioConfig() AudioConfig {
	return AudioConfig{
		FeatureConfig: *config.DefaultFeatureConfig(),
		MaxInputBytes: loader.DefaultMaxInputBytes,
	}
}

// GetDefaultModelConfig returns the default artifact locations
func GetDefaultModelConfig() ModelConfig {
	return ModelConfig{
		ClassifierPath: filepath.Join(DefaultDataDir(), "genre_classifier.json"),
		ScalerPath:     filepath.Join(DefaultDataDir(), "scaler.json"),
	}
}

// GetDefaultPipelineConfig returns default request execution settings
func GetDefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Timeout:        60 * time.Second,
		KeepPlayback:   false,
		MaxConcurrency: 4,
	}
}

// GetDefaultOutputConfig returns default output formatting settings
func GetDefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Pretty:       true,
		ShowFeatures: false,
		Precision:    4,
		Progress:     true,
	}
}
