package config

import (
	"fmt"
	"time"
)

// WindowType selects the analysis window applied to each STFT frame
type WindowType string

const (
	WindowHann        WindowType = "hann"
	WindowHamming     WindowType = "hamming"
	WindowRectangular WindowType = "rectangular"
)

// FeatureConfig holds every parameter that shapes the feature vector. The
// model and scaler were fitted against one exact set of these values, so any
// change here invalidates the artifacts.
type FeatureConfig struct {
	// Loading
	SampleRate  int           `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"` // 0 keeps the decoder's native rate
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration" mapstructure:"max_duration"`

	// Spectral Analysis
	WindowSize int        `json:"window_size" yaml:"window_size" mapstructure:"window_size"`
	HopSize    int        `json:"hop_size" yaml:"hop_size" mapstructure:"hop_size"`
	WindowType WindowType `json:"window_type" yaml:"window_type" mapstructure:"window_type"`
	FreqRange  [2]float64 `json:"freq_range" yaml:"freq_range" mapstructure:"freq_range"` // [min, max] Hz for mel bands, max 0 means Nyquist

	// Content-specific parameters
	MelBins          int     `json:"mel_bins" yaml:"mel_bins" mapstructure:"mel_bins"`
	MFCCCoefficients int     `json:"mfcc_coefficients" yaml:"mfcc_coefficients" mapstructure:"mfcc_coefficients"`
	ChromaBins       int     `json:"chroma_bins" yaml:"chroma_bins" mapstructure:"chroma_bins"`
	RolloffPercent   float64 `json:"rolloff_percent" yaml:"rolloff_percent" mapstructure:"rolloff_percent"`
	TopDB            float64 `json:"top_db" yaml:"top_db" mapstructure:"top_db"`
	SilenceThreshold float64 `json:"silence_threshold" yaml:"silence_threshold" mapstructure:"silence_threshold"`
}

// DefaultFeatureConfig returns the parameters the shipped model was trained with
func DefaultFeatureConfig() *FeatureConfig {
	return &FeatureConfig{
		SampleRate:       22050,
		MaxDuration:      30 * time.Second,
		WindowSize:       2048,
		HopSize:          512,
		WindowType:       WindowHann,
		FreqRange:        [2]float64{0, 0},
		MelBins:          128,
		MFCCCoefficients: 20,
		ChromaBins:       12,
		RolloffPercent:   0.85,
		TopDB:            80,
		SilenceThreshold: 1e-10,
	}
}

// Validate checks that the configuration can drive an analysis
func (c *FeatureConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("feature config cannot be nil")
	}
	if c.SampleRate < 0 {
		return fmt.Errorf("sample rate cannot be negative")
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max duration must be positive")
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("window size must be at least 2, got %d", c.WindowSize)
	}
	if c.HopSize <= 0 || c.HopSize > c.WindowSize {
		return fmt.Errorf("hop size must be in (0, %d], got %d", c.WindowSize, c.HopSize)
	}
	switch c.WindowType {
	case WindowHann, WindowHamming, WindowRectangular:
	default:
		return fmt.Errorf("unsupported window type: %q", c.WindowType)
	}
	if c.FreqRange[0] < 0 || (c.FreqRange[1] != 0 && c.FreqRange[1] <= c.FreqRange[0]) {
		return fmt.Errorf("invalid frequency range: %v", c.FreqRange)
	}
	if c.MelBins <= 0 {
		return fmt.Errorf("mel bins must be positive")
	}
	if c.MFCCCoefficients <= 0 || c.MFCCCoefficients > c.MelBins {
		return fmt.Errorf("mfcc coefficients must be in [1, %d], got %d", c.MelBins, c.MFCCCoefficients)
	}
	if c.ChromaBins <= 0 {
		return fmt.Errorf("chroma bins must be positive")
	}
	if c.RolloffPercent <= 0 || c.RolloffPercent >= 1 {
		return fmt.Errorf("rolloff percent must be in (0, 1), got %v", c.RolloffPercent)
	}
	if c.TopDB < 0 {
		return fmt.Errorf("top_db cannot be negative")
	}
	if c.SilenceThreshold < 0 {
		return fmt.Errorf("silence threshold cannot be negative")
	}
	return nil
}

// MaxFreq returns the upper mel band edge for a given sample rate
func (c *FeatureConfig) MaxFreq(sampleRate int) float64 {
	if c.FreqRange[1] > 0 {
		return c.FreqRange[1]
	}
	return float64(sampleRate) / 2
}
