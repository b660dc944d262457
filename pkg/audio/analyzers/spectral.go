package analyzers

import (
	"context"
	"fmt"
	"math/cmplx"

	sonido "github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
)

// cancelCheckInterval is how many frames are processed between context checks
const cancelCheckInterval = 256

// SpectralAnalyzer provides core FFT and spectral analysis functionality
type SpectralAnalyzer struct {
	windowGenerator *WindowGenerator
	sampleRate      int
	logger          logging.Logger
}

// SpectrogramResult holds the result of STFT analysis
type SpectrogramResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// FrameFeatures holds the per-frame spectral shape statistics
type FrameFeatures struct {
	Centroid  []float64 `json:"centroid"`
	Bandwidth []float64 `json:"bandwidth"`
	Rolloff   []float64 `json:"rolloff"`
}

// NewSpectralAnalyzer creates a new spectral analyzer
func NewSpectralAnalyzer(sampleRate int) *SpectralAnalyzer {
	return &SpectralAnalyzer{
		windowGenerator: NewWindowGenerator(),
		sampleRate:      sampleRate,
		logger: logging.WithFields(logging.Fields{
			"component":   "spectral_analyzer",
			"sample_rate": sampleRate,
		}),
	}
}

// SampleRate returns the rate the analyzer interprets bins against
func (sa *SpectralAnalyzer) SampleRate() int {
	return sa.sampleRate
}

// FFT computes Fast Fourier Transform using mjibson/go-dsp
func (sa *SpectralAnalyzer) FFT(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputeSTFT computes a centered short-time Fourier transform. The signal is
// zero padded by windowSize/2 on both sides, so the frame count is
// 1 + len(signal)/hopSize.
func (sa *SpectralAnalyzer) ComputeSTFT(ctx context.Context, signal []float64, windowSize, hopSize int, windowType config.WindowType) (*SpectrogramResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if windowSize < 2 || hopSize <= 0 {
		return nil, fmt.Errorf("invalid STFT parameters: window %d, hop %d", windowSize, hopSize)
	}

	logger := sa.logger.WithFields(logging.Fields{
		"function":      "ComputeSTFT",
		"signal_length": len(signal),
		"window_size":   windowSize,
		"hop_size":      hopSize,
	})

	win, err := sa.windowGenerator.Generate(windowType, windowSize)
	if err != nil {
		return nil, err
	}

	pad := windowSize / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)

	numFrames := 1 + (len(padded)-windowSize)/hopSize
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	frame := make([]float64, windowSize)

	for t := range numFrames {
		if t%cancelCheckInterval == 0 {
			if err := common.FromContext(ctx, common.StageDecoded); err != nil {
				return nil, err
			}
		}

		start := t * hopSize
		for i := range windowSize {
			frame[i] = padded[start+i] * win[i]
		}

		spectrum := sa.FFT(frame)
		row := make([]float64, freqBins)
		for f := range freqBins {
			row[f] = cmplx.Abs(spectrum[f])
		}
		magnitude[t] = row
	}

	result := &SpectrogramResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sa.sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sa.sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sa.sampleRate),
	}

	logger.Debug("STFT computation completed", logging.Fields{
		"time_frames": result.TimeFrames,
		"freq_bins":   result.FreqBins,
	})

	return result, nil
}

// ComputePowerSpectrum computes the squared magnitude spectrogram
func (sa *SpectralAnalyzer) ComputePowerSpectrum(spectrogram *SpectrogramResult) [][]float64 {
	power := make([][]float64, spectrogram.TimeFrames)

	for t := 0; t < spectrogram.TimeFrames; t++ {
		power[t] = make([]float64, spectrogram.FreqBins)
		for f := 0; f < spectrogram.FreqBins; f++ {
			mag := spectrogram.Magnitude[t][f]
			power[t][f] = mag * mag
		}
	}

	return power
}

// PowerMatrix returns the power spectrogram as a FreqBins x TimeFrames matrix,
// ready to be projected through a filter bank
func (sa *SpectralAnalyzer) PowerMatrix(spectrogram *SpectrogramResult) *mat.Dense {
	m := mat.NewDense(spectrogram.FreqBins, spectrogram.TimeFrames, nil)
	for t := 0; t < spectrogram.TimeFrames; t++ {
		for f := 0; f < spectrogram.FreqBins; f++ {
			mag := spectrogram.Magnitude[t][f]
			m.Set(f, t, mag*mag)
		}
	}
	return m
}

// ExtractFrameFeatures computes centroid, bandwidth and rolloff for every
// frame of the magnitude spectrogram
func (sa *SpectralAnalyzer) ExtractFrameFeatures(spectrogram *SpectrogramResult, rolloffPercent float64) *FrameFeatures {
	freqs := sa.GetFrequencyBins(spectrogram.FreqBins)

	// both calculators cache their bin frequencies on first use
	centroids := sonido.NewSpectralCentroid(sa.sampleRate)
	bandwidths := sonido.NewSpectralBandwidth(sa.sampleRate)

	features := &FrameFeatures{
		Centroid:  make([]float64, spectrogram.TimeFrames),
		Bandwidth: make([]float64, spectrogram.TimeFrames),
		Rolloff:   make([]float64, spectrogram.TimeFrames),
	}

	for t, magnitude := range spectrogram.Magnitude {
		if len(magnitude) < 2 {
			continue
		}
		centroid := centroids.Compute(magnitude)
		features.Centroid[t] = centroid
		features.Bandwidth[t] = bandwidths.Compute(magnitude, centroid)
		features.Rolloff[t] = sa.calculateSpectralRolloff(magnitude, freqs, rolloffPercent)
	}

	return features
}

// GetFrequencyBins returns frequency values for each FFT bin
func (sa *SpectralAnalyzer) GetFrequencyBins(numBins int) []float64 {
	freqs := make([]float64, numBins)
	if numBins < 2 {
		return freqs
	}
	for i := range numBins {
		freqs[i] = float64(i) * float64(sa.sampleRate) / float64((numBins-1)*2)
	}
	return freqs
}

// calculateSpectralRolloff returns the lowest bin frequency at which the
// cumulative magnitude reaches threshold of the frame total
func (sa *SpectralAnalyzer) calculateSpectralRolloff(spectrum []float64, freqs []float64, threshold float64) float64 {
	total := 0.0
	for _, mag := range spectrum {
		total += mag
	}

	target := threshold * total
	cumulative := 0.0

	for i := range len(spectrum) {
		cumulative += spectrum[i]
		if cumulative >= target {
			if i < len(freqs) {
				return freqs[i]
			}
			break
		}
	}

	if len(freqs) > 0 {
		return freqs[len(freqs)-1]
	}
	return 0
}
