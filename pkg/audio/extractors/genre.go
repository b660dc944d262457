package extractors

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/analyzers"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
)

// dbFloor is the power floor applied before converting mel energies to dB
const dbFloor = 1e-10

// GenreFeatureExtractor computes the FeatureVector of a waveform. It holds
// only read-only state after construction and is safe for concurrent use.
type GenreFeatureExtractor struct {
	config      *config.FeatureConfig
	filterBanks *analyzers.FilterBankCache
	logger      logging.Logger

	mu        sync.Mutex
	analyzers map[int]*analyzers.SpectralAnalyzer
}

// NewGenreFeatureExtractor creates an extractor for featureConfig
func NewGenreFeatureExtractor(featureConfig *config.FeatureConfig) (*GenreFeatureExtractor, error) {
	if featureConfig == nil {
		featureConfig = config.DefaultFeatureConfig()
	}
	if err := featureConfig.Validate(); err != nil {
		return nil, common.NewStartupError("invalid feature config", err)
	}
	if featureConfig.MFCCCoefficients != MFCCCount {
		return nil, common.NewStartupError(
			fmt.Sprintf("feature schema v%d needs %d MFCC coefficients, config has %d",
				SchemaVersion, MFCCCount, featureConfig.MFCCCoefficients), nil)
	}

	return &GenreFeatureExtractor{
		config:      featureConfig,
		filterBanks: analyzers.NewFilterBankCache(),
		analyzers:   make(map[int]*analyzers.SpectralAnalyzer),
		logger: logging.WithFields(logging.Fields{
			"component": "genre_feature_extractor",
		}),
	}, nil
}

func (g *GenreFeatureExtractor) GetName() string {
	return "GenreFeatureExtractor"
}

// Config returns the feature configuration the extractor was built with
func (g *GenreFeatureExtractor) Config() *config.FeatureConfig {
	return g.config
}

// Extract computes the feature vector of w. It either returns a complete,
// finite vector or a FeatureExtractionError; context deadlines surface as
// TimeoutError.
func (g *GenreFeatureExtractor) Extract(ctx context.Context, w *common.Waveform) (FeatureVector, error) {
	var vector FeatureVector

	if err := g.validateWaveform(w); err != nil {
		return vector, err
	}

	logger := g.logger.WithFields(logging.Fields{
		"function":    "Extract",
		"samples":     len(w.Samples),
		"sample_rate": w.SampleRate,
	})

	logger.Debug("Extracting genre features")

	analyzer := g.analyzerFor(w.SampleRate)

	spectrogram, err := analyzer.ComputeSTFT(ctx, w.Samples, g.config.WindowSize, g.config.HopSize, g.config.WindowType)
	if err != nil {
		return vector, g.wrap(err, "STFT failed")
	}

	filterBank, err := g.filterBanks.Get(g.config, w.SampleRate)
	if err != nil {
		return vector, g.wrap(err, "filter bank construction failed")
	}

	power := analyzer.PowerMatrix(spectrogram)

	// Chroma
	tuning := analyzers.EstimateTuning(power, w.SampleRate, g.config.ChromaBins)
	var chroma mat.Dense
	chroma.Mul(g.filterBanks.Chroma(g.config, w.SampleRate, tuning), power)
	normalizeColumnsByMax(&chroma)
	vector[0], vector[1] = matrixMeanVar(&chroma)

	// Energy and spectral shape
	vector[2], vector[3] = meanVar(frameRMS(w.Samples, g.config.WindowSize, g.config.HopSize))

	frames := analyzer.ExtractFrameFeatures(spectrogram, g.config.RolloffPercent)
	vector[4], vector[5] = meanVar(frames.Centroid)
	vector[6], vector[7] = meanVar(frames.Bandwidth)
	vector[8], vector[9] = meanVar(frames.Rolloff)

	vector[10], vector[11] = meanVar(frameZeroCrossingRate(w.Samples, g.config.WindowSize, g.config.HopSize, g.config.SilenceThreshold))

	if err := common.FromContext(ctx, common.StageDecoded); err != nil {
		return vector, err
	}

	// MFCC
	var mel mat.Dense
	mel.Mul(filterBank.Mel, power)
	powerToDB(&mel, dbFloor, g.config.TopDB)

	var mfcc mat.Dense
	mfcc.Mul(filterBank.DCT, &mel)
	copy(vector[12:], rowMeans(&mfcc))

	if err := vector.Validate(); err != nil {
		logger.Error(err, "Feature vector contains non-finite values")
		return FeatureVector{}, common.NewFeatureExtractionError("feature extraction produced invalid values", err)
	}

	logger.Debug("Genre features extracted", logging.Fields{
		"time_frames":   spectrogram.TimeFrames,
		"centroid_mean": vector[4],
		"tuning":        tuning,
		"rms_mean":      vector[2],
	})

	return vector, nil
}

func (g *GenreFeatureExtractor) validateWaveform(w *common.Waveform) error {
	if w == nil || len(w.Samples) == 0 {
		return common.NewFeatureExtractionError("waveform is empty", nil)
	}
	if w.SampleRate <= 0 {
		return common.NewFeatureExtractionError(fmt.Sprintf("invalid sample rate %d", w.SampleRate), nil)
	}
	if len(w.Samples) < g.config.WindowSize {
		return common.NewFeatureExtractionError(
			fmt.Sprintf("waveform has %d samples, need at least %d", len(w.Samples), g.config.WindowSize), nil)
	}
	if peakAmplitude(w.Samples) <= g.config.SilenceThreshold {
		return common.NewFeatureExtractionError("waveform is silent", nil)
	}
	return nil
}

func (g *GenreFeatureExtractor) analyzerFor(sampleRate int) *analyzers.SpectralAnalyzer {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.analyzers[sampleRate]
	if !ok {
		a = analyzers.NewSpectralAnalyzer(sampleRate)
		g.analyzers[sampleRate] = a
	}
	return a
}

// wrap keeps pipeline errors (timeouts) intact and turns anything else into a
// FeatureExtractionError
func (g *GenreFeatureExtractor) wrap(err error, msg string) error {
	if _, ok := common.AsClassifyError(err); ok {
		return err
	}
	g.logger.Error(err, msg)
	return common.NewFeatureExtractionError(msg, err)
}
