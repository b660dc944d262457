package extractors

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/audiotest"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
)

type GenreFeatureExtractorTestSuite struct {
	suite.Suite
	extractor *GenreFeatureExtractor
}

func (s *GenreFeatureExtractorTestSuite) SetupTest() {
	extractor, err := NewGenreFeatureExtractor(config.DefaultFeatureConfig())
	s.Require().NoError(err)
	s.extractor = extractor
}

func (s *GenreFeatureExtractorTestSuite) waveform(samples []float64) *common.Waveform {
	return &common.Waveform{
		Samples:        samples,
		SampleRate:     22050,
		SourceRate:     22050,
		SourceChannels: 1,
		Format:         common.FormatWAV,
	}
}

func (s *GenreFeatureExtractorTestSuite) TestVectorIsCompleteAndFinite() {
	signal := audiotest.Chord([]float64{220, 277.18, 329.63}, 22050, 3*time.Second, 0.8)
	noise := audiotest.Noise(42, 22050, 3*time.Second, 0.05)
	for i := range signal {
		signal[i] += noise[i]
	}

	vector, err := s.extractor.Extract(context.Background(), s.waveform(signal))
	s.Require().NoError(err)
	s.Require().NoError(vector.Validate())

	// chroma is max normalized per frame
	s.Greater(vector[0], 0.0)
	s.LessOrEqual(vector[0], 1.0)

	for i, v := range vector {
		s.False(math.IsNaN(v) || math.IsInf(v, 0), "feature %d", i)
	}
	// variances are never negative
	for _, i := range []int{1, 3, 5, 7, 9, 11} {
		s.GreaterOrEqual(vector[i], 0.0)
	}
}

func (s *GenreFeatureExtractorTestSuite) TestSineDescriptors() {
	signal := audiotest.Sine(440, 22050, 5*time.Second, 0.5)

	vector, err := s.extractor.Extract(context.Background(), s.waveform(signal))
	s.Require().NoError(err)

	s.InDelta(440, vector[4], 150, "centroid mean")
	s.InDelta(0.5/math.Sqrt2, vector[2], 0.03, "rms mean")
	s.InDelta(880.0/22050, vector[10], 0.004, "zcr mean")
	s.Less(vector[8], 1500.0, "rolloff mean")
}

func (s *GenreFeatureExtractorTestSuite) TestDeterministic() {
	signal := audiotest.Noise(3, 22050, 2*time.Second, 0.4)

	first, err := s.extractor.Extract(context.Background(), s.waveform(signal))
	s.Require().NoError(err)
	second, err := s.extractor.Extract(context.Background(), s.waveform(signal))
	s.Require().NoError(err)

	s.Equal(first, second)
}

func (s *GenreFeatureExtractorTestSuite) TestBrighterSignalHasHigherCentroid() {
	low, err := s.extractor.Extract(context.Background(), s.waveform(audiotest.Sine(300, 22050, 2*time.Second, 0.5)))
	s.Require().NoError(err)
	high, err := s.extractor.Extract(context.Background(), s.waveform(audiotest.Sine(3000, 22050, 2*time.Second, 0.5)))
	s.Require().NoError(err)

	s.Greater(high[4], low[4])
	s.Greater(high[10], low[10])
}

func (s *GenreFeatureExtractorTestSuite) TestRejectsUnusableWaveforms() {
	tests := []struct {
		name string
		wave *common.Waveform
	}{
		{"nil", nil},
		{"empty", s.waveform(nil)},
		{"shorter than one window", s.waveform(audiotest.Sine(440, 22050, 50*time.Millisecond, 0.5))},
		{"digital silence", s.waveform(make([]float64, 22050))},
		{"no sample rate", &common.Waveform{Samples: audiotest.Sine(440, 22050, time.Second, 0.5)}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			vector, err := s.extractor.Extract(context.Background(), tt.wave)
			s.Require().Error(err)
			s.ErrorIs(err, common.ErrFeatureExtraction)
			s.Equal(FeatureVector{}, vector)
		})
	}
}

func (s *GenreFeatureExtractorTestSuite) TestDeadlineBecomesTimeout() {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := s.extractor.Extract(ctx, s.waveform(audiotest.Sine(440, 22050, time.Second, 0.5)))
	s.Require().Error(err)
	s.ErrorIs(err, common.ErrTimeout)
}

func (s *GenreFeatureExtractorTestSuite) TestConcurrentUse() {
	signal := audiotest.Noise(9, 22050, time.Second, 0.3)
	want, err := s.extractor.Extract(context.Background(), s.waveform(signal))
	s.Require().NoError(err)

	results := make(chan FeatureVector, 4)
	for range 4 {
		go func() {
			v, err := s.extractor.Extract(context.Background(), s.waveform(signal))
			if err != nil {
				results <- FeatureVector{}
				return
			}
			results <- v
		}()
	}
	for range 4 {
		s.Equal(want, <-results)
	}
}

func TestGenreFeatureExtractorTestSuite(t *testing.T) {
	suite.Run(t, new(GenreFeatureExtractorTestSuite))
}

func TestNewGenreFeatureExtractorRejectsSchemaDrift(t *testing.T) {
	cfg := config.DefaultFeatureConfig()
	cfg.MFCCCoefficients = 13

	_, err := NewGenreFeatureExtractor(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStartup)

	cfg = config.DefaultFeatureConfig()
	cfg.HopSize = 0
	_, err = NewGenreFeatureExtractor(cfg)
	assert.ErrorIs(t, err, common.ErrStartup)
}

func TestFeatureNames(t *testing.T) {
	names := FeatureNames()
	require.Len(t, names, FeatureCount)
	assert.Equal(t, "chroma_stft_mean", names[0])
	assert.Equal(t, "zero_crossing_rate_var", names[11])
	assert.Equal(t, "mfcc1_mean", names[12])
	assert.Equal(t, "mfcc20_mean", names[31])

	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}

	names[0] = "mutated"
	assert.Equal(t, "chroma_stft_mean", FeatureNames()[0])
}

func TestFeatureVectorHelpers(t *testing.T) {
	values := make([]float64, FeatureCount)
	for i := range values {
		values[i] = float64(i)
	}

	v, err := VectorFromSlice(values)
	require.NoError(t, err)
	assert.Equal(t, values, v.Slice())
	assert.Equal(t, NamedValue{Name: "rms_var", Value: 3}, v.Named()[3])

	_, err = VectorFromSlice(values[:31])
	assert.Error(t, err)

	v[5] = math.NaN()
	assert.ErrorContains(t, v.Validate(), "spectral_centroid_var")
}

func TestTemporalFrames(t *testing.T) {
	pcm := []float64{1, -1, 1, -1, 1, -1, 1, -1}

	rms := frameRMS(pcm, 4, 2)
	require.Len(t, rms, 1+len(pcm)/2)
	assert.InDelta(t, 1, rms[2], 1e-12)
	// first frame is half zero padding
	assert.InDelta(t, math.Sqrt(0.5), rms[0], 1e-12)

	zcr := frameZeroCrossingRate(pcm, 4, 2, 1e-10)
	require.Len(t, zcr, 1+len(pcm)/2)
	assert.InDelta(t, 0.75, zcr[2], 1e-12)
	// edge padding repeats the first sample
	assert.InDelta(t, 0.25, zcr[0], 1e-12)

	tiny := []float64{1e-12, -1e-12, 1e-12, -1e-12}
	for _, z := range frameZeroCrossingRate(tiny, 4, 2, 1e-10) {
		assert.Zero(t, z)
	}
}

func TestStatsHelpers(t *testing.T) {
	mean, variance := meanVar([]float64{1, 2, 3, 4})
	assert.InDelta(t, 2.5, mean, 1e-12)
	assert.InDelta(t, 1.25, variance, 1e-12)

	mean, variance = meanVar(nil)
	assert.Zero(t, mean)
	assert.Zero(t, variance)
}
