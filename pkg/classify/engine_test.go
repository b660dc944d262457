package classify

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/audiotest"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
	"github.com/RyanBlaney/genre-sonar/pkg/model"
	"github.com/RyanBlaney/genre-sonar/pkg/model/modeltest"
)

type failingReader struct{ t *testing.T }

func (r failingReader) Read([]byte) (int, error) {
	r.t.Fatal("reader must not be touched")
	return 0, nil
}

type EngineTestSuite struct {
	suite.Suite
	engine *Engine
	clip   []byte
}

func (s *EngineTestSuite) newEngine(opts Options) *Engine {
	clf, err := model.NewSVC(modeltest.GenreSVC())
	s.Require().NoError(err)

	opts.Scaler = model.IdentityScaler()
	opts.Classifier = clf
	opts.Logger = logging.NewNopLogger()

	engine, err := NewEngine(opts)
	s.Require().NoError(err)
	return engine
}

func (s *EngineTestSuite) SetupTest() {
	s.engine = s.newEngine(Options{})
	signal := audiotest.Chord([]float64{196, 246.94, 293.66}, 22050, 3*time.Second, 0.7)
	s.clip = audiotest.WAVBytes(s.T(), signal, 22050, 1, 16)
}

func (s *EngineTestSuite) TestClassifyWAV() {
	result, err := s.engine.Classify(context.Background(), bytes.NewReader(s.clip), "song.wav")
	s.Require().NoError(err)

	s.Contains(modeltest.Genres, result.Genre)
	s.Equal(result.Genre, result.DisplayGenre, "labels are shown as trained")
	s.Equal(common.StageClassified, result.Stage)
	s.NotEmpty(result.RequestID)

	s.Require().Len(result.Timings, 4)
	s.Equal(common.StageUploaded, result.Timings[0].Stage)
	s.Equal(common.StageNormalized, result.Timings[3].Stage)

	s.Equal(common.FormatWAV, result.Audio.Format)
	s.Equal(22050, result.Audio.SampleRate)
	s.Equal(3*time.Second, result.Audio.Duration)
	s.False(result.Audio.Truncated)

	s.Require().NotNil(result.Features)
	s.Require().NotNil(result.Normalized)
	s.Equal(*result.Features, *result.Normalized, "identity scaler")
	s.NoError(result.Features.Validate())

	result.MarkDisplayed()
	s.Equal(common.StageDisplayed, result.Stage)
	s.True(strings.HasPrefix(result.Headline(), "Predicted Genre: "))
}

func (s *EngineTestSuite) TestClassifyMP3() {
	clip, err := os.ReadFile(audiotest.MP3Fixture(s.T()))
	s.Require().NoError(err)

	dir := s.T().TempDir()
	engine := s.newEngine(Options{PlaybackDir: dir, KeepPlayback: true})

	result, err := engine.Classify(context.Background(), bytes.NewReader(clip), "allegro.mp3")
	s.Require().NoError(err)

	s.Contains(modeltest.Genres, result.Genre)
	s.Equal(common.StageClassified, result.Stage)
	s.Equal(common.FormatMP3, result.Audio.Format)
	s.Equal(44100, result.Audio.SourceRate)
	s.Equal(22050, result.Audio.SampleRate)
	s.Equal(2, result.Audio.SourceChannels)
	s.True(result.Audio.Truncated)
	s.Equal(30*time.Second, result.Audio.Duration)
	s.NoError(result.Features.Validate())

	s.True(strings.HasPrefix(filepath.Base(result.PlaybackPath), "converted_"))
	s.FileExists(result.PlaybackPath)
}

func (s *EngineTestSuite) TestClassifyIsDeterministic() {
	first, err := s.engine.Classify(context.Background(), bytes.NewReader(s.clip), "wav")
	s.Require().NoError(err)
	second, err := s.engine.Classify(context.Background(), bytes.NewReader(s.clip), "WAV")
	s.Require().NoError(err)

	s.Equal(first.Genre, second.Genre)
	s.Equal(*first.Features, *second.Features)
	s.NotEqual(first.RequestID, second.RequestID)
}

func (s *EngineTestSuite) TestSinePrediction() {
	clip := audiotest.WAVBytes(s.T(), audiotest.Sine(440, 22050, 5*time.Second, 0.5), 22050, 1, 16)

	first, err := s.engine.Classify(context.Background(), bytes.NewReader(clip), "wav")
	s.Require().NoError(err)
	second, err := s.engine.Classify(context.Background(), bytes.NewReader(clip), "wav")
	s.Require().NoError(err)

	s.InDelta(440, first.Features[4], 150)
	s.Equal(first.Genre, second.Genre)
}

func (s *EngineTestSuite) TestUnsupportedFormatIsRejectedBeforeReading() {
	result, err := s.engine.Classify(context.Background(), failingReader{s.T()}, "notes.txt")
	s.Require().Error(err)
	s.Nil(result)
	s.ErrorIs(err, common.ErrUnsupportedFormat)

	ce, ok := common.AsClassifyError(err)
	s.Require().True(ok)
	s.Equal(common.StageUploaded, ce.Stage)
	s.Equal("Invalid file format. Please upload a .wav or .mp3 file.", common.UserMessage(err))
}

func (s *EngineTestSuite) TestDecodeFailureCarriesStage() {
	result, err := s.engine.Classify(context.Background(), bytes.NewReader([]byte("RIFF garbage")), "wav")
	s.Require().Error(err)
	s.Nil(result)
	s.ErrorIs(err, common.ErrDecode)

	ce, ok := common.AsClassifyError(err)
	s.Require().True(ok)
	s.Equal(common.StageUploaded, ce.Stage)
	s.False(common.IsFatal(err))
}

func (s *EngineTestSuite) TestSilenceFailsFeatureExtraction() {
	clip := audiotest.WAVBytes(s.T(), make([]float64, 22050), 22050, 1, 16)

	_, err := s.engine.Classify(context.Background(), bytes.NewReader(clip), "wav")
	s.Require().Error(err)
	s.ErrorIs(err, common.ErrFeatureExtraction)

	ce, _ := common.AsClassifyError(err)
	s.Equal(common.StageDecoded, ce.Stage)
}

func (s *EngineTestSuite) TestLongInputMatchesTruncatedClip() {
	long := audiotest.Noise(11, 22050, 60*time.Second, 0.3)
	short := long[:30*22050]

	longResult, err := s.engine.Classify(context.Background(),
		bytes.NewReader(audiotest.WAVBytes(s.T(), long, 22050, 1, 16)), "wav")
	s.Require().NoError(err)
	shortResult, err := s.engine.Classify(context.Background(),
		bytes.NewReader(audiotest.WAVBytes(s.T(), short, 22050, 1, 16)), "wav")
	s.Require().NoError(err)

	s.True(longResult.Audio.Truncated)
	s.False(shortResult.Audio.Truncated)
	s.Equal(30*time.Second, longResult.Audio.Duration)
	s.Equal(*shortResult.Features, *longResult.Features)
	s.Equal(shortResult.Genre, longResult.Genre)
}

func (s *EngineTestSuite) TestTimeout() {
	engine := s.newEngine(Options{Timeout: time.Nanosecond})

	_, err := engine.Classify(context.Background(), bytes.NewReader(s.clip), "wav")
	s.Require().Error(err)
	s.ErrorIs(err, common.ErrTimeout)
}

func (s *EngineTestSuite) TestPlaybackIsKeptOnRequest() {
	dir := s.T().TempDir()
	engine := s.newEngine(Options{PlaybackDir: dir, KeepPlayback: true})

	result, err := engine.Classify(context.Background(), bytes.NewReader(s.clip), "wav")
	s.Require().NoError(err)
	s.Require().NotEmpty(result.PlaybackPath)
	s.True(strings.HasPrefix(filepath.Base(result.PlaybackPath), "uploaded_"))
	s.FileExists(result.PlaybackPath)
}

func (s *EngineTestSuite) TestPlaybackIsRemovedByDefaultAndOnFailure() {
	dir := s.T().TempDir()
	engine := s.newEngine(Options{PlaybackDir: dir})

	result, err := engine.Classify(context.Background(), bytes.NewReader(s.clip), "wav")
	s.Require().NoError(err)
	s.Empty(result.PlaybackPath)

	silent := audiotest.WAVBytes(s.T(), make([]float64, 22050), 22050, 1, 16)
	_, err = engine.Classify(context.Background(), bytes.NewReader(silent), "wav")
	s.Require().Error(err)

	entries, err := os.ReadDir(dir)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *EngineTestSuite) TestClassifyFile() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "Track.WAV")
	s.Require().NoError(os.WriteFile(path, s.clip, 0o644))

	result, err := s.engine.ClassifyFile(context.Background(), path)
	s.Require().NoError(err)
	s.Equal(path, result.Source)

	_, err = s.engine.ClassifyFile(context.Background(), filepath.Join(dir, "missing.mp3"))
	s.ErrorIs(err, common.ErrDecode)

	_, err = s.engine.ClassifyFile(context.Background(), filepath.Join(dir, "lyrics.txt"))
	s.ErrorIs(err, common.ErrUnsupportedFormat)
}

func (s *EngineTestSuite) TestExtractMatchesClassify() {
	extraction, err := s.engine.Extract(context.Background(), bytes.NewReader(s.clip), "wav")
	s.Require().NoError(err)

	result, err := s.engine.Classify(context.Background(), bytes.NewReader(s.clip), "wav")
	s.Require().NoError(err)

	s.Equal(*result.Features, extraction.Features)

	scaled, err := s.engine.Scale(extraction.Features)
	s.Require().NoError(err)
	s.Equal(*result.Normalized, scaled)

	_, err = s.engine.Extract(context.Background(), bytes.NewReader(s.clip), "flac")
	s.ErrorIs(err, common.ErrUnsupportedFormat)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func TestNewEngineValidation(t *testing.T) {
	clf, err := model.NewSVC(modeltest.GenreSVC())
	require.NoError(t, err)

	_, err = NewEngine(Options{Classifier: clf})
	assert.ErrorIs(t, err, common.ErrStartup)

	_, err = NewEngine(Options{Scaler: model.IdentityScaler()})
	assert.ErrorIs(t, err, common.ErrStartup)

	short := &model.Scaler{Mean: make([]float64, 31), Scale: make([]float64, 31)}
	_, err = NewEngine(Options{Scaler: short, Classifier: clf})
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)

	narrow := modeltest.GenreSVC()
	narrow.FeatureCount = 31
	for i := range narrow.SupportVectors {
		narrow.SupportVectors[i] = narrow.SupportVectors[i][:31]
	}
	narrowClf, err := model.NewSVC(narrow)
	require.NoError(t, err)

	_, err = NewEngine(Options{Scaler: model.IdentityScaler(), Classifier: narrowClf})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)
	assert.True(t, common.IsFatal(err))
}

func TestDisplayLabel(t *testing.T) {
	assert.Equal(t, "rock", DisplayLabel("rock"))
	assert.Equal(t, "hiphop", DisplayLabel("hiphop"))
	assert.Equal(t, "CLASSICAL", DisplayLabel(" CLASSICAL\n"))
}

func TestFeatureVectorIsSchemaSized(t *testing.T) {
	var r Result
	r.Features = &extractors.FeatureVector{}
	assert.Len(t, r.Features.Slice(), extractors.FeatureCount)
}
