package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/genre-sonar/configs"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/audiotest"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
	"github.com/RyanBlaney/genre-sonar/pkg/model"
	"github.com/RyanBlaney/genre-sonar/pkg/model/modeltest"
)

type AppTestSuite struct {
	suite.Suite
	dir            string
	clip           string
	classifierPath string
	scalerPath     string
	stdout         *bytes.Buffer
	stderr         *bytes.Buffer
}

func (s *AppTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.clip = filepath.Join(s.dir, "chord.wav")
	audiotest.WriteWAV(s.T(), s.clip,
		audiotest.Chord([]float64{220, 277.18, 329.63}, 22050, 2*time.Second, 0.6), 22050, 1, 16)
	s.classifierPath, s.scalerPath = modeltest.WriteArtifacts(s.T(), ".yaml")
	s.stdout = &bytes.Buffer{}
	s.stderr = &bytes.Buffer{}
}

func (s *AppTestSuite) newApp(format string, modify func(*Context)) *ClassifierApp {
	ctx := &Context{
		OutputFormat:   format,
		ClassifierPath: s.classifierPath,
		ScalerPath:     s.scalerPath,
		Quiet:          true,
		Stdout:         s.stdout,
		Stderr:         s.stderr,
		Logger:         logging.NewNopLogger(),
		Config:         configs.GetDefaultConfig(),
	}
	if modify != nil {
		modify(ctx)
	}

	app, err := NewClassifierApp(ctx)
	s.Require().NoError(err)
	s.T().Cleanup(func() { app.Close() })
	return app
}

func (s *AppTestSuite) TestClassifyTable() {
	app := s.newApp("table", nil)

	s.Require().NoError(app.Classify(context.Background(), s.clip))
	out := s.stdout.String()
	s.True(strings.HasPrefix(out, "Predicted Genre: "))
	s.Equal(1, strings.Count(out, "\n"))
	s.Empty(s.stderr.String())
}

func (s *AppTestSuite) TestClassifyTableWithFeatures() {
	app := s.newApp("table", func(c *Context) { c.ShowFeatures = true })

	s.Require().NoError(app.Classify(context.Background(), s.clip))
	out := s.stdout.String()
	s.Contains(out, "FEATURE")
	s.Contains(out, "mfcc20_mean")
}

func (s *AppTestSuite) TestClassifyJSON() {
	app := s.newApp("json", func(c *Context) { c.ShowFeatures = true })

	s.Require().NoError(app.Classify(context.Background(), s.clip))

	var decoded map[string]any
	s.Require().NoError(json.Unmarshal(s.stdout.Bytes(), &decoded))
	s.Contains(modeltest.Genres, decoded["genre"])
	s.Equal(string(common.StageDisplayed), decoded["stage"])
	s.Equal(s.clip, decoded["source"])
	s.Len(decoded["features"], extractors.FeatureCount)
}

func (s *AppTestSuite) TestClassifyJSONOmitsFeaturesByDefault() {
	app := s.newApp("json", nil)

	s.Require().NoError(app.Classify(context.Background(), s.clip))

	var decoded map[string]any
	s.Require().NoError(json.Unmarshal(s.stdout.Bytes(), &decoded))
	s.NotContains(decoded, "features")
	s.NotContains(decoded, "normalized")
}

func (s *AppTestSuite) TestRequestFailureIsPrinted() {
	app := s.newApp("table", nil)

	s.Require().NoError(app.Classify(context.Background(), filepath.Join(s.dir, "lyrics.txt")))
	s.Equal("Invalid file format. Please upload a .wav or .mp3 file.\n", s.stderr.String())
	s.Empty(s.stdout.String())
}

func (s *AppTestSuite) TestRequestFailureStructured() {
	app := s.newApp("json", nil)

	s.Require().NoError(app.Classify(context.Background(), filepath.Join(s.dir, "missing.wav")))

	var decoded map[string]any
	s.Require().NoError(json.Unmarshal(s.stdout.Bytes(), &decoded))
	s.Equal(common.ErrCodeDecoding, decoded["error_code"])
	s.Equal(string(common.StageUploaded), decoded["stage"])
}

func (s *AppTestSuite) TestFeaturesCSV() {
	app := s.newApp("csv", func(c *Context) { c.Scaled = true })

	s.Require().NoError(app.Features(context.Background(), s.clip))

	lines := strings.Split(strings.TrimRight(s.stdout.String(), "\n"), "\n")
	s.Require().Len(lines, extractors.FeatureCount+1)
	s.Equal("feature,raw,scaled", lines[0])
	s.True(strings.HasPrefix(lines[1], "chroma_stft_mean,"))
}

func (s *AppTestSuite) TestBatchJSON() {
	second := filepath.Join(s.dir, "nested", "sine.wav")
	audiotest.WriteWAV(s.T(), second, audiotest.Sine(440, 22050, 2*time.Second, 0.5), 22050, 1, 16)

	app := s.newApp("json", func(c *Context) { c.MaxConcurrent = 2 })
	s.Require().NoError(app.RunBatch(context.Background(), []string{s.dir}))

	var decoded struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
		Items     []struct {
			Path string `json:"path"`
		} `json:"items"`
	}
	s.Require().NoError(json.Unmarshal(s.stdout.Bytes(), &decoded))
	s.Equal(2, decoded.Succeeded)
	s.Equal(0, decoded.Failed)
	s.Require().Len(decoded.Items, 2)
	s.Equal(s.clip, decoded.Items[0].Path)
}

func (s *AppTestSuite) TestBatchTable() {
	app := s.newApp("table", nil)
	s.Require().NoError(app.RunBatch(context.Background(), []string{s.clip}))

	out := s.stdout.String()
	s.Contains(out, "PATH")
	s.Contains(out, "1 files, 1 classified, 0 failed")
}

func (s *AppTestSuite) TestDescribeModelYAML() {
	app := s.newApp("yaml", nil)
	s.Require().NoError(app.DescribeModel())

	var report ModelReport
	s.Require().NoError(yaml.Unmarshal(s.stdout.Bytes(), &report))
	s.Equal(model.KindSVC, report.Kind)
	s.Equal(modeltest.Genres, report.Classes)
	s.Equal(extractors.FeatureCount, report.FeatureCount)
	s.Equal(22050, report.SampleRate)
}

func (s *AppTestSuite) TestOutputFile() {
	target := filepath.Join(s.dir, "out", "result.json")
	app := s.newApp("json", func(c *Context) { c.OutputFile = target })

	s.Require().NoError(app.Classify(context.Background(), s.clip))
	s.Empty(s.stdout.String())
	s.FileExists(target)
}

func (s *AppTestSuite) TestOutputFileKeepsEveryResult() {
	target := filepath.Join(s.dir, "out", "results.txt")
	app := s.newApp("table", func(c *Context) { c.OutputFile = target })

	s.Require().NoError(app.Classify(context.Background(), s.clip))
	s.Require().NoError(app.Classify(context.Background(), s.clip))
	s.Require().NoError(app.Close())

	data, err := os.ReadFile(target)
	s.Require().NoError(err)
	s.Equal(2, strings.Count(string(data), "Predicted Genre: "))
}

func (s *AppTestSuite) TestStartupFailure() {
	ctx := &Context{
		ClassifierPath: filepath.Join(s.dir, "missing.json"),
		ScalerPath:     s.scalerPath,
		Logger:         logging.NewNopLogger(),
		Config:         configs.GetDefaultConfig(),
	}

	_, err := NewClassifierApp(ctx)
	s.Require().Error(err)
	s.ErrorIs(err, common.ErrStartup)
	s.True(common.IsFatal(err))
}

func (s *AppTestSuite) TestConvertArtifact() {
	clfOut := filepath.Join(s.dir, "classifier.msgpack")
	kind, err := ConvertArtifact(s.classifierPath, clfOut, nil)
	s.Require().NoError(err)
	s.Equal("classifier", kind)

	clf, err := model.LoadClassifier(clfOut, config.DefaultFeatureConfig())
	s.Require().NoError(err)
	s.Equal(modeltest.Genres, clf.Classes())

	scalerOut := filepath.Join(s.dir, "scaler.json")
	kind, err = ConvertArtifact(s.scalerPath, scalerOut, config.DefaultFeatureConfig())
	s.Require().NoError(err)
	s.Equal("scaler", kind)

	scaler, err := model.LoadScaler(scalerOut, config.DefaultFeatureConfig())
	s.Require().NoError(err)
	s.Equal(extractors.FeatureCount, scaler.Dim())

	_, err = ConvertArtifact(s.scalerPath, filepath.Join(s.dir, "scaler.txt"), nil)
	s.Error(err)
}

func (s *AppTestSuite) TestConvertArtifactUsesConfiguredFeatures() {
	features := config.DefaultFeatureConfig()
	features.HopSize = 256

	scaler := model.IdentityScaler()
	scaler.Header = model.CurrentHeader(features)
	in := filepath.Join(s.dir, "scaler_hop256.yaml")
	s.Require().NoError(model.WriteArtifact(in, scaler))

	kind, err := ConvertArtifact(in, filepath.Join(s.dir, "scaler_hop256.msgpack"), features)
	s.Require().NoError(err)
	s.Equal("scaler", kind)

	_, err = ConvertArtifact(in, filepath.Join(s.dir, "scaler_default.json"), config.DefaultFeatureConfig())
	s.Error(err)
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func TestMergeContext(t *testing.T) {
	cfg := configs.GetDefaultConfig()
	mergeContext(cfg, &Context{
		OutputFormat:   "csv",
		Timeout:        3 * time.Second,
		MaxConcurrent:  8,
		ClassifierPath: "clf.json",
		ScalerPath:     "scaler.json",
		PlaybackDir:    "/tmp/playback",
		KeepPlayback:   true,
		ShowFeatures:   true,
		Quiet:          true,
		Verbose:        true,
	})

	assert.Equal(t, "csv", cfg.OutputFormat)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, "clf.json", cfg.Model.ClassifierPath)
	assert.Equal(t, "scaler.json", cfg.Model.ScalerPath)
	assert.Equal(t, "/tmp/playback", cfg.Pipeline.PlaybackDir)
	assert.True(t, cfg.Pipeline.KeepPlayback)
	assert.True(t, cfg.Output.ShowFeatures)
	assert.False(t, cfg.Output.Progress)
	assert.Equal(t, "debug", cfg.LogLevel)

	untouched := configs.GetDefaultConfig()
	mergeContext(untouched, &Context{})
	assert.Equal(t, configs.GetDefaultConfig(), untouched)
}

func TestViews(t *testing.T) {
	report := featureReport{
		Features:  extractors.FeatureVector{}.Named(),
		precision: 2,
	}
	require.Equal(t, []string{"feature", "value"}, report.Header())
	assert.Equal(t, []string{"chroma_stft_mean", "0.00"}, report.Rows()[0])

	failure := failureView{"source": "a.txt", "error_code": "UNSUPPORTED_FORMAT", "message": "nope"}
	assert.Equal(t, [][]string{{"a.txt", "", "UNSUPPORTED_FORMAT", "nope"}}, failure.Rows())
}
