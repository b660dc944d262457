package classify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/loader"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
	"github.com/RyanBlaney/genre-sonar/pkg/metrics"
	"github.com/RyanBlaney/genre-sonar/pkg/model"
)

// Options configures an Engine
type Options struct {
	FeatureConfig *config.FeatureConfig
	Scaler        *model.Scaler
	Classifier    model.Classifier

	// MaxInputBytes caps upload size; 0 uses loader.DefaultMaxInputBytes
	MaxInputBytes int64

	// PlaybackDir enables playback files when non-empty
	PlaybackDir  string
	KeepPlayback bool

	// Timeout bounds one request; 0 disables it
	Timeout time.Duration

	Metrics *metrics.Recorder
	Logger  logging.Logger
}

// Engine runs the classification pipeline. It is immutable after
// construction and shared by concurrent requests.
type Engine struct {
	featureConfig *config.FeatureConfig
	loader        *loader.Loader
	extractor     *extractors.GenreFeatureExtractor
	scaler        *model.Scaler
	classifier    model.Classifier
	playback      *loader.PlaybackWriter
	keepPlayback  bool
	timeout       time.Duration
	metrics       *metrics.Recorder
	logger        logging.Logger
}

// NewEngine validates opts and builds an engine. Missing artifacts are
// StartupErrors; artifacts fitted on a different vector length are
// SchemaMismatchErrors.
func NewEngine(opts Options) (*Engine, error) {
	featureConfig := opts.FeatureConfig
	if featureConfig == nil {
		featureConfig = config.DefaultFeatureConfig()
	}

	if opts.Scaler == nil {
		return nil, common.NewStartupError("scaler is not loaded", nil)
	}
	if opts.Classifier == nil {
		return nil, common.NewStartupError("classifier is not loaded", nil)
	}
	if opts.Scaler.Dim() != extractors.FeatureCount {
		return nil, common.NewSchemaMismatchError(
			fmt.Sprintf("scaler was fitted on %d features, schema v%d has %d",
				opts.Scaler.Dim(), extractors.SchemaVersion, extractors.FeatureCount), nil)
	}
	if opts.Classifier.NumFeatures() != extractors.FeatureCount {
		return nil, common.NewSchemaMismatchError(
			fmt.Sprintf("classifier was fitted on %d features, schema v%d has %d",
				opts.Classifier.NumFeatures(), extractors.SchemaVersion, extractors.FeatureCount), nil)
	}

	extractor, err := extractors.NewGenreFeatureExtractor(featureConfig)
	if err != nil {
		return nil, err
	}

	baseLogger := opts.Logger
	if baseLogger == nil {
		baseLogger = logging.Default()
	}
	logger := baseLogger.WithFields(logging.Fields{"component": "classify_engine"})

	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.NopRecorder()
	}

	e := &Engine{
		featureConfig: featureConfig,
		loader: loader.NewLoader(featureConfig,
			loader.WithMaxInputBytes(opts.MaxInputBytes),
			loader.WithLogger(baseLogger)),
		extractor:    extractor,
		scaler:       opts.Scaler,
		classifier:   opts.Classifier,
		keepPlayback: opts.KeepPlayback,
		timeout:      opts.Timeout,
		metrics:      recorder,
		logger:       logger,
	}
	if opts.PlaybackDir != "" {
		e.playback = loader.NewPlaybackWriter(opts.PlaybackDir)
	}

	logger.Debug("Classification engine ready", logging.Fields{
		"classifier":     opts.Classifier.Kind(),
		"classes":        len(opts.Classifier.Classes()),
		"sample_rate":    featureConfig.SampleRate,
		"schema_version": extractors.SchemaVersion,
	})

	return e, nil
}

// Classes returns the labels the engine can produce
func (e *Engine) Classes() []string {
	return e.classifier.Classes()
}

// ClassifierKind names the loaded model family
func (e *Engine) ClassifierKind() string {
	return e.classifier.Kind()
}

// FeatureConfig returns the analysis parameters in use
func (e *Engine) FeatureConfig() *config.FeatureConfig {
	return e.featureConfig
}

// ClassifyFile classifies the file at path, using its extension as the format
// hint
func (e *Engine) ClassifyFile(ctx context.Context, path string) (*Result, error) {
	if _, err := common.ParseFormat(filepath.Base(path)); err != nil {
		return nil, e.fail(err, common.StageUploaded, "unknown")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, e.fail(common.NewDecodeError(fmt.Sprintf("could not open %s", filepath.Base(path)), err),
			common.StageUploaded, "unknown")
	}
	defer f.Close()

	result, err := e.Classify(ctx, f, filepath.Base(path))
	if result != nil {
		result.Source = path
	}
	return result, err
}

// Classify runs the full pipeline on one upload. ext may be a bare extension
// or a file name. Unsupported extensions are rejected before r is read.
func (e *Engine) Classify(ctx context.Context, r io.Reader, ext string) (*Result, error) {
	start := time.Now()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	result := &Result{
		RequestID: uuid.NewString(),
		Stage:     common.StageUploaded,
	}

	logger := e.logger.WithFields(logging.Fields{
		"function":   "Classify",
		"request_id": result.RequestID,
	})

	format, err := common.ParseFormat(ext)
	if err != nil {
		return nil, e.fail(err, result.Stage, "unknown")
	}
	e.metrics.Request(string(format))

	playbackPath := ""
	defer func() {
		if playbackPath != "" && (result.Stage == common.StageFailed || !e.keepPlayback) {
			if err := e.playback.Remove(playbackPath); err != nil {
				logger.Warn("Failed to remove playback file", logging.Fields{"path": playbackPath})
			}
		}
	}()

	stageStart := time.Now()
	advance := func() {
		d := time.Since(stageStart)
		result.Timings = append(result.Timings, StageTiming{Stage: result.Stage, Duration: d})
		e.metrics.StageDuration(string(result.Stage), d)
		logger.Debug("Stage completed", logging.Fields{
			"stage":       string(result.Stage),
			"activity":    result.Stage.Activity(),
			"duration_ms": d.Milliseconds(),
		})
		result.Stage = result.Stage.Next()
		stageStart = time.Now()
	}
	failed := func(err error) (*Result, error) {
		stage := result.Stage
		result.Stage = common.StageFailed
		return nil, e.fail(err, stage, string(format))
	}

	// Uploaded -> Decoded
	data, err := e.loader.ReadInput(r)
	if err != nil {
		return failed(err)
	}
	native, err := e.loader.Decode(ctx, data, format)
	if err != nil {
		return failed(err)
	}
	if e.playback != nil {
		path, err := e.playback.Write(native)
		if err != nil {
			logger.Warn("Failed to write playback file", logging.Fields{"error": err.Error()})
		} else {
			playbackPath = path
		}
	}
	wave, err := e.loader.ToAnalysisRate(ctx, native)
	if err != nil {
		return failed(err)
	}
	result.Audio = audioInfo(wave)
	advance()

	// Decoded -> FeaturesExtracted
	raw, err := e.extractor.Extract(ctx, wave)
	if err != nil {
		return failed(err)
	}
	result.Features = &raw
	advance()

	// FeaturesExtracted -> Normalized
	if err := common.FromContext(ctx, result.Stage); err != nil {
		return failed(err)
	}
	scaled, err := e.scaler.Transform(raw)
	if err != nil {
		return failed(err)
	}
	result.Normalized = &scaled
	advance()

	// Normalized -> Classified
	if err := common.FromContext(ctx, result.Stage); err != nil {
		return failed(err)
	}
	label, err := e.classifier.Predict(scaled[:])
	if err != nil {
		return failed(err)
	}
	result.Genre = label
	result.DisplayGenre = DisplayLabel(label)
	advance()

	if e.keepPlayback {
		result.PlaybackPath = playbackPath
	}
	result.Elapsed = time.Since(start)
	e.metrics.Duration(string(format), label, result.Elapsed)

	logger.Info("Audio classified", logging.Fields{
		"genre":      label,
		"format":     string(format),
		"duration":   result.Audio.Duration.String(),
		"truncated":  result.Audio.Truncated,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})

	return result, nil
}

// ExtractFile runs the decode and feature stages on the file at path
func (e *Engine) ExtractFile(ctx context.Context, path string) (*Extraction, error) {
	if _, err := common.ParseFormat(filepath.Base(path)); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewDecodeError(fmt.Sprintf("could not open %s", filepath.Base(path)), err)
	}
	defer f.Close()

	extraction, err := e.Extract(ctx, f, filepath.Base(path))
	if extraction != nil {
		extraction.Source = path
	}
	return extraction, err
}

// Extract runs only the decode and feature stages
func (e *Engine) Extract(ctx context.Context, r io.Reader, ext string) (*Extraction, error) {
	start := time.Now()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	format, err := common.ParseFormat(ext)
	if err != nil {
		return nil, withStage(err, common.StageUploaded)
	}

	wave, err := e.loader.Load(ctx, r, format)
	if err != nil {
		return nil, withStage(err, common.StageUploaded)
	}

	vector, err := e.extractor.Extract(ctx, wave)
	if err != nil {
		return nil, withStage(err, common.StageDecoded)
	}

	return &Extraction{
		RequestID: uuid.NewString(),
		Audio:     audioInfo(wave),
		Features:  vector,
		Elapsed:   time.Since(start),
	}, nil
}

// Scale standardizes a raw vector with the engine's scaler
func (e *Engine) Scale(raw extractors.FeatureVector) (extractors.FeatureVector, error) {
	return e.scaler.Transform(raw)
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// fail tags err with the stage it happened in, logs it and counts it
func (e *Engine) fail(err error, stage common.Stage, format string) error {
	err = withStage(err, stage)

	fields := logging.Fields{
		"stage":  string(stage),
		"code":   common.ErrorCode(err),
		"format": format,
	}
	if common.IsFatal(err) {
		e.logger.Error(err, "Classification failed", fields)
	} else {
		fields["error"] = err.Error()
		e.logger.Warn("Classification rejected", fields)
	}

	e.metrics.Failure(format, common.ErrorCode(err), string(stage))
	return err
}

func withStage(err error, stage common.Stage) error {
	if ce, ok := common.AsClassifyError(err); ok && ce.Stage == "" {
		ce.Stage = stage
	}
	return err
}
