package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	commonout "github.com/RyanBlaney/latency-benchmark-common/output"

	"github.com/RyanBlaney/genre-sonar/configs"
	"github.com/RyanBlaney/genre-sonar/internal/batch"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/classify"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
	"github.com/RyanBlaney/genre-sonar/pkg/metrics"
	"github.com/RyanBlaney/genre-sonar/pkg/output"
)

// Context holds the CLI arguments and the runtime state derived from them
type Context struct {
	// CLI arguments
	OutputFile     string
	OutputFormat   string
	Timeout        time.Duration
	MaxConcurrent  int
	ClassifierPath string
	ScalerPath     string
	PlaybackDir    string
	KeepPlayback   bool
	ShowFeatures   bool
	Scaled         bool
	Verbose        bool
	Quiet          bool

	// Stdout and Stderr default to the process streams
	Stdout io.Writer
	Stderr io.Writer

	// Runtime context
	Logger logging.Logger
	Config *configs.Config
}

// ClassifierApp handles the classifier application lifecycle
type ClassifierApp struct {
	ctx      *Context
	config   *configs.Config
	engine   *classify.Engine
	recorder *metrics.Recorder
	logger   logging.Logger

	// out is the output file, opened on the first write
	out *os.File
}

// NewClassifierApp loads configuration and artifacts and builds the engine.
// Artifact problems surface as StartupErrors and the app refuses to start.
func NewClassifierApp(ctx *Context) (*ClassifierApp, error) {
	if ctx.Stdout == nil {
		ctx.Stdout = os.Stdout
	}
	if ctx.Stderr == nil {
		ctx.Stderr = os.Stderr
	}

	cfg, err := loadAndMergeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Config = cfg

	logger, err := setupLogging(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	ctx.Logger = logger

	recorder, err := metrics.NewRecorder(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	scaler, classifier, err := loadArtifacts(cfg)
	if err != nil {
		recorder.Close()
		return nil, err
	}

	engine, err := classify.NewEngine(classify.Options{
		FeatureConfig: cfg.FeatureConfig(),
		Scaler:        scaler,
		Classifier:    classifier,
		MaxInputBytes: cfg.Audio.MaxInputBytes,
		PlaybackDir:   cfg.Pipeline.PlaybackDir,
		KeepPlayback:  cfg.Pipeline.KeepPlayback,
		Timeout:       cfg.Pipeline.Timeout,
		Metrics:       recorder,
		Logger:        logger,
	})
	if err != nil {
		recorder.Close()
		return nil, err
	}

	logger.Debug("Classifier application initialized", logging.Fields{
		"classifier_path": cfg.Model.ClassifierPath,
		"scaler_path":     cfg.Model.ScalerPath,
		"classes":         len(engine.Classes()),
		"output_format":   cfg.OutputFormat,
		"timeout":         cfg.Pipeline.Timeout.Seconds(),
	})

	return &ClassifierApp{
		ctx:      ctx,
		config:   cfg,
		engine:   engine,
		recorder: recorder,
		logger:   logger.WithFields(logging.Fields{"component": "classifier_app"}),
	}, nil
}

// Engine returns the classification engine
func (app *ClassifierApp) Engine() *classify.Engine {
	return app.engine
}

// Close closes the output file and flushes metrics
func (app *ClassifierApp) Close() error {
	var err error
	if app.out != nil {
		err = app.out.Close()
		app.out = nil
	}
	if cerr := app.recorder.Close(); err == nil {
		err = cerr
	}
	return err
}

// Classify classifies one file and prints the result. Request-local failures
// are printed as messages; only fatal errors are returned.
func (app *ClassifierApp) Classify(ctx context.Context, path string) error {
	result, err := app.engine.ClassifyFile(ctx, path)
	if err != nil {
		return app.reportFailure(path, err)
	}
	result.MarkDisplayed()

	if !app.config.Output.ShowFeatures {
		result.Features = nil
		result.Normalized = nil
	}

	if app.format() == output.FormatTable {
		var b strings.Builder
		b.WriteString(result.Headline())
		b.WriteString("\n")
		if result.Features != nil {
			table, err := (&output.TableFormatter{}).Format(app.newFeatureReport(result.Source, result.Audio,
				*result.Features, result.Normalized), false)
			if err != nil {
				return err
			}
			b.WriteString("\n")
			b.Write(table)
		}
		return app.write([]byte(b.String()))
	}

	return app.emit(result, resultView{
		Results:      []*classify.Result{result},
		ShowFeatures: app.config.Output.ShowFeatures,
		Precision:    app.config.Output.Precision,
	})
}

// Features prints the named feature vector of one file, optionally alongside
// its standardized form
func (app *ClassifierApp) Features(ctx context.Context, path string) error {
	extraction, err := app.engine.ExtractFile(ctx, path)
	if err != nil {
		return app.reportFailure(path, err)
	}

	var scaled *extractors.FeatureVector
	if app.ctx.Scaled {
		v, err := app.engine.Scale(extraction.Features)
		if err != nil {
			return app.reportFailure(path, err)
		}
		scaled = &v
	}

	report := app.newFeatureReport(path, extraction.Audio, extraction.Features, scaled)
	return app.emit(report, report)
}

// RunBatch classifies every audio file under paths and prints a summary
func (app *ClassifierApp) RunBatch(ctx context.Context, paths []string) error {
	files, err := batch.CollectFiles(paths)
	if err != nil {
		return err
	}

	var progress io.Writer
	if app.config.Output.Progress {
		progress = app.ctx.Stderr
	}

	orchestrator, err := batch.NewOrchestrator(app.engine, batch.Options{
		MaxConcurrency: app.config.Pipeline.MaxConcurrency,
		Progress:       progress,
		Logger:         app.ctx.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create batch orchestrator: %w", err)
	}

	summary, runErr := orchestrator.Run(ctx, files)
	if summary == nil {
		return runErr
	}

	if app.format() == output.FormatTable {
		table, err := (&output.TableFormatter{}).Format(batchView{summary: summary}, false)
		if err != nil {
			return err
		}
		footer := fmt.Sprintf("\n%d files, %d classified, %d failed in %s\n",
			len(summary.Items), summary.Succeeded, summary.Failed, commonout.FormatDuration(summary.TotalDuration))
		if summary.Metrics != nil {
			footer += fmt.Sprintf("success rate %s\n", commonout.FormatPercentage(summary.Metrics.SuccessRate))
		}
		if err := app.write(append(table, footer...)); err != nil {
			return err
		}
	} else if err := app.emit(summary, batchView{summary: summary}); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("batch stopped: %w", runErr)
	}
	return nil
}

// DescribeModel prints the loaded artifact metadata
func (app *ClassifierApp) DescribeModel() error {
	features := app.engine.FeatureConfig()
	report := ModelReport{
		ClassifierPath: app.config.Model.ClassifierPath,
		ScalerPath:     app.config.Model.ScalerPath,
		Kind:           app.engine.ClassifierKind(),
		Classes:        app.engine.Classes(),
		FeatureCount:   extractors.FeatureCount,
		SchemaVersion:  extractors.SchemaVersion,
		SampleRate:     features.SampleRate,
		WindowSize:     features.WindowSize,
		HopSize:        features.HopSize,
	}
	return app.emit(report, report)
}

func (app *ClassifierApp) newFeatureReport(source string, audio classify.AudioInfo,
	raw extractors.FeatureVector, scaled *extractors.FeatureVector) featureReport {
	report := featureReport{
		Source:    source,
		Audio:     audio,
		Features:  raw.Named(),
		precision: app.config.Output.Precision,
	}
	if scaled != nil {
		report.Scaled = scaled.Named()
	}
	return report
}

// reportFailure prints a request-local failure and returns fatal ones
func (app *ClassifierApp) reportFailure(path string, err error) error {
	if common.IsFatal(err) {
		return err
	}

	if _, ok := common.AsClassifyError(err); !ok {
		return err
	}

	app.logger.Debug("Request failed", logging.Fields{
		"path": path,
		"code": common.ErrorCode(err),
	})

	if app.format() == output.FormatTable {
		_, werr := fmt.Fprintln(app.ctx.Stderr, common.UserMessage(err))
		return werr
	}

	failure := map[string]any{
		"source":     path,
		"error_code": common.ErrorCode(err),
		"message":    common.UserMessage(err),
	}
	if ce, ok := common.AsClassifyError(err); ok && ce.Stage != "" {
		failure["stage"] = string(ce.Stage)
	}
	return app.emit(failure, failureView(failure))
}

func (app *ClassifierApp) format() string {
	format := strings.ToLower(app.config.OutputFormat)
	if format == "yml" {
		return output.FormatYAML
	}
	return format
}

// emit renders structured for json and yaml, and table for csv and table
func (app *ClassifierApp) emit(structured any, table output.Tabular) error {
	formatter, err := output.NewFormatter(app.format())
	if err != nil {
		return err
	}

	data := structured
	switch app.format() {
	case output.FormatCSV, output.FormatTable:
		data = table
	}

	formatted, err := formatter.Format(data, app.config.Output.Pretty)
	if err != nil {
		return fmt.Errorf("failed to format output data: %w", err)
	}
	return app.write(formatted)
}

// write sends data to the output file, or stdout when none is set. The file
// is truncated once per run and every later write appends to it.
func (app *ClassifierApp) write(data []byte) error {
	if app.ctx.OutputFile == "" {
		_, err := app.ctx.Stdout.Write(data)
		return err
	}

	if app.out == nil {
		dir := filepath.Dir(app.ctx.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		f, err := os.Create(app.ctx.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		app.out = f
	}

	if _, err := app.out.Write(data); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	app.logger.Debug("Results written to file", logging.Fields{
		"output_file": app.ctx.OutputFile,
		"size_bytes":  len(data),
	})

	return nil
}

// setupLogging configures the process logger from configuration
func setupLogging(ctx *Context, cfg *configs.Config) (logging.Logger, error) {
	if ctx.Logger != nil {
		return ctx.Logger, nil
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logger, nil
}

// failureView renders a request failure as a single row
type failureView map[string]any

func (f failureView) Header() []string {
	return []string{"source", "stage", "error_code", "message"}
}

func (f failureView) Rows() [][]string {
	row := make([]string, 0, 4)
	for _, key := range f.Header() {
		row = append(row, commonout.ConvertValueToString(f[key]))
	}
	return [][]string{row}
}
