// Package batch classifies many audio files concurrently and summarizes the run.
package batch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/genre-sonar/pkg/classify"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
)

// FileClassifier classifies one file on disk. *classify.Engine satisfies it.
type FileClassifier interface {
	ClassifyFile(ctx context.Context, path string) (*classify.Result, error)
}

// Options configures an Orchestrator
type Options struct {
	MaxConcurrency int

	// Progress receives the progress bar; nil disables it
	Progress io.Writer

	Logger logging.Logger
}

// Item is the outcome for one file
type Item struct {
	Path      string           `json:"path" yaml:"path"`
	Result    *classify.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Err       error            `json:"-" yaml:"-"`
	ErrorCode string           `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Message   string           `json:"message,omitempty" yaml:"message,omitempty"`
}

// Summary is the outcome of a batch run
type Summary struct {
	Items         []*Item       `json:"items" yaml:"items"`
	StartTime     time.Time     `json:"start_time" yaml:"start_time"`
	EndTime       time.Time     `json:"end_time" yaml:"end_time"`
	TotalDuration time.Duration `json:"total_duration" yaml:"total_duration"`
	Succeeded     int           `json:"succeeded" yaml:"succeeded"`
	Failed        int           `json:"failed" yaml:"failed"`
	Metrics       *Metrics      `json:"metrics" yaml:"metrics"`
}

// Orchestrator coordinates classification of a set of files
type Orchestrator struct {
	classifier     FileClassifier
	maxConcurrency int
	progress       io.Writer
	logger         logging.Logger
	metrics        *MetricsCalculator
}

// NewOrchestrator creates a new batch orchestrator
func NewOrchestrator(classifier FileClassifier, opts Options) (*Orchestrator, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	if opts.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", opts.MaxConcurrency)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	logger = logger.WithFields(logging.Fields{"component": "batch_orchestrator"})

	return &Orchestrator{
		classifier:     classifier,
		maxConcurrency: opts.MaxConcurrency,
		progress:       opts.Progress,
		logger:         logger,
		metrics:        NewMetricsCalculator(logger),
	}, nil
}

// Run classifies files with bounded concurrency. Request-local failures are
// recorded on their Item and do not stop the batch; a fatal error cancels the
// remaining work and is returned alongside the partial summary.
func (o *Orchestrator) Run(ctx context.Context, files []string) (*Summary, error) {
	summary := &Summary{
		Items:     make([]*Item, len(files)),
		StartTime: time.Now(),
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no audio files to classify")
	}

	o.logger.Debug("Starting batch classification", logging.Fields{
		"files":           len(files),
		"max_concurrency": o.maxConcurrency,
	})

	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(o.progress))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Classifying: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)

	for i, path := range files {
		item := &Item{Path: path}
		summary.Items[i] = item

		g.Go(func() error {
			defer bar.Increment()

			if err := common.FromContext(gctx, common.StageUploaded); err != nil {
				o.record(item, nil, err)
				return nil
			}

			result, err := o.classifier.ClassifyFile(gctx, path)
			o.record(item, result, err)
			if err != nil && common.IsFatal(err) {
				return err
			}
			return nil
		})
	}

	runErr := g.Wait()
	if runErr != nil {
		bar.Abort(false)
	}
	p.Wait()

	summary.EndTime = time.Now()
	summary.TotalDuration = summary.EndTime.Sub(summary.StartTime)
	for _, item := range summary.Items {
		if item.Err != nil || item.Result == nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	summary.Metrics = o.metrics.Calculate(summary.Items)

	o.logger.Info("Batch classification completed", logging.Fields{
		"files":            len(files),
		"succeeded":        summary.Succeeded,
		"failed":           summary.Failed,
		"total_duration_s": summary.TotalDuration.Seconds(),
	})

	return summary, runErr
}

func (o *Orchestrator) record(item *Item, result *classify.Result, err error) {
	if err != nil {
		item.Err = err
		item.ErrorCode = common.ErrorCode(err)
		item.Message = common.UserMessage(err)
		return
	}
	result.MarkDisplayed()
	item.Result = result
}

// CollectFiles expands paths into the list of audio files to classify.
// Directories are walked recursively and contribute only wav and mp3 files;
// explicitly named files are kept as given so unsupported ones are reported.
// The result is sorted and free of duplicates.
func CollectFiles(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, err := common.ParseFormat(d.Name()); err == nil {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}
