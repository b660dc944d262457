// Package metrics publishes classification counters and timings to DogStatsD.
package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/RyanBlaney/genre-sonar/pkg/logging"
)

// Metric names, relative to the configured namespace
const (
	MetricRequests      = "classify.requests"
	MetricFailures      = "classify.failures"
	MetricDuration      = "classify.duration"
	MetricStageDuration = "classify.stage.duration"
)

// Config controls where metrics are sent
type Config struct {
	Enabled   bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Address   string   `mapstructure:"address" json:"address" yaml:"address"`
	Namespace string   `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
	Tags      []string `mapstructure:"tags" json:"tags" yaml:"tags"`
}

// Recorder records pipeline metrics. The zero value is not usable; use
// NewRecorder or NopRecorder.
type Recorder struct {
	client statsd.ClientInterface
	logger logging.Logger
}

// NewRecorder connects to DogStatsD when cfg.Enabled is set and returns a
// no-op recorder otherwise
func NewRecorder(cfg Config) (*Recorder, error) {
	if !cfg.Enabled {
		return NopRecorder(), nil
	}

	opts := []statsd.Option{}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.Tags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.Tags))
	}

	client, err := statsd.New(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client for %s: %w", cfg.Address, err)
	}

	return NewRecorderWithClient(client), nil
}

// NewRecorderWithClient wraps an existing statsd client
func NewRecorderWithClient(client statsd.ClientInterface) *Recorder {
	return &Recorder{
		client: client,
		logger: logging.WithFields(logging.Fields{
			"component": "metrics_recorder",
		}),
	}
}

// NopRecorder returns a recorder that discards everything
func NopRecorder() *Recorder {
	return NewRecorderWithClient(&statsd.NoOpClient{})
}

// Request counts one classification attempt
func (r *Recorder) Request(format string) {
	r.emit(MetricRequests, r.client.Incr(MetricRequests, []string{"format:" + format}, 1))
}

// Failure counts a failed classification by error code and stage
func (r *Recorder) Failure(format, code, stage string) {
	tags := []string{"format:" + format, "code:" + code, "stage:" + stage}
	r.emit(MetricFailures, r.client.Incr(MetricFailures, tags, 1))
}

// Duration records the wall time of a completed classification
func (r *Recorder) Duration(format, genre string, d time.Duration) {
	tags := []string{"format:" + format, "genre:" + genre}
	r.emit(MetricDuration, r.client.Timing(MetricDuration, d, tags, 1))
}

// StageDuration records the time spent leaving one pipeline stage
func (r *Recorder) StageDuration(stage string, d time.Duration) {
	r.emit(MetricStageDuration, r.client.Timing(MetricStageDuration, d, []string{"stage:" + stage}, 1))
}

// Close flushes and closes the underlying client
func (r *Recorder) Close() error {
	return r.client.Close()
}

func (r *Recorder) emit(metric string, err error) {
	if err != nil {
		r.logger.Warn("Failed to send metric", logging.Fields{
			"metric": metric,
			"error":  err.Error(),
		})
	}
}
