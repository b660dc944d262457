package batch

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/genre-sonar/pkg/logging"
)

// MetricsCalculator derives summary statistics from a batch run
type MetricsCalculator struct {
	logger logging.Logger
}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator(logger logging.Logger) *MetricsCalculator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &MetricsCalculator{
		logger: logger,
	}
}

// TimingStats represents statistical measures of a duration series, in milliseconds
type TimingStats struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	P95    float64 `json:"p95" yaml:"p95"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Count  int     `json:"count" yaml:"count"`
}

// Metrics summarizes the outcome of a batch
type Metrics struct {
	SuccessRate       float64        `json:"success_rate" yaml:"success_rate"`
	GenreDistribution map[string]int `json:"genre_distribution" yaml:"genre_distribution"`
	ErrorDistribution map[string]int `json:"error_distribution" yaml:"error_distribution"`
	TruncatedClips    int            `json:"truncated_clips" yaml:"truncated_clips"`
	ProcessingTime    *TimingStats   `json:"processing_time_ms" yaml:"processing_time_ms"`
	AudioDuration     *TimingStats   `json:"audio_duration_ms" yaml:"audio_duration_ms"`
}

// Calculate builds the metrics for items
func (mc *MetricsCalculator) Calculate(items []*Item) *Metrics {
	metrics := &Metrics{
		GenreDistribution: make(map[string]int),
		ErrorDistribution: make(map[string]int),
	}

	var processing, audio []float64
	succeeded := 0

	for _, item := range items {
		if item.Err != nil {
			metrics.ErrorDistribution[item.ErrorCode]++
			continue
		}
		if item.Result == nil {
			continue
		}

		succeeded++
		metrics.GenreDistribution[item.Result.Genre]++
		if item.Result.Audio.Truncated {
			metrics.TruncatedClips++
		}
		processing = append(processing, float64(item.Result.Elapsed.Microseconds())/1000)
		audio = append(audio, float64(item.Result.Audio.Duration.Milliseconds()))
	}

	if len(items) > 0 {
		metrics.SuccessRate = float64(succeeded) / float64(len(items))
	}
	metrics.ProcessingTime = mc.calculateStats(processing)
	metrics.AudioDuration = mc.calculateStats(audio)

	mc.logger.Debug("Batch metrics calculated", logging.Fields{
		"items":        len(items),
		"succeeded":    succeeded,
		"genres":       len(metrics.GenreDistribution),
		"error_codes":  len(metrics.ErrorDistribution),
		"success_rate": metrics.SuccessRate,
	})

	return metrics
}

// calculateStats calculates statistical measures for a dataset
func (mc *MetricsCalculator) calculateStats(data []float64) *TimingStats {
	if len(data) == 0 {
		return &TimingStats{Count: 0}
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)

	return sanitizeStats(&TimingStats{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Mean:   mean,
		StdDev: std,
	})
}

// sanitizeStats removes infinite and NaN values to prevent serialization errors
func sanitizeStats(stats *TimingStats) *TimingStats {
	for _, v := range []*float64{&stats.Mean, &stats.Median, &stats.P95, &stats.Min, &stats.Max, &stats.StdDev} {
		if math.IsInf(*v, 0) || math.IsNaN(*v) {
			*v = 0
		}
	}
	return stats
}
