package app

import (
	"strconv"
	"strings"

	"github.com/RyanBlaney/genre-sonar/internal/batch"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/classify"
)

func formatFloat(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}

func formatSeconds(d interface{ Seconds() float64 }) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 2, 64)
}

// resultView lays out classification results one row per clip
type resultView struct {
	Results      []*classify.Result
	ShowFeatures bool
	Precision    int
}

func (v resultView) Header() []string {
	header := []string{"source", "genre", "duration_s", "truncated", "elapsed_ms"}
	if v.ShowFeatures {
		header = append(header, extractors.FeatureNames()...)
	}
	return header
}

func (v resultView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Results))
	for _, r := range v.Results {
		row := []string{
			r.Source,
			r.DisplayGenre,
			formatSeconds(r.Audio.Duration),
			strconv.FormatBool(r.Audio.Truncated),
			strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
		}
		if v.ShowFeatures && r.Features != nil {
			for _, x := range r.Features {
				row = append(row, formatFloat(x, v.Precision))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// featureReport is the structured form of the features command output
type featureReport struct {
	Source   string                  `json:"source" yaml:"source"`
	Audio    classify.AudioInfo      `json:"audio" yaml:"audio"`
	Features []extractors.NamedValue `json:"features" yaml:"features"`
	Scaled   []extractors.NamedValue `json:"scaled,omitempty" yaml:"scaled,omitempty"`

	precision int
}

func (r featureReport) Header() []string {
	if r.Scaled != nil {
		return []string{"feature", "raw", "scaled"}
	}
	return []string{"feature", "value"}
}

func (r featureReport) Rows() [][]string {
	rows := make([][]string, len(r.Features))
	for i, f := range r.Features {
		rows[i] = []string{f.Name, formatFloat(f.Value, r.precision)}
		if r.Scaled != nil {
			rows[i] = append(rows[i], formatFloat(r.Scaled[i].Value, r.precision))
		}
	}
	return rows
}

// batchView lays out a batch summary one row per file
type batchView struct {
	summary *batch.Summary
}

func (v batchView) Header() []string {
	return []string{"path", "genre", "status", "duration_s", "elapsed_ms"}
}

func (v batchView) Rows() [][]string {
	rows := make([][]string, 0, len(v.summary.Items))
	for _, item := range v.summary.Items {
		if item.Err != nil || item.Result == nil {
			rows = append(rows, []string{item.Path, "", item.ErrorCode, "", ""})
			continue
		}
		rows = append(rows, []string{
			item.Path,
			item.Result.DisplayGenre,
			"ok",
			formatSeconds(item.Result.Audio.Duration),
			strconv.FormatInt(item.Result.Elapsed.Milliseconds(), 10),
		})
	}
	return rows
}

// ModelReport describes the loaded artifacts
type ModelReport struct {
	ClassifierPath string   `json:"classifier_path" yaml:"classifier_path"`
	ScalerPath     string   `json:"scaler_path" yaml:"scaler_path"`
	Kind           string   `json:"kind" yaml:"kind"`
	Classes        []string `json:"classes" yaml:"classes"`
	FeatureCount   int      `json:"feature_count" yaml:"feature_count"`
	SchemaVersion  int      `json:"schema_version" yaml:"schema_version"`
	SampleRate     int      `json:"sample_rate" yaml:"sample_rate"`
	WindowSize     int      `json:"window_size" yaml:"window_size"`
	HopSize        int      `json:"hop_size" yaml:"hop_size"`
}

func (m ModelReport) Header() []string {
	return []string{"property", "value"}
}

func (m ModelReport) Rows() [][]string {
	return [][]string{
		{"classifier_path", m.ClassifierPath},
		{"scaler_path", m.ScalerPath},
		{"kind", m.Kind},
		{"classes", strings.Join(m.Classes, ", ")},
		{"feature_count", strconv.Itoa(m.FeatureCount)},
		{"schema_version", strconv.Itoa(m.SchemaVersion)},
		{"sample_rate", strconv.Itoa(m.SampleRate)},
		{"window_size", strconv.Itoa(m.WindowSize)},
		{"hop_size", strconv.Itoa(m.HopSize)},
	}
}
