package classify

import (
	"strings"
	"time"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
)

// StageTiming records how long the pipeline spent leaving a stage
type StageTiming struct {
	Stage    common.Stage  `json:"stage" yaml:"stage"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// AudioInfo describes the decoded clip
type AudioInfo struct {
	Format         common.Format `json:"format" yaml:"format"`
	SampleRate     int           `json:"sample_rate" yaml:"sample_rate"`
	SourceRate     int           `json:"source_rate" yaml:"source_rate"`
	SourceChannels int           `json:"source_channels" yaml:"source_channels"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
	Truncated      bool          `json:"truncated" yaml:"truncated"`
}

// Result is the outcome of one classification request
type Result struct {
	RequestID    string                    `json:"request_id" yaml:"request_id"`
	Source       string                    `json:"source,omitempty" yaml:"source,omitempty"`
	Genre        string                    `json:"genre" yaml:"genre"`
	DisplayGenre string                    `json:"display_genre" yaml:"display_genre"`
	Stage        common.Stage              `json:"stage" yaml:"stage"`
	Audio        AudioInfo                 `json:"audio" yaml:"audio"`
	Features     *extractors.FeatureVector `json:"features,omitempty" yaml:"features,omitempty"`
	Normalized   *extractors.FeatureVector `json:"normalized,omitempty" yaml:"normalized,omitempty"`
	PlaybackPath string                    `json:"playback_path,omitempty" yaml:"playback_path,omitempty"`
	Timings      []StageTiming             `json:"timings" yaml:"timings"`
	Elapsed      time.Duration             `json:"elapsed" yaml:"elapsed"`
}

// Headline is the single line shown to the user
func (r *Result) Headline() string {
	return "Predicted Genre: " + r.DisplayGenre
}

// MarkDisplayed moves a classified result into its final stage
func (r *Result) MarkDisplayed() {
	if r.Stage == common.StageClassified {
		r.Stage = common.StageDisplayed
	}
}

// Extraction is the outcome of running only the decode and feature stages
type Extraction struct {
	RequestID string                   `json:"request_id" yaml:"request_id"`
	Source    string                   `json:"source,omitempty" yaml:"source,omitempty"`
	Audio     AudioInfo                `json:"audio" yaml:"audio"`
	Features  extractors.FeatureVector `json:"features" yaml:"features"`
	Elapsed   time.Duration            `json:"elapsed" yaml:"elapsed"`
}

// DisplayLabel is the label shown to the user: the model label as trained,
// without surrounding whitespace
func DisplayLabel(label string) string {
	return strings.TrimSpace(label)
}

func audioInfo(w *common.Waveform) AudioInfo {
	return AudioInfo{
		Format:         w.Format,
		SampleRate:     w.SampleRate,
		SourceRate:     w.SourceRate,
		SourceChannels: w.SourceChannels,
		Duration:       w.Duration(),
		Truncated:      w.Truncated,
	}
}
