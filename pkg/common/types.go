package common

import (
	"path/filepath"
	"strings"
	"time"
)

// Format is one of the two accepted upload containers
type Format string

const (
	FormatWAV         Format = "wav"
	FormatMP3         Format = "mp3"
	FormatUnsupported Format = "unsupported"
)

// ParseFormat accepts a bare extension ("mp3", ".WAV") or a file name and
// returns the matching Format. Anything else is an UnsupportedFormatError.
func ParseFormat(nameOrExt string) (Format, error) {
	ext := strings.TrimSpace(nameOrExt)
	if strings.Contains(ext, ".") {
		ext = filepath.Ext(ext)
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	switch Format(ext) {
	case FormatWAV:
		return FormatWAV, nil
	case FormatMP3:
		return FormatMP3, nil
	}

	if ext == "" {
		return FormatUnsupported, NewUnsupportedFormatError("missing file extension, expected wav or mp3", nil)
	}
	return FormatUnsupported, NewUnsupportedFormatError("unsupported file extension ."+ext+", expected wav or mp3", nil)
}

// Waveform is a decoded, mono, amplitude-normalized clip. It lives for one
// request only.
type Waveform struct {
	Samples        []float64 `json:"-"`
	SampleRate     int       `json:"sample_rate"`
	SourceRate     int       `json:"source_rate"`
	SourceChannels int       `json:"source_channels"`
	SourceBitDepth int       `json:"source_bit_depth,omitempty"`
	Format         Format    `json:"format"`
	Truncated      bool      `json:"truncated"`
}

// Duration returns the playing time of the waveform
func (w *Waveform) Duration() time.Duration {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// Stage is a step of the per-request state machine
type Stage string

const (
	StageUploaded          Stage = "uploaded"
	StageDecoded           Stage = "decoded"
	StageFeaturesExtracted Stage = "features_extracted"
	StageNormalized        Stage = "normalized"
	StageClassified        Stage = "classified"
	StageDisplayed         Stage = "displayed"
	StageFailed            Stage = "failed"
)

// Next returns the stage that follows s, or StageFailed for terminal stages
func (s Stage) Next() Stage {
	switch s {
	case StageUploaded:
		return StageDecoded
	case StageDecoded:
		return StageFeaturesExtracted
	case StageFeaturesExtracted:
		return StageNormalized
	case StageNormalized:
		return StageClassified
	case StageClassified:
		return StageDisplayed
	}
	return StageFailed
}

// Terminal reports whether no further transition is possible
func (s Stage) Terminal() bool {
	return s == StageDisplayed || s == StageFailed
}

// Activity describes the work that moves a request out of s
func (s Stage) Activity() string {
	switch s {
	case StageUploaded:
		return "decoding audio"
	case StageDecoded:
		return "extracting features"
	case StageFeaturesExtracted:
		return "normalizing features"
	case StageNormalized:
		return "classifying"
	case StageClassified:
		return "displaying"
	}
	return string(s)
}
