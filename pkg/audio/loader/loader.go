package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
)

// DefaultMaxInputBytes caps how much of an upload is read into memory
const DefaultMaxInputBytes int64 = 64 << 20

// Loader turns an uploaded wav/mp3 byte stream into a mono Waveform at the
// analysis sample rate
type Loader struct {
	config        *config.FeatureConfig
	maxInputBytes int64
	logger        logging.Logger
}

// Option customizes a Loader
type Option func(*Loader)

// WithMaxInputBytes overrides DefaultMaxInputBytes
func WithMaxInputBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxInputBytes = n
		}
	}
}

// WithLogger sets the logger used by the loader
func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger.WithFields(logging.Fields{"component": "audio_loader"})
		}
	}
}

// NewLoader creates a loader for the given feature configuration
func NewLoader(featureConfig *config.FeatureConfig, opts ...Option) *Loader {
	if featureConfig == nil {
		featureConfig = config.DefaultFeatureConfig()
	}

	l := &Loader{
		config:        featureConfig,
		maxInputBytes: DefaultMaxInputBytes,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_loader",
		}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads r fully, decodes it according to format and returns the
// analysis-rate waveform
func (l *Loader) Load(ctx context.Context, r io.Reader, format common.Format) (*common.Waveform, error) {
	data, err := l.ReadInput(r)
	if err != nil {
		return nil, err
	}

	native, err := l.Decode(ctx, data, format)
	if err != nil {
		return nil, err
	}

	return l.ToAnalysisRate(ctx, native)
}

// LoadFile opens path, derives the format from its extension and loads it.
// The extension is checked before the file is opened.
func (l *Loader) LoadFile(ctx context.Context, path string) (*common.Waveform, error) {
	format, err := common.ParseFormat(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewDecodeError(fmt.Sprintf("could not open %s", filepath.Base(path)), err)
	}
	defer f.Close()

	return l.Load(ctx, f, format)
}

// ReadInput reads an upload into memory, enforcing the size cap
func (l *Loader) ReadInput(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, common.NewDecodeError("no audio input", nil)
	}

	data, err := io.ReadAll(io.LimitReader(r, l.maxInputBytes+1))
	if err != nil {
		return nil, common.NewDecodeError("failed to read audio input", err)
	}
	if len(data) == 0 {
		return nil, common.NewDecodeError("audio input is empty", nil)
	}
	if int64(len(data)) > l.maxInputBytes {
		return nil, common.NewDecodeError(fmt.Sprintf("audio input exceeds %d bytes", l.maxInputBytes), nil)
	}
	return data, nil
}

// Decode decodes data at the container's native sample rate, downmixed to mono
// and truncated to the configured maximum duration
func (l *Loader) Decode(ctx context.Context, data []byte, format common.Format) (*common.Waveform, error) {
	if err := common.FromContext(ctx, common.StageUploaded); err != nil {
		return nil, err
	}

	logger := l.logger.WithFields(logging.Fields{
		"function": "Decode",
		"format":   string(format),
		"bytes":    len(data),
	})

	var (
		wave *common.Waveform
		err  error
	)
	switch format {
	case common.FormatWAV:
		wave, err = decodeWAV(data, l.config.MaxDuration)
	case common.FormatMP3:
		wave, err = decodeMP3(data, l.config.MaxDuration)
	default:
		return nil, common.NewUnsupportedFormatError(fmt.Sprintf("unsupported format %q", format), nil)
	}
	if err != nil {
		logger.Error(err, "Failed to decode audio")
		return nil, err
	}

	logger.Debug("Audio decoded", logging.Fields{
		"source_rate":     wave.SourceRate,
		"source_channels": wave.SourceChannels,
		"samples":         len(wave.Samples),
		"truncated":       wave.Truncated,
	})

	return wave, nil
}

// ToAnalysisRate resamples a native waveform to the configured analysis rate.
// A configured rate of 0 keeps the native rate.
func (l *Loader) ToAnalysisRate(ctx context.Context, native *common.Waveform) (*common.Waveform, error) {
	target := l.config.SampleRate
	if target == 0 || target == native.SampleRate {
		return native, nil
	}

	out, err := resample(ctx, native.Samples, native.SampleRate, target)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Audio resampled", logging.Fields{
		"from_rate": native.SampleRate,
		"to_rate":   target,
		"samples":   len(out),
	})

	resampled := *native
	resampled.Samples = out
	resampled.SampleRate = target
	return &resampled, nil
}

// maxFrames converts the duration cap into a frame count at rate
func maxFrames(rate int, maxDuration float64) int {
	return int(maxDuration * float64(rate))
}
