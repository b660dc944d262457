package loader

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/RyanBlaney/genre-sonar/pkg/common"
	"github.com/RyanBlaney/genre-sonar/pkg/logging"
)

const playbackBitDepth = 16

// PlaybackWriter re-encodes decoded clips as 16-bit mono WAV so they can be
// played back next to the prediction
type PlaybackWriter struct {
	dir    string
	now    func() time.Time
	logger logging.Logger
}

// NewPlaybackWriter creates a writer that stores files under dir. An empty dir
// uses the system temp directory.
func NewPlaybackWriter(dir string) *PlaybackWriter {
	if dir == "" {
		dir = os.TempDir()
	}
	return &PlaybackWriter{
		dir: dir,
		now: time.Now,
		logger: logging.WithFields(logging.Fields{
			"component": "playback_writer",
		}),
	}
}

// Dir returns the directory playback files are written to
func (p *PlaybackWriter) Dir() string {
	return p.dir
}

// Write encodes w at its own sample rate and returns the created file path.
// MP3 uploads are named converted_*, WAV uploads uploaded_*.
func (p *PlaybackWriter) Write(w *common.Waveform) (string, error) {
	if w == nil || len(w.Samples) == 0 || w.SampleRate <= 0 {
		return "", fmt.Errorf("cannot write empty waveform")
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create playback dir: %w", err)
	}

	prefix := "uploaded"
	if w.Format == common.FormatMP3 {
		prefix = "converted"
	}
	name := fmt.Sprintf("%s_%s_%s.wav", prefix, p.now().Format("20060102150405"), uuid.NewString()[:8])
	path := filepath.Join(p.dir, name)

	if err := writePCM16(path, w.Samples, w.SampleRate); err != nil {
		os.Remove(path)
		return "", err
	}

	p.logger.Debug("Playback file written", logging.Fields{
		"path":        path,
		"sample_rate": w.SampleRate,
		"samples":     len(w.Samples),
	})
	return path, nil
}

// Remove deletes a playback file. Missing files are not an error.
func (p *PlaybackWriter) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove playback file: %w", err)
	}
	return nil
}

func writePCM16(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create playback file: %w", err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * 32767))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: playbackBitDepth,
	}

	enc := wav.NewEncoder(f, sampleRate, playbackBitDepth, 1, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode playback file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize playback file: %w", err)
	}
	return nil
}
