// Package audiotest builds deterministic synthetic clips and WAV fixtures for tests.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MP3Fixture returns the path of a 32 second 44.1 kHz stereo MP3 clip
func MP3Fixture(tb testing.TB) string {
	tb.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		tb.Fatal("locate mp3 fixture")
	}
	return filepath.Join(filepath.Dir(file), "testdata", "allegro_32s.mp3")
}

// Sine returns a mono sine wave
func Sine(freq float64, sampleRate int, duration time.Duration, amplitude float64) []float64 {
	n := int(duration.Seconds() * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Chord sums sines of the given frequencies, scaled to stay inside [-amplitude, amplitude]
func Chord(freqs []float64, sampleRate int, duration time.Duration, amplitude float64) []float64 {
	n := int(duration.Seconds() * float64(sampleRate))
	out := make([]float64, n)
	if len(freqs) == 0 {
		return out
	}
	scale := amplitude / float64(len(freqs))
	for _, f := range freqs {
		for i := range out {
			out[i] += scale * math.Sin(2*math.Pi*f*float64(i)/float64(sampleRate))
		}
	}
	return out
}

// Noise returns seeded uniform white noise
func Noise(seed uint64, sampleRate int, duration time.Duration, amplitude float64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	n := int(duration.Seconds() * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * (2*rng.Float64() - 1)
	}
	return out
}

// Interleave merges per-channel sample slices into one interleaved slice
func Interleave(channels ...[]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	for _, ch := range channels[1:] {
		n = min(n, len(ch))
	}
	out := make([]float64, 0, n*len(channels))
	for i := range n {
		for _, ch := range channels {
			out = append(out, ch[i])
		}
	}
	return out
}

// WAVBytes encodes interleaved samples in [-1, 1] as a PCM WAV file and
// returns its bytes
func WAVBytes(tb testing.TB, samples []float64, sampleRate, channels, bitDepth int) []byte {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "fixture.wav")
	WriteWAV(tb, path, samples, sampleRate, channels, bitDepth)

	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read wav fixture: %v", err)
	}
	return data
}

// WriteWAV encodes interleaved samples in [-1, 1] as a PCM WAV file at path,
// creating missing parent directories
func WriteWAV(tb testing.TB, path string, samples []float64, sampleRate, channels, bitDepth int) {
	tb.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("create wav fixture dir: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create wav fixture: %v", err)
	}
	defer f.Close()

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           Quantize(samples, bitDepth),
		SourceBitDepth: bitDepth,
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	if err := enc.Write(buf); err != nil {
		tb.Fatalf("encode wav fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		tb.Fatalf("close wav fixture: %v", err)
	}
}

// Quantize converts samples in [-1, 1] to integer PCM values of the given depth.
// 8-bit output is unsigned, as in the WAV format.
func Quantize(samples []float64, bitDepth int) []int {
	full := float64(int64(1)<<(bitDepth-1)) - 1
	out := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		v := int(math.Round(s * full))
		if bitDepth == 8 {
			v += 128
		}
		out[i] = v
	}
	return out
}

// FloatWAVBytes encodes interleaved samples as an IEEE float WAV file with a
// plain format 3 fmt chunk. bitDepth is 32 or 64.
func FloatWAVBytes(samples []float64, sampleRate, channels, bitDepth int) []byte {
	return floatWAV(samples, sampleRate, channels, bitDepth, nil)
}

// ExtensibleWAVBytes encodes interleaved samples as float data behind a
// WAVE_FORMAT_EXTENSIBLE fmt chunk whose subformat GUID carries subFormat
func ExtensibleWAVBytes(samples []float64, sampleRate, channels, bitDepth int, subFormat uint16) []byte {
	return floatWAV(samples, sampleRate, channels, bitDepth, &subFormat)
}

func floatWAV(samples []float64, sampleRate, channels, bitDepth int, subFormat *uint16) []byte {
	le := binary.LittleEndian
	blockAlign := channels * bitDepth / 8

	fmtChunk := &bytes.Buffer{}
	format := uint16(3)
	if subFormat != nil {
		format = 0xFFFE
	}
	binary.Write(fmtChunk, le, format)
	binary.Write(fmtChunk, le, uint16(channels))
	binary.Write(fmtChunk, le, uint32(sampleRate))
	binary.Write(fmtChunk, le, uint32(sampleRate*blockAlign))
	binary.Write(fmtChunk, le, uint16(blockAlign))
	binary.Write(fmtChunk, le, uint16(bitDepth))
	if subFormat != nil {
		binary.Write(fmtChunk, le, uint16(22))
		binary.Write(fmtChunk, le, uint16(bitDepth))
		binary.Write(fmtChunk, le, uint32(0))
		binary.Write(fmtChunk, le, *subFormat)
		fmtChunk.Write([]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})
	} else {
		binary.Write(fmtChunk, le, uint16(0))
	}

	data := &bytes.Buffer{}
	for _, s := range samples {
		if bitDepth == 64 {
			binary.Write(data, le, s)
		} else {
			binary.Write(data, le, float32(s))
		}
	}

	out := &bytes.Buffer{}
	out.WriteString("RIFF")
	binary.Write(out, le, uint32(4+8+fmtChunk.Len()+8+data.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(out, le, uint32(fmtChunk.Len()))
	out.Write(fmtChunk.Bytes())
	out.WriteString("data")
	binary.Write(out, le, uint32(data.Len()))
	out.Write(data.Bytes())
	return out.Bytes()
}
