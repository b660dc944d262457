package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/genre-sonar/pkg/common"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// wavGUIDTail is the fixed part of the KSDATAFORMAT_SUBTYPE GUIDs. The first
// two bytes of a subformat GUID carry the plain format code.
var wavGUIDTail = [14]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

type wavFmt struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

type wavFmtExtension struct {
	Size          uint16
	ValidBits     uint16
	ChannelMask   uint32
	SubFormatCode uint16
	SubFormatTail [14]byte
}

// wavHeader is the fmt chunk with an extensible format resolved to its
// subformat, plus the raw data chunk payload
type wavHeader struct {
	format   uint16
	channels int
	rate     int
	bits     int
	payload  []byte
}

func decodeWAV(data []byte, maxDuration time.Duration) (*common.Waveform, error) {
	header, err := scanWAV(data)
	if err != nil {
		return nil, err
	}
	if header.channels <= 0 || header.rate <= 0 {
		return nil, common.NewDecodeError(fmt.Sprintf("invalid WAV format: %d channels at %d Hz", header.channels, header.rate), nil)
	}

	switch header.format {
	case wavFormatPCM:
		return decodeIntegerWAV(data, header, maxDuration)
	case wavFormatFloat:
		return decodeFloatWAV(header, maxDuration)
	default:
		return nil, common.NewDecodeError(fmt.Sprintf("unsupported WAV encoding %d, expected PCM or IEEE float", header.format), nil)
	}
}

// scanWAV walks the RIFF chunks up to the data chunk
func scanWAV(data []byte) (*wavHeader, error) {
	r := bytes.NewReader(data)
	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return nil, common.NewDecodeError("invalid WAV file", err)
	}
	if p.Format != riff.WavFormatID {
		return nil, common.NewDecodeError(fmt.Sprintf("invalid WAV file: RIFF form %q", p.Format[:]), nil)
	}

	var header *wavHeader
	for {
		ch, err := p.NextChunk()
		if err != nil {
			break
		}

		switch ch.ID {
		case riff.FmtID:
			if header, err = readFmtChunk(ch); err != nil {
				return nil, err
			}
		case riff.DataFormatID:
			if header == nil {
				return nil, common.NewDecodeError("WAV data chunk precedes the format chunk", nil)
			}
			start := int(r.Size()) - r.Len()
			header.payload = data[start:min(start+ch.Size, len(data))]
			return header, nil
		}
		ch.Drain()
	}

	if header == nil {
		return nil, common.NewDecodeError("WAV file has no format chunk", nil)
	}
	return nil, common.NewDecodeError("WAV file has no data chunk", nil)
}

func readFmtChunk(ch *riff.Chunk) (*wavHeader, error) {
	var f wavFmt
	if err := ch.ReadLE(&f); err != nil {
		return nil, common.NewDecodeError("malformed WAV format chunk", err)
	}

	header := &wavHeader{
		format:   f.AudioFormat,
		channels: int(f.NumChannels),
		rate:     int(f.SampleRate),
		bits:     int(f.BitsPerSample),
	}
	if f.AudioFormat != wavFormatExtensible {
		return header, nil
	}

	var ext wavFmtExtension
	if err := ch.ReadLE(&ext); err != nil {
		return nil, common.NewDecodeError("extensible WAV format chunk has no subformat", err)
	}
	if ext.SubFormatTail != wavGUIDTail {
		return nil, common.NewDecodeError("unsupported WAV extensible subformat GUID", nil)
	}
	header.format = ext.SubFormatCode
	return header, nil
}

func decodeIntegerWAV(data []byte, header *wavHeader, maxDuration time.Duration) (*common.Waveform, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, common.NewDecodeError("invalid WAV file", nil)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, common.NewDecodeError("could not read PCM data", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, common.NewDecodeError("WAV file has no format chunk", nil)
	}

	channels := header.channels
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = header.bits
	}
	if bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, common.NewDecodeError(fmt.Sprintf("unsupported WAV bit depth %d", bitDepth), nil)
	}

	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, common.NewDecodeError("WAV file contains no samples", nil)
	}

	limit := maxFrames(header.rate, maxDuration.Seconds())
	truncated := frames > limit
	frames = min(frames, limit)

	return &common.Waveform{
		Samples:        downmix(buf.Data[:frames*channels], channels, bitDepth),
		SampleRate:     header.rate,
		SourceRate:     header.rate,
		SourceChannels: channels,
		SourceBitDepth: bitDepth,
		Format:         common.FormatWAV,
		Truncated:      truncated,
	}, nil
}

func decodeFloatWAV(header *wavHeader, maxDuration time.Duration) (*common.Waveform, error) {
	if header.bits != 32 && header.bits != 64 {
		return nil, common.NewDecodeError(fmt.Sprintf("unsupported float WAV bit depth %d", header.bits), nil)
	}

	width := header.bits / 8
	channels := header.channels
	frames := len(header.payload) / (width * channels)
	if frames == 0 {
		return nil, common.NewDecodeError("WAV file contains no samples", nil)
	}

	limit := maxFrames(header.rate, maxDuration.Seconds())
	truncated := frames > limit
	frames = min(frames, limit)

	samples := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			off := (i*channels + c) * width
			if width == 4 {
				sum += float64(math.Float32frombits(binary.LittleEndian.Uint32(header.payload[off:])))
			} else {
				sum += math.Float64frombits(binary.LittleEndian.Uint64(header.payload[off:]))
			}
		}
		samples[i] = sum / float64(channels)
	}

	return &common.Waveform{
		Samples:        samples,
		SampleRate:     header.rate,
		SourceRate:     header.rate,
		SourceChannels: channels,
		SourceBitDepth: header.bits,
		Format:         common.FormatWAV,
		Truncated:      truncated,
	}, nil
}

// downmix averages interleaved integer PCM into mono samples in [-1, 1)
func downmix(data []int, channels, bitDepth int) []float64 {
	full := float64(int64(1) << (bitDepth - 1))
	offset := 0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		offset = 128
	}

	frames := len(data) / channels
	out := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += float64(data[i*channels+c]-offset) / full
		}
		out[i] = sum / float64(channels)
	}
	return out
}
