package loader

import (
	"bytes"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/RyanBlaney/genre-sonar/pkg/common"
)

// go-mp3 always emits 16-bit little-endian stereo
const mp3FrameBytes = 4

func decodeMP3(data []byte, maxDuration time.Duration) (*common.Waveform, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, common.NewDecodeError("invalid MP3 stream", err)
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		return nil, common.NewDecodeError("MP3 stream reports no sample rate", nil)
	}

	limit := int64(maxFrames(rate, maxDuration.Seconds())) * mp3FrameBytes
	pcm, err := io.ReadAll(io.LimitReader(dec, limit))
	if err != nil {
		return nil, common.NewDecodeError("failed to decode MP3 frames", err)
	}

	frames := len(pcm) / mp3FrameBytes
	if frames == 0 {
		return nil, common.NewDecodeError("MP3 stream contains no audio", nil)
	}

	samples := make([]float64, frames)
	for i := range frames {
		j := i * mp3FrameBytes
		left := int16(pcm[j]) | int16(pcm[j+1])<<8
		right := int16(pcm[j+2]) | int16(pcm[j+3])<<8
		samples[i] = (float64(left) + float64(right)) / 2 / 32768.0
	}

	truncated := int64(len(pcm)) == limit && dec.Length() > limit

	return &common.Waveform{
		Samples:        samples,
		SampleRate:     rate,
		SourceRate:     rate,
		SourceChannels: 2,
		SourceBitDepth: 16,
		Format:         common.FormatMP3,
		Truncated:      truncated,
	}, nil
}
