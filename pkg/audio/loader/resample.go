package loader

import (
	"context"
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/RyanBlaney/genre-sonar/pkg/common"
)

// resampleChunk is the number of input samples handed to the resampler
// between cancellation checks
const resampleChunk = 1 << 16

// leads caches the measured stream offset per [from, to] rate pair
var leads sync.Map

func newResampler(from, to int) (resampling.Resampler, error) {
	return resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
}

// outputLead returns how many output samples the resampler stream runs ahead
// of the ideal timeline. Negative values mean the stream lags.
func outputLead(from, to int) (int, error) {
	key := [2]int{from, to}
	if v, ok := leads.Load(key); ok {
		return v.(int), nil
	}

	r, err := newResampler(from, to)
	if err != nil {
		return 0, err
	}

	pos := 4096 + 4*r.GetLatency()
	impulse := make([]float64, 2*pos)
	impulse[pos] = 1

	out, err := r.Process(impulse)
	if err != nil {
		return 0, err
	}
	tail, err := r.Flush()
	if err != nil {
		return 0, err
	}
	out = append(out, tail...)

	peak := 0
	for i, v := range out {
		if math.Abs(v) > math.Abs(out[peak]) {
			peak = i
		}
	}

	lead := int(math.Round(float64(pos)*float64(to)/float64(from))) - peak
	leads.Store(key, lead)
	return lead, nil
}

func resample(ctx context.Context, samples []float64, from, to int) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, common.NewDecodeError(fmt.Sprintf("cannot resample from %d Hz to %d Hz", from, to), nil)
	}

	lead, err := outputLead(from, to)
	if err != nil {
		return nil, common.NewDecodeError("failed to create resampler", err)
	}
	r, err := newResampler(from, to)
	if err != nil {
		return nil, common.NewDecodeError("failed to create resampler", err)
	}

	ratio := float64(to) / float64(from)
	pad := 0
	if lead > 0 {
		pad = int(math.Ceil(float64(lead) / ratio))
	}
	skip := int(math.Round(float64(pad)*ratio)) - lead

	expected := int(math.Ceil(float64(len(samples)) * ratio))
	out := make([]float64, 0, expected+skip+1)

	if pad > 0 {
		chunk, err := r.Process(make([]float64, pad))
		if err != nil {
			return nil, common.NewDecodeError("resample error", err)
		}
		out = append(out, chunk...)
	}

	for start := 0; start < len(samples); start += resampleChunk {
		if err := common.FromContext(ctx, common.StageUploaded); err != nil {
			return nil, err
		}

		end := min(start+resampleChunk, len(samples))
		chunk, err := r.Process(samples[start:end])
		if err != nil {
			return nil, common.NewDecodeError("resample error", err)
		}
		out = append(out, chunk...)
	}

	tail, err := r.Flush()
	if err != nil {
		return nil, common.NewDecodeError("resample flush error", err)
	}
	out = append(out, tail...)

	out = out[min(max(skip, 0), len(out)):]
	if len(out) > expected {
		out = out[:expected]
	}
	for len(out) < expected {
		out = append(out, 0)
	}

	return out, nil
}
