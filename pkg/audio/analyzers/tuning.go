package analyzers

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Pitch tracking limits used for tuning estimation
const (
	tuningFMin       = 150.0
	tuningFMax       = 4000.0
	tuningThreshold  = 0.1
	tuningResolution = 0.01
)

// float64 tiny, the smallest normal value
const tinyFloat = 2.2250738585072014e-308

// EstimateTuning returns how far the recording sits from A440, in fractions
// of a chroma bin in [-0.5, 0.5). power is the FreqBins x TimeFrames power
// spectrogram. Spectral peaks between 150 Hz and 4 kHz are located with
// parabolic interpolation and the strongest half vote in a histogram.
func EstimateTuning(power mat.Matrix, sampleRate, binsPerOctave int) float64 {
	pitches, mags := pitchTrack(power, sampleRate)
	if len(pitches) == 0 {
		return 0
	}

	threshold := median(mags)
	selected := make([]float64, 0, len(pitches)/2+1)
	for i, p := range pitches {
		if mags[i] >= threshold {
			selected = append(selected, p)
		}
	}
	return PitchTuning(selected, tuningResolution, binsPerOctave)
}

// PitchTuning returns the most common deviation of frequencies from the
// A440 pitch grid, quantized to resolution. Non-positive frequencies are
// ignored; with none left the tuning is 0.
func PitchTuning(frequencies []float64, resolution float64, binsPerOctave int) float64 {
	nBins := int(math.Ceil(1 / resolution))
	width := 1 / float64(nBins)
	counts := make([]int, nBins)

	seen := false
	for _, f := range frequencies {
		if f <= 0 {
			continue
		}
		residual := pyMod(float64(binsPerOctave)*math.Log2(f/(chromaA440/16)), 1)
		if residual >= 0.5 {
			residual--
		}
		idx := int(math.Floor((residual + 0.5) / width))
		counts[min(max(idx, 0), nBins-1)]++
		seen = true
	}
	if !seen {
		return 0
	}

	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return -0.5 + float64(best)*width
}

// pitchTrack finds local spectral peaks above a tenth of each frame's
// maximum and refines them by parabolic interpolation. It returns the peak
// frequencies with their interpolated magnitudes.
func pitchTrack(power mat.Matrix, sampleRate int) (pitches, mags []float64) {
	bins, frames := power.Dims()
	if bins < 3 || frames == 0 {
		return nil, nil
	}

	binHz := float64(sampleRate) / float64(2*(bins-1))
	fmax := math.Min(tuningFMax, float64(sampleRate)/2)

	col := make([]float64, bins)
	for t := range frames {
		mat.Col(col, t, power)
		ref := tuningThreshold * floats.Max(col)
		gated := func(i int) float64 {
			if col[i] > ref {
				return col[i]
			}
			return 0
		}

		for i := 1; i < bins-1; i++ {
			if f := float64(i) * binHz; f < tuningFMin || f >= fmax {
				continue
			}
			if x := gated(i); x <= gated(i-1) || x < gated(i+1) {
				continue
			}

			avg := 0.5 * (col[i+1] - col[i-1])
			curvature := 2*col[i] - col[i+1] - col[i-1]
			if math.Abs(curvature) < tinyFloat {
				curvature++
			}
			shift := avg / curvature

			pitch := (float64(i) + shift) * binHz
			if pitch <= 0 {
				continue
			}
			pitches = append(pitches, pitch)
			mags = append(mags, col[i]+0.5*avg*shift)
		}
	}
	return pitches, mags
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}
