package extractors

import (
	"math"
)

// frameRMS computes root-mean-square energy over centered, zero padded
// frames. No window is applied.
func frameRMS(pcm []float64, frameLength, hopLength int) []float64 {
	pad := frameLength / 2
	padded := make([]float64, len(pcm)+2*pad)
	copy(padded[pad:], pcm)

	numFrames := 1 + (len(padded)-frameLength)/hopLength
	rms := make([]float64, numFrames)

	for t := range numFrames {
		start := t * hopLength
		sum := 0.0
		for _, x := range padded[start : start+frameLength] {
			sum += x * x
		}
		rms[t] = math.Sqrt(sum / float64(frameLength))
	}
	return rms
}

// frameZeroCrossingRate counts sign changes over centered frames padded by
// repeating the edge samples. Values with magnitude at or below threshold
// count as zero, and zero counts as positive.
func frameZeroCrossingRate(pcm []float64, frameLength, hopLength int, threshold float64) []float64 {
	pad := frameLength / 2
	negative := make([]bool, len(pcm)+2*pad)
	for i := range negative {
		j := min(max(i-pad, 0), len(pcm)-1)
		x := pcm[j]
		negative[i] = math.Abs(x) > threshold && math.Signbit(x)
	}

	numFrames := 1 + (len(negative)-frameLength)/hopLength
	zcr := make([]float64, numFrames)

	for t := range numFrames {
		start := t * hopLength
		crossings := 0
		for i := start + 1; i < start+frameLength; i++ {
			if negative[i] != negative[i-1] {
				crossings++
			}
		}
		zcr[t] = float64(crossings) / float64(frameLength)
	}
	return zcr
}

// peakAmplitude returns the largest absolute sample value
func peakAmplitude(pcm []float64) float64 {
	peak := 0.0
	for _, x := range pcm {
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	return peak
}
