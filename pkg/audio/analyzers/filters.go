package analyzers

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
)

// Slaney mel scale constants
const (
	melFSp      = 200.0 / 3
	melMinLogHz = 1000.0
	melMinLog   = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

// Chroma filter shaping: gaussian octave weighting centered on octave 5 with
// a two octave half-width, A440 reference
const (
	chromaCenterOctave = 5.0
	chromaOctaveWidth  = 2.0
	chromaA440         = 440.0
)

// FilterBank holds the fixed projections used to turn a power spectrogram
// into mel and MFCC representations. Chroma filters depend on the estimated
// tuning of each clip and are cached separately.
type FilterBank struct {
	Mel *mat.Dense // MelBins x FreqBins
	DCT *mat.Dense // MFCCCoefficients x MelBins

	SampleRate int
	WindowSize int
}

type filterBankKey struct {
	sampleRate int
	windowSize int
	melBins    int
	mfcc       int
	fmin, fmax float64
}

type chromaKey struct {
	sampleRate int
	windowSize int
	chroma     int
	tuning     float64
}

// FilterBankCache memoizes filter banks per sample rate and config. Safe for
// concurrent use; cached banks are never mutated.
type FilterBankCache struct {
	mu     sync.Mutex
	banks  map[filterBankKey]*FilterBank
	chroma map[chromaKey]*mat.Dense
}

// NewFilterBankCache creates an empty cache
func NewFilterBankCache() *FilterBankCache {
	return &FilterBankCache{
		banks:  make(map[filterBankKey]*FilterBank),
		chroma: make(map[chromaKey]*mat.Dense),
	}
}

// Chroma returns the chroma filters for cfg at sampleRate and tuning. Tuning
// comes off a 0.01 grid, so the cache stays small.
func (c *FilterBankCache) Chroma(cfg *config.FeatureConfig, sampleRate int, tuning float64) *mat.Dense {
	key := chromaKey{
		sampleRate: sampleRate,
		windowSize: cfg.WindowSize,
		chroma:     cfg.ChromaBins,
		tuning:     tuning,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if fb, ok := c.chroma[key]; ok {
		return fb
	}
	fb := ChromaFilters(sampleRate, cfg.WindowSize, cfg.ChromaBins, tuning)
	c.chroma[key] = fb
	return fb
}

// Get returns the filter bank for cfg at sampleRate, building it on first use
func (c *FilterBankCache) Get(cfg *config.FeatureConfig, sampleRate int) (*FilterBank, error) {
	key := filterBankKey{
		sampleRate: sampleRate,
		windowSize: cfg.WindowSize,
		melBins:    cfg.MelBins,
		mfcc:       cfg.MFCCCoefficients,
		fmin:       cfg.FreqRange[0],
		fmax:       cfg.MaxFreq(sampleRate),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if fb, ok := c.banks[key]; ok {
		return fb, nil
	}

	fb, err := NewFilterBank(cfg, sampleRate)
	if err != nil {
		return nil, err
	}
	c.banks[key] = fb
	return fb, nil
}

// NewFilterBank builds the mel and DCT projections for cfg
func NewFilterBank(cfg *config.FeatureConfig, sampleRate int) (*FilterBank, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	fmax := cfg.MaxFreq(sampleRate)
	if fmax > float64(sampleRate)/2 {
		return nil, fmt.Errorf("mel upper edge %.1f Hz exceeds Nyquist at %d Hz", fmax, sampleRate)
	}

	return &FilterBank{
		Mel:        MelFilters(sampleRate, cfg.WindowSize, cfg.MelBins, cfg.FreqRange[0], fmax),
		DCT:        DCTBasis(cfg.MFCCCoefficients, cfg.MelBins),
		SampleRate: sampleRate,
		WindowSize: cfg.WindowSize,
	}, nil
}

// HzToMel converts frequency to the Slaney mel scale
func HzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLog + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

// MelToHz converts Slaney mels back to Hz
func MelToHz(mel float64) float64 {
	if mel >= melMinLog {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLog))
	}
	return melFSp * mel
}

// MelFilters builds triangular, area-normalized mel filters over the
// windowSize/2+1 FFT bins
func MelFilters(sampleRate, windowSize, numBands int, fmin, fmax float64) *mat.Dense {
	freqBins := windowSize/2 + 1
	fftFreqs := make([]float64, freqBins)
	for i := range fftFreqs {
		fftFreqs[i] = float64(i) * float64(sampleRate) / float64(windowSize)
	}

	minMel, maxMel := HzToMel(fmin), HzToMel(fmax)
	edges := make([]float64, numBands+2)
	for i := range edges {
		edges[i] = MelToHz(minMel + (maxMel-minMel)*float64(i)/float64(numBands+1))
	}

	weights := mat.NewDense(numBands, freqBins, nil)
	for m := range numBands {
		lowerWidth := edges[m+1] - edges[m]
		upperWidth := edges[m+2] - edges[m+1]
		enorm := 2.0 / (edges[m+2] - edges[m])

		for k, f := range fftFreqs {
			lower := (f - edges[m]) / lowerWidth
			upper := (edges[m+2] - f) / upperWidth
			w := math.Max(0, math.Min(lower, upper))
			if w > 0 {
				weights.Set(m, k, w*enorm)
			}
		}
	}
	return weights
}

// DCTBasis returns the first numCoeffs rows of the orthonormal DCT-II matrix
// of size n
func DCTBasis(numCoeffs, n int) *mat.Dense {
	basis := mat.NewDense(numCoeffs, n, nil)
	for k := range numCoeffs {
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		for i := range n {
			basis.Set(k, i, scale*math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n))))
		}
	}
	return basis
}

// ChromaFilters maps FFT bins onto numChroma pitch classes starting at C.
// Each bin contributes a gaussian around its fractional pitch class; the
// columns are L2 normalized and weighted toward the middle octaves. tuning
// shifts the A reference by that fraction of a chroma bin.
func ChromaFilters(sampleRate, windowSize, numChroma int, tuning float64) *mat.Dense {
	nChroma := float64(numChroma)
	a440 := chromaA440 * math.Pow(2, tuning/nChroma)

	// fractional chroma bin of every FFT bin except DC
	frqBins := make([]float64, windowSize)
	for i := 1; i < windowSize; i++ {
		f := float64(i) * float64(sampleRate) / float64(windowSize)
		frqBins[i] = nChroma * math.Log2(f/(a440/16))
	}
	frqBins[0] = frqBins[1] - 1.5*nChroma

	binWidths := make([]float64, windowSize)
	for i := 0; i < windowSize-1; i++ {
		binWidths[i] = math.Max(frqBins[i+1]-frqBins[i], 1)
	}
	binWidths[windowSize-1] = 1

	half := math.Round(nChroma / 2)
	wts := mat.NewDense(numChroma, windowSize, nil)
	for k := range windowSize {
		norm := 0.0
		for c := range numChroma {
			d := pyMod(frqBins[k]-float64(c)+half+10*nChroma, nChroma) - half
			v := math.Exp(-0.5 * math.Pow(2*d/binWidths[k], 2))
			wts.Set(c, k, v)
			norm += v * v
		}
		norm = math.Sqrt(norm)

		octave := math.Exp(-0.5 * math.Pow((frqBins[k]/nChroma-chromaCenterOctave)/chromaOctaveWidth, 2))
		for c := range numChroma {
			v := wts.At(c, k)
			if norm > 0 {
				v /= norm
			}
			wts.Set(c, k, v*octave)
		}
	}

	// rotate so row 0 is C rather than A
	shift := 3 * (numChroma / 12)
	freqBins := windowSize/2 + 1
	out := mat.NewDense(numChroma, freqBins, nil)
	for c := range numChroma {
		src := (c + shift) % numChroma
		for k := range freqBins {
			out.Set(c, k, wts.At(src, k))
		}
	}
	return out
}

// pyMod is a floored modulo, always in [0, m) for m > 0
func pyMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}
