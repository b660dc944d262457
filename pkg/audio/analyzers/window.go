package analyzers

import (
	"fmt"
	"sync"

	"github.com/mjibson/go-dsp/window"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
)

// WindowGenerator produces periodic analysis windows and memoizes them by
// type and size. Safe for concurrent use.
type WindowGenerator struct {
	mu    sync.RWMutex
	cache map[windowKey][]float64
}

type windowKey struct {
	windowType config.WindowType
	size       int
}

// NewWindowGenerator creates a window generator
func NewWindowGenerator() *WindowGenerator {
	return &WindowGenerator{
		cache: make(map[windowKey][]float64),
	}
}

// Generate returns a periodic window of the given size. The returned slice is
// shared and must not be modified.
func (wg *WindowGenerator) Generate(windowType config.WindowType, size int) ([]float64, error) {
	if size < 2 {
		return nil, fmt.Errorf("window size must be at least 2, got %d", size)
	}

	key := windowKey{windowType: windowType, size: size}

	wg.mu.RLock()
	w, ok := wg.cache[key]
	wg.mu.RUnlock()
	if ok {
		return w, nil
	}

	// go-dsp windows are symmetric, so build size+1 points and drop the last
	// one to get the periodic (DFT-even) form
	switch windowType {
	case config.WindowHann:
		w = window.Hann(size + 1)[:size]
	case config.WindowHamming:
		w = window.Hamming(size + 1)[:size]
	case config.WindowRectangular:
		w = window.Rectangular(size)
	default:
		return nil, fmt.Errorf("unsupported window type: %q", windowType)
	}

	wg.mu.Lock()
	wg.cache[key] = w
	wg.mu.Unlock()

	return w, nil
}
