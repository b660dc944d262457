package extractors

import (
	"fmt"
	"math"
)

const (
	// SchemaVersion identifies the layout of FeatureVector. Bump it whenever
	// the order or the meaning of any value changes.
	SchemaVersion = 1

	// MFCCCount is the number of cepstral means at the tail of the vector
	MFCCCount = 20

	// FeatureCount is the length of FeatureVector
	FeatureCount = 12 + MFCCCount
)

// FeatureVector is the ordered descriptor a genre model consumes:
//
//	chroma mean, var
//	rms mean, var
//	spectral centroid mean, var
//	spectral bandwidth mean, var
//	spectral rolloff mean, var
//	zero crossing rate mean, var
//	mfcc 1..20 mean
type FeatureVector [FeatureCount]float64

// NamedValue pairs a feature value with its schema name
type NamedValue struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

var featureNames = buildFeatureNames()

func buildFeatureNames() []string {
	names := []string{
		"chroma_stft_mean", "chroma_stft_var",
		"rms_mean", "rms_var",
		"spectral_centroid_mean", "spectral_centroid_var",
		"spectral_bandwidth_mean", "spectral_bandwidth_var",
		"rolloff_mean", "rolloff_var",
		"zero_crossing_rate_mean", "zero_crossing_rate_var",
	}
	for i := 1; i <= MFCCCount; i++ {
		names = append(names, fmt.Sprintf("mfcc%d_mean", i))
	}
	return names
}

// FeatureNames returns the schema names in vector order
func FeatureNames() []string {
	out := make([]string, len(featureNames))
	copy(out, featureNames)
	return out
}

// Slice returns a copy of the vector as a slice
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// Named returns the vector as ordered name/value pairs
func (v FeatureVector) Named() []NamedValue {
	out := make([]NamedValue, FeatureCount)
	for i, name := range featureNames {
		out[i] = NamedValue{Name: name, Value: v[i]}
	}
	return out
}

// Validate reports the first non-finite value, if any
func (v FeatureVector) Validate() error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("feature %s is not finite: %v", featureNames[i], x)
		}
	}
	return nil
}

// VectorFromSlice converts a slice of exactly FeatureCount values
func VectorFromSlice(values []float64) (FeatureVector, error) {
	var v FeatureVector
	if len(values) != FeatureCount {
		return v, fmt.Errorf("expected %d features, got %d", FeatureCount, len(values))
	}
	copy(v[:], values)
	return v, nil
}
