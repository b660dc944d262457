package model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
)

// Scaler standardizes feature vectors with frozen per-dimension parameters.
// It is never mutated after load.
type Scaler struct {
	Header `yaml:",inline" msgpack:",inline"`

	Mean  []float64 `json:"mean" yaml:"mean" msgpack:"mean"`
	Scale []float64 `json:"scale" yaml:"scale" msgpack:"scale"`
}

// NewScaler builds a scaler for the current schema. Zero scale entries are
// treated as 1.
func NewScaler(mean, scale []float64) (*Scaler, error) {
	s := &Scaler{
		Header: CurrentHeader(nil),
		Mean:   append([]float64(nil), mean...),
		Scale:  append([]float64(nil), scale...),
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// IdentityScaler returns a scaler with mean 0 and scale 1
func IdentityScaler() *Scaler {
	mean := make([]float64, extractors.FeatureCount)
	scale := make([]float64, extractors.FeatureCount)
	for i := range scale {
		scale[i] = 1
	}
	s, _ := NewScaler(mean, scale)
	return s
}

// LoadScaler reads and validates a scaler artifact
func LoadScaler(path string, cfg *config.FeatureConfig) (*Scaler, error) {
	var s Scaler
	if err := ReadArtifact(path, &s); err != nil {
		return nil, err
	}
	if err := s.Header.Validate(cfg); err != nil {
		return nil, common.NewStartupError(fmt.Sprintf("scaler %s does not match the feature schema", path), err)
	}
	if err := s.check(); err != nil {
		return nil, common.NewStartupError(fmt.Sprintf("scaler %s is invalid", path), err)
	}
	return &s, nil
}

// Dim returns the number of dimensions the scaler was fitted on
func (s *Scaler) Dim() int {
	return len(s.Mean)
}

// Transform standardizes a feature vector
func (s *Scaler) Transform(raw extractors.FeatureVector) (extractors.FeatureVector, error) {
	var out extractors.FeatureVector

	scaled, err := s.TransformSlice(raw[:])
	if err != nil {
		return out, err
	}
	copy(out[:], scaled)
	return out, nil
}

// TransformSlice standardizes raw as (raw - mean) / scale. A length mismatch
// is a SchemaMismatchError; input is never truncated or padded.
func (s *Scaler) TransformSlice(raw []float64) ([]float64, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if len(raw) != len(s.Mean) {
		return nil, common.NewSchemaMismatchError(
			fmt.Sprintf("feature vector has %d values, scaler expects %d", len(raw), len(s.Mean)), nil)
	}

	out := make([]float64, len(raw))
	floats.SubTo(out, raw, s.Mean)
	for i, scale := range s.Scale {
		if scale != 0 {
			out[i] /= scale
		}
	}
	return out, nil
}

func (s *Scaler) check() error {
	if len(s.Mean) != extractors.FeatureCount || len(s.Scale) != extractors.FeatureCount {
		return common.NewSchemaMismatchError(
			fmt.Sprintf("scaler has %d means and %d scales, schema v%d needs %d",
				len(s.Mean), len(s.Scale), extractors.SchemaVersion, extractors.FeatureCount), nil)
	}
	return nil
}
