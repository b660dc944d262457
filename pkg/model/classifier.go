package model

import (
	"fmt"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
)

// Classifier kinds understood by LoadClassifier
const (
	KindSVC    = "svc"
	KindLinear = "linear"
)

// Classifier maps a standardized feature vector to one label from a closed
// set. Implementations are immutable and safe for concurrent use.
type Classifier interface {
	// Predict returns the single best label
	Predict(x []float64) (string, error)

	// Decision returns the raw scores behind Predict: per-class votes for
	// one-vs-one models, per-class margins for one-vs-rest models
	Decision(x []float64) ([]float64, error)

	Classes() []string
	NumFeatures() int
	Kind() string
}

// ClassifierArtifact is the serialized form of every classifier kind.
// Fields that do not apply to Kind are left empty.
type ClassifierArtifact struct {
	Header `yaml:",inline" msgpack:",inline"`

	Kind    string   `json:"kind" yaml:"kind" msgpack:"kind"`
	Classes []string `json:"classes" yaml:"classes" msgpack:"classes"`

	// svc
	Kernel         string      `json:"kernel,omitempty" yaml:"kernel,omitempty" msgpack:"kernel,omitempty"`
	Gamma          float64     `json:"gamma,omitempty" yaml:"gamma,omitempty" msgpack:"gamma,omitempty"`
	Coef0          float64     `json:"coef0,omitempty" yaml:"coef0,omitempty" msgpack:"coef0,omitempty"`
	Degree         int         `json:"degree,omitempty" yaml:"degree,omitempty" msgpack:"degree,omitempty"`
	SupportVectors [][]float64 `json:"support_vectors,omitempty" yaml:"support_vectors,omitempty" msgpack:"support_vectors,omitempty"`
	NSupport       []int       `json:"n_support,omitempty" yaml:"n_support,omitempty" msgpack:"n_support,omitempty"`
	DualCoef       [][]float64 `json:"dual_coef,omitempty" yaml:"dual_coef,omitempty" msgpack:"dual_coef,omitempty"`

	// linear
	Coef [][]float64 `json:"coef,omitempty" yaml:"coef,omitempty" msgpack:"coef,omitempty"`

	Intercept []float64 `json:"intercept" yaml:"intercept" msgpack:"intercept"`
}

// LoadClassifier reads, validates and builds the classifier at path
func LoadClassifier(path string, cfg *config.FeatureConfig) (Classifier, error) {
	var artifact ClassifierArtifact
	if err := ReadArtifact(path, &artifact); err != nil {
		return nil, err
	}
	if err := artifact.Header.Validate(cfg); err != nil {
		return nil, common.NewStartupError(fmt.Sprintf("classifier %s does not match the feature schema", path), err)
	}

	clf, err := NewClassifier(&artifact)
	if err != nil {
		return nil, common.NewStartupError(fmt.Sprintf("classifier %s is invalid", path), err)
	}
	return clf, nil
}

// NewClassifier builds the classifier described by artifact
func NewClassifier(artifact *ClassifierArtifact) (Classifier, error) {
	switch artifact.Kind {
	case KindSVC:
		return NewSVC(artifact)
	case KindLinear:
		return NewLinear(artifact)
	}
	return nil, fmt.Errorf("unknown classifier kind %q", artifact.Kind)
}

func checkInput(x []float64, want int) error {
	if len(x) != want {
		return common.NewModelInferenceError(
			fmt.Sprintf("input has %d features, model was fitted on %d", len(x), want), nil)
	}
	return nil
}

func checkClasses(classes []string) error {
	if len(classes) < 2 {
		return fmt.Errorf("need at least 2 classes, got %d", len(classes))
	}
	seen := make(map[string]bool, len(classes))
	for _, c := range classes {
		if c == "" {
			return fmt.Errorf("empty class label")
		}
		if seen[c] {
			return fmt.Errorf("duplicate class label %q", c)
		}
		seen[c] = true
	}
	return nil
}

// argmax returns the index of the largest value, preferring the lowest index
// on ties
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
