package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Linear is a one-vs-rest linear classifier. A binary model may carry a
// single coefficient row whose positive side is the second class.
type Linear struct {
	classes   []string
	coef      *mat.Dense
	intercept []float64
	features  int
}

// NewLinear validates artifact and builds the classifier
func NewLinear(a *ClassifierArtifact) (*Linear, error) {
	if err := checkClasses(a.Classes); err != nil {
		return nil, err
	}
	k := len(a.Classes)

	rows := len(a.Coef)
	if rows != k && !(k == 2 && rows == 1) {
		return nil, fmt.Errorf("coef has %d rows for %d classes", rows, k)
	}
	if len(a.Intercept) != rows {
		return nil, fmt.Errorf("intercept has %d values, expected %d", len(a.Intercept), rows)
	}

	features := a.FeatureCount
	if features <= 0 {
		return nil, fmt.Errorf("feature_count must be positive")
	}
	coef := mat.NewDense(rows, features, nil)
	for i, row := range a.Coef {
		if len(row) != features {
			return nil, fmt.Errorf("coef row %d has %d values, expected %d", i, len(row), features)
		}
		coef.SetRow(i, row)
	}

	return &Linear{
		classes:   append([]string(nil), a.Classes...),
		coef:      coef,
		intercept: append([]float64(nil), a.Intercept...),
		features:  features,
	}, nil
}

func (l *Linear) Classes() []string { return append([]string(nil), l.classes...) }
func (l *Linear) NumFeatures() int  { return l.features }
func (l *Linear) Kind() string      { return KindLinear }

// Decision returns coef·x + intercept for every row
func (l *Linear) Decision(x []float64) ([]float64, error) {
	if err := checkInput(x, l.features); err != nil {
		return nil, err
	}

	var scores mat.VecDense
	scores.MulVec(l.coef, mat.NewVecDense(len(x), append([]float64(nil), x...)))

	out := make([]float64, scores.Len())
	for i := range out {
		out[i] = scores.AtVec(i) + l.intercept[i]
	}
	return out, nil
}

// Predict returns the highest scoring class
func (l *Linear) Predict(x []float64) (string, error) {
	scores, err := l.Decision(x)
	if err != nil {
		return "", err
	}
	if len(scores) == 1 {
		if scores[0] > 0 {
			return l.classes[1], nil
		}
		return l.classes[0], nil
	}
	return l.classes[argmax(scores)], nil
}
