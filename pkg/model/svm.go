package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kernel names
const (
	KernelLinear  = "linear"
	KernelRBF     = "rbf"
	KernelPoly    = "poly"
	KernelSigmoid = "sigmoid"
)

// SVC is a one-vs-one kernel support vector classifier in libsvm layout:
// support vectors are grouped by class, dual_coef has k-1 rows, and there is
// one intercept per class pair in the order (0,1), (0,2), ..., (k-2,k-1).
// A positive pair decision votes for the lower-indexed class.
type SVC struct {
	classes   []string
	kernel    string
	gamma     float64
	coef0     float64
	degree    int
	sv        *mat.Dense
	svNorms   []float64
	starts    []int
	nSupport  []int
	dualCoef  *mat.Dense
	intercept []float64
	features  int
}

// NewSVC validates artifact and builds the classifier
func NewSVC(a *ClassifierArtifact) (*SVC, error) {
	if err := checkClasses(a.Classes); err != nil {
		return nil, err
	}
	k := len(a.Classes)

	kernel := a.Kernel
	if kernel == "" {
		kernel = KernelRBF
	}
	switch kernel {
	case KernelLinear:
	case KernelRBF, KernelPoly, KernelSigmoid:
		if a.Gamma <= 0 {
			return nil, fmt.Errorf("%s kernel needs a positive gamma", kernel)
		}
	default:
		return nil, fmt.Errorf("unknown kernel %q", kernel)
	}
	degree := a.Degree
	if kernel == KernelPoly && degree <= 0 {
		degree = 3
	}

	if len(a.NSupport) != k {
		return nil, fmt.Errorf("n_support has %d entries for %d classes", len(a.NSupport), k)
	}
	total := 0
	starts := make([]int, k)
	for i, n := range a.NSupport {
		if n <= 0 {
			return nil, fmt.Errorf("class %q has no support vectors", a.Classes[i])
		}
		starts[i] = total
		total += n
	}
	if len(a.SupportVectors) != total {
		return nil, fmt.Errorf("n_support sums to %d but there are %d support vectors", total, len(a.SupportVectors))
	}

	features := a.FeatureCount
	if features <= 0 {
		return nil, fmt.Errorf("feature_count must be positive")
	}
	sv := mat.NewDense(total, features, nil)
	svNorms := make([]float64, total)
	for i, row := range a.SupportVectors {
		if len(row) != features {
			return nil, fmt.Errorf("support vector %d has %d values, expected %d", i, len(row), features)
		}
		sv.SetRow(i, row)
		svNorms[i] = mat.Dot(sv.RowView(i), sv.RowView(i))
	}

	if len(a.DualCoef) != k-1 {
		return nil, fmt.Errorf("dual_coef has %d rows, expected %d", len(a.DualCoef), k-1)
	}
	dual := mat.NewDense(k-1, total, nil)
	for i, row := range a.DualCoef {
		if len(row) != total {
			return nil, fmt.Errorf("dual_coef row %d has %d values, expected %d", i, len(row), total)
		}
		dual.SetRow(i, row)
	}

	pairs := k * (k - 1) / 2
	if len(a.Intercept) != pairs {
		return nil, fmt.Errorf("intercept has %d values, expected %d", len(a.Intercept), pairs)
	}

	return &SVC{
		classes:   append([]string(nil), a.Classes...),
		kernel:    kernel,
		gamma:     a.Gamma,
		coef0:     a.Coef0,
		degree:    degree,
		sv:        sv,
		svNorms:   svNorms,
		starts:    starts,
		nSupport:  append([]int(nil), a.NSupport...),
		dualCoef:  dual,
		intercept: append([]float64(nil), a.Intercept...),
		features:  features,
	}, nil
}

func (s *SVC) Classes() []string { return append([]string(nil), s.classes...) }
func (s *SVC) NumFeatures() int  { return s.features }
func (s *SVC) Kind() string      { return KindSVC }

// Predict returns the class with the most pairwise votes
func (s *SVC) Predict(x []float64) (string, error) {
	votes, err := s.Decision(x)
	if err != nil {
		return "", err
	}
	return s.classes[argmax(votes)], nil
}

// Decision returns the vote count of every class
func (s *SVC) Decision(x []float64) ([]float64, error) {
	pair, err := s.PairwiseDecision(x)
	if err != nil {
		return nil, err
	}

	k := len(s.classes)
	votes := make([]float64, k)
	p := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if pair[p] > 0 {
				votes[i]++
			} else {
				votes[j]++
			}
			p++
		}
	}
	return votes, nil
}

// PairwiseDecision returns the one-vs-one decision values in pair order
func (s *SVC) PairwiseDecision(x []float64) ([]float64, error) {
	if err := checkInput(x, s.features); err != nil {
		return nil, err
	}

	kvals := s.kernelValues(x)

	k := len(s.classes)
	dec := make([]float64, 0, k*(k-1)/2)
	p := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			sum := 0.0
			// coefficients of class i against j live in row j-1, those of
			// class j against i in row i
			for n := s.starts[i]; n < s.starts[i]+s.nSupport[i]; n++ {
				sum += s.dualCoef.At(j-1, n) * kvals[n]
			}
			for n := s.starts[j]; n < s.starts[j]+s.nSupport[j]; n++ {
				sum += s.dualCoef.At(i, n) * kvals[n]
			}
			dec = append(dec, sum+s.intercept[p])
			p++
		}
	}
	return dec, nil
}

func (s *SVC) kernelValues(x []float64) []float64 {
	xv := mat.NewVecDense(len(x), append([]float64(nil), x...))

	var dots mat.VecDense
	dots.MulVec(s.sv, xv)

	out := make([]float64, dots.Len())
	switch s.kernel {
	case KernelLinear:
		for i := range out {
			out[i] = dots.AtVec(i)
		}
	case KernelRBF:
		xNorm := mat.Dot(xv, xv)
		for i := range out {
			d := math.Max(0, s.svNorms[i]+xNorm-2*dots.AtVec(i))
			out[i] = math.Exp(-s.gamma * d)
		}
	case KernelPoly:
		for i := range out {
			out[i] = math.Pow(s.gamma*dots.AtVec(i)+s.coef0, float64(s.degree))
		}
	case KernelSigmoid:
		for i := range out {
			out[i] = math.Tanh(s.gamma*dots.AtVec(i) + s.coef0)
		}
	}
	return out
}
