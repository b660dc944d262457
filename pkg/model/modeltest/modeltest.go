// Package modeltest builds small, hand-checkable model artifacts for tests.
package modeltest

import (
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/model"
)

// Genres is the label set used by the fixtures
var Genres = []string{"blues", "classical", "metal", "pop"}

// Basis returns the unit vector along dimension i of the feature space
func Basis(i int) []float64 {
	v := make([]float64, extractors.FeatureCount)
	v[i] = 1
	return v
}

// PrototypeSVC returns a one-vs-one SVC with a single support vector per
// class. Every pair decision is K(x, p_i) - K(x, p_j), so the class whose
// prototype is most similar to x wins.
func PrototypeSVC(classes []string, prototypes [][]float64, kernel string, gamma float64) *model.ClassifierArtifact {
	k := len(classes)
	dual := make([][]float64, k-1)
	for r := range dual {
		dual[r] = make([]float64, k)
		for c := range k {
			if r >= c {
				dual[r][c] = 1
			} else {
				dual[r][c] = -1
			}
		}
	}

	nSupport := make([]int, k)
	for i := range nSupport {
		nSupport[i] = 1
	}

	return &model.ClassifierArtifact{
		Header:         model.CurrentHeader(config.DefaultFeatureConfig()),
		Kind:           model.KindSVC,
		Classes:        append([]string(nil), classes...),
		Kernel:         kernel,
		Gamma:          gamma,
		SupportVectors: prototypes,
		NSupport:       nSupport,
		DualCoef:       dual,
		Intercept:      make([]float64, k*(k-1)/2),
	}
}

// GenreSVC is PrototypeSVC over Genres with basis-vector prototypes and an
// RBF kernel
func GenreSVC() *model.ClassifierArtifact {
	prototypes := make([][]float64, len(Genres))
	for i := range prototypes {
		prototypes[i] = Basis(i)
	}
	return PrototypeSVC(Genres, prototypes, model.KernelRBF, 0.05)
}

// WriteArtifacts writes GenreSVC and an identity scaler into a temp dir using
// the given extension and returns the classifier and scaler paths
func WriteArtifacts(tb testing.TB, ext string) (string, string) {
	tb.Helper()

	dir := tb.TempDir()
	clfPath := filepath.Join(dir, "classifier"+ext)
	scalerPath := filepath.Join(dir, "scaler"+ext)

	if err := model.WriteArtifact(clfPath, GenreSVC()); err != nil {
		tb.Fatalf("write classifier fixture: %v", err)
	}

	scaler := model.IdentityScaler()
	scaler.Header = model.CurrentHeader(config.DefaultFeatureConfig())
	if err := model.WriteArtifact(scalerPath, scaler); err != nil {
		tb.Fatalf("write scaler fixture: %v", err)
	}
	return clfPath, scalerPath
}
