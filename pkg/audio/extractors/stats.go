package extractors

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// meanVar returns the mean and population variance of values
func meanVar(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanVariance(values, nil)
}

// matrixMeanVar returns the mean and population variance over every element of m
func matrixMeanVar(m *mat.Dense) (float64, float64) {
	rows, cols := m.Dims()
	values := make([]float64, 0, rows*cols)
	for i := range rows {
		values = append(values, m.RawRowView(i)...)
	}
	return meanVar(values)
}

// rowMeans returns the mean of each row of m
func rowMeans(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	means := make([]float64, rows)
	for i := range rows {
		means[i] = stat.Mean(m.RawRowView(i), nil)
	}
	return means
}

// normalizeColumnsByMax scales every column so its largest magnitude is 1.
// Columns that are entirely zero are left untouched.
func normalizeColumnsByMax(m *mat.Dense) {
	rows, cols := m.Dims()
	for j := range cols {
		peak := 0.0
		for i := range rows {
			peak = math.Max(peak, math.Abs(m.At(i, j)))
		}
		if peak == 0 {
			continue
		}
		for i := range rows {
			m.Set(i, j, m.At(i, j)/peak)
		}
	}
}

// powerToDB converts a power matrix to decibels relative to 1.0 with an
// amplitude floor of amin, then clips everything more than topDB below the
// loudest value. topDB <= 0 disables clipping.
func powerToDB(m *mat.Dense, amin, topDB float64) {
	maxDB := math.Inf(-1)
	m.Apply(func(_, _ int, v float64) float64 {
		db := 10 * math.Log10(math.Max(amin, v))
		maxDB = math.Max(maxDB, db)
		return db
	}, m)

	if topDB <= 0 {
		return
	}
	floor := maxDB - topDB
	m.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, floor)
	}, m)
}
