package vptree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEuclideanAccumulatesAllDimensions pins the distance to accumulate over
// every coordinate dimension: (0,0) to (3,4) is 5, not 4.
func TestEuclideanAccumulatesAllDimensions(t *testing.T) {
	m := Euclidean()
	a := []float32{0, 0}
	b := []float32{3, 4}

	require.InDelta(t, 5.0, float64(m.Host(a, b)), 1e-5)
	require.InDelta(t, 5.0, float64(m.Kernel(a, b)), 1e-5)
}

// TestMetricPairConsistency verifies the built-in metrics' host and kernel
// halves agree, which is the documented obligation for any metric pair.
func TestMetricPairConsistency(t *testing.T) {
	a := []float32{1.5, -2.25, 3.75, 0.5}
	b := []float32{-0.5, 4.25, 1.25, 2.5}

	for _, m := range []Metric{Euclidean(), SquaredEuclidean(), Manhattan()} {
		require.Equal(t, m.Host(a, b), m.Kernel(a, b), "metric %s", m.Name)
	}
}

func TestMetricSymmetry(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{6, 5, 4}

	for _, m := range []Metric{Euclidean(), Manhattan()} {
		require.Equal(t, m.Host(a, b), m.Host(b, a), "metric %s", m.Name)
	}
}

func TestMetricByName(t *testing.T) {
	for _, name := range []string{"euclidean", "sqeuclidean", "manhattan"} {
		m, err := MetricByName(name)
		require.NoError(t, err)
		require.Equal(t, name, m.Name)
	}

	_, err := MetricByName("chebyshev")
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestRegisterMetric(t *testing.T) {
	chebyshev := func(a, b []float32) float32 {
		var max float32
		for i := range a {
			d := a[i] - b[i]
			if d < 0 {
				d = -d
			}
			if d > max {
				max = d
			}
		}
		return max
	}

	require.NoError(t, RegisterMetric(Metric{Name: "chebyshev-test", Host: chebyshev, Kernel: chebyshev}))

	m, err := MetricByName("chebyshev-test")
	require.NoError(t, err)
	require.Equal(t, float32(4), m.Host([]float32{0, 0}, []float32{3, 4}))

	require.Error(t, RegisterMetric(Metric{Name: ""}))
	require.Error(t, RegisterMetric(Metric{Name: "half", Host: chebyshev}))
}
