//go:build (!amd64 && !arm64) || nosimd

package simd

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Generic fallback implementations using viterin/vek library.
// On platforms without AVX2/NEON, vek32 uses optimized pure Go implementations
// that are still faster than naive loops due to better memory access patterns.

func euclideanDistance(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Distance(a, b)
}

func squaredEuclideanDistance(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	d := vek32.Distance(a, b)
	return d * d
}

func manhattanDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += float32(math.Abs(float64(a[i] - b[i])))
	}
	return sum
}

func runtimeInfo() RuntimeInfo {
	info := vek32.Info()
	return RuntimeInfo{
		Implementation: ImplGeneric,
		Features:       info.CPUFeatures,
		Accelerated:    info.Acceleration,
	}
}
