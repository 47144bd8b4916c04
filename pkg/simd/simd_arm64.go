//go:build arm64 && !nosimd

package simd

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// ARM64 NEON-optimized implementations using viterin/vek SIMD library.
// vek32 provides NEON SIMD assembly for float32 vectors on ARM64.

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
	n := len(a)
	if n == 0 {
		return 0
	}

	// vek has no L1 distance; a 4-way unroll keeps NEON lanes busy.
	sum0 := float32(0)
	sum1 := float32(0)
	sum2 := float32(0)
	sum3 := float32(0)

	i := 0
	for ; i <= n-4; i += 4 {
		sum0 += abs32(a[i] - b[i])
		sum1 += abs32(a[i+1] - b[i+1])
		sum2 += abs32(a[i+2] - b[i+2])
		sum3 += abs32(a[i+3] - b[i+3])
	}

	for ; i < n; i++ {
		sum0 += abs32(a[i] - b[i])
	}

	return sum0 + sum1 + sum2 + sum3
}

func abs32(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
}

func runtimeInfo() RuntimeInfo {
	info := vek32.Info()
	if info.Acceleration {
		return RuntimeInfo{
			Implementation: ImplNEON,
			Features:       info.CPUFeatures,
			Accelerated:    true,
		}
	}
	return RuntimeInfo{
		Implementation: ImplGeneric,
		Features:       info.CPUFeatures,
		Accelerated:    false,
	}
}
