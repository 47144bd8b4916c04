//go:build amd64 && !nosimd

package simd

import (
	"math"

	"golang.org/x/sys/cpu"
)

// x86/amd64 optimized implementations.
// Uses loop unrolling that the Go compiler can auto-vectorize with AVX2/SSE.

// hasAVX2 checks if the CPU supports AVX2+FMA at runtime
var hasAVX2 = cpu.X86.HasAVX2 && cpu.X86.HasFMA

func squaredEuclideanDistance(a, b []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}

	// 8-way unrolling for better auto-vectorization with AVX2 (256-bit = 8 float32s)
	sum0 := float32(0)
	sum1 := float32(0)
	sum2 := float32(0)
	sum3 := float32(0)
	sum4 := float32(0)
	sum5 := float32(0)
	sum6 := float32(0)
	sum7 := float32(0)

	i := 0
	for ; i <= n-8; i += 8 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		d4 := a[i+4] - b[i+4]
		d5 := a[i+5] - b[i+5]
		d6 := a[i+6] - b[i+6]
		d7 := a[i+7] - b[i+7]

		sum0 += d0 * d0
		sum1 += d1 * d1
		sum2 += d2 * d2
		sum3 += d3 * d3
		sum4 += d4 * d4
		sum5 += d5 * d5
		sum6 += d6 * d6
		sum7 += d7 * d7
	}

	// Handle remaining elements
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum0 += d * d
	}

	return sum0 + sum1 + sum2 + sum3 + sum4 + sum5 + sum6 + sum7
}

func euclideanDistance(a, b []float32) float32 {
	return float32(math.Sqrt(float64(squaredEuclideanDistance(a, b))))
}

func manhattanDistance(a, b []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}

	sum0 := float32(0)
	sum1 := float32(0)
	sum2 := float32(0)
	sum3 := float32(0)
	sum4 := float32(0)
	sum5 := float32(0)
	sum6 := float32(0)
	sum7 := float32(0)

	i := 0
	for ; i <= n-8; i += 8 {
		sum0 += abs32(a[i] - b[i])
		sum1 += abs32(a[i+1] - b[i+1])
		sum2 += abs32(a[i+2] - b[i+2])
		sum3 += abs32(a[i+3] - b[i+3])
		sum4 += abs32(a[i+4] - b[i+4])
		sum5 += abs32(a[i+5] - b[i+5])
		sum6 += abs32(a[i+6] - b[i+6])
		sum7 += abs32(a[i+7] - b[i+7])
	}

	for ; i < n; i++ {
		sum0 += abs32(a[i] - b[i])
	}

	return sum0 + sum1 + sum2 + sum3 + sum4 + sum5 + sum6 + sum7
}

func abs32(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
}

func runtimeInfo() RuntimeInfo {
	if hasAVX2 {
		return RuntimeInfo{
			Implementation: ImplAVX2,
			Features:       []string{"avx2", "fma", "auto-vectorized"},
			Accelerated:    true,
		}
	}
	return RuntimeInfo{
		Implementation: ImplGeneric,
		Features:       []string{"sse2"},
		Accelerated:    false,
	}
}
