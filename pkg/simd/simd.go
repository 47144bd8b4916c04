package simd

// Implementation represents the active SIMD implementation
type Implementation string

const (
	// ImplGeneric indicates the portable vek-backed fallback
	ImplGeneric Implementation = "generic"
	// ImplAVX2 indicates x86 AVX2+FMA SIMD
	ImplAVX2 Implementation = "avx2"
	// ImplNEON indicates ARM NEON SIMD
	ImplNEON Implementation = "neon"
)

// RuntimeInfo contains information about the active SIMD implementation
type RuntimeInfo struct {
	// Implementation is the active SIMD backend
	Implementation Implementation
	// Features lists specific CPU features being used
	Features []string
	// Accelerated indicates whether SIMD acceleration is active
	Accelerated bool
}

// EuclideanDistance computes the Euclidean distance between two float32 vectors:
// sqrt(sum((a[i] - b[i])^2)).
//
// Both vectors must have the same length. Returns 0 if they are empty or have
// different lengths.
//
// Example:
//
//	a := []float32{0, 0}
//	b := []float32{3, 4}
//	result := simd.EuclideanDistance(a, b) // 5.0
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return euclideanDistance(a, b)
}

// SquaredEuclideanDistance computes sum((a[i] - b[i])^2), the Euclidean
// distance without the final square root.
//
// Squared distance is itself a valid search key because sqrt is monotonic,
// and skipping it saves one sqrt per visited node. Note that the triangle
// inequality holds for the rooted distance, not the squared one, so the
// vantage-point tree built on it must use the same squared form throughout.
//
// Both vectors must have the same length. Returns 0 if they are empty or have
// different lengths.
func SquaredEuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return squaredEuclideanDistance(a, b)
}

// ManhattanDistance computes the L1 distance between two float32 vectors:
// sum(|a[i] - b[i]|).
//
// Both vectors must have the same length. Returns 0 if they are empty or have
// different lengths.
//
// Example:
//
//	a := []float32{0, 0}
//	b := []float32{3, 4}
//	result := simd.ManhattanDistance(a, b) // 7.0
func ManhattanDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return manhattanDistance(a, b)
}

// Info returns information about the active SIMD implementation.
//
// Example:
//
//	info := simd.Info()
//	if info.Accelerated {
//	    fmt.Printf("Using %s SIMD\n", info.Implementation)
//	}
func Info() RuntimeInfo {
	return runtimeInfo()
}
