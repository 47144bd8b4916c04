// Package simd provides SIMD-accelerated distance kernels for Vantage.
//
// This package implements the hot-path distance calculations used by the
// search kernel, with platform-specific implementations selected at build
// time:
//
//   - x86/amd64: 8-way unrolled loops the compiler auto-vectorizes with AVX2
//   - arm64: NEON SIMD via the viterin/vek library
//   - fallback: viterin/vek optimized pure Go for all other platforms
//
// CPU capabilities are detected at runtime where relevant. No configuration
// is required.
//
// # Supported Operations
//
//   - EuclideanDistance: straight-line distance between two vectors
//   - SquaredEuclideanDistance: Euclidean distance without the final sqrt
//   - ManhattanDistance: sum of absolute coordinate differences
//
// # Thread Safety
//
// All functions are safe for concurrent use; they touch no global state.
// This matters because the batch dispatcher invokes them from an arbitrary
// number of worker goroutines at once.
//
// # Precision
//
// Distances accumulate in float32 for SIMD throughput. The accumulation runs
// over every coordinate dimension; EuclideanDistance((0,0), (3,4)) is 5.
package simd
