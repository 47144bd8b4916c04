package simd

import (
	"math"
	"math/rand"
	"testing"
)

const epsilon = 1e-4

func approxEqual(a, b, eps float32) bool {
	return math.Abs(float64(a-b)) < float64(eps)
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{
			name:     "classic 3-4-5",
			a:        []float32{0, 0},
			b:        []float32{3, 4},
			expected: 5,
		},
		{
			name:     "identical",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 0,
		},
		{
			name:     "empty",
			a:        []float32{},
			b:        []float32{},
			expected: 0,
		},
		{
			name:     "single dimension",
			a:        []float32{-2},
			b:        []float32{3},
			expected: 5,
		},
		{
			name:     "negative coordinates",
			a:        []float32{-1, -1},
			b:        []float32{2, 3},
			expected: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if !approxEqual(got, tt.expected, epsilon) {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

// TestEuclideanDistanceAllDimensions verifies that the distance accumulates
// across every coordinate dimension, not just the last one.
func TestEuclideanDistanceAllDimensions(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	got := EuclideanDistance(a, b)
	if !approxEqual(got, 5, epsilon) {
		t.Fatalf("distance between (0,0) and (3,4) = %v, want 5 (not 4)", got)
	}
}

func TestSquaredEuclideanDistance(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}
	// (3^2 + 4^2 + 0) = 25
	if got := SquaredEuclideanDistance(a, b); !approxEqual(got, 25, epsilon) {
		t.Errorf("SquaredEuclideanDistance = %v, want 25", got)
	}
	if got := SquaredEuclideanDistance(nil, nil); got != 0 {
		t.Errorf("empty input = %v, want 0", got)
	}
}

func TestManhattanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{name: "2d", a: []float32{0, 0}, b: []float32{3, 4}, expected: 7},
		{name: "identical", a: []float32{5, 5}, b: []float32{5, 5}, expected: 0},
		{name: "negative", a: []float32{-1, -2, -3}, b: []float32{1, 2, 3}, expected: 12},
		{name: "empty", a: []float32{}, b: []float32{}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ManhattanDistance(tt.a, tt.b)
			if !approxEqual(got, tt.expected, epsilon) {
				t.Errorf("ManhattanDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

// TestRemainderHandling exercises vector lengths around the unroll width so
// the scalar tail path is covered.
func TestRemainderHandling(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{1, 3, 7, 8, 9, 15, 16, 17, 63, 64, 65, 256} {
		a := make([]float32, n)
		b := make([]float32, n)
		for i := 0; i < n; i++ {
			a[i] = rng.Float32()*10 - 5
			b[i] = rng.Float32()*10 - 5
		}

		var sq, l1 float64
		for i := 0; i < n; i++ {
			d := float64(a[i]) - float64(b[i])
			sq += d * d
			l1 += math.Abs(d)
		}

		if got := EuclideanDistance(a, b); !approxEqual(got, float32(math.Sqrt(sq)), 1e-3) {
			t.Errorf("n=%d: EuclideanDistance = %v, want %v", n, got, math.Sqrt(sq))
		}
		if got := SquaredEuclideanDistance(a, b); !approxEqual(got, float32(sq), float32(sq)*1e-4+1e-3) {
			t.Errorf("n=%d: SquaredEuclideanDistance = %v, want %v", n, got, sq)
		}
		if got := ManhattanDistance(a, b); !approxEqual(got, float32(l1), 1e-2) {
			t.Errorf("n=%d: ManhattanDistance = %v, want %v", n, got, l1)
		}
	}
}

func TestMismatchedLengths(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2}
	if got := EuclideanDistance(a, b); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
	if got := ManhattanDistance(a, b); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	if info.Implementation == "" {
		t.Error("Info() returned empty implementation")
	}
	t.Logf("SIMD: %s accelerated=%v features=%v",
		info.Implementation, info.Accelerated, info.Features)
}

func BenchmarkEuclideanDistance(b *testing.B) {
	x := make([]float32, 128)
	y := make([]float32, 128)
	for i := range x {
		x[i] = float32(i)
		y[i] = float32(i) * 0.5
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		EuclideanDistance(x, y)
	}
}
