package vptree

import (
	"fmt"
	"sync"

	"github.com/orneryd/vantage/pkg/simd"
)

// DistanceFunc computes the distance between two equal-length float32
// vectors. Implementations must be safe for concurrent use: the batch
// dispatcher calls the kernel half from many workers at once.
type DistanceFunc func(a, b []float32) float32

// Metric binds the pair of distance implementations an index uses.
//
// Host runs during tree construction; Kernel runs inside dispatch workers
// against mirrored device memory. The two execute in different phases (and,
// for custom accelerator metrics, potentially different execution domains),
// so they are configured as a pair rather than a single function. Both MUST
// compute identical values for identical inputs — the index does not verify
// this, and a mismatched pair silently degrades result quality.
//
// The metric must satisfy non-negativity, symmetry, and the triangle
// inequality. Violations are not detected; pruning then skips subtrees it
// should not, which is a documented caller obligation, not an error the
// index reports.
//
// Built-in metrics bind both halves to the same SIMD implementation, so the
// consistency obligation holds trivially.
type Metric struct {
	// Name identifies the metric in snapshots and configuration.
	Name string
	// Host is the builder-side distance function.
	Host DistanceFunc
	// Kernel is the worker-side distance function.
	Kernel DistanceFunc
}

// Euclidean is the L2 metric: sqrt(sum((a[i]-b[i])^2)) over every dimension.
func Euclidean() Metric {
	return Metric{
		Name:   "euclidean",
		Host:   simd.EuclideanDistance,
		Kernel: simd.EuclideanDistance,
	}
}

// SquaredEuclidean is Euclidean distance without the final square root.
//
// The squared form does NOT satisfy the triangle inequality, so trees built
// with it can prune incorrectly near cluster boundaries. It exists for
// callers who re-rank externally and accept that; prefer Euclidean.
func SquaredEuclidean() Metric {
	return Metric{
		Name:   "sqeuclidean",
		Host:   simd.SquaredEuclideanDistance,
		Kernel: simd.SquaredEuclideanDistance,
	}
}

// Manhattan is the L1 metric: sum(|a[i]-b[i]|).
func Manhattan() Metric {
	return Metric{
		Name:   "manhattan",
		Host:   simd.ManhattanDistance,
		Kernel: simd.ManhattanDistance,
	}
}

var (
	metricsMu sync.RWMutex
	metrics   = map[string]Metric{
		"euclidean":   Euclidean(),
		"sqeuclidean": SquaredEuclidean(),
		"manhattan":   Manhattan(),
	}
)

// RegisterMetric makes a custom metric resolvable by name, e.g. when
// restoring a persisted snapshot. Registering an existing name replaces it.
//
// The registry only resolves names; the metric an index actually uses is
// always the one passed to New or Restore, never ambient state.
func RegisterMetric(m Metric) error {
	if m.Name == "" || m.Host == nil || m.Kernel == nil {
		return fmt.Errorf("%w: name, host and kernel functions are required", ErrUnknownMetric)
	}
	metricsMu.Lock()
	defer metricsMu.Unlock()
	metrics[m.Name] = m
	return nil
}

// MetricByName resolves a registered metric.
func MetricByName(name string) (Metric, error) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	m, ok := metrics[name]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return m, nil
}
