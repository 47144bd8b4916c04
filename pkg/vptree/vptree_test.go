package vptree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/vantage/pkg/device"
)

func newTestManager(t *testing.T) *device.Manager {
	t.Helper()
	cfg := device.DefaultConfig()
	cfg.PreferredBackend = device.BackendHost
	manager, err := device.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(manager.Close)
	return manager
}

// bruteForceNearest is the reference the tree must match exactly.
func bruteForceNearest(points []Point, query Point, metric DistanceFunc) (int32, float32) {
	best := NoChild
	bestDist := float32(math.Inf(1))
	for i, p := range points {
		if d := metric(query, p); d < bestDist {
			best = int32(i)
			bestDist = d
		}
	}
	return best, bestDist
}

// TestSearchExactness compares tree search against an exhaustive linear scan
// for point set sizes spanning several tree levels.
func TestSearchExactness(t *testing.T) {
	manager := newTestManager(t)
	rng := rand.New(rand.NewSource(10))
	metric := Euclidean()

	for _, n := range []int{0, 1, 2, 7, 100, 1000} {
		points := randomPoints(rng, n, 4)
		tree := New(manager, metric, nil)
		require.NoError(t, tree.Build(points))

		queries := randomPoints(rng, 50, 4)
		indices, distances, err := tree.Search(queries)
		require.NoError(t, err)
		require.Len(t, indices, len(queries))
		require.Len(t, distances, len(queries))

		for i, q := range queries {
			// points is permuted by Build, so the scan shares the tree's
			// index space
			wantIdx, wantDist := bruteForceNearest(points, q, metric.Host)
			if n == 0 {
				require.Equal(t, NoChild, indices[i])
				require.True(t, math.IsInf(float64(distances[i]), 1))
				continue
			}
			require.InDelta(t, float64(wantDist), float64(distances[i]), 1e-4,
				"n=%d query %d: distance mismatch", n, i)
			// Equidistant points make the exact index ambiguous; the returned
			// index must itself be at the best distance.
			gotDist := metric.Host(q, points[indices[i]])
			require.InDelta(t, float64(wantDist), float64(gotDist), 1e-4,
				"n=%d query %d: returned index %d (want %d) not at best distance", n, i, indices[i], wantIdx)
		}

		tree.Close()
	}
}

// TestBatchSingleEquivalence verifies batching never changes outcomes.
func TestBatchSingleEquivalence(t *testing.T) {
	manager := newTestManager(t)
	rng := rand.New(rand.NewSource(11))

	points := randomPoints(rng, 300, 6)
	tree := New(manager, Euclidean(), &Options{GroupSize: 7})
	require.NoError(t, tree.Build(points))
	defer tree.Close()

	queries := randomPoints(rng, 40, 6)
	batchIdx, batchDist, err := tree.Search(queries)
	require.NoError(t, err)

	for i, q := range queries {
		idx, dist, err := tree.Search([]Point{q})
		require.NoError(t, err)
		require.Equal(t, batchIdx[i], idx[0], "query %d", i)
		require.Equal(t, batchDist[i], dist[0], "query %d", i)
	}
}

// TestSearchCornersScenario is the concrete 2-D fixture: four corners plus
// the center with Euclidean distance.
func TestSearchCornersScenario(t *testing.T) {
	manager := newTestManager(t)
	metric := Euclidean()

	t.Run("with center point", func(t *testing.T) {
		points := []Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}, {5, 5}}
		tree := New(manager, metric, nil)
		require.NoError(t, tree.Build(points))
		defer tree.Close()

		indices, distances, err := tree.Search([]Point{{5, 5}, {10, 10}})
		require.NoError(t, err)

		require.Equal(t, Point{5, 5}, points[indices[0]])
		require.Equal(t, float32(0), distances[0])

		require.Equal(t, Point{10, 10}, points[indices[1]])
		require.Equal(t, float32(0), distances[1])
	})

	t.Run("corners only", func(t *testing.T) {
		points := []Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}}
		tree := New(manager, metric, nil)
		require.NoError(t, tree.Build(points))
		defer tree.Close()

		_, distances, err := tree.Search([]Point{{5, 5}})
		require.NoError(t, err)
		require.InDelta(t, math.Sqrt(50), float64(distances[0]), 1e-4)
	})
}

// TestSearchBeforeBuild verifies the no-index no-op.
func TestSearchBeforeBuild(t *testing.T) {
	manager := newTestManager(t)
	tree := New(manager, Euclidean(), nil)

	indices, distances, err := tree.Search([]Point{{1, 2}, {3, 4}})
	require.NoError(t, err)
	require.Empty(t, indices)
	require.Empty(t, distances)
	require.False(t, tree.Valid())
}

func TestBuildEmptyIsValid(t *testing.T) {
	manager := newTestManager(t)
	tree := New(manager, Euclidean(), nil)

	require.NoError(t, tree.Build(nil))
	require.True(t, tree.Valid())
	require.Equal(t, 0, tree.Len())

	indices, distances, err := tree.Search([]Point{{1, 2}})
	require.NoError(t, err)
	require.Equal(t, []int32{NoChild}, indices)
	require.True(t, math.IsInf(float64(distances[0]), 1))
}

// TestRebuildReplaces verifies a rebuild discards the prior tree and serves
// the new point set.
func TestRebuildReplaces(t *testing.T) {
	manager := newTestManager(t)
	tree := New(manager, Euclidean(), nil)

	require.NoError(t, tree.Build([]Point{{0, 0}, {1, 1}}))
	_, dist, err := tree.Search([]Point{{100, 100}})
	require.NoError(t, err)
	require.Greater(t, dist[0], float32(100))

	require.NoError(t, tree.Build([]Point{{100, 100}, {200, 200}}))
	_, dist, err = tree.Search([]Point{{100, 100}})
	require.NoError(t, err)
	require.Equal(t, float32(0), dist[0])

	// Exactly one mirror alive: 2 nodes (12 bytes each) + 4 coordinates.
	// Everything else (first mirror, batch buffers) must have been freed.
	require.EqualValues(t, 2*12+4*4, manager.Stats().ActiveBytes)
}

// TestIdempotentRebuild verifies building twice from the same initial point
// set yields identical structure and identical query results.
func TestIdempotentRebuild(t *testing.T) {
	manager := newTestManager(t)
	rng := rand.New(rand.NewSource(12))
	original := randomPoints(rng, 500, 5)
	queries := randomPoints(rng, 20, 5)

	tree := New(manager, Euclidean(), nil)

	require.NoError(t, tree.Build(clonePoints(original)))
	nodesFirst := tree.Nodes()
	idxFirst, distFirst, err := tree.Search(queries)
	require.NoError(t, err)

	require.NoError(t, tree.Build(clonePoints(original)))
	require.Equal(t, nodesFirst, tree.Nodes())

	idxSecond, distSecond, err := tree.Search(queries)
	require.NoError(t, err)
	require.Equal(t, idxFirst, idxSecond)
	require.Equal(t, distFirst, distSecond)

	tree.Close()
}

// TestBoundedStack verifies a tree within the depth bound never signals
// capacity failure, and one past the bound fails per-query, safely.
func TestBoundedStack(t *testing.T) {
	manager := newTestManager(t)
	rng := rand.New(rand.NewSource(13))
	points := randomPoints(rng, 1000, 3)

	t.Run("within bound", func(t *testing.T) {
		tree := New(manager, Euclidean(), nil)
		require.NoError(t, tree.Build(clonePoints(points)))
		defer tree.Close()

		require.Less(t, tree.Depth(), DefaultMaxStackDepth)

		_, distances, err := tree.Search(randomPoints(rng, 100, 3))
		require.NoError(t, err)
		for i, d := range distances {
			require.GreaterOrEqual(t, d, float32(0), "query %d reported capacity failure", i)
		}
		require.Zero(t, tree.Stats().CapacityFailures)
	})

	t.Run("over bound", func(t *testing.T) {
		tree := New(manager, Euclidean(), &Options{MaxStackDepth: 1})
		require.NoError(t, tree.Build(clonePoints(points)))
		defer tree.Close()

		indices, distances, err := tree.Search(randomPoints(rng, 10, 3))
		require.NoError(t, err, "capacity overflow must stay per-query")

		failures := 0
		for i := range indices {
			if indices[i] == FailureIndex && distances[i] == FailureDistance {
				failures++
			}
		}
		require.Greater(t, failures, 0)
		require.Equal(t, int64(failures), tree.Stats().CapacityFailures)
	})
}

func TestSearchRadiusUnimplemented(t *testing.T) {
	manager := newTestManager(t)
	tree := New(manager, Euclidean(), nil)
	require.NoError(t, tree.Build([]Point{{1}, {2}}))
	defer tree.Close()

	_, err := tree.SearchRadius([]Point{{1}}, 0.5)
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestDimensionMismatch(t *testing.T) {
	manager := newTestManager(t)
	tree := New(manager, Euclidean(), nil)

	err := tree.Build([]Point{{1, 2}, {3}})
	require.ErrorIs(t, err, ErrInvalidDimensions)
	require.False(t, tree.Valid())

	require.NoError(t, tree.Build([]Point{{1, 2}, {3, 4}}))
	_, _, err = tree.Search([]Point{{1, 2, 3}})
	require.ErrorIs(t, err, ErrInvalidDimensions)
}

// TestRebuildTransferFailureKeepsIndex forces the rebuild's mirror step to
// fail and verifies the index stays in its last valid state.
func TestRebuildTransferFailureKeepsIndex(t *testing.T) {
	cfg := device.DefaultConfig()
	cfg.PreferredBackend = device.BackendHost
	cfg.MaxMemoryMB = 1
	manager, err := device.NewManager(cfg)
	require.NoError(t, err)
	defer manager.Close()

	tree := New(manager, Euclidean(), nil)
	require.NoError(t, tree.Build([]Point{{0, 0}, {3, 4}}))

	// 1 MB budget cannot mirror 200k 4-dim points
	huge := randomPoints(rand.New(rand.NewSource(14)), 200_000, 4)
	err = tree.Build(huge)
	require.ErrorIs(t, err, device.ErrOutOfMemory)

	// Last valid tree still answers
	require.True(t, tree.Valid())
	indices, distances, err := tree.Search([]Point{{3, 4}})
	require.NoError(t, err)
	require.Equal(t, float32(0), distances[0])
	require.NotEqual(t, FailureIndex, indices[0])
}

func TestFirstBuildTransferFailureLeavesInvalid(t *testing.T) {
	cfg := device.DefaultConfig()
	cfg.PreferredBackend = device.BackendHost
	cfg.MaxMemoryMB = 1
	manager, err := device.NewManager(cfg)
	require.NoError(t, err)
	defer manager.Close()

	tree := New(manager, Euclidean(), nil)
	err = tree.Build(randomPoints(rand.New(rand.NewSource(15)), 200_000, 4))
	require.ErrorIs(t, err, device.ErrOutOfMemory)
	require.False(t, tree.Valid())

	indices, distances, err := tree.Search([]Point{{1, 2, 3, 4}})
	require.NoError(t, err)
	require.Empty(t, indices)
	require.Empty(t, distances)
}

func TestSnapshotRestore(t *testing.T) {
	manager := newTestManager(t)
	rng := rand.New(rand.NewSource(16))
	points := randomPoints(rng, 200, 4)
	queries := randomPoints(rng, 25, 4)

	tree := New(manager, Manhattan(), nil)
	require.NoError(t, tree.Build(points))
	wantIdx, wantDist, err := tree.Search(queries)
	require.NoError(t, err)

	snap, err := tree.Snapshot()
	require.NoError(t, err)
	require.Equal(t, "manhattan", snap.Metric)
	tree.Close()

	restored, err := Restore(manager, snap, nil)
	require.NoError(t, err)
	defer restored.Close()

	gotIdx, gotDist, err := restored.Search(queries)
	require.NoError(t, err)
	require.Equal(t, wantIdx, gotIdx)
	require.Equal(t, wantDist, gotDist)
}

func TestSnapshotBeforeBuild(t *testing.T) {
	manager := newTestManager(t)
	tree := New(manager, Euclidean(), nil)
	_, err := tree.Snapshot()
	require.ErrorIs(t, err, ErrNoIndex)
}

func TestRestoreUnknownMetric(t *testing.T) {
	manager := newTestManager(t)
	snap := &Snapshot{Dims: 2, Count: 1, Metric: "no-such-metric", Nodes: []Node{{0, NoChild, NoChild}}, Points: []float32{1, 2}}
	_, err := Restore(manager, snap, nil)
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestStatsCounters(t *testing.T) {
	manager := newTestManager(t)
	tree := New(manager, Euclidean(), nil)
	require.NoError(t, tree.Build([]Point{{0}, {1}, {2}}))
	defer tree.Close()

	_, _, err := tree.Search([]Point{{0.4}, {1.6}})
	require.NoError(t, err)
	_, _, err = tree.Search([]Point{{2.2}})
	require.NoError(t, err)

	stats := tree.Stats()
	require.Equal(t, int64(1), stats.Builds)
	require.Equal(t, int64(2), stats.Batches)
	require.Equal(t, int64(3), stats.Queries)
}
