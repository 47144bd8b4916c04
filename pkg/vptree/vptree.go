// Package vptree implements an exact nearest-neighbor index over a
// vantage-point tree, answering query batches with data-parallel workers
// against a device-mirrored, read-only tree.
//
// The design splits into two algorithms:
//
//  1. A host-side, one-shot builder that permutes the caller's point
//     collection in place and emits a flat node table describing a balanced
//     binary metric tree (median-distance partitioning).
//
//  2. A per-query, recursion-free branch-and-bound traversal with triangle
//     inequality pruning and a fixed-capacity explicit stack, executed by an
//     unbounded pool of independent workers over the shared mirror.
//
// Search is exact 1-nearest-neighbor: batching never changes outcomes, and a
// batch of one query returns what a batch of a million would for that query.
//
// Example:
//
//	manager, err := device.NewManager(device.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer manager.Close()
//
//	tree := vptree.New(manager, vptree.Euclidean(), nil)
//	defer tree.Close()
//
//	points := []vptree.Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}, {5, 5}}
//	if err := tree.Build(points); err != nil { // permutes points
//		log.Fatal(err)
//	}
//
//	indices, distances, err := tree.Search([]vptree.Point{{5, 5}, {9, 9}})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Concurrency model:
//
//	Any number of Search calls may run concurrently with each other; the
//	tree and its mirror are read-only for the duration of in-flight batches.
//	Build/rebuild must be serialized against searches by the caller — the
//	index deliberately carries no read-write lock for the hot path.
package vptree

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/orneryd/vantage/pkg/device"
)

// Errors
var (
	ErrNotImplemented    = errors.New("vptree: fixed-radius search not implemented")
	ErrInvalidDimensions = errors.New("vptree: point dimension mismatch")
	ErrUnknownMetric     = errors.New("vptree: unknown metric")
	ErrNoIndex           = errors.New("vptree: no index built")
)

// Point is one fixed-dimension coordinate vector. Every point in a build,
// and every query against it, must have the same dimension.
type Point []float32

// NoChild marks an absent subtree in a node.
const NoChild = int32(-1)

// Per-query failure sentinel: a traversal that would overflow its stack
// reports no result and a negative distance instead of touching memory past
// the bound. Other queries in the batch are unaffected.
const (
	FailureIndex    = int32(-1)
	FailureDistance = float32(-1)
)

// Node is one entry of the flat tree table, addressed by the same index as
// its vantage point's slot in the builder-reordered point array.
type Node struct {
	// Threshold is the distance from this node's vantage point to the
	// median-distance point among the remainder of its subtree.
	Threshold float32
	// Left is the subtree of points at distance <= Threshold, or NoChild.
	Left int32
	// Right is the subtree of points at distance >= Threshold, or NoChild.
	Right int32
}

// DefaultMaxStackDepth supports any point count addressable by an int64:
// ceil(log2(2^63)) + 1.
const DefaultMaxStackDepth = 64

// DefaultGroupSize is the number of queries one worker serves sequentially.
const DefaultGroupSize = 256

// Options tunes scheduling and capacity. Neither field affects results:
// GroupSize is purely a throughput knob, and MaxStackDepth only bounds the
// tree depth a search supports.
type Options struct {
	// MaxStackDepth caps the traversal stack; supports trees of depth
	// MaxStackDepth-1. Defaults to DefaultMaxStackDepth.
	MaxStackDepth int
	// GroupSize is the dispatch granularity for query batches. Defaults to
	// DefaultGroupSize.
	GroupSize int
}

func (o *Options) withDefaults() Options {
	out := Options{MaxStackDepth: DefaultMaxStackDepth, GroupSize: DefaultGroupSize}
	if o == nil {
		return out
	}
	if o.MaxStackDepth > 0 {
		out.MaxStackDepth = o.MaxStackDepth
	}
	if o.GroupSize > 0 {
		out.GroupSize = o.GroupSize
	}
	return out
}

// Stats tracks index usage.
type Stats struct {
	Builds           int64
	Batches          int64
	Queries          int64
	CapacityFailures int64
}

// VPTree is the index aggregate: it owns exactly one (node table, point
// array) pair at a time together with its device mirror, and is usable for
// an unbounded number of batch searches once built. Rebuilding atomically
// replaces both the host tables and the mirror; Close releases the mirror.
type VPTree struct {
	manager *device.Manager
	metric  Metric
	opts    Options

	// Host copies, kept for snapshots and invariant checks
	nodes []Node
	flat  []float32
	dims  int
	count int
	depth int

	// Device mirror
	nodeBuf  device.Buffer
	pointBuf device.Buffer

	valid atomic.Bool

	statBuilds           atomic.Int64
	statBatches          atomic.Int64
	statQueries          atomic.Int64
	statCapacityFailures atomic.Int64
}

// New creates an empty, invalid index bound to a transfer manager and a
// metric. The index becomes valid after the first successful Build.
func New(manager *device.Manager, metric Metric, opts *Options) *VPTree {
	return &VPTree{
		manager: manager,
		metric:  metric,
		opts:    opts.withDefaults(),
	}
}

// Metric returns the metric the index was configured with.
func (t *VPTree) Metric() Metric { return t.metric }

// Valid reports whether a successful build has produced a queryable index.
func (t *VPTree) Valid() bool { return t.valid.Load() }

// Len returns the number of indexed points.
func (t *VPTree) Len() int { return t.count }

// Dims returns the point dimension fixed by the last build, 0 before any.
func (t *VPTree) Dims() int { return t.dims }

// Depth returns the tree depth of the current build, 0 for an empty tree.
func (t *VPTree) Depth() int { return t.depth }

// Nodes returns a copy of the node table, for inspection and persistence.
func (t *VPTree) Nodes() []Node {
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Build constructs the index from points, permuting the slice in place (the
// original ordering is not retained). Any prior tree and its mirror are
// discarded only after the new mirror is fully present: a transfer failure
// during a rebuild leaves the index in its last valid state, and during a
// first build leaves it invalid.
//
// An empty point set yields a valid, empty index whose searches report "no
// result" for every query.
//
// Build must not run concurrently with in-flight searches.
func (t *VPTree) Build(points []Point) error {
	n := len(points)

	dims := 0
	if n > 0 {
		dims = len(points[0])
		for i, p := range points {
			if len(p) != dims {
				return fmt.Errorf("%w: point %d has %d dimensions, want %d", ErrInvalidDimensions, i, len(p), dims)
			}
		}
	}

	nodes := buildNodes(points, t.metric.Host)

	flat := make([]float32, 0, n*dims)
	for _, p := range points {
		flat = append(flat, p...)
	}

	// Mirror the new tables before touching the old mirror, so a failure
	// here cannot leak or corrupt the last valid state.
	var nodeBuf, pointBuf device.Buffer
	if n > 0 {
		var err error
		nodeBuf, err = t.manager.Upload(nodesAsBytes(nodes))
		if err != nil {
			return fmt.Errorf("vptree: mirroring node table: %w", err)
		}
		pointBuf, err = t.manager.Upload(float32AsBytes(flat))
		if err != nil {
			t.manager.Free(nodeBuf)
			return fmt.Errorf("vptree: mirroring point array: %w", err)
		}
	}

	t.manager.Free(t.nodeBuf)
	t.manager.Free(t.pointBuf)

	t.nodes = nodes
	t.flat = flat
	t.dims = dims
	t.count = n
	t.depth = treeDepth(nodes)
	t.nodeBuf = nodeBuf
	t.pointBuf = pointBuf
	t.valid.Store(true)
	t.statBuilds.Add(1)

	return nil
}

// Search resolves a batch of queries to the index and distance of each
// query's nearest point. Results are index-aligned with queries; indices
// refer to positions in the builder-reordered point array.
//
// Before any successful build this is a no-op returning empty slices and no
// error. Against a valid but empty index every query reports index -1 and
// distance +Inf. A query whose traversal exceeds the stack bound reports the
// failure sentinel (index -1, distance -1) without affecting the rest of the
// batch. Transfer failures abort the whole call.
func (t *VPTree) Search(queries []Point) ([]int32, []float32, error) {
	if !t.valid.Load() {
		return []int32{}, []float32{}, nil
	}

	nq := len(queries)
	indices := make([]int32, nq)
	distances := make([]float32, nq)
	if nq == 0 {
		return indices, distances, nil
	}

	// An empty index has no dimension to validate against; every query
	// simply has no nearest point.
	if t.count == 0 {
		inf := float32(math.Inf(1))
		for i := range indices {
			indices[i] = NoChild
			distances[i] = inf
		}
		t.statBatches.Add(1)
		t.statQueries.Add(int64(nq))
		return indices, distances, nil
	}

	for i, q := range queries {
		if len(q) != t.dims {
			return nil, nil, fmt.Errorf("%w: query %d has %d dimensions, want %d", ErrInvalidDimensions, i, len(q), t.dims)
		}
	}

	qflat := make([]float32, 0, nq*t.dims)
	for _, q := range queries {
		qflat = append(qflat, q...)
	}

	// Upload queries, allocate result buffers, run the grid, download.
	queryBuf, err := t.manager.Upload(float32AsBytes(qflat))
	if err != nil {
		return nil, nil, fmt.Errorf("vptree: uploading queries: %w", err)
	}
	defer t.manager.Free(queryBuf)

	idxBuf, err := t.manager.Alloc(nq * 4)
	if err != nil {
		return nil, nil, fmt.Errorf("vptree: allocating result buffer: %w", err)
	}
	defer t.manager.Free(idxBuf)

	distBuf, err := t.manager.Alloc(nq * 4)
	if err != nil {
		return nil, nil, fmt.Errorf("vptree: allocating result buffer: %w", err)
	}
	defer t.manager.Free(distBuf)

	t.dispatch(queryBuf, idxBuf, distBuf, nq)

	if err := idxBuf.Read(int32AsBytes(indices)); err != nil {
		return nil, nil, fmt.Errorf("vptree: downloading results: %w", err)
	}
	if err := distBuf.Read(float32AsBytes(distances)); err != nil {
		return nil, nil, fmt.Errorf("vptree: downloading results: %w", err)
	}

	t.statBatches.Add(1)
	t.statQueries.Add(int64(nq))

	return indices, distances, nil
}

// SearchRadius is reserved for fixed-radius batch queries ("all neighbors
// within r"). It is not implemented: the traversal kernel is built around a
// single best-so-far, and a radius query needs an accumulation strategy with
// per-query dynamic result sizes.
func (t *VPTree) SearchRadius(queries []Point, radius float32) ([]int32, error) {
	return nil, ErrNotImplemented
}

// Stats returns a snapshot of usage counters.
func (t *VPTree) Stats() Stats {
	return Stats{
		Builds:           t.statBuilds.Load(),
		Batches:          t.statBatches.Load(),
		Queries:          t.statQueries.Load(),
		CapacityFailures: t.statCapacityFailures.Load(),
	}
}

// Close releases the device mirror and invalidates the index.
func (t *VPTree) Close() {
	t.valid.Store(false)
	t.manager.Free(t.nodeBuf)
	t.manager.Free(t.pointBuf)
	t.nodeBuf = nil
	t.pointBuf = nil
	t.nodes = nil
	t.flat = nil
	t.count = 0
	t.depth = 0
}

// Snapshot captures a built index for persistence: the node table, the
// builder-reordered flat point array, and enough metadata to restore.
type Snapshot struct {
	Dims   int
	Count  int
	Metric string
	Nodes  []Node
	Points []float32
}

// Snapshot returns a copy of the current index state, or ErrNoIndex before
// the first successful build.
func (t *VPTree) Snapshot() (*Snapshot, error) {
	if !t.valid.Load() {
		return nil, ErrNoIndex
	}
	snap := &Snapshot{
		Dims:   t.dims,
		Count:  t.count,
		Metric: t.metric.Name,
		Nodes:  make([]Node, len(t.nodes)),
		Points: make([]float32, len(t.flat)),
	}
	copy(snap.Nodes, t.nodes)
	copy(snap.Points, t.flat)
	return snap, nil
}

// Restore rebuilds a queryable index from a snapshot without re-running the
// builder: the tables are mirrored as-is. The snapshot's metric name must
// resolve via MetricByName.
func Restore(manager *device.Manager, snap *Snapshot, opts *Options) (*VPTree, error) {
	metric, err := MetricByName(snap.Metric)
	if err != nil {
		return nil, err
	}
	if len(snap.Nodes) != snap.Count || len(snap.Points) != snap.Count*snap.Dims {
		return nil, fmt.Errorf("%w: inconsistent snapshot tables", ErrNoIndex)
	}

	t := New(manager, metric, opts)

	var nodeBuf, pointBuf device.Buffer
	if snap.Count > 0 {
		nodeBuf, err = manager.Upload(nodesAsBytes(snap.Nodes))
		if err != nil {
			return nil, fmt.Errorf("vptree: mirroring node table: %w", err)
		}
		pointBuf, err = manager.Upload(float32AsBytes(snap.Points))
		if err != nil {
			manager.Free(nodeBuf)
			return nil, fmt.Errorf("vptree: mirroring point array: %w", err)
		}
	}

	t.nodes = append([]Node(nil), snap.Nodes...)
	t.flat = append([]float32(nil), snap.Points...)
	t.dims = snap.Dims
	t.count = snap.Count
	t.depth = treeDepth(t.nodes)
	t.nodeBuf = nodeBuf
	t.pointBuf = pointBuf
	t.valid.Store(true)

	return t, nil
}
