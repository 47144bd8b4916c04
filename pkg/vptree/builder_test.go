package vptree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomPoints(rng *rand.Rand, n, dims int) []Point {
	points := make([]Point, n)
	for i := range points {
		p := make(Point, dims)
		for d := range p {
			p[d] = rng.Float32()*200 - 100
		}
		points[i] = p
	}
	return points
}

func clonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = append(Point(nil), p...)
	}
	return out
}

// collectSubtree gathers every node index reachable from root.
func collectSubtree(nodes []Node, root int32) []int32 {
	if root == NoChild {
		return nil
	}
	var out []int32
	stack := []int32{root}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, idx)
		if nodes[idx].Left != NoChild {
			stack = append(stack, nodes[idx].Left)
		}
		if nodes[idx].Right != NoChild {
			stack = append(stack, nodes[idx].Right)
		}
	}
	return out
}

// TestTreeInvariant builds trees from random point sets and verifies, for
// every internal node, that all points under Left are at distance <=
// Threshold from the vantage point and all points under Right at distance
// >= Threshold.
func TestTreeInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	metric := Euclidean()

	for _, n := range []int{2, 3, 7, 16, 100, 513} {
		points := randomPoints(rng, n, 4)
		nodes := buildNodes(points, metric.Host)
		require.Len(t, nodes, n)

		const slack = 1e-5
		for vp, nd := range nodes {
			for _, idx := range collectSubtree(nodes, nd.Left) {
				d := metric.Host(points[vp], points[idx])
				if d > nd.Threshold+slack {
					t.Fatalf("n=%d node %d: left descendant %d at distance %v > threshold %v", n, vp, idx, d, nd.Threshold)
				}
			}
			for _, idx := range collectSubtree(nodes, nd.Right) {
				d := metric.Host(points[vp], points[idx])
				if d < nd.Threshold-slack {
					t.Fatalf("n=%d node %d: right descendant %d at distance %v < threshold %v", n, vp, idx, d, nd.Threshold)
				}
			}
		}
	}
}

// TestTreeReachability verifies every point produces exactly one node and
// every node is reachable from the root.
func TestTreeReachability(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	metric := Euclidean()

	for _, n := range []int{1, 2, 7, 64, 1000} {
		points := randomPoints(rng, n, 3)
		nodes := buildNodes(points, metric.Host)

		seen := make(map[int32]bool, n)
		for _, idx := range collectSubtree(nodes, 0) {
			if seen[idx] {
				t.Fatalf("n=%d: node %d reachable twice", n, idx)
			}
			seen[idx] = true
		}
		require.Len(t, seen, n, "n=%d: not every node reachable", n)
	}
}

// TestBuildDeterministic verifies that building twice from the same initial
// ordering yields identical node tables and identical permutations.
func TestBuildDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	original := randomPoints(rng, 257, 8)
	metric := Euclidean()

	a := clonePoints(original)
	b := clonePoints(original)

	nodesA := buildNodes(a, metric.Host)
	nodesB := buildNodes(b, metric.Host)

	require.Equal(t, nodesA, nodesB)
	require.Equal(t, a, b)
}

// TestTreeDepthBalanced verifies the median split keeps depth logarithmic,
// which is what bounds the search stack.
func TestTreeDepthBalanced(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	metric := Euclidean()

	for _, n := range []int{1, 2, 7, 100, 1000, 4096} {
		points := randomPoints(rng, n, 2)
		nodes := buildNodes(points, metric.Host)

		depth := treeDepth(nodes)
		// Each split leaves at most half the remaining points per side, so
		// depth is bounded by ceil(log2(n)) + 1.
		bound := int(math.Ceil(math.Log2(float64(n)))) + 1
		if depth > bound {
			t.Errorf("n=%d: depth %d exceeds bound %d", n, depth, bound)
		}
		if depth >= DefaultMaxStackDepth {
			t.Errorf("n=%d: depth %d would overflow the default stack", n, depth)
		}
	}
}

func TestBuildEmptyAndSingle(t *testing.T) {
	metric := Euclidean()

	require.Empty(t, buildNodes(nil, metric.Host))

	nodes := buildNodes([]Point{{1, 2}}, metric.Host)
	require.Len(t, nodes, 1)
	require.Equal(t, Node{Threshold: 0, Left: NoChild, Right: NoChild}, nodes[0])
}

func TestBuildTwoPoints(t *testing.T) {
	metric := Euclidean()
	points := []Point{{0, 0}, {3, 4}}
	nodes := buildNodes(points, metric.Host)

	require.Len(t, nodes, 2)
	root := nodes[0]
	require.Equal(t, NoChild, root.Left)
	require.Equal(t, int32(1), root.Right)
	require.InDelta(t, 5.0, float64(root.Threshold), 1e-5)
	require.Equal(t, Node{Threshold: 0, Left: NoChild, Right: NoChild}, nodes[1])
}

// TestSelectNth checks the partial ordering the quickselect leaves behind.
func TestSelectNth(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(100)
		b := &builder{
			points: make([]Point, n),
			dist:   make([]float32, n),
		}
		for i := range b.points {
			b.points[i] = Point{rng.Float32()}
			b.dist[i] = rng.Float32()
		}

		k := rng.Intn(n)
		b.selectNth(0, n, k)

		for i := 0; i < k; i++ {
			if b.dist[i] > b.dist[k] {
				t.Fatalf("trial %d: dist[%d]=%v > dist[k=%d]=%v", trial, i, b.dist[i], k, b.dist[k])
			}
		}
		for i := k + 1; i < n; i++ {
			if b.dist[i] < b.dist[k] {
				t.Fatalf("trial %d: dist[%d]=%v < dist[k=%d]=%v", trial, i, b.dist[i], k, b.dist[k])
			}
		}
	}
}
