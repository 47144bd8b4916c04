package vptree

// Tree construction: recursive median-distance partitioning expressed as an
// explicit work list of index ranges, so build cost is bounded by the range
// stack rather than the call stack.
//
// The builder physically relocates vantage points: the node table slot for a
// node equals its vantage point's final position in the point array, which is
// the addressing scheme the search kernel relies on. The caller's point slice
// comes back permuted; no side index array is allocated.

type span struct {
	lower, upper int
}

// buildNodes partitions points in place and emits a node table of equal
// length satisfying the vantage-point tree invariant: every point reachable
// through Left is at distance <= Threshold from the node's vantage point,
// every point through Right at distance >= Threshold.
func buildNodes(points []Point, metric DistanceFunc) []Node {
	n := len(points)
	nodes := make([]Node, n)
	if n == 0 {
		return nodes
	}

	b := &builder{
		points: points,
		dist:   make([]float32, n),
		metric: metric,
	}

	work := make([]span, 0, 64)
	work = append(work, span{0, n})

	for len(work) > 0 {
		s := work[len(work)-1]
		work = work[:len(work)-1]

		size := s.upper - s.lower
		if size <= 0 {
			// Empty ranges produce no node
			continue
		}
		if size == 1 {
			nodes[s.lower] = Node{Threshold: 0, Left: NoChild, Right: NoChild}
			continue
		}

		// Deterministic vantage point: the midpoint offset of the range,
		// moved to the front so the node slot equals the array position.
		vp := s.lower + size/2
		b.points[s.lower], b.points[vp] = b.points[vp], b.points[s.lower]
		vantage := b.points[s.lower]

		for i := s.lower + 1; i < s.upper; i++ {
			b.dist[i] = b.metric(vantage, b.points[i])
		}

		// Selection, not a full sort: only the median position must end up
		// with its sorted-by-distance occupant.
		median := (s.lower + s.upper) / 2
		b.selectNth(s.lower+1, s.upper, median)

		node := Node{
			Threshold: b.dist[median],
			Left:      NoChild,
			Right:     NoChild,
		}
		if median > s.lower+1 {
			node.Left = int32(s.lower + 1)
		}
		if median < s.upper {
			node.Right = int32(median)
		}
		nodes[s.lower] = node

		work = append(work, span{median, s.upper}, span{s.lower + 1, median})
	}

	return nodes
}

type builder struct {
	points []Point
	dist   []float32
	metric DistanceFunc
}

// selectNth partitions points[lo:hi] (and the parallel dist slice) so the
// element at index k has a distance <= every element after it and >= every
// element before it. Hoare-style quickselect with a midpoint pivot, fully
// deterministic for a given input ordering.
func (b *builder) selectNth(lo, hi, k int) {
	for hi-lo > 1 {
		pivot := b.dist[lo+(hi-lo)/2]

		i, j := lo, hi-1
		for i <= j {
			for b.dist[i] < pivot {
				i++
			}
			for b.dist[j] > pivot {
				j--
			}
			if i <= j {
				b.dist[i], b.dist[j] = b.dist[j], b.dist[i]
				b.points[i], b.points[j] = b.points[j], b.points[i]
				i++
				j--
			}
		}

		switch {
		case k <= j:
			hi = j + 1
		case k >= i:
			lo = i
		default:
			return
		}
	}
}

// treeDepth walks the node table iteratively and returns the number of
// levels, 0 for an empty tree. Bounds the stack capacity a search needs.
func treeDepth(nodes []Node) int {
	if len(nodes) == 0 {
		return 0
	}

	type frame struct {
		idx   int32
		depth int
	}
	stack := []frame{{0, 1}}
	max := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > max {
			max = f.depth
		}
		nd := nodes[f.idx]
		if nd.Left != NoChild {
			stack = append(stack, frame{nd.Left, f.depth + 1})
		}
		if nd.Right != NoChild {
			stack = append(stack, frame{nd.Right, f.depth + 1})
		}
	}

	return max
}
