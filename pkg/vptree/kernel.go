package vptree

import "math"

// The search kernel: one independent branch-and-bound traversal per query.
//
// Workers never share a query and share no mutable state below the mirrored
// tree, so the kernel takes everything it touches as arguments and runs to
// completion without yielding, blocking, or allocating. Recursion is replaced
// by a fixed-capacity explicit stack sized from the maximum supported tree
// depth; overflowing it is a per-query failure, never memory corruption.

// kernelParams is the read-only view of the mirrored tree a worker operates
// on.
type kernelParams struct {
	nodes  []Node
	points []float32
	dims   int
	metric DistanceFunc
}

// searchOne finds the nearest point to query. It returns the point's index
// in the builder-reordered array and its distance, (NoChild, +Inf) when the
// tree is empty, or (FailureIndex, FailureDistance) when the traversal would
// exceed the stack capacity.
//
// stack is caller-provided scratch with capacity for the maximum supported
// depth plus one; a worker reuses it across the queries it serves.
func searchOne(p *kernelParams, query []float32, stack []int32) (int32, float32) {
	best := NoChild
	bestDist := float32(math.Inf(1))
	tau := float32(math.Inf(1))

	if len(p.nodes) == 0 {
		return best, bestDist
	}

	sp := 0
	current := int32(0)

	for current != NoChild || sp > 0 {
		if current != NoChild {
			point := p.points[int(current)*p.dims : (int(current)+1)*p.dims]
			dist := p.metric(query, point)

			// Strict improvement only: ties keep the earlier-found point
			if dist < tau {
				best = current
				bestDist = dist
				tau = dist
			}

			nd := &p.nodes[current]
			if nd.Left != NoChild || nd.Right != NoChild {
				t := nd.Threshold

				// Left holds points at distance <= t from the vantage point,
				// right holds points >= t. Either side is skipped when the
				// triangle inequality proves it cannot hold anything closer
				// than tau. The far side is pushed first so the near side
				// (the one the query falls on) is explored first, which
				// keeps the stack within one slot per tree level.
				if dist < t {
					if nd.Right != NoChild && dist+tau >= t {
						if sp >= len(stack) {
							return FailureIndex, FailureDistance
						}
						stack[sp] = nd.Right
						sp++
					}
					if nd.Left != NoChild && dist-tau <= t {
						if sp >= len(stack) {
							return FailureIndex, FailureDistance
						}
						stack[sp] = nd.Left
						sp++
					}
				} else {
					if nd.Left != NoChild && dist-tau <= t {
						if sp >= len(stack) {
							return FailureIndex, FailureDistance
						}
						stack[sp] = nd.Left
						sp++
					}
					if nd.Right != NoChild && dist+tau >= t {
						if sp >= len(stack) {
							return FailureIndex, FailureDistance
						}
						stack[sp] = nd.Right
						sp++
					}
				}
			}
		}

		if sp > 0 {
			sp--
			current = stack[sp]
		} else {
			current = NoChild
		}
	}

	return best, bestDist
}
