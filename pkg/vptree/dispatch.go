package vptree

import (
	"sync"

	"github.com/orneryd/vantage/pkg/device"
)

// Batch dispatch: data-parallel, not message-passing. One logical task per
// query, partitioned into groups of GroupSize served by one goroutine each,
// with no ordering guarantee between queries and no communication between
// workers. The only synchronization point is the batch boundary — results
// are read back only after every worker has finished.

// dispatch runs the search kernel for nq queries already uploaded to
// queryBuf, writing into the mirrored result buffers. Each worker owns a
// disjoint region of the result views and a private traversal stack, so no
// locking happens below the read-only tree.
func (t *VPTree) dispatch(queryBuf, idxBuf, distBuf device.Buffer, nq int) {
	queries := bytesAsFloat32(queryBuf.Contents())
	idxOut := bytesAsInt32(idxBuf.Contents())
	distOut := bytesAsFloat32(distBuf.Contents())

	params := kernelParams{
		nodes:  bytesAsNodes(t.nodeBuf.Contents()),
		points: bytesAsFloat32(t.pointBuf.Contents()),
		dims:   t.dims,
		metric: t.metric.Kernel,
	}

	group := t.opts.GroupSize
	var wg sync.WaitGroup

	for start := 0; start < nq; start += group {
		end := start + group
		if end > nq {
			end = nq
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			stack := make([]int32, t.opts.MaxStackDepth)
			failures := int64(0)

			for i := start; i < end; i++ {
				query := queries[i*params.dims : (i+1)*params.dims]
				idx, dist := searchOne(&params, query, stack)
				idxOut[i] = idx
				distOut[i] = dist
				if idx == FailureIndex && dist == FailureDistance {
					failures++
				}
			}

			if failures > 0 {
				t.statCapacityFailures.Add(failures)
			}
		}(start, end)
	}

	wg.Wait()
}
