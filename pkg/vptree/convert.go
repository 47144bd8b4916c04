package vptree

import "unsafe"

// Raw byte views over the typed tables, for device transfer. Node is three
// 4-byte fields with no padding, so the reinterpretations are exact.

const nodeSize = int(unsafe.Sizeof(Node{}))

func nodesAsBytes(nodes []Node) []byte {
	if len(nodes) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&nodes[0])), len(nodes)*nodeSize)
}

func bytesAsNodes(b []byte) []Node {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*Node)(unsafe.Pointer(&b[0])), len(b)/nodeSize)
}

func float32AsBytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}

func bytesAsFloat32(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func int32AsBytes(v []int32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

func bytesAsInt32(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}
