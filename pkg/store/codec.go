package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/orneryd/vantage/pkg/vptree"
)

// Binary snapshot layout, little-endian:
//
//	magic   [4]byte "VPS1"
//	dims    uint32
//	count   uint32
//	mlen    uint16
//	metric  [mlen]byte
//	nodes   count * (threshold float32, left int32, right int32)
//	points  count*dims * float32
//
// The fixed layout keeps the blob loadable without reflection and makes
// truncation detectable by length alone.

var snapshotMagic = [4]byte{'V', 'P', 'S', '1'}

const nodeRecordSize = 12

func encodeSnapshot(snap *vptree.Snapshot) ([]byte, error) {
	if len(snap.Metric) > math.MaxUint16 {
		return nil, fmt.Errorf("store: metric name too long (%d bytes)", len(snap.Metric))
	}
	if len(snap.Nodes) != snap.Count || len(snap.Points) != snap.Count*snap.Dims {
		return nil, fmt.Errorf("store: inconsistent snapshot tables")
	}

	size := 4 + 4 + 4 + 2 + len(snap.Metric) +
		snap.Count*nodeRecordSize +
		snap.Count*snap.Dims*4
	buf := make([]byte, 0, size)

	buf = append(buf, snapshotMagic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(snap.Dims))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(snap.Count))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(snap.Metric)))
	buf = append(buf, snap.Metric...)

	for _, n := range snap.Nodes {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.Threshold))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.Left))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.Right))
	}
	for _, c := range snap.Points {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c))
	}
	return buf, nil
}

func decodeSnapshot(data []byte) (*vptree.Snapshot, error) {
	if len(data) < 14 {
		return nil, fmt.Errorf("%w: blob truncated", ErrCorrupted)
	}
	if [4]byte(data[:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupted)
	}

	dims := int(binary.LittleEndian.Uint32(data[4:8]))
	count := int(binary.LittleEndian.Uint32(data[8:12]))
	mlen := int(binary.LittleEndian.Uint16(data[12:14]))

	off := 14
	if len(data) < off+mlen {
		return nil, fmt.Errorf("%w: blob truncated", ErrCorrupted)
	}
	metric := string(data[off : off+mlen])
	off += mlen

	want := off + count*nodeRecordSize + count*dims*4
	if len(data) != want {
		return nil, fmt.Errorf("%w: blob is %d bytes, expected %d", ErrCorrupted, len(data), want)
	}

	snap := &vptree.Snapshot{
		Dims:   dims,
		Count:  count,
		Metric: metric,
		Nodes:  make([]vptree.Node, count),
		Points: make([]float32, count*dims),
	}

	for i := range snap.Nodes {
		snap.Nodes[i] = vptree.Node{
			Threshold: math.Float32frombits(binary.LittleEndian.Uint32(data[off:])),
			Left:      int32(binary.LittleEndian.Uint32(data[off+4:])),
			Right:     int32(binary.LittleEndian.Uint32(data[off+8:])),
		}
		off += nodeRecordSize
	}
	for i := range snap.Points {
		snap.Points[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	return snap, nil
}
