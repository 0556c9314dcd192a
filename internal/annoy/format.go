package annoy

import (
	"encoding/binary"
	"fmt"
	"math"
)

// File layout (little endian):
//
//	[header: 128B][vectors: count*dim*4B][nodes: nodeCount*nodeSize][roots: trees*4B][leaf items: n*4B]
//
// Vectors are written while items are added, so the on-disk build never
// holds the whole corpus in memory. Tree sections are appended by Build.
const (
	HeaderSize = 128

	formatVersion  = 1
	maxEncoderName = HeaderSize - 76
	nodeHeaderSize = 16
)

var fileMagic = [8]byte{'Q', 'G', 'A', 'N', 'N', 'I', 'D', 'X'}

const (
	nodeLeaf  uint32 = 0
	nodeSplit uint32 = 1
)

type header struct {
	Dim           uint32
	Count         uint64
	Trees         uint32
	LeafSize      uint32
	NodeCount     uint64
	LeafItemCount uint64
	NodesOffset   uint64
	RootsOffset   uint64
	LeavesOffset  uint64
	Encoder       string
}

// Fingerprint identifies the corpus and encoder an index was built for.
type Fingerprint struct {
	Count   int
	Dim     int
	Encoder string
}

func (h header) fingerprint() Fingerprint {
	return Fingerprint{Count: int(h.Count), Dim: int(h.Dim), Encoder: h.Encoder}
}

func (h header) marshal() ([]byte, error) {
	if len(h.Encoder) > maxEncoderName {
		return nil, fmt.Errorf("annoy: encoder name %q longer than %d bytes", h.Encoder, maxEncoderName)
	}
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], fileMagic[:])
	le := binary.LittleEndian
	le.PutUint32(buf[8:], formatVersion)
	le.PutUint32(buf[12:], h.Dim)
	le.PutUint64(buf[16:], h.Count)
	le.PutUint32(buf[24:], h.Trees)
	le.PutUint32(buf[28:], h.LeafSize)
	le.PutUint64(buf[32:], h.NodeCount)
	le.PutUint64(buf[40:], h.LeafItemCount)
	le.PutUint64(buf[48:], h.NodesOffset)
	le.PutUint64(buf[56:], h.RootsOffset)
	le.PutUint64(buf[64:], h.LeavesOffset)
	le.PutUint32(buf[72:], uint32(len(h.Encoder)))
	copy(buf[76:], h.Encoder)
	return buf, nil
}

func unmarshalHeader(buf []byte) (header, error) {
	var h header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("%w: file shorter than header", ErrCorrupt)
	}
	if [8]byte(buf[0:8]) != fileMagic {
		return h, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	le := binary.LittleEndian
	if v := le.Uint32(buf[8:]); v != formatVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	h.Dim = le.Uint32(buf[12:])
	h.Count = le.Uint64(buf[16:])
	h.Trees = le.Uint32(buf[24:])
	h.LeafSize = le.Uint32(buf[28:])
	h.NodeCount = le.Uint64(buf[32:])
	h.LeafItemCount = le.Uint64(buf[40:])
	h.NodesOffset = le.Uint64(buf[48:])
	h.RootsOffset = le.Uint64(buf[56:])
	h.LeavesOffset = le.Uint64(buf[64:])
	n := le.Uint32(buf[72:])
	if n > maxEncoderName {
		return h, fmt.Errorf("%w: encoder name length %d", ErrCorrupt, n)
	}
	h.Encoder = string(buf[76 : 76+n])
	return h, nil
}

func nodeSize(dim uint32) int64 {
	return nodeHeaderSize + int64(dim)*4
}

func vectorOffset(dim uint32, i uint64) int64 {
	return HeaderSize + int64(i)*int64(dim)*4
}

// encodeNode serialises one tree node. Leaf nodes carry [start, start+n) into
// the leaf item section in a/b and a zero normal.
func encodeNode(buf []byte, n node, dim uint32) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], n.kind)
	le.PutUint32(buf[4:], n.a)
	le.PutUint32(buf[8:], n.b)
	le.PutUint32(buf[12:], math.Float32bits(n.offset))
	off := nodeHeaderSize
	for i := 0; i < int(dim); i++ {
		var v float32
		if i < len(n.normal) {
			v = n.normal[i]
		}
		le.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
}
