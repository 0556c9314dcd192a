// Package annoy implements an on-disk forest of random-projection trees for
// approximate angular nearest-neighbour search over sentence embeddings.
//
// Indexes are built once by streaming vectors to a file (Builder) and then
// served read-only from a memory mapping (Index).
package annoy

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Neighbor is one query hit. Distance is angular; see Similarity.
type Neighbor struct {
	ID       int
	Distance float32
}

// Index is a read-only, memory-mapped forest. Concurrent queries are safe.
type Index struct {
	mu      sync.RWMutex
	path    string
	region  *mmapRegion
	hdr     header
	searchK int
}

// Load maps the index at path. When expect is non-nil the stored fingerprint
// must match it exactly.
func Load(path string, expect *Fingerprint) (*Index, error) {
	region, err := mapReadOnly(path)
	if err != nil {
		return nil, err
	}
	h, err := unmarshalHeader(region.data)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := validateLayout(h, int64(len(region.data))); err != nil {
		region.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if expect != nil && h.fingerprint() != *expect {
		region.Close()
		return nil, &MismatchError{Path: path, Expected: *expect, Actual: h.fingerprint()}
	}
	return &Index{path: path, region: region, hdr: h}, nil
}

func validateLayout(h header, size int64) error {
	if h.Dim == 0 {
		return fmt.Errorf("%w: zero dimension", ErrCorrupt)
	}
	nodes := uint64(vectorOffset(h.Dim, h.Count))
	roots := nodes + h.NodeCount*uint64(nodeSize(h.Dim))
	leaves := roots + uint64(h.Trees)*4
	end := leaves + h.LeafItemCount*4
	if h.NodesOffset != nodes || h.RootsOffset != roots || h.LeavesOffset != leaves {
		return fmt.Errorf("%w: section offsets do not match header counts", ErrCorrupt)
	}
	if end > uint64(size) {
		return fmt.Errorf("%w: truncated (%d of %d bytes)", ErrCorrupt, size, end)
	}
	return nil
}

// SetSearchK overrides the number of candidates inspected per query.
func (x *Index) SetSearchK(n int) {
	x.mu.Lock()
	x.searchK = n
	x.mu.Unlock()
}

func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int(x.hdr.Count)
}

func (x *Index) Dim() int {
	if x == nil {
		return 0
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int(x.hdr.Dim)
}

func (x *Index) Fingerprint() Fingerprint {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.hdr.fingerprint()
}

// Vector returns a copy of the stored vector at slot id.
func (x *Index) Vector(id int) ([]float32, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.region == nil {
		return nil, ErrNotBuilt
	}
	if id < 0 || uint64(id) >= x.hdr.Count {
		return nil, fmt.Errorf("annoy: slot %d out of range [0,%d)", id, x.hdr.Count)
	}
	out := make([]float32, x.hdr.Dim)
	copy(out, x.vector(uint32(id)))
	return out, nil
}

// Query returns up to k approximate nearest neighbours of vec ordered by
// ascending angular distance, ties broken by slot.
func (x *Index) Query(vec []float32, k int) ([]Neighbor, error) {
	if x == nil {
		return nil, ErrNotBuilt
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.region == nil {
		return nil, ErrNotBuilt
	}
	if len(vec) != int(x.hdr.Dim) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), x.hdr.Dim)
	}
	if k <= 0 || x.hdr.Count == 0 {
		return []Neighbor{}, nil
	}

	searchK := x.searchK
	if searchK <= 0 {
		searchK = k * int(x.hdr.Trees)
	}
	if searchK < k {
		searchK = k
	}

	pq := &nodeQueue{}
	for t := uint32(0); t < x.hdr.Trees; t++ {
		heap.Push(pq, queued{node: x.root(t), priority: float32(math.Inf(1))})
	}

	seen := make(map[uint32]struct{}, searchK)
	candidates := make([]uint32, 0, searchK)
	for pq.Len() > 0 && len(candidates) < searchK {
		top := heap.Pop(pq).(queued)
		kind, a, b, offset, normal := x.node(top.node)
		if kind == nodeLeaf {
			for _, id := range x.leafItems(a, b) {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				candidates = append(candidates, id)
			}
			continue
		}
		m := margin(normal, offset, vec)
		heap.Push(pq, queued{node: b, priority: min(top.priority, m)})
		heap.Push(pq, queued{node: a, priority: min(top.priority, -m)})
	}

	hits := make([]Neighbor, len(candidates))
	for i, id := range candidates {
		hits[i] = Neighbor{ID: int(id), Distance: AngularDistance(vec, x.vector(id))}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close unmaps the index. Later queries fail with ErrNotBuilt.
func (x *Index) Close() error {
	if x == nil {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.region == nil {
		return nil
	}
	err := x.region.Close()
	x.region = nil
	return err
}

func (x *Index) vector(id uint32) []float32 {
	return float32View(x.region.data, vectorOffset(x.hdr.Dim, uint64(id)), int(x.hdr.Dim))
}

func (x *Index) root(t uint32) uint32 {
	return binary.LittleEndian.Uint32(x.region.data[x.hdr.RootsOffset+uint64(t)*4:])
}

func (x *Index) node(id uint32) (kind, a, b uint32, offset float32, normal []float32) {
	base := int64(x.hdr.NodesOffset) + int64(id)*nodeSize(x.hdr.Dim)
	buf := x.region.data[base:]
	le := binary.LittleEndian
	kind = le.Uint32(buf[0:])
	a = le.Uint32(buf[4:])
	b = le.Uint32(buf[8:])
	offset = math.Float32frombits(le.Uint32(buf[12:]))
	if kind == nodeSplit {
		normal = float32View(x.region.data, base+nodeHeaderSize, int(x.hdr.Dim))
	}
	return kind, a, b, offset, normal
}

func (x *Index) leafItems(start, n uint32) []uint32 {
	return uint32View(x.region.data, int64(x.hdr.LeavesOffset)+int64(start)*4, int(n))
}

type queued struct {
	node     uint32
	priority float32
}

// nodeQueue is a max-heap on priority.
type nodeQueue []queued

func (q nodeQueue) Len() int           { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].priority > q[j].priority }
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(v any)        { *q = append(*q, v.(queued)) }
func (q *nodeQueue) Pop() any {
	old := *q
	v := old[len(old)-1]
	*q = old[:len(old)-1]
	return v
}
