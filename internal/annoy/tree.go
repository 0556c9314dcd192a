package annoy

import (
	"math/rand/v2"
)

// twoMeansIterations is the number of sampled refinement steps used when
// choosing a split hyperplane.
const twoMeansIterations = 32

// maxSplitAttempts bounds how often a node retries a hyperplane split that
// put every item on one side before falling back to an arbitrary halving.
const maxSplitAttempts = 3

type node struct {
	kind   uint32
	a, b   uint32 // split: left, right child ids; leaf: start, length into leafItems
	offset float32
	normal []float32
}

// forest builds random-projection trees over vectors that are already on
// disk. Only the nodes of the tree being grown are held in memory; each
// finished tree is handed to emit and dropped. Node ids are global across
// trees, so the emitted trees concatenate into one node section.
type forest struct {
	vector   func(i uint32) []float32
	emit     func(nodes []node) error
	dim      int
	leafSize int
	rng      *rand.Rand

	// nodes holds the current tree; its first node has id base.
	nodes     []node
	base      uint32
	roots     []uint32
	leafItems []uint32
}

// nodeCount is the number of nodes emitted so far.
func (f *forest) nodeCount() uint64 { return uint64(f.base) }

func (f *forest) build(count, trees int) error {
	if count == 0 {
		return nil
	}
	for t := 0; t < trees; t++ {
		items := make([]uint32, count)
		for i := range items {
			items[i] = uint32(i)
		}
		f.roots = append(f.roots, f.makeTree(items))
		if err := f.emit(f.nodes); err != nil {
			return err
		}
		f.base += uint32(len(f.nodes))
		f.nodes = f.nodes[:0]
	}
	return nil
}

func (f *forest) makeTree(items []uint32) uint32 {
	if len(items) <= f.leafSize {
		return f.addLeaf(items)
	}

	var normal []float32
	var left, right []uint32
	for attempt := 0; attempt < maxSplitAttempts; attempt++ {
		normal = f.splitNormal(items)
		left, right = f.partition(items, normal)
		if len(left) > 0 && len(right) > 0 {
			break
		}
	}
	if len(left) == 0 || len(right) == 0 {
		// Degenerate data (duplicates, zero vectors): halve at random with a
		// zero normal so queries descend into both sides with equal priority.
		normal = make([]float32, f.dim)
		shuffled := append([]uint32(nil), items...)
		f.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		half := len(shuffled) / 2
		left, right = shuffled[:half], shuffled[half:]
	}

	id := f.base + uint32(len(f.nodes))
	f.nodes = append(f.nodes, node{kind: nodeSplit, normal: normal})
	l := f.makeTree(left)
	r := f.makeTree(right)
	f.nodes[id-f.base].a = l
	f.nodes[id-f.base].b = r
	return id
}

func (f *forest) addLeaf(items []uint32) uint32 {
	id := f.base + uint32(len(f.nodes))
	f.nodes = append(f.nodes, node{
		kind: nodeLeaf,
		a:    uint32(len(f.leafItems)),
		b:    uint32(len(items)),
	})
	f.leafItems = append(f.leafItems, items...)
	return id
}

// splitNormal picks two random items, refines them as two cosine centroids
// over a sample of the node's items and returns their normalised difference.
func (f *forest) splitNormal(items []uint32) []float32 {
	i := f.rng.IntN(len(items))
	j := f.rng.IntN(len(items) - 1)
	if j >= i {
		j++
	}
	p := normalized(f.vector(items[i]))
	q := normalized(f.vector(items[j]))
	pn, qn := 1, 1

	for it := 0; it < twoMeansIterations; it++ {
		v := normalized(f.vector(items[f.rng.IntN(len(items))]))
		dp, dq := dot(p, v), dot(q, v)
		switch {
		case dp > dq:
			blend(p, v, pn)
			pn++
		case dq > dp:
			blend(q, v, qn)
			qn++
		}
	}

	normal := make([]float32, f.dim)
	for k := range normal {
		normal[k] = p[k] - q[k]
	}
	return normalized(normal)
}

// blend moves centroid c towards v as a running mean of n+1 points.
func blend(c, v []float32, n int) {
	w := float32(n)
	for k := range c {
		c[k] = (c[k]*w + v[k]) / (w + 1)
	}
}

func (f *forest) partition(items []uint32, normal []float32) (left, right []uint32) {
	for _, it := range items {
		if side(normal, 0, f.vector(it)) {
			right = append(right, it)
		} else {
			left = append(left, it)
		}
	}
	return left, right
}

// side reports whether v falls on the right of the hyperplane.
func side(normal []float32, offset float32, v []float32) bool {
	return margin(normal, offset, v) > 0
}

func margin(normal []float32, offset float32, v []float32) float32 {
	return dot(normal, v) + offset
}
