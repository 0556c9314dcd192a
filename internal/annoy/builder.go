package annoy

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
)

const (
	DefaultTrees    = 10
	DefaultLeafSize = 64
)

// Options tune how a forest is built and searched.
type Options struct {
	Trees    int
	LeafSize int
	// SearchK is the number of candidate items inspected per query.
	// Zero means Trees*k.
	SearchK int
	Seed    uint64
}

func (o Options) withDefaults() Options {
	if o.Trees <= 0 {
		o.Trees = DefaultTrees
	}
	if o.LeafSize <= 1 {
		o.LeafSize = DefaultLeafSize
	}
	return o
}

// Builder streams vectors into an index file and finalises the forest.
// It is not safe for concurrent use.
type Builder struct {
	path    string
	file    *os.File
	w       *bufio.Writer
	dim     int
	encoder string
	count   uint64
	opts    Options
	buf     []byte
	done    bool
}

// CreateBuilder truncates path and prepares it for streaming AddItem calls.
func CreateBuilder(path string, dim int, encoder string, opts Options) (*Builder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	if len(encoder) > maxEncoderName {
		return nil, fmt.Errorf("annoy: encoder name %q longer than %d bytes", encoder, maxEncoderName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create index file: %w", err)
	}
	w := bufio.NewWriterSize(file, 1<<20)
	// Placeholder header, rewritten by Build.
	if _, err := w.Write(make([]byte, HeaderSize)); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write index header: %w", err)
	}
	return &Builder{
		path:    path,
		file:    file,
		w:       w,
		dim:     dim,
		encoder: encoder,
		opts:    opts.withDefaults(),
		buf:     make([]byte, dim*4),
	}, nil
}

// Len reports how many items have been added.
func (b *Builder) Len() int { return int(b.count) }

// AddItem appends vec at slot id. Slots must be added densely in order,
// because vectors are written straight to disk.
func (b *Builder) AddItem(id int, vec []float32) error {
	if b.done {
		return ErrAlreadyBuilt
	}
	if id < 0 || uint64(id) != b.count {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, id, b.count)
	}
	if len(vec) != b.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), b.dim)
	}
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b.buf[i*4:], math.Float32bits(v))
	}
	if _, err := b.w.Write(b.buf); err != nil {
		return fmt.Errorf("failed to write vector %d: %w", id, err)
	}
	b.count++
	return nil
}

// Build grows the random-projection forest over the streamed vectors and
// writes the tree sections and final header. The builder cannot be reused.
func (b *Builder) Build() error {
	if b.done {
		return ErrAlreadyBuilt
	}
	b.done = true

	if err := b.w.Flush(); err != nil {
		b.file.Close()
		return fmt.Errorf("failed to flush vectors: %w", err)
	}

	f, err := b.growForest()
	if err != nil {
		b.file.Close()
		return err
	}

	h := header{
		Dim:           uint32(b.dim),
		Count:         b.count,
		Trees:         uint32(len(f.roots)),
		LeafSize:      uint32(b.opts.LeafSize),
		NodeCount:     f.nodeCount(),
		LeafItemCount: uint64(len(f.leafItems)),
		Encoder:       b.encoder,
	}
	h.NodesOffset = uint64(vectorOffset(h.Dim, h.Count))
	h.RootsOffset = h.NodesOffset + h.NodeCount*uint64(nodeSize(h.Dim))
	h.LeavesOffset = h.RootsOffset + uint64(h.Trees)*4

	if err := b.writeTail(f); err != nil {
		b.file.Close()
		return err
	}

	raw, err := h.marshal()
	if err != nil {
		b.file.Close()
		return err
	}
	if _, err := b.file.WriteAt(raw, 0); err != nil {
		b.file.Close()
		return fmt.Errorf("failed to write index header: %w", err)
	}
	if err := b.file.Sync(); err != nil {
		b.file.Close()
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}
	return nil
}

// Abort discards a partially written index.
func (b *Builder) Abort() error {
	b.done = true
	return errors.Join(b.file.Close(), os.Remove(b.path))
}

// growForest builds the trees and appends each tree's nodes to the file
// right after the vectors as soon as the tree is complete.
func (b *Builder) growForest() (*forest, error) {
	dim := uint32(b.dim)
	nodeBuf := make([]byte, nodeSize(dim))
	f := &forest{
		dim:      b.dim,
		leafSize: b.opts.LeafSize,
		rng:      rand.New(rand.NewPCG(b.opts.Seed, b.opts.Seed^0x9e3779b97f4a7c15)),
		emit: func(nodes []node) error {
			for _, n := range nodes {
				encodeNode(nodeBuf, n, dim)
				if _, err := b.w.Write(nodeBuf); err != nil {
					return fmt.Errorf("failed to write tree node: %w", err)
				}
			}
			return nil
		},
	}
	if b.count == 0 {
		return f, nil
	}

	region, err := mapReadOnly(b.path)
	if err != nil {
		return nil, err
	}
	defer region.Close()

	f.vector = func(i uint32) []float32 {
		return float32View(region.data, vectorOffset(dim, uint64(i)), b.dim)
	}
	if err := f.build(int(b.count), b.opts.Trees); err != nil {
		return nil, err
	}
	return f, nil
}

// writeTail appends the root and leaf item sections after the nodes.
func (b *Builder) writeTail(f *forest) error {
	var word [4]byte
	for _, ids := range [][]uint32{f.roots, f.leafItems} {
		for _, id := range ids {
			binary.LittleEndian.PutUint32(word[:], id)
			if _, err := b.w.Write(word[:]); err != nil {
				return fmt.Errorf("failed to write tree section: %w", err)
			}
		}
	}
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush tree sections: %w", err)
	}
	return nil
}
