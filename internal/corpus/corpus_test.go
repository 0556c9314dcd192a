package corpus

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/qgen/internal/annoy"
)

// stubEncoder maps known sentences to fixed 2-d vectors.
type stubEncoder struct {
	name    string
	vectors map[string][]float32
	batches atomic.Int32
}

func (s *stubEncoder) Name() string   { return s.name }
func (s *stubEncoder) Dimension() int { return 2 }
func (s *stubEncoder) Vector(_ context.Context, sentence string) ([]float32, error) {
	v, ok := s.vectors[sentence]
	if !ok {
		return nil, errors.New("unknown sentence " + sentence)
	}
	return v, nil
}
func (s *stubEncoder) Vectors(ctx context.Context, sentences []string) ([][]float32, error) {
	s.batches.Add(1)
	out := make([][]float32, len(sentences))
	for i, sentence := range sentences {
		v, err := s.Vector(ctx, sentence)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func newCorpus(t *testing.T, enc *stubEncoder, sentences ...string) *Corpus {
	t.Helper()
	c, err := FromSentences(context.Background(), sentences, filepath.Join(t.TempDir(), enc.name+"-annoy_index.ann"), enc, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMostSimilar_ExcludesSelf(t *testing.T) {
	enc := &stubEncoder{name: "stub", vectors: map[string][]float32{
		"x": {1, 0},
		"y": unit(0.8),
	}}
	c := newCorpus(t, enc, "x", "y")

	got, ok, err := c.MostSimilar(context.Background(), "x", true, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "y", got)

	got, ok, err = c.MostSimilar(context.Background(), "x", false, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", got)

	// y scores 0.8, below the threshold
	_, ok, err = c.MostSimilar(context.Background(), "x", true, 0.9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMostSimilar_SelfOnlyCorpus(t *testing.T) {
	enc := &stubEncoder{name: "stub", vectors: map[string][]float32{"x": {1, 0}}}
	c := newCorpus(t, enc, "x")

	_, ok, err := c.MostSimilar(context.Background(), "x", true, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMostSimilar_ThresholdGating(t *testing.T) {
	enc := &stubEncoder{name: "stub", vectors: map[string][]float32{
		"weak":   unit(0.5),
		"strong": unit(0.95),
		"query":  {1, 0},
	}}

	weak := newCorpus(t, enc, "weak")
	_, ok, err := weak.MostSimilar(context.Background(), "query", true, 0.9)
	require.NoError(t, err)
	assert.False(t, ok, "similarity 0.5 must not pass 0.9")

	strong := newCorpus(t, enc, "strong")
	got, ok, err := strong.MostSimilar(context.Background(), "query", true, 0.9)
	require.NoError(t, err)
	require.True(t, ok, "similarity 0.95 must pass 0.9")
	assert.Equal(t, "strong", got)

	m, ok, err := strong.Nearest(context.Background(), "query", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.95, m.Similarity, 1e-4)
}

func TestNew_ReadsUniqueTargetsAndReusesIndex(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tgt.txt")
	require.NoError(t, os.WriteFile(target, []byte("a\nb\na\n\n"), 0644))
	enc := &stubEncoder{name: "stub", vectors: map[string][]float32{"a": {1, 0}, "b": {0, 1}}}
	index := filepath.Join(dir, "stub-annoy_index.ann")

	c, err := New(context.Background(), target, index, enc, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Sentences())
	assert.Equal(t, 2, c.Len())
	require.NoError(t, c.Close())
	assert.Equal(t, int32(1), enc.batches.Load())

	c, err = New(context.Background(), target, index, enc, Options{})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, int32(1), enc.batches.Load(), "existing index is loaded without re-embedding")
}

func TestNew_RejectsIndexFromAnotherEncoder(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "shared.ann")
	vectors := map[string][]float32{"a": {1, 0}, "b": {0, 1}}

	c, err := FromSentences(context.Background(), []string{"a", "b"}, index, &stubEncoder{name: "glove", vectors: vectors}, Options{})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = FromSentences(context.Background(), []string{"a", "b"}, index, &stubEncoder{name: "fasttext", vectors: vectors}, Options{})
	assert.ErrorIs(t, err, annoy.ErrFingerprintMismatch)
}

func TestMostSimilar_ClosedCorpusFailsLoudly(t *testing.T) {
	enc := &stubEncoder{name: "stub", vectors: map[string][]float32{"x": {1, 0}}}
	c := newCorpus(t, enc, "x")
	require.NoError(t, c.Close())

	_, _, err := c.MostSimilar(context.Background(), "x", true, 0)
	assert.ErrorIs(t, err, annoy.ErrNotBuilt)
}
