package nlp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vectors map[string][]float32

func (v vectors) Lookup(word string) ([]float32, bool) {
	vec, ok := v[word]
	return vec, ok
}

var toyVectors = vectors{
	"cat":    {1, 0},
	"kitten": {1, 0.1},
	"dog":    {0, 1},
	"puppy":  {0.1, 1},
	"car":    {-1, 0},
}

func TestTokenize_KeepsPunctuationAndCase(t *testing.T) {
	assert.Equal(t, []string{"How", "can", "I", "apply", "?"}, Tokenize("How can I   apply?"))
	assert.Empty(t, Tokenize("   "))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a\tb \n c "))
	// full-width letters fold under NFKC
	assert.Equal(t, "AB", Normalize("ＡＢ"))
}

func TestWords_LowercasesAndDropsStopWords(t *testing.T) {
	assert.Equal(t, []string{"cat", "mat"}, Words("The Cat is on the mat."))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("The"))
	assert.True(t, IsStopWord("is"))
	assert.False(t, IsStopWord("capital"))
}

func TestWMD_IdenticalIsZero(t *testing.T) {
	d, err := WMD{Vectors: toyVectors}.Distance(context.Background(), "cat and dog", "the dog and the cat")
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestWMD_UnknownWordsAreInfinitelyFar(t *testing.T) {
	d, err := WMD{Vectors: toyVectors}.Distance(context.Background(), "zebra", "cat")
	require.NoError(t, err)
	assert.True(t, math.IsInf(d, 1))
}

func TestWMD_SingleWords(t *testing.T) {
	d, err := WMD{Vectors: toyVectors}.Distance(context.Background(), "cat", "dog")
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, d, 1e-6)
}

func TestWMD_MatchesWordsPairwise(t *testing.T) {
	w := WMD{Vectors: toyVectors}
	d, err := w.Distance(context.Background(), "cat dog", "kitten puppy")
	require.NoError(t, err)
	// cat->kitten and dog->puppy, half the mass each at cost 0.1
	assert.InDelta(t, 0.1, d, 1e-6)

	back, err := w.Distance(context.Background(), "kitten puppy", "cat dog")
	require.NoError(t, err)
	assert.InDelta(t, d, back, 1e-9)
}

func TestWMD_Ordering(t *testing.T) {
	w := WMD{Vectors: toyVectors}
	near, err := w.Distance(context.Background(), "cat dog", "kitten dog")
	require.NoError(t, err)
	far, err := w.Distance(context.Background(), "cat dog", "car dog")
	require.NoError(t, err)
	assert.Less(t, near, far)
}

func TestWMD_RelaxedIsLowerBound(t *testing.T) {
	x := WMD{Vectors: toyVectors}.bag("cat dog car")
	y := WMD{Vectors: toyVectors}.bag("kitten puppy")
	cost := costMatrix(x, y)

	exact, err := transport(x.weights, y.weights, cost)
	require.NoError(t, err)
	assert.LessOrEqual(t, relaxed(x.weights, y.weights, cost), exact+1e-9)
}

func TestWMD_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WMD{Vectors: toyVectors}.Distance(ctx, "cat", "dog")
	assert.ErrorIs(t, err, context.Canceled)
}
