package encoder

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 50000

// Cached memoises sentence vectors of another encoder in a bounded LRU.
// Refinement embeds the same targets repeatedly within one run; the cache
// lives only as long as the value and is never shared between builders.
type Cached struct {
	inner Encoder
	cache *lru.Cache[string, []float32]
}

func NewCached(inner Encoder, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Unwrap returns the decorated encoder.
func (c *Cached) Unwrap() Encoder { return c.inner }

func (c *Cached) Vector(ctx context.Context, sentence string) ([]float32, error) {
	if v, ok := c.cache.Get(sentence); ok {
		return v, nil
	}
	v, err := c.inner.Vector(ctx, sentence)
	if err != nil {
		return nil, err
	}
	c.cache.Add(sentence, v)
	return v, nil
}

// Vectors only asks the wrapped encoder for sentences not already cached.
func (c *Cached) Vectors(ctx context.Context, sentences []string) ([][]float32, error) {
	out := make([][]float32, len(sentences))
	var missing []string
	var missingAt []int
	for i, s := range sentences {
		if v, ok := c.cache.Get(s); ok {
			out[i] = v
			continue
		}
		missing = append(missing, s)
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Vectors(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("encoder %s returned %d vectors for %d sentences", c.inner.Name(), len(fresh), len(missing))
	}
	for k, v := range fresh {
		out[missingAt[k]] = v
		c.cache.Add(missing[k], v)
	}
	return out, nil
}
