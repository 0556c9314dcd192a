// Package corpus holds the target sentence set and answers "closest target
// sentence" queries through the similarity index.
package corpus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/valpere/qgen/internal/annoy"
	"github.com/valpere/qgen/internal/encoder"
	"github.com/valpere/qgen/internal/textfile"
)

// Options configure how the index behind a Corpus is built or loaded.
type Options struct {
	Index     annoy.Options
	BatchSize int
	Logger    *slog.Logger
}

// Match is a target sentence and its cosine similarity to the query.
type Match struct {
	Sentence   string
	Similarity float64
}

// Corpus is immutable after construction and safe for concurrent queries.
type Corpus struct {
	sentences []string
	index     *annoy.Index
	encoder   encoder.Encoder
	logger    *slog.Logger
}

// New reads the unique target sentences at targetPath and builds or loads
// the index at indexPath with enc.
func New(ctx context.Context, targetPath, indexPath string, enc encoder.Encoder, opts Options) (*Corpus, error) {
	sentences, err := textfile.ReadUniqueLines(targetPath)
	if err != nil {
		return nil, err
	}
	return FromSentences(ctx, sentences, indexPath, enc, opts)
}

// FromSentences is New over an in-memory, already deduplicated sentence list.
func FromSentences(ctx context.Context, sentences []string, indexPath string, enc encoder.Encoder, opts Options) (*Corpus, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	provider := func(ctx context.Context, start, end int) ([][]float32, error) {
		logger.Debug("embedding target batch", "start", start, "end", end)
		return enc.Vectors(ctx, sentences[start:end])
	}
	idx, err := annoy.BuildOrLoad(ctx, indexPath, len(sentences), provider, annoy.BuildOptions{
		Options:   opts.Index,
		BatchSize: opts.BatchSize,
		Dim:       enc.Dimension(),
		Encoder:   enc.Name(),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare similarity index: %w", err)
	}
	return &Corpus{sentences: sentences, index: idx, encoder: enc, logger: logger}, nil
}

func (c *Corpus) Len() int { return len(c.sentences) }

// Sentences returns the target sentences in index slot order.
func (c *Corpus) Sentences() []string { return c.sentences }

// Nearest returns the closest target sentence to sentence. With excludeSelf,
// an exact textual match in first place is skipped in favour of the runner
// up. ok is false when the index has no usable neighbour.
func (c *Corpus) Nearest(ctx context.Context, sentence string, excludeSelf bool) (Match, bool, error) {
	vec, err := c.encoder.Vector(ctx, sentence)
	if err != nil {
		return Match{}, false, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := c.index.Query(vec, 2)
	if err != nil {
		return Match{}, false, err
	}
	if len(hits) == 0 {
		return Match{}, false, nil
	}

	best := hits[0]
	if excludeSelf && c.sentences[best.ID] == sentence {
		if len(hits) < 2 {
			return Match{}, false, nil
		}
		best = hits[1]
	}
	return Match{Sentence: c.sentences[best.ID], Similarity: annoy.Similarity(best.Distance)}, true, nil
}

// MostSimilar is Nearest gated by threshold: a neighbour scoring below it is
// reported as absent, which is an expected outcome and not an error.
func (c *Corpus) MostSimilar(ctx context.Context, sentence string, excludeSelf bool, threshold float64) (string, bool, error) {
	m, ok, err := c.Nearest(ctx, sentence, excludeSelf)
	if err != nil || !ok {
		return "", false, err
	}
	if m.Similarity < threshold {
		return "", false, nil
	}
	return m.Sentence, true, nil
}

func (c *Corpus) Close() error {
	return c.index.Close()
}
