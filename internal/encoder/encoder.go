// Package encoder turns sentences into fixed-size embedding vectors.
package encoder

import (
	"context"
	"errors"
)

// Encoder produces sentence embeddings. Vectors returns one vector per input
// sentence, in input order. Implementations must be safe for concurrent use.
type Encoder interface {
	Name() string
	Dimension() int
	Vector(ctx context.Context, sentence string) ([]float32, error)
	Vectors(ctx context.Context, sentences []string) ([][]float32, error)
}

var (
	ErrUnknownEncoder = errors.New("encoder: unknown encoder")
	ErrEmptyModel     = errors.New("encoder: model has no vectors")
)

// vectorsOneByOne is the default batch path for encoders without native
// batching.
func vectorsOneByOne(ctx context.Context, e Encoder, sentences []string) ([][]float32, error) {
	out := make([][]float32, len(sentences))
	for i, s := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Vector(ctx, s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
