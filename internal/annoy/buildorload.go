package annoy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// DefaultBatchSize is how many vectors are requested from a provider at once
// while building.
const DefaultBatchSize = 20000

// VectorProvider returns the vectors for slots [start, end).
type VectorProvider func(ctx context.Context, start, end int) ([][]float32, error)

// BuildOptions configure BuildOrLoad.
type BuildOptions struct {
	Options
	BatchSize int
	Dim       int
	Encoder   string
	Logger    *slog.Logger
	// OnBatch is called after each batch is written with the number of
	// vectors stored so far.
	OnBatch func(done int)
}

// BuildOrLoad loads the index at path when the file exists, otherwise it
// builds one over n items fetched from provider. A loaded index must carry
// the fingerprint (n, opts.Dim, opts.Encoder).
//
// Builds of the same path are not serialised here; callers must not race.
func BuildOrLoad(ctx context.Context, path string, n int, provider VectorProvider, opts BuildOptions) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	expect := Fingerprint{Count: n, Dim: opts.Dim, Encoder: opts.Encoder}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		idx, err := Load(path, &expect)
		if err != nil {
			return nil, err
		}
		idx.SetSearchK(opts.SearchK)
		logger.Info("loaded similarity index", "path", path, "items", idx.Len(), "encoder", opts.Encoder)
		return idx, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}

	logger.Info("building similarity index", "path", path, "items", n, "trees", opts.withDefaults().Trees)
	if err := build(ctx, path, n, provider, opts); err != nil {
		return nil, err
	}
	idx, err := Load(path, &expect)
	if err != nil {
		return nil, err
	}
	idx.SetSearchK(opts.SearchK)
	return idx, nil
}

// build writes to a temporary sibling and renames it into place, so an
// interrupted build never leaves a file that the next run would trust.
func build(ctx context.Context, path string, n int, provider VectorProvider, opts BuildOptions) error {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	tmp := path + ".building"
	b, err := CreateBuilder(tmp, opts.Dim, opts.Encoder, opts.Options)
	if err != nil {
		return err
	}

	for start := 0; start < n; start += batch {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, b.Abort())
		}
		end := min(start+batch, n)
		vecs, err := provider(ctx, start, end)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to embed items %d-%d: %w", start, end, err), b.Abort())
		}
		if len(vecs) != end-start {
			return errors.Join(fmt.Errorf("provider returned %d vectors for %d items", len(vecs), end-start), b.Abort())
		}
		for i, v := range vecs {
			if err := b.AddItem(start+i, v); err != nil {
				return errors.Join(err, b.Abort())
			}
		}
		if opts.OnBatch != nil {
			opts.OnBatch(end)
		}
	}

	if err := b.Build(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move index into place: %w", err)
	}
	return nil
}
