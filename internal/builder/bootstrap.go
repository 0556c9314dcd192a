package builder

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/valpere/qgen/internal/textfile"
)

// BootstrapResult summarises one bootstrap run.
type BootstrapResult struct {
	Pairs []Pair
	// Sources is the number of distinct source sentences considered.
	Sources int
}

// Matched is the number of sources that found a target.
func (r BootstrapResult) Matched() int { return len(r.Pairs) }

// Bootstrap pairs each distinct source sentence with its most similar target
// sentence, skipping an identical target. Sources whose best match scores
// below threshold are dropped. Pairs follow source order.
func (b *Builder) Bootstrap(ctx context.Context, sources []string, threshold float64) (BootstrapResult, error) {
	sources = textfile.Unique(sources)
	ranges := Partition(len(sources), b.workers)
	prog := b.newProgress(len(sources), "bootstrapping")

	batches, err := fanOut(ctx, ranges, func(ctx context.Context, r Range) ([]Pair, error) {
		var local []Pair
		for _, src := range sources[r.Start:r.End] {
			tgt, ok, err := b.matcher.MostSimilar(ctx, src, true, threshold)
			if err != nil {
				return nil, fmt.Errorf("match %q: %w", src, err)
			}
			if ok {
				local = append(local, Pair{Source: src, Target: tgt})
			}
			prog.tick()
		}
		return local, nil
	})
	prog.finish(b.progress)
	if err != nil {
		return BootstrapResult{}, err
	}

	res := BootstrapResult{Sources: len(sources)}
	for _, batch := range batches {
		res.Pairs = append(res.Pairs, batch...)
	}
	b.logger.Info("bootstrap finished",
		"sources", res.Sources,
		"matched", res.Matched(),
		"dropped", res.Sources-res.Matched(),
		"processed", prog.done.Load(),
	)
	return res, nil
}

// BootstrapFiles reads sources from sourcePath and writes the resulting
// pairs to parallel_source.txt and parallel_tgt.txt under outDir.
func (b *Builder) BootstrapFiles(ctx context.Context, sourcePath, outDir string, threshold float64) (BootstrapResult, error) {
	sources, err := textfile.ReadUniqueLines(sourcePath)
	if err != nil {
		return BootstrapResult{}, err
	}
	res, err := b.Bootstrap(ctx, sources, threshold)
	if err != nil {
		return BootstrapResult{}, err
	}
	if err := WritePairs(filepath.Join(outDir, SourceFile), filepath.Join(outDir, TargetFile), res.Pairs); err != nil {
		return BootstrapResult{}, err
	}
	return res, nil
}
