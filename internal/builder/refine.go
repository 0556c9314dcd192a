package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/valpere/qgen/internal/textfile"
)

var ErrNoDistance = errors.New("builder: refine requires a distance")

// RefineResult summarises one refine pass.
type RefineResult struct {
	Pairs []Pair
	// Refined counts pairs whose target changed.
	Refined int
	Total   int
	// UpdateRate is Refined/Total, or 0 for an empty corpus.
	UpdateRate float64
	// Missing counts sources without a candidate; they keep their target.
	Missing int
}

// RefineTarget picks the new target for src.
//
// The better of current and candidate (current only when strictly closer)
// becomes provisional. Provisional survives only when it is strictly closer
// to src than the corpus sentence nearest to provisional itself; otherwise
// that corpus sentence wins.
func (b *Builder) RefineTarget(ctx context.Context, src, current, candidate string) (string, error) {
	if b.distance == nil {
		return "", ErrNoDistance
	}
	dCurrent, err := b.distance.Distance(ctx, src, current)
	if err != nil {
		return "", fmt.Errorf("distance to current target: %w", err)
	}
	dCandidate, err := b.distance.Distance(ctx, src, candidate)
	if err != nil {
		return "", fmt.Errorf("distance to candidate: %w", err)
	}

	provisional, dNew := candidate, dCandidate
	if dCurrent < dCandidate {
		provisional, dNew = current, dCurrent
	}

	nearest, ok, err := b.matcher.MostSimilar(ctx, provisional, true, 0)
	if err != nil {
		return "", fmt.Errorf("match provisional target: %w", err)
	}
	if !ok {
		return provisional, nil
	}
	dOrig, err := b.distance.Distance(ctx, src, nearest)
	if err != nil {
		return "", fmt.Errorf("distance to nearest corpus sentence: %w", err)
	}
	if dNew < dOrig {
		return provisional, nil
	}
	return nearest, nil
}

type refineBatch struct {
	pairs   []Pair
	refined int
	missing int
}

// Refine re-scores every pair against the first-best candidate for its
// source. Pair order is preserved.
func (b *Builder) Refine(ctx context.Context, pairs []Pair, candidates map[string][]string) (RefineResult, error) {
	if b.distance == nil {
		return RefineResult{}, ErrNoDistance
	}
	ranges := Partition(len(pairs), b.workers)
	prog := b.newProgress(len(pairs), "refining")

	batches, err := fanOut(ctx, ranges, func(ctx context.Context, r Range) (refineBatch, error) {
		local := refineBatch{pairs: make([]Pair, 0, r.Len())}
		for _, p := range pairs[r.Start:r.End] {
			cands := candidates[p.Source]
			if len(cands) == 0 {
				b.logger.Warn("no candidate for source, keeping current target", "source", p.Source)
				local.pairs = append(local.pairs, p)
				local.missing++
				prog.tick()
				continue
			}
			target, err := b.RefineTarget(ctx, p.Source, p.Target, cands[0])
			if err != nil {
				return refineBatch{}, fmt.Errorf("refine %q: %w", p.Source, err)
			}
			if target != p.Target {
				local.refined++
			}
			local.pairs = append(local.pairs, Pair{Source: p.Source, Target: target})
			prog.tick()
		}
		return local, nil
	})
	prog.finish(b.progress)
	if err != nil {
		return RefineResult{}, err
	}

	res := RefineResult{Total: len(pairs), Pairs: make([]Pair, 0, len(pairs))}
	for _, batch := range batches {
		res.Pairs = append(res.Pairs, batch.pairs...)
		res.Refined += batch.refined
		res.Missing += batch.missing
	}
	if res.Total > 0 {
		res.UpdateRate = float64(res.Refined) / float64(res.Total)
	}
	b.logger.Info("refine finished",
		"pairs", res.Total,
		"refined", res.Refined,
		"update_rate", res.UpdateRate,
		"missing_candidates", res.Missing,
	)
	return res, nil
}

// RefineFiles reads the pairs and candidates of a previous iteration from
// prevDir and writes the refined pairs to outDir.
func (b *Builder) RefineFiles(ctx context.Context, prevDir, outDir string) (RefineResult, error) {
	pairs, err := ReadPairs(filepath.Join(prevDir, SourceFile), filepath.Join(prevDir, TargetFile))
	if err != nil {
		return RefineResult{}, err
	}
	candidates, err := textfile.ReadCandidates(filepath.Join(prevDir, CandidateFile))
	if err != nil {
		return RefineResult{}, err
	}
	res, err := b.Refine(ctx, pairs, candidates)
	if err != nil {
		return RefineResult{}, err
	}
	if err := WritePairs(filepath.Join(outDir, SourceFile), filepath.Join(outDir, TargetFile), res.Pairs); err != nil {
		return RefineResult{}, err
	}
	return res, nil
}
