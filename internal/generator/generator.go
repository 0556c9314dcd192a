// Package generator produces question rewrites. Each Generator maps a
// batch of sentences to the rewrites it found for each of them.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultBatchSize is how many sentences RunBatches hands to a generator at
// once.
const DefaultBatchSize = 2500

var ErrUnknownGenerator = errors.New("generator: unknown method")

type Generator interface {
	Name() string
	BatchGenerate(ctx context.Context, sentences []string) (map[string][]string, error)
}

// RunBatches feeds the non-blank lines to g in batches of batchSize and
// merges the results. A sentence seen in several batches keeps the rewrites
// of the last one.
func RunBatches(ctx context.Context, g Generator, lines []string, batchSize int, logger *slog.Logger) (map[string][]string, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	results := make(map[string][]string)
	batch := make([]string, 0, batchSize)
	n := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		logger.Info("processing batch", "generator", g.Name(), "batch", n, "size", len(batch))
		out, err := g.BatchGenerate(ctx, batch)
		if err != nil {
			return fmt.Errorf("batch %d: %w", n, err)
		}
		for k, v := range out {
			results[k] = v
		}
		n++
		batch = batch[:0]
		return nil
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		batch = append(batch, line)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return results, nil
}

// CountRewrites is the total number of rewrites in results.
func CountRewrites(results map[string][]string) int {
	n := 0
	for _, v := range results {
		n += len(v)
	}
	return n
}

// appendUnique appends s to out unless it is blank, equal to skip or
// already present.
func appendUnique(out []string, seen map[string]bool, s, skip string) []string {
	s = strings.TrimSpace(s)
	if s == "" || seen[s] || strings.EqualFold(s, skip) {
		return out
	}
	seen[s] = true
	return append(out, s)
}
