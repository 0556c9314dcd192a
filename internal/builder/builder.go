// Package builder creates and refines pseudo-parallel corpora.
//
// Both phases split their input into disjoint contiguous batches, process
// each batch on its own goroutine and merge the per-batch results once every
// worker has returned, so no result state is shared between workers.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v2"
)

// DefaultWorkers is the number of batches processed concurrently per phase.
const DefaultWorkers = 5

// Matcher finds the closest target corpus sentence to a query.
type Matcher interface {
	MostSimilar(ctx context.Context, sentence string, excludeSelf bool, threshold float64) (string, bool, error)
}

// Distance scores two sentences; lower means more similar.
type Distance interface {
	Distance(ctx context.Context, a, b string) (float64, error)
}

type Config struct {
	Workers int
	// Progress receives a progress bar per phase. Nil disables it.
	Progress io.Writer
	Logger   *slog.Logger
}

type Builder struct {
	matcher  Matcher
	distance Distance
	workers  int
	progress io.Writer
	logger   *slog.Logger
}

// New returns a Builder. distance may be nil when only Bootstrap is used.
func New(matcher Matcher, distance Distance, cfg Config) *Builder {
	workers := cfg.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := cfg.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Builder{
		matcher:  matcher,
		distance: distance,
		workers:  workers,
		progress: progress,
		logger:   logger,
	}
}

// progress counts processed items across workers and mirrors them on a bar.
type progress struct {
	done atomic.Int64
	bar  *progressbar.ProgressBar
}

func (b *Builder) newProgress(total int, description string) *progress {
	return &progress{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.progress),
		progressbar.OptionSetDescription(description),
	)}
}

func (p *progress) tick() {
	p.done.Add(1)
	p.bar.Add(1)
}

func (p *progress) finish(w io.Writer) {
	p.bar.Finish()
	fmt.Fprintln(w)
}

// fanOut runs work once per range concurrently and returns the results in
// range order. Errors from all workers are joined.
func fanOut[T any](ctx context.Context, ranges []Range, work func(ctx context.Context, r Range) (T, error)) ([]T, error) {
	type batchResult struct {
		index int
		value T
		err   error
	}

	results := make(chan batchResult, len(ranges))
	var wg sync.WaitGroup
	for i, r := range ranges {
		wg.Add(1)
		go func(index int, r Range) {
			defer wg.Done()
			v, err := work(ctx, r)
			results <- batchResult{index: index, value: v, err: err}
		}(i, r)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]T, len(ranges))
	var errs []error
	for br := range results {
		if br.err != nil {
			errs = append(errs, fmt.Errorf("batch %d [%d,%d): %w", br.index, ranges[br.index].Start, ranges[br.index].End, br.err))
			continue
		}
		out[br.index] = br.value
	}
	return out, errors.Join(errs...)
}
