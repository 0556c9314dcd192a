// Package orchestrator runs several rewrite generators over the same batch
// concurrently and merges their output.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/valpere/qgen/internal/generator"
)

var ErrTooFewGenerators = errors.New("orchestrator: too few generators succeeded")

type OrchestratorConfig struct {
	// Timeout bounds one attempt of one generator. Zero means no limit.
	Timeout time.Duration
	// MaxAttempts is how often a failing generator is tried per batch.
	MaxAttempts int
	RetryDelay  time.Duration
	// MinGenerators is how many generators must succeed for BatchGenerate
	// to return without error.
	MinGenerators int
	Logger        *slog.Logger
}

type OrchestratorResult struct {
	Rewrites map[string][]string
	// PerGenerator counts the rewrites each successful generator produced.
	PerGenerator map[string]int
	Errors       []error
	Succeeded    int
	Failed       int
}

type Orchestrator struct {
	generators []generator.Generator
	config     OrchestratorConfig
}

func New(generators []generator.Generator, config OrchestratorConfig) *Orchestrator {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if config.MinGenerators < 1 {
		config.MinGenerators = 1
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Orchestrator{
		generators: generators,
		config:     config,
	}
}

// Name joins the names of the wrapped generators.
func (o *Orchestrator) Name() string {
	names := make([]string, len(o.generators))
	for i, g := range o.generators {
		names[i] = g.Name()
	}
	return strings.Join(names, "+")
}

// Execute runs every generator on sentences. Rewrites are merged in
// generator order with exact duplicates removed.
func (o *Orchestrator) Execute(ctx context.Context, sentences []string) *OrchestratorResult {
	result := &OrchestratorResult{
		Rewrites:     make(map[string][]string, len(sentences)),
		PerGenerator: make(map[string]int),
	}

	type resultChan struct {
		index int
		res   map[string][]string
		err   error
	}

	resultChanSlice := make(chan resultChan, len(o.generators))

	var wg sync.WaitGroup
	for i, gen := range o.generators {
		wg.Add(1)
		go func(index int, g generator.Generator) {
			defer wg.Done()
			res, err := o.generate(ctx, g, sentences)
			resultChanSlice <- resultChan{index: index, res: res, err: err}
		}(i, gen)
	}

	go func() {
		wg.Wait()
		close(resultChanSlice)
	}()

	ordered := make([]map[string][]string, len(o.generators))
	for rc := range resultChanSlice {
		name := o.generators[rc.index].Name()
		if rc.err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", name, rc.err))
			result.Failed++
			continue
		}
		ordered[rc.index] = rc.res
		result.PerGenerator[name] = generator.CountRewrites(rc.res)
		result.Succeeded++
	}

	seen := make(map[string]map[string]bool, len(sentences))
	for _, res := range ordered {
		for _, s := range sentences {
			for _, r := range res[s] {
				if seen[s] == nil {
					seen[s] = make(map[string]bool)
				}
				if seen[s][r] {
					continue
				}
				seen[s][r] = true
				result.Rewrites[s] = append(result.Rewrites[s], r)
			}
		}
	}

	return result
}

// generate calls g with per-attempt timeout and retries.
func (o *Orchestrator) generate(ctx context.Context, g generator.Generator, sentences []string) (map[string][]string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(lastErr, ctx.Err())
			case <-time.After(o.config.RetryDelay):
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if o.config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		}
		res, err := g.BatchGenerate(attemptCtx, sentences)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		o.config.Logger.Warn("generator attempt failed",
			"generator", g.Name(), "attempt", attempt, "max_attempts", o.config.MaxAttempts, "error", err)
	}
	return nil, lastErr
}

// BatchGenerate makes the orchestrator a Generator itself. It fails when
// fewer than MinGenerators generators succeeded.
func (o *Orchestrator) BatchGenerate(ctx context.Context, sentences []string) (map[string][]string, error) {
	if len(o.generators) == 0 {
		return nil, fmt.Errorf("%w: no generators configured", ErrTooFewGenerators)
	}
	result := o.Execute(ctx, sentences)
	if result.Succeeded < min(o.config.MinGenerators, len(o.generators)) || result.Succeeded == 0 {
		return nil, fmt.Errorf("%w: %d of %d: %w",
			ErrTooFewGenerators, result.Succeeded, len(o.generators), errors.Join(result.Errors...))
	}
	for _, err := range result.Errors {
		o.config.Logger.Warn("generator failed", "error", err)
	}
	return result.Rewrites, nil
}
