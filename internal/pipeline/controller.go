package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/valpere/qgen/internal/builder"
	"github.com/valpere/qgen/internal/store"
)

// Outcome is how a training loop ended without error.
type Outcome int

const (
	// OutcomeConverged means a refine pass changed fewer pairs than the
	// configured minimum update rate.
	OutcomeConverged Outcome = iota + 1
	// OutcomeMaxIterations means the iteration limit was reached first.
	OutcomeMaxIterations
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeMaxIterations:
		return "max_iterations"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Phase names as recorded per iteration.
const (
	PhaseBootstrap = "bootstrap"
	PhaseRefine    = "refine"
)

// CorpusBuilder produces the pseudo-parallel corpus of one iteration.
type CorpusBuilder interface {
	BootstrapFiles(ctx context.Context, sourcePath, outDir string, threshold float64) (builder.BootstrapResult, error)
	RefineFiles(ctx context.Context, prevDir, outDir string) (builder.RefineResult, error)
}

// Ledger records iterations and step runs. *store.Store implements it.
type Ledger interface {
	StartIteration(ctx context.Context, experimentID string, iteration int, phase string) (string, error)
	FinishIteration(ctx context.Context, iterationID string, res store.IterationResult) error
	RecordStep(ctx context.Context, run store.StepRun) error
}

// Controller alternates corpus construction with the external NMT steps
// until the corpus stops changing.
type Controller struct {
	Config  *Config
	Builder CorpusBuilder
	Steps   []Step

	// Ledger is optional. ExperimentID must be set when it is.
	Ledger       Ledger
	ExperimentID string

	Logger *slog.Logger
}

// Run executes iterations starting at start. Iteration 0 bootstraps the
// corpus; every later one refines the corpus of the previous iteration
// using its translations.
func (c *Controller) Run(ctx context.Context, start int) (Outcome, error) {
	if start < 0 {
		return 0, fmt.Errorf("invalid start iteration %d", start)
	}
	layout := c.Config.Layout()
	if err := os.MkdirAll(layout.ModelDir(), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create model directory: %w", err)
	}

	for it := start; ; it++ {
		if c.Config.MaxIterations > 0 && it >= c.Config.MaxIterations {
			c.logger().Info("iteration limit reached", "max_iterations", c.Config.MaxIterations)
			return OutcomeMaxIterations, nil
		}
		converged, err := c.iteration(ctx, layout, it)
		if err != nil {
			return 0, err
		}
		if converged {
			return OutcomeConverged, nil
		}
	}
}

func (c *Controller) iteration(ctx context.Context, layout Layout, it int) (converged bool, err error) {
	log := c.logger().With("iteration", it)
	dir := layout.IterationDir(it)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create iteration directory: %w", err)
	}

	phase := PhaseBootstrap
	if it > 0 {
		phase = PhaseRefine
	}
	log.Info("starting iteration", "phase", phase, "dir", dir)

	ledgerID := c.startLedger(ctx, it, phase)
	res := store.IterationResult{Outcome: store.OutcomeCompleted}
	defer func() {
		if err != nil {
			res.Outcome = store.OutcomeFailed
			res.Err = err.Error()
		}
		c.finishLedger(ctx, ledgerID, res)
	}()

	if it == 0 {
		boot, err := c.Builder.BootstrapFiles(ctx, c.Config.SrcCorpus, dir, c.Config.SimilarityThreshold)
		if err != nil {
			return false, fmt.Errorf("iteration %d: %w", it, err)
		}
		res.Pairs = boot.Matched()
		log.Info("bootstrapped pseudo-parallel corpus", "pairs", boot.Matched(), "sources", boot.Sources)
	} else {
		ref, err := c.Builder.RefineFiles(ctx, layout.IterationDir(it-1), dir)
		if err != nil {
			return false, fmt.Errorf("iteration %d: %w", it, err)
		}
		res.Pairs, res.Refined, res.UpdateRate = ref.Total, ref.Refined, ref.UpdateRate
		log.Info("refined pseudo-parallel corpus",
			"refined", ref.Refined, "total", ref.Total, "update_rate", ref.UpdateRate)

		if ref.UpdateRate < c.Config.MinUpdateRate {
			res.Outcome = store.OutcomeConverged
			log.Info("converged", "update_rate", ref.UpdateRate, "min_update_rate", c.Config.MinUpdateRate)
			return true, nil
		}
	}

	args := layout.IterationArgs(c.Config.Args, it)
	for _, step := range c.Steps {
		if err := c.runStep(ctx, log, ledgerID, step, args); err != nil {
			return false, fmt.Errorf("iteration %d: %w", it, err)
		}
	}
	return false, nil
}

func (c *Controller) runStep(ctx context.Context, log *slog.Logger, ledgerID string, step Step, args map[string]any) error {
	log.Info("running step", "step", step.Name())
	started := time.Now()
	err := step.Run(ctx, args)
	elapsed := time.Since(started)

	if ledgerID != "" {
		run := store.StepRun{IterationID: ledgerID, Step: step.Name(), Duration: elapsed}
		if cs, ok := step.(*CommandStep); ok {
			run.Argv = cs.Argv(args)
		}
		if err != nil {
			run.Err = err.Error()
			run.ExitCode = -1
			var se *StepError
			if errors.As(err, &se) {
				run.ExitCode = se.ExitCode
			}
		}
		if lerr := c.Ledger.RecordStep(ctx, run); lerr != nil {
			log.Warn("failed to record step", "step", step.Name(), "error", lerr)
		}
	}

	if err != nil {
		log.Error("step failed", "step", step.Name(), "elapsed", elapsed, "error", err)
		return err
	}
	log.Info("step finished", "step", step.Name(), "elapsed", elapsed)
	return nil
}

func (c *Controller) startLedger(ctx context.Context, it int, phase string) string {
	if c.Ledger == nil {
		return ""
	}
	id, err := c.Ledger.StartIteration(ctx, c.ExperimentID, it, phase)
	if err != nil {
		c.logger().Warn("failed to record iteration", "iteration", it, "error", err)
		return ""
	}
	return id
}

func (c *Controller) finishLedger(ctx context.Context, id string, res store.IterationResult) {
	if id == "" {
		return
	}
	if err := c.Ledger.FinishIteration(context.WithoutCancel(ctx), id, res); err != nil {
		c.logger().Warn("failed to record iteration result", "error", err)
	}
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
