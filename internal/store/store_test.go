package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_EnsureExperiment_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.EnsureExperiment(ctx, "quora", "config/quora.yml", "use")
	if err != nil {
		t.Fatalf("EnsureExperiment failed: %v", err)
	}
	id2, err := s.EnsureExperiment(ctx, " quora ", "config/quora.yml", "glove")
	if err != nil {
		t.Fatalf("EnsureExperiment failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected the same experiment ID, got %q and %q", id1, id2)
	}

	exps, err := s.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("ListExperiments failed: %v", err)
	}
	if len(exps) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(exps))
	}
	if exps[0].Encoder != "glove" {
		t.Errorf("expected encoder to be updated to glove, got %q", exps[0].Encoder)
	}
}

func TestStore_IterationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expID, err := s.EnsureExperiment(ctx, "quora", "config/quora.yml", "use")
	if err != nil {
		t.Fatalf("EnsureExperiment failed: %v", err)
	}

	itID, err := s.StartIteration(ctx, expID, 1, "refine")
	if err != nil {
		t.Fatalf("StartIteration failed: %v", err)
	}

	err = s.RecordStep(ctx, StepRun{
		IterationID: itID,
		Step:        "train",
		Argv:        []string{"onmt_train", "-data", "x"},
		ExitCode:    0,
		Duration:    1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RecordStep failed: %v", err)
	}

	err = s.FinishIteration(ctx, itID, IterationResult{Pairs: 10, Refined: 3, UpdateRate: 0.3, Outcome: OutcomeCompleted})
	if err != nil {
		t.Fatalf("FinishIteration failed: %v", err)
	}

	its, err := s.ListIterations(ctx, "quora")
	if err != nil {
		t.Fatalf("ListIterations failed: %v", err)
	}
	if len(its) != 1 {
		t.Fatalf("expected 1 iteration, got %d", len(its))
	}
	got := its[0]
	if got.Iteration != 1 || got.Phase != "refine" || got.Pairs != 10 || got.Refined != 3 {
		t.Errorf("unexpected iteration entry: %+v", got)
	}
	if got.Outcome != OutcomeCompleted {
		t.Errorf("expected outcome %q, got %q", OutcomeCompleted, got.Outcome)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expID, _ := s.EnsureExperiment(ctx, "quora", "config/quora.yml", "use")
	it0, _ := s.StartIteration(ctx, expID, 0, "bootstrap")
	_ = s.RecordStep(ctx, StepRun{IterationID: it0, Step: "train", Duration: 2 * time.Second})
	_ = s.FinishIteration(ctx, it0, IterationResult{Pairs: 5, Outcome: OutcomeCompleted})
	it1, _ := s.StartIteration(ctx, expID, 1, "refine")
	_ = s.FinishIteration(ctx, it1, IterationResult{Pairs: 5, UpdateRate: 0.01, Outcome: OutcomeConverged})

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Experiments != 1 {
		t.Errorf("expected 1 experiment, got %d", stats.Experiments)
	}
	if stats.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", stats.Iterations)
	}
	if stats.Converged != 1 {
		t.Errorf("expected 1 converged iteration, got %d", stats.Converged)
	}
	if stats.StepRuns != 1 {
		t.Errorf("expected 1 step run, got %d", stats.StepRuns)
	}
	if stats.StepTime != 2*time.Second {
		t.Errorf("expected 2s of step time, got %v", stats.StepTime)
	}
}

func TestStore_DeleteExperiment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expID, _ := s.EnsureExperiment(ctx, "quora", "config/quora.yml", "use")
	it0, _ := s.StartIteration(ctx, expID, 0, "bootstrap")
	_ = s.RecordStep(ctx, StepRun{IterationID: it0, Step: "train"})
	_, _ = s.StartIteration(ctx, expID, 1, "refine")

	n, err := s.DeleteExperiment(ctx, "quora")
	if err != nil {
		t.Fatalf("DeleteExperiment failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 iterations deleted, got %d", n)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Experiments != 0 || stats.Iterations != 0 || stats.StepRuns != 0 {
		t.Errorf("expected an empty ledger, got %+v", stats)
	}

	if _, err := s.DeleteExperiment(ctx, "quora"); err == nil {
		t.Error("expected error deleting a missing experiment")
	}
}
