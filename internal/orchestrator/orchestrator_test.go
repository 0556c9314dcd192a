package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/qgen/internal/generator"
)

type mockGenerator struct {
	nameVal      string
	generateFunc func(ctx context.Context, sentences []string) (map[string][]string, error)
	callCount    atomic.Int32
}

func (m *mockGenerator) Name() string { return m.nameVal }

func (m *mockGenerator) BatchGenerate(ctx context.Context, sentences []string) (map[string][]string, error) {
	m.callCount.Add(1)
	if m.generateFunc != nil {
		return m.generateFunc(ctx, sentences)
	}
	out := make(map[string][]string, len(sentences))
	for _, s := range sentences {
		out[s] = []string{s + " (" + m.nameVal + ")"}
	}
	return out, nil
}

func fixed(rewrites map[string][]string) func(context.Context, []string) (map[string][]string, error) {
	return func(context.Context, []string) (map[string][]string, error) { return rewrites, nil }
}

func TestOrchestrator_New_Defaults(t *testing.T) {
	o := New([]generator.Generator{&mockGenerator{nameVal: "mock1"}}, OrchestratorConfig{})

	if o.config.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", o.config.MaxAttempts)
	}
	if o.config.RetryDelay <= 0 {
		t.Error("expected positive RetryDelay")
	}
	if o.config.MinGenerators != 1 {
		t.Errorf("expected MinGenerators=1, got %d", o.config.MinGenerators)
	}
	if o.config.Logger == nil {
		t.Error("expected a default logger")
	}
}

func TestOrchestrator_Name(t *testing.T) {
	o := New([]generator.Generator{
		&mockGenerator{nameVal: "eda"},
		&mockGenerator{nameVal: "ollama"},
	}, OrchestratorConfig{})

	if got := o.Name(); got != "eda+ollama" {
		t.Errorf("expected name eda+ollama, got %q", got)
	}
}

func TestOrchestrator_Execute_MergesInGeneratorOrder(t *testing.T) {
	first := &mockGenerator{nameVal: "first", generateFunc: func(ctx context.Context, s []string) (map[string][]string, error) {
		// finish last so the merge order cannot depend on completion order
		time.Sleep(20 * time.Millisecond)
		return map[string][]string{"q?": {"a?", "b?"}}, nil
	}}
	second := &mockGenerator{nameVal: "second", generateFunc: fixed(map[string][]string{"q?": {"b?", "c?"}})}

	o := New([]generator.Generator{first, second}, OrchestratorConfig{Timeout: time.Second, MaxAttempts: 1})
	result := o.Execute(context.Background(), []string{"q?"})

	if result.Succeeded != 2 || result.Failed != 0 {
		t.Fatalf("expected 2 succeeded, 0 failed, got %d/%d", result.Succeeded, result.Failed)
	}
	want := []string{"a?", "b?", "c?"}
	if !reflect.DeepEqual(result.Rewrites["q?"], want) {
		t.Errorf("expected %q, got %q", want, result.Rewrites["q?"])
	}
	if result.PerGenerator["first"] != 2 || result.PerGenerator["second"] != 2 {
		t.Errorf("unexpected per-generator counts: %v", result.PerGenerator)
	}
}

func TestOrchestrator_Execute_PartialFailure(t *testing.T) {
	bad := &mockGenerator{nameVal: "bad", generateFunc: func(context.Context, []string) (map[string][]string, error) {
		return nil, errors.New("model not loaded")
	}}
	good := &mockGenerator{nameVal: "good"}

	o := New([]generator.Generator{bad, good}, OrchestratorConfig{MaxAttempts: 2, RetryDelay: time.Millisecond})
	result := o.Execute(context.Background(), []string{"q?"})

	if result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 succeeded, 1 failed, got %d/%d", result.Succeeded, result.Failed)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}
	if got := bad.callCount.Load(); got != 2 {
		t.Errorf("expected 2 attempts for the failing generator, got %d", got)
	}
	if got := good.callCount.Load(); got != 1 {
		t.Errorf("expected 1 attempt for the healthy generator, got %d", got)
	}
}

func TestOrchestrator_RetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	flaky := &mockGenerator{nameVal: "flaky", generateFunc: func(context.Context, []string) (map[string][]string, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("temporary")
		}
		return map[string][]string{"q?": {"r?"}}, nil
	}}

	o := New([]generator.Generator{flaky}, OrchestratorConfig{MaxAttempts: 3, RetryDelay: time.Millisecond})
	got, err := o.BatchGenerate(context.Background(), []string{"q?"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if !reflect.DeepEqual(got["q?"], []string{"r?"}) {
		t.Errorf("unexpected rewrites: %v", got)
	}
}

func TestOrchestrator_Timeout(t *testing.T) {
	slow := &mockGenerator{nameVal: "slow", generateFunc: func(ctx context.Context, _ []string) (map[string][]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	o := New([]generator.Generator{slow}, OrchestratorConfig{
		Timeout:     20 * time.Millisecond,
		MaxAttempts: 1,
	})
	_, err := o.BatchGenerate(context.Background(), []string{"q?"})
	if !errors.Is(err, ErrTooFewGenerators) {
		t.Fatalf("expected ErrTooFewGenerators, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the deadline error to be wrapped, got %v", err)
	}
}

func TestOrchestrator_MinGenerators(t *testing.T) {
	bad := &mockGenerator{nameVal: "bad", generateFunc: func(context.Context, []string) (map[string][]string, error) {
		return nil, errors.New("down")
	}}
	good := &mockGenerator{nameVal: "good"}

	o := New([]generator.Generator{bad, good}, OrchestratorConfig{MaxAttempts: 1, MinGenerators: 2})
	if _, err := o.BatchGenerate(context.Background(), []string{"q?"}); !errors.Is(err, ErrTooFewGenerators) {
		t.Errorf("expected ErrTooFewGenerators, got %v", err)
	}

	o = New([]generator.Generator{bad, good}, OrchestratorConfig{MaxAttempts: 1, MinGenerators: 1})
	got, err := o.BatchGenerate(context.Background(), []string{"q?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got["q?"], []string{"q? (good)"}) {
		t.Errorf("unexpected rewrites: %v", got)
	}
}

func TestOrchestrator_NoGenerators(t *testing.T) {
	o := New(nil, OrchestratorConfig{})
	if _, err := o.BatchGenerate(context.Background(), []string{"q?"}); !errors.Is(err, ErrTooFewGenerators) {
		t.Errorf("expected ErrTooFewGenerators, got %v", err)
	}
}
