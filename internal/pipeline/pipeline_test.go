package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/qgen/internal/builder"
	"github.com/valpere/qgen/internal/store"
	"github.com/valpere/qgen/internal/textfile"
)

const experimentYAML = `
root_dir: %s
src_corpus: data/src.txt
tgt_corpus: data/tgt.txt
min_update_rate: 0.05
workers: 3
step_timeout: 2m
bootstrap_corpus-sentence_encoder: glove
bootstrap_corpus-similarity_threshold: 0.7
translate-n_best: 5
translate-replace_unk: "true"
translate-verbose: false
train-train_steps: 1000
train-gpu_ranks: [0, 1]
commands:
  preprocess: [onmt_preprocess]
  train: [onmt_train]
  translate: [onmt_translate, --quiet]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quora.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	root := t.TempDir()
	cfg, err := LoadConfig(writeConfig(t, fmt.Sprintf(experimentYAML, root)))
	require.NoError(t, err)

	assert.Equal(t, "quora", cfg.Name)
	assert.Equal(t, filepath.Join(root, "data/src.txt"), cfg.SrcCorpus)
	assert.Equal(t, filepath.Join(root, "data/tgt.txt"), cfg.TgtCorpus)
	assert.Equal(t, filepath.Join(root, DefaultPretrainedConfig), cfg.PretrainedConfig)
	assert.Equal(t, "glove", cfg.Encoder)
	assert.InDelta(t, 0.7, cfg.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.05, cfg.MinUpdateRate, 1e-9)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 0, cfg.MaxIterations)
	assert.Equal(t, 2*time.Minute, cfg.StepTimeout)
	assert.Equal(t, 10, cfg.Index.Trees)

	assert.Equal(t, []string{"onmt_train"}, cfg.Commands["train"])
	assert.Equal(t, []string{"onmt_translate", "--quiet"}, cfg.Commands["translate"])
	assert.Contains(t, cfg.Args, "train-train_steps")
	assert.NotContains(t, cfg.Args, "root_dir")
	assert.NotContains(t, cfg.Args, "commands.train")
}

func TestLoadConfig_MissingCommands(t *testing.T) {
	root := t.TempDir()
	body := strings.Replace(fmt.Sprintf(experimentYAML, root), "  preprocess: [onmt_preprocess]\n", "", 1)
	body = strings.Replace(body, "  translate: [onmt_translate, --quiet]\n", "  translate: []\n", 1)

	_, err := LoadConfig(writeConfig(t, body))
	require.ErrorIs(t, err, ErrMissingKey)
	assert.Contains(t, err.Error(), "commands.preprocess")
	assert.Contains(t, err.Error(), "commands.translate")
	assert.NotContains(t, err.Error(), "commands.train")
}

func TestLoadConfig_MissingKeys(t *testing.T) {
	path := writeConfig(t, "src_corpus: a.txt\ntranslate-n_best: 5\n")
	_, err := LoadConfig(path)
	require.ErrorIs(t, err, ErrMissingKey)
	assert.Contains(t, err.Error(), "tgt_corpus")
	assert.Contains(t, err.Error(), "train-train_steps")
	assert.NotContains(t, err.Error(), "translate-n_best")
}

func TestFilterArgs(t *testing.T) {
	args := map[string]any{
		"train-b_flag":   true,
		"train-c_off":    false,
		"train-d_none":   "none",
		"train-e_false":  "false",
		"train-f_true":   "true",
		"train-g_list":   []any{0, 1},
		"train-h_empty":  []any{},
		"train-i_nil":    nil,
		"train-a_value":  1000,
		"train-j_string": "adam",
		"translate-n":    5,
		"train-":         "ignored",
	}
	got := FilterArgs(args, "train")
	want := []string{
		"-a_value", "1000",
		"-b_flag",
		"-f_true",
		"-g_list", "0 1",
		"-j_string", "adam",
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"-n", "5"}, FilterArgs(args, "translate"))
	assert.Empty(t, FilterArgs(args, "preprocess"))
}

func TestIterationArgs(t *testing.T) {
	layout := Layout{Root: "/work", Experiment: "quora"}
	args := map[string]any{"train-train_steps": 1000, "translate-n_best": 5}

	got := layout.IterationArgs(args, 2)
	assert.Equal(t, "/work/data/imt/quora/2/parallel_source.txt", got["prepare_dataset-input_src"])
	assert.Equal(t, "/work/data/imt/quora/2/onmt_data", got["train-data"])
	assert.Equal(t, "/work/data/imt/quora/2/result.json", got["format_output-output"])
	assert.Equal(t, "/work/model/quora/2-onmt_model", got["train-save_model"])
	assert.Equal(t, "/work/model/quora/2-onmt_model_step_1000.pt", got["translate-model"])
	assert.Equal(t, 5, got["format_output-num_sent"])
	assert.NotContains(t, args, "train-data", "input args are not modified")

	assert.Equal(t, "/work/data/imt/quora/glove-annoy_index.ann", layout.IndexPath("glove"))
}

func TestCommandStep_PassesFilteredArgs(t *testing.T) {
	dir := t.TempDir()
	step := &CommandStep{
		StepName: "train",
		Command:  []string{"sh", "-c", `printf '%s\n' "$*" > out.txt`, "sh"},
		Dir:      dir,
	}
	err := step.Run(context.Background(), map[string]any{
		"train-data":      "onmt_data",
		"train-gpu_ranks": []any{0, 1},
		"translate-model": "x.pt",
	})
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-data onmt_data -gpu_ranks 0 1", strings.TrimSpace(string(out)))
}

func TestCommandStep_NonZeroExit(t *testing.T) {
	step := &CommandStep{StepName: "preprocess", Command: []string{"sh", "-c", "exit 3"}}
	err := step.Run(context.Background(), nil)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.ExitCode)
	assert.Equal(t, "preprocess", se.Step)
}

func TestCommandStep_Timeout(t *testing.T) {
	step := &CommandStep{StepName: "train", Command: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond}
	err := step.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandStep_NoCommand(t *testing.T) {
	err := (&CommandStep{StepName: "train"}).Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestDefaultSteps(t *testing.T) {
	steps := DefaultSteps(map[string][]string{"train": {"onmt_train"}}, StepOptions{})
	require.Len(t, steps, len(StepOrder))
	for i, s := range steps {
		assert.Equal(t, StepOrder[i], s.Name())
	}
	assert.IsType(t, FuncStep{}, steps[0])
	assert.IsType(t, &CommandStep{}, steps[2])
	assert.IsType(t, FuncStep{}, steps[4])

	err := steps[1].Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoCommand, "preprocess has no built-in implementation")
}

func TestNativeSteps(t *testing.T) {
	layout := Layout{Root: t.TempDir(), Experiment: "exp"}
	dir := layout.IterationDir(0)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	srcs := make([]string, 10)
	tgts := make([]string, 10)
	var predicted []string
	for i := range srcs {
		srcs[i] = fmt.Sprintf("how do i %d?", i)
		tgts[i] = fmt.Sprintf("what is %d?", i)
		predicted = append(predicted, fmt.Sprintf("p%d-a", i), fmt.Sprintf("p%d-b", i))
	}
	require.NoError(t, textfile.WriteLines(filepath.Join(dir, builder.SourceFile), srcs))
	require.NoError(t, textfile.WriteLines(filepath.Join(dir, builder.TargetFile), tgts))
	require.NoError(t, textfile.WriteLines(filepath.Join(dir, predictedFile), predicted))

	args := layout.IterationArgs(map[string]any{
		"train-train_steps":                1000,
		"translate-n_best":                 2,
		"prepare_dataset-validation_ratio": 0.2,
		"prepare_dataset-test_ratio":       0.2,
	}, 0)

	require.NoError(t, SplitStep().Run(context.Background(), args))
	train, err := textfile.ReadLines(filepath.Join(dir, "train_source.txt"))
	require.NoError(t, err)
	assert.Len(t, train, 6)

	require.NoError(t, FormatStep().Run(context.Background(), args))
	cands, err := textfile.ReadCandidates(filepath.Join(dir, builder.CandidateFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"p3-a", "p3-b"}, cands["how do i 3?"])
}

type stubBuilder struct {
	boots   []string
	refines [][2]string
	rates   []float64
	err     error
}

func (b *stubBuilder) BootstrapFiles(_ context.Context, src, out string, _ float64) (builder.BootstrapResult, error) {
	b.boots = append(b.boots, out)
	if b.err != nil {
		return builder.BootstrapResult{}, b.err
	}
	return builder.BootstrapResult{Pairs: []builder.Pair{{Source: "a", Target: "b"}}, Sources: 2}, nil
}

func (b *stubBuilder) RefineFiles(_ context.Context, prev, out string) (builder.RefineResult, error) {
	b.refines = append(b.refines, [2]string{prev, out})
	rate := b.rates[0]
	b.rates = b.rates[1:]
	return builder.RefineResult{Total: 10, Refined: int(rate * 10), UpdateRate: rate}, nil
}

type recordingStep struct {
	name string
	log  *[]string
	err  error
}

func (s recordingStep) Name() string { return s.name }

func (s recordingStep) Run(_ context.Context, args map[string]any) error {
	*s.log = append(*s.log, fmt.Sprintf("%s:%v", s.name, args["train-save_model"]))
	return s.err
}

func recordingSteps(log *[]string) []Step {
	steps := make([]Step, len(StepOrder))
	for i, name := range StepOrder {
		steps[i] = recordingStep{name: name, log: log}
	}
	return steps
}

type stubLedger struct {
	mu       sync.Mutex
	started  []string
	finished []store.IterationResult
	steps    []store.StepRun
}

func (l *stubLedger) StartIteration(_ context.Context, _ string, it int, phase string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, fmt.Sprintf("%d:%s", it, phase))
	return fmt.Sprintf("it-%d", it), nil
}

func (l *stubLedger) FinishIteration(_ context.Context, _ string, res store.IterationResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, res)
	return nil
}

func (l *stubLedger) RecordStep(_ context.Context, run store.StepRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, run)
	return nil
}

func testConfig(t *testing.T) *Config {
	return &Config{
		Name:          "exp",
		RootDir:       t.TempDir(),
		SrcCorpus:     "src.txt",
		MinUpdateRate: 0.05,
		Args:          map[string]any{"train-train_steps": 10, "translate-n_best": 3},
	}
}

func TestController_RunsUntilConverged(t *testing.T) {
	cfg := testConfig(t)
	layout := cfg.Layout()
	b := &stubBuilder{rates: []float64{0.3, 0.01}}
	var log []string
	ledger := &stubLedger{}
	c := &Controller{Config: cfg, Builder: b, Steps: recordingSteps(&log), Ledger: ledger, ExperimentID: "exp-id"}

	outcome, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConverged, outcome)
	assert.Equal(t, "converged", outcome.String())

	assert.Equal(t, []string{layout.IterationDir(0)}, b.boots)
	assert.Equal(t, [][2]string{
		{layout.IterationDir(0), layout.IterationDir(1)},
		{layout.IterationDir(1), layout.IterationDir(2)},
	}, b.refines)

	// Steps run in order for iterations 0 and 1, never after convergence.
	require.Len(t, log, 2*len(StepOrder))
	for i, name := range StepOrder {
		assert.Equal(t, fmt.Sprintf("%s:%s", name, filepath.Join(layout.ModelDir(), "0-onmt_model")), log[i])
		assert.Equal(t, fmt.Sprintf("%s:%s", name, filepath.Join(layout.ModelDir(), "1-onmt_model")), log[len(StepOrder)+i])
	}

	assert.DirExists(t, layout.IterationDir(2))
	assert.DirExists(t, layout.ModelDir())

	assert.Equal(t, []string{"0:bootstrap", "1:refine", "2:refine"}, ledger.started)
	require.Len(t, ledger.finished, 3)
	assert.Equal(t, store.OutcomeCompleted, ledger.finished[0].Outcome)
	assert.Equal(t, 1, ledger.finished[0].Pairs)
	assert.Equal(t, store.OutcomeConverged, ledger.finished[2].Outcome)
	assert.Len(t, ledger.steps, 2*len(StepOrder))
}

func TestController_StartsFromIteration(t *testing.T) {
	cfg := testConfig(t)
	b := &stubBuilder{rates: []float64{0.0}}
	var log []string
	c := &Controller{Config: cfg, Builder: b, Steps: recordingSteps(&log)}

	outcome, err := c.Run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConverged, outcome)
	assert.Empty(t, b.boots)
	assert.Equal(t, [][2]string{{cfg.Layout().IterationDir(2), cfg.Layout().IterationDir(3)}}, b.refines)
	assert.Empty(t, log)
}

func TestController_FailingStepAborts(t *testing.T) {
	cfg := testConfig(t)
	var log []string
	steps := recordingSteps(&log)
	boom := &StepError{Step: StepTrain, ExitCode: 2, Err: errors.New("exit status 2")}
	steps[2] = recordingStep{name: StepTrain, log: &log, err: boom}
	ledger := &stubLedger{}
	c := &Controller{Config: cfg, Builder: &stubBuilder{}, Steps: steps, Ledger: ledger, ExperimentID: "exp-id"}

	_, err := c.Run(context.Background(), 0)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Len(t, log, 3, "steps after the failing one do not run")

	require.Len(t, ledger.finished, 1)
	assert.Equal(t, store.OutcomeFailed, ledger.finished[0].Outcome)
	require.Len(t, ledger.steps, 3)
	assert.Equal(t, 2, ledger.steps[2].ExitCode)
}

func TestController_BootstrapError(t *testing.T) {
	cfg := testConfig(t)
	var log []string
	c := &Controller{Config: cfg, Builder: &stubBuilder{err: errors.New("index")}, Steps: recordingSteps(&log)}

	_, err := c.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Empty(t, log)
}

func TestController_MaxIterations(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxIterations = 2
	b := &stubBuilder{rates: []float64{0.5, 0.5, 0.5}}
	var log []string
	c := &Controller{Config: cfg, Builder: b, Steps: recordingSteps(&log)}

	outcome, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMaxIterations, outcome)
	assert.Len(t, b.boots, 1)
	assert.Len(t, b.refines, 1)
}
