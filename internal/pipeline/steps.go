package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/valpere/qgen/internal/dataset"
)

// Step names, in execution order. They double as argument prefixes.
const (
	StepPrepareDataset = "prepare_dataset"
	StepPreprocess     = "preprocess"
	StepTrain          = "train"
	StepTranslate      = "translate"
	StepFormatOutput   = "format_output"
)

var StepOrder = []string{StepPrepareDataset, StepPreprocess, StepTrain, StepTranslate, StepFormatOutput}

// ExternalSteps have no in-process implementation and always need a
// configured command.
var ExternalSteps = []string{StepPreprocess, StepTrain, StepTranslate}

var ErrNoCommand = errors.New("pipeline: no command configured for step")

// Step is one external stage of an iteration. args holds every flat
// argument of the iteration; a step picks its own by prefix.
type Step interface {
	Name() string
	Run(ctx context.Context, args map[string]any) error
}

// StepError reports a failed external command.
type StepError struct {
	Step     string
	Argv     []string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (exit %d): %v", e.Step, e.ExitCode, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CommandStep runs Command followed by the step's flattened arguments and
// waits for it to exit. A non-zero status is an error.
type CommandStep struct {
	StepName string
	Command  []string
	Dir      string
	Stdout   io.Writer
	Stderr   io.Writer
	// Timeout bounds one run. Zero waits indefinitely.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (s *CommandStep) Name() string { return s.StepName }

// Argv returns the full command line for args.
func (s *CommandStep) Argv(args map[string]any) []string {
	argv := append([]string(nil), s.Command...)
	return append(argv, FilterArgs(args, s.StepName)...)
}

func (s *CommandStep) Run(ctx context.Context, args map[string]any) error {
	if len(s.Command) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCommand, s.StepName)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	argv := s.Argv(args)
	if s.Logger != nil {
		s.Logger.Debug("running step", "step", s.StepName, "argv", argv)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.Dir
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		return &StepError{Step: s.StepName, Argv: argv, ExitCode: code, Err: err}
	}
	return nil
}

// FuncStep adapts an in-process function to Step.
type FuncStep struct {
	StepName string
	Fn       func(ctx context.Context, args map[string]any) error
}

func (s FuncStep) Name() string { return s.StepName }

func (s FuncStep) Run(ctx context.Context, args map[string]any) error {
	return s.Fn(ctx, args)
}

// SplitStep prepares train/validation/test files in process.
func SplitStep() Step {
	return FuncStep{StepName: StepPrepareDataset, Fn: func(_ context.Context, args map[string]any) error {
		get := func(name string) string { return stringArg(args, StepPrepareDataset+"-"+name) }
		valid, err := floatArg(args, StepPrepareDataset+"-validation_ratio", 0.1)
		if err != nil {
			return err
		}
		test, err := floatArg(args, StepPrepareDataset+"-test_ratio", 0.1)
		if err != nil {
			return err
		}
		_, err = dataset.Split(dataset.SplitConfig{
			InputSrc: get("input_src"), InputTgt: get("input_tgt"),
			TrainSrc: get("train_src"), TrainTgt: get("train_tgt"),
			ValidSrc: get("valid_src"), ValidTgt: get("valid_tgt"),
			TestSrc: get("test_src"), TestTgt: get("test_tgt"),
			ValidationRatio: valid,
			TestRatio:       test,
		})
		return err
	}}
}

// FormatStep turns flat N-best translations into the candidate map in
// process.
func FormatStep() Step {
	return FuncStep{StepName: StepFormatOutput, Fn: func(_ context.Context, args map[string]any) error {
		n, err := intArg(args, StepFormatOutput+"-num_sent")
		if err != nil {
			return err
		}
		_, err = dataset.Format(
			stringArg(args, StepFormatOutput+"-src"),
			stringArg(args, StepFormatOutput+"-tgt"),
			stringArg(args, StepFormatOutput+"-output"),
			n,
		)
		return err
	}}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func floatArg(args map[string]any, key string, def float64) (float64, error) {
	s := stringArg(args, key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return f, nil
}

func intArg(args map[string]any, key string) (int, error) {
	s := stringArg(args, key)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return n, nil
}

// StepOptions configure DefaultSteps.
type StepOptions struct {
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultSteps returns the five iteration steps. Dataset preparation and
// output formatting run in process unless commands override them; the NMT
// steps always need a configured command.
func DefaultSteps(commands map[string][]string, opts StepOptions) []Step {
	steps := make([]Step, 0, len(StepOrder))
	for _, name := range StepOrder {
		if argv, ok := commands[name]; ok && len(argv) > 0 {
			steps = append(steps, &CommandStep{
				StepName: name,
				Command:  argv,
				Dir:      opts.Dir,
				Stdout:   opts.Stdout,
				Stderr:   opts.Stderr,
				Timeout:  opts.Timeout,
				Logger:   opts.Logger,
			})
			continue
		}
		switch name {
		case StepPrepareDataset:
			steps = append(steps, SplitStep())
		case StepFormatOutput:
			steps = append(steps, FormatStep())
		default:
			steps = append(steps, &CommandStep{StepName: name, Logger: opts.Logger})
		}
	}
	return steps
}
