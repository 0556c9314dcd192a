package pipeline

import (
	"fmt"
	"maps"
	"path/filepath"
	"strconv"

	"github.com/valpere/qgen/internal/builder"
)

const predictedFile = "predicted_target.txt"

// iterationFiles are the per-iteration file arguments of each tool, relative
// to the iteration directory.
var iterationFiles = map[string]string{
	"prepare_dataset-input_src": builder.SourceFile,
	"prepare_dataset-input_tgt": builder.TargetFile,
	"prepare_dataset-train_src": "train_source.txt",
	"prepare_dataset-train_tgt": "train_target.txt",
	"prepare_dataset-valid_src": "validation_source.txt",
	"prepare_dataset-valid_tgt": "validation_target.txt",
	"prepare_dataset-test_src":  "test_source.txt",
	"prepare_dataset-test_tgt":  "test_target.txt",

	"preprocess-train_src": "train_source.txt",
	"preprocess-train_tgt": "train_target.txt",
	"preprocess-valid_src": "validation_source.txt",
	"preprocess-valid_tgt": "validation_target.txt",
	"preprocess-save_data": "onmt_data",

	"train-data": "onmt_data",

	"translate-src":    builder.SourceFile,
	"translate-output": predictedFile,

	"format_output-src":    builder.SourceFile,
	"format_output-tgt":    predictedFile,
	"format_output-output": builder.CandidateFile,
}

// Layout is the on-disk arrangement of one experiment:
//
//	<root>/data/imt/<experiment>/<encoder>-annoy_index.ann
//	<root>/data/imt/<experiment>/<iteration>/...
//	<root>/model/<experiment>/<iteration>-onmt_model_step_<n>.pt
type Layout struct {
	Root       string
	Experiment string
}

func (l Layout) DataDir() string {
	return filepath.Join(l.Root, "data", "imt", l.Experiment)
}

func (l Layout) ModelDir() string {
	return filepath.Join(l.Root, "model", l.Experiment)
}

func (l Layout) IterationDir(iteration int) string {
	return filepath.Join(l.DataDir(), strconv.Itoa(iteration))
}

func (l Layout) IndexPath(encoder string) string {
	return filepath.Join(l.DataDir(), encoder+"-annoy_index.ann")
}

// IterationArgs returns a copy of args with the file and model arguments of
// the given iteration filled in.
func (l Layout) IterationArgs(args map[string]any, iteration int) map[string]any {
	out := maps.Clone(args)
	if out == nil {
		out = make(map[string]any)
	}
	dir := l.IterationDir(iteration)
	for key, name := range iterationFiles {
		out[key] = filepath.Join(dir, name)
	}

	model := filepath.Join(l.ModelDir(), fmt.Sprintf("%d-onmt_model", iteration))
	out["train-save_model"] = model
	out["translate-model"] = fmt.Sprintf("%s_step_%v.pt", model, args["train-train_steps"])
	out["format_output-num_sent"] = args["translate-n_best"]
	return out
}
