/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/qgen/internal/builder"
	"github.com/valpere/qgen/internal/encoder"
	"github.com/valpere/qgen/internal/pipeline"
	"github.com/valpere/qgen/internal/textfile"
)

var (
	trainCacheSize  int
	trainNoProgress bool
)

var trainCmd = &cobra.Command{
	Use:   "train <config.yml> [iteration]",
	Short: "Run the bootstrap and refine loop",
	Long: `Run the iterative corpus loop of one experiment.

Iteration 0 bootstraps a pseudo-parallel corpus from the source corpus by
nearest-neighbour search over the target corpus. Every later iteration
refines the previous corpus with the N-best translations of the model
trained on it. Each iteration runs the steps prepare_dataset, preprocess,
train, translate and format_output in that order.

The loop stops when a refine pass changes fewer pairs than min_update_rate.
The process then exits with status 2. Errors exit with status 1.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := 0
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid iteration %q", args[1])
			}
			start = n
		}

		cfg, err := pipeline.LoadConfig(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		layout := cfg.Layout()
		if start > 0 {
			prev := filepath.Join(layout.IterationDir(start-1), builder.CandidateFile)
			if !textfile.Exists(prev) {
				return fmt.Errorf("cannot resume at iteration %d: %s not found", start, prev)
			}
		}

		pre, err := encoder.LoadPretrained(cfg.PretrainedConfig, cfg.RootDir)
		if err != nil {
			return err
		}
		corp, closeCorpus, err := openCorpus(ctx, cfg.TgtCorpus, layout.IndexPath(cfg.Encoder), cfg.Encoder, pre, trainCacheSize, cfg.Index)
		if err != nil {
			return err
		}
		defer closeCorpus()

		wmd, err := newWMD(pre)
		if err != nil {
			return err
		}

		var progress io.Writer
		if !trainNoProgress {
			progress = os.Stderr
		}
		b := builder.New(corp, wmd, builder.Config{
			Workers:  cfg.Workers,
			Progress: progress,
			Logger:   logger,
		})

		ctrl := &pipeline.Controller{
			Config:  cfg,
			Builder: b,
			Steps: pipeline.DefaultSteps(cfg.Commands, pipeline.StepOptions{
				Dir:     cfg.RootDir,
				Stdout:  os.Stdout,
				Stderr:  os.Stderr,
				Timeout: cfg.StepTimeout,
				Logger:  logger,
			}),
			Logger: logger,
		}

		db, err := openLedger()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
			id, err := db.EnsureExperiment(ctx, cfg.Name, cfg.Path, cfg.Encoder)
			if err != nil {
				return fmt.Errorf("failed to register experiment: %w", err)
			}
			ctrl.Ledger = db
			ctrl.ExperimentID = id
		}

		began := time.Now()
		logger.Info("training started", "experiment", cfg.Name, "iteration", start, "encoder", cfg.Encoder)
		outcome, err := ctrl.Run(ctx, start)
		if err != nil {
			return err
		}

		logger.Info("training finished", "experiment", cfg.Name, "outcome", outcome.String(), "elapsed", time.Since(began).Round(time.Second))
		trainOutcome = outcome
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().IntVar(&trainCacheSize, "cache-size", encoder.DefaultCacheSize, "Sentence embedding cache entries")
	trainCmd.Flags().BoolVar(&trainNoProgress, "no-progress", false, "Disable progress bars")
}
