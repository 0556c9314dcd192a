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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valpere/qgen/internal/builder"
	"github.com/valpere/qgen/internal/dataset"
)

var (
	splitSource     string
	splitTarget     string
	splitOutDir     string
	splitValidRatio float64
	splitTestRatio  float64
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Tokenise a pair corpus and split it into train, validation and test sets",
	Long: `Tokenise both sides of a line-aligned pair corpus and split it without shuffling.

The first lines are held out for validation and test according to the
ratios; the rest becomes training data. Six files are written to --out:
train_source.txt, train_target.txt, validation_source.txt,
validation_target.txt, test_source.txt and test_target.txt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(splitOutDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		out := func(name string) string { return filepath.Join(splitOutDir, name) }

		counts, err := dataset.Split(dataset.SplitConfig{
			InputSrc:        splitSource,
			InputTgt:        splitTarget,
			TrainSrc:        out("train_source.txt"),
			TrainTgt:        out("train_target.txt"),
			ValidSrc:        out("validation_source.txt"),
			ValidTgt:        out("validation_target.txt"),
			TestSrc:         out("test_source.txt"),
			TestTgt:         out("test_target.txt"),
			ValidationRatio: splitValidRatio,
			TestRatio:       splitTestRatio,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Split into %d train, %d validation and %d test pairs\n", counts.Train, counts.Valid, counts.Test)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(splitCmd)

	splitCmd.Flags().StringVarP(&splitSource, "source", "s", builder.SourceFile, "Source side of the pair corpus")
	splitCmd.Flags().StringVarP(&splitTarget, "target", "t", builder.TargetFile, "Target side of the pair corpus")
	splitCmd.Flags().StringVarP(&splitOutDir, "out", "o", ".", "Output directory")
	splitCmd.Flags().Float64Var(&splitValidRatio, "valid-ratio", 0.1, "Share of pairs held out for validation")
	splitCmd.Flags().Float64Var(&splitTestRatio, "test-ratio", 0.1, "Share of pairs held out for testing")
}
