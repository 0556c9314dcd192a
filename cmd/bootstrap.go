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

	"github.com/spf13/cobra"

	"github.com/valpere/qgen/internal/annoy"
	"github.com/valpere/qgen/internal/builder"
)

var (
	bootstrapFlags     corpusFlags
	bootstrapSource    string
	bootstrapOutDir    string
	bootstrapThreshold float64
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Build a pseudo-parallel corpus once",
	Long: `Pair every source sentence with its most similar target corpus sentence.

Sources whose best match scores below --threshold are dropped. The pairs are
written to parallel_source.txt and parallel_tgt.txt in --out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pre, err := bootstrapFlags.loadPretrained()
		if err != nil {
			return err
		}
		corp, closeCorpus, err := openCorpus(ctx, bootstrapFlags.target, bootstrapFlags.indexPath(),
			bootstrapFlags.encoder, pre, bootstrapFlags.cacheSize, annoy.Options{Trees: bootstrapFlags.trees})
		if err != nil {
			return err
		}
		defer closeCorpus()

		if err := os.MkdirAll(bootstrapOutDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		b := builder.New(corp, nil, builder.Config{
			Workers:  bootstrapFlags.workers,
			Progress: bootstrapFlags.progress(),
			Logger:   logger,
		})
		res, err := b.BootstrapFiles(ctx, bootstrapSource, bootstrapOutDir, bootstrapThreshold)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Matched %d of %d source sentences\n", res.Matched(), res.Sources)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)

	bootstrapFlags.register(bootstrapCmd)
	bootstrapCmd.Flags().StringVarP(&bootstrapSource, "source", "s", "", "Source corpus, one sentence per line")
	bootstrapCmd.Flags().StringVarP(&bootstrapOutDir, "out", "o", ".", "Output directory")
	bootstrapCmd.Flags().Float64Var(&bootstrapThreshold, "threshold", 0.8, "Minimum cosine similarity of a pair")
	bootstrapCmd.MarkFlagRequired("source")
}
