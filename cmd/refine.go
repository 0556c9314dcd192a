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
	refineFlags   corpusFlags
	refinePrevDir string
	refineOutDir  string
)

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Refine a pseudo-parallel corpus once",
	Long: `Run one refine pass over the pairs and candidates in --prev.

--prev must hold parallel_source.txt, parallel_tgt.txt and result.json. The
refined pairs are written to --out together with the update rate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if refinePrevDir == refineOutDir {
			return fmt.Errorf("previous and output directory cannot be the same")
		}
		ctx := cmd.Context()
		pre, err := refineFlags.loadPretrained()
		if err != nil {
			return err
		}
		corp, closeCorpus, err := openCorpus(ctx, refineFlags.target, refineFlags.indexPath(),
			refineFlags.encoder, pre, refineFlags.cacheSize, annoy.Options{Trees: refineFlags.trees})
		if err != nil {
			return err
		}
		defer closeCorpus()

		wmd, err := newWMD(pre)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(refineOutDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		b := builder.New(corp, wmd, builder.Config{
			Workers:  refineFlags.workers,
			Progress: refineFlags.progress(),
			Logger:   logger,
		})
		res, err := b.RefineFiles(ctx, refinePrevDir, refineOutDir)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Refined %d of %d pairs (update rate %.4f, %d without candidates)\n",
			res.Refined, res.Total, res.UpdateRate, res.Missing)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refineCmd)

	refineFlags.register(refineCmd)
	refineCmd.Flags().StringVarP(&refinePrevDir, "prev", "p", "", "Directory of the previous iteration")
	refineCmd.Flags().StringVarP(&refineOutDir, "out", "o", "", "Output directory")
	refineCmd.MarkFlagRequired("prev")
	refineCmd.MarkFlagRequired("out")
}
