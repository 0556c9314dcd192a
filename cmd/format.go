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

	"github.com/valpere/qgen/internal/builder"
	"github.com/valpere/qgen/internal/dataset"
)

var (
	formatSource     string
	formatTranslated string
	formatOutput     string
	formatNBest      int
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Group N-best translations into a candidate file",
	Long: `Group every --n-best consecutive lines of --translated under the matching
line of --source and write the result as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		candidates, err := dataset.Format(formatSource, formatTranslated, formatOutput, formatNBest)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote candidates for %d sentences to %s\n", len(candidates), formatOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)

	formatCmd.Flags().StringVarP(&formatSource, "source", "s", builder.SourceFile, "Translated source sentences")
	formatCmd.Flags().StringVar(&formatTranslated, "translated", "predicted_target.txt", "N-best translations, n lines per source")
	formatCmd.Flags().StringVarP(&formatOutput, "output", "o", builder.CandidateFile, "Output JSON file")
	formatCmd.Flags().IntVarP(&formatNBest, "n-best", "n", 5, "Translations per source sentence")
}
