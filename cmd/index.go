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
)

var (
	indexFlags   corpusFlags
	indexQueries []string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or verify the similarity index of a target corpus",
	Long: `Build the similarity index for --target, or load and verify an existing one.

An existing index built for another corpus size, dimension or encoder is
rejected. Use --query to print the closest target sentence for a question.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pre, err := indexFlags.loadPretrained()
		if err != nil {
			return err
		}
		corp, closeCorpus, err := openCorpus(ctx, indexFlags.target, indexFlags.indexPath(),
			indexFlags.encoder, pre, indexFlags.cacheSize, annoy.Options{Trees: indexFlags.trees})
		if err != nil {
			return err
		}
		defer closeCorpus()

		fmt.Fprintf(os.Stderr, "Index %s ready for %d sentences\n", indexFlags.indexPath(), corp.Len())

		for _, q := range indexQueries {
			m, ok, err := corp.Nearest(ctx, q, false)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("%s\t-\t-\n", q)
				continue
			}
			fmt.Printf("%s\t%.4f\t%s\n", q, m.Similarity, m.Sentence)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexFlags.register(indexCmd)
	indexCmd.Flags().StringArrayVarP(&indexQueries, "query", "q", nil, "Print the nearest target sentence (repeatable)")
}
