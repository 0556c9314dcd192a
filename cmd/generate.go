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
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/valpere/qgen/internal/detector"
	"github.com/valpere/qgen/internal/generator"
	"github.com/valpere/qgen/internal/orchestrator"
	"github.com/valpere/qgen/internal/textfile"
	"github.com/valpere/qgen/internal/validator"
)

// detectSampleLines is how many input lines are used to guess the language.
const detectSampleLines = 50

var (
	genInput     string
	genOutput    string
	genMethods   []string
	genBatchSize int
	genLang      string

	genThesaurus string
	genEDA       = generator.DefaultEDAOptions()

	genPivots      []string
	genCredentials string
	genValidate    bool

	genOllamaURL   string
	genOllamaModel string
	genNumRewrites int

	genTimeout       time.Duration
	genMaxAttempts   int
	genMinGenerators int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate question rewrites with one or more generators",
	Long: `Generate rewrites for every line of --input and write them as JSON.

Available methods:
  - eda            Easy data augmentation (requires --thesaurus)
  - backtranslate  Round trip through Google Translate pivot languages
  - ollama         Zero-shot rewriting with a local Ollama model

Several methods run concurrently on each batch: --method eda,ollama`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if genInput == genOutput {
			return fmt.Errorf("input file and output file cannot be the same")
		}
		lines, err := textfile.ReadUniqueLines(genInput)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if genLang == "auto" {
			det, err := detector.New()
			if err != nil {
				return err
			}
			lang, confidence, ok, err := detectLanguage(det, lines)
			if err != nil {
				return err
			}
			if ok {
				genLang = lang
				fmt.Fprintf(os.Stderr, "Detected source language: %s (confidence %.2f)\n", genLang, confidence)
			} else {
				genLang = "en"
			}
		}

		gens, release, err := buildGenerators(ctx, genMethods)
		if err != nil {
			return err
		}
		defer release()

		var g generator.Generator = gens[0]
		if len(gens) > 1 {
			g = orchestrator.New(gens, orchestrator.OrchestratorConfig{
				Timeout:       genTimeout,
				MaxAttempts:   genMaxAttempts,
				MinGenerators: genMinGenerators,
				Logger:        logger,
			})
		}

		began := time.Now()
		results, err := generator.RunBatches(ctx, g, lines, genBatchSize, logger)
		if err != nil {
			return err
		}
		if err := textfile.WriteCandidates(genOutput, results); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Generated %s rewrites for %s sentences with %s in %s\n",
			humanize.Comma(int64(generator.CountRewrites(results))),
			humanize.Comma(int64(len(results))),
			g.Name(), time.Since(began).Round(time.Millisecond))
		return nil
	},
}

// detectLanguage guesses the lower-case ISO 639-1 code of the first lines
// and how confident the detector is about it.
func detectLanguage(det *detector.Detector, lines []string) (string, float64, bool, error) {
	sample := strings.Join(lines[:min(len(lines), detectSampleLines)], "\n")
	detected, ok := det.DetectISO(sample)
	if !ok {
		return "", 0, false, nil
	}
	lang := strings.ToLower(detected)
	confidence, err := det.Confidence(sample, lang)
	if err != nil {
		return "", 0, false, err
	}
	return lang, confidence, true, nil
}

// buildGenerators constructs the generators named by methods. The returned
// func releases client connections.
func buildGenerators(ctx context.Context, methods []string) ([]generator.Generator, func(), error) {
	var (
		list    []generator.Generator
		closers []func() error
	)
	release := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("failed to close generator client", "error", err)
			}
		}
	}

	for _, name := range methods {
		switch strings.TrimSpace(name) {
		case "eda":
			if genThesaurus == "" {
				release()
				return nil, nil, fmt.Errorf("eda requires --thesaurus")
			}
			th, err := generator.LoadThesaurus(genThesaurus)
			if err != nil {
				release()
				return nil, nil, err
			}
			list = append(list, generator.NewEDA(th, genEDA))
		case "backtranslate":
			tr, err := generator.NewGoogleTranslator(ctx, genCredentials)
			if err != nil {
				release()
				return nil, nil, err
			}
			closers = append(closers, tr.Close)

			var v *validator.Validator
			if genValidate {
				v, err = validator.New(append([]string{genLang}, genPivots...)...)
				if err != nil {
					release()
					return nil, nil, err
				}
			}
			bt, err := generator.NewBackTranslator(tr, genLang, genPivots, v)
			if err != nil {
				release()
				return nil, nil, err
			}
			list = append(list, bt)
		case "ollama":
			list = append(list, generator.NewOllamaRewriter(genOllamaModel, genOllamaURL, genNumRewrites))
		default:
			fmt.Fprintf(os.Stderr, "Unknown method: %s, skipping\n", name)
		}
	}

	if len(list) == 0 {
		release()
		return nil, nil, fmt.Errorf("%w: no valid methods configured", generator.ErrUnknownGenerator)
	}
	return list, release, nil
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&genInput, "input", "i", "", "Input file, one sentence per line")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "Output JSON file")
	generateCmd.Flags().StringSliceVarP(&genMethods, "method", "m", []string{"eda"}, "Generators to run (eda, backtranslate, ollama)")
	generateCmd.Flags().IntVar(&genBatchSize, "batch-size", generator.DefaultBatchSize, "Sentences per batch")
	generateCmd.Flags().StringVarP(&genLang, "lang", "l", "auto", "Source language (ISO 639-1, or auto)")

	generateCmd.Flags().StringVar(&genThesaurus, "thesaurus", "", "Tab-separated synonym file for eda")
	generateCmd.Flags().Float64Var(&genEDA.AlphaSR, "alpha-sr", genEDA.AlphaSR, "Share of words replaced by synonyms")
	generateCmd.Flags().Float64Var(&genEDA.AlphaRI, "alpha-ri", genEDA.AlphaRI, "Share of words inserted")
	generateCmd.Flags().Float64Var(&genEDA.AlphaRS, "alpha-rs", genEDA.AlphaRS, "Share of words swapped")
	generateCmd.Flags().Float64Var(&genEDA.PRD, "p-rd", genEDA.PRD, "Probability of deleting each word")
	generateCmd.Flags().Float64Var(&genEDA.NumAug, "num-aug", genEDA.NumAug, "Augmentations per sentence")
	generateCmd.Flags().Uint64Var(&genEDA.Seed, "seed", genEDA.Seed, "Random seed for eda")

	generateCmd.Flags().StringSliceVar(&genPivots, "pivots", generator.DefaultPivots, "Pivot languages for backtranslate")
	generateCmd.Flags().StringVarP(&genCredentials, "credentials", "c", "", "Google Cloud credentials file (default: application default credentials)")
	generateCmd.Flags().BoolVar(&genValidate, "validate", true, "Drop back-translations not in the source language")

	generateCmd.Flags().StringVar(&genOllamaURL, "ollama-url", generator.DefaultOllamaURL, "Ollama base URL")
	generateCmd.Flags().StringVar(&genOllamaModel, "ollama-model", generator.DefaultOllamaModel, "Ollama model")
	generateCmd.Flags().IntVar(&genNumRewrites, "num-rewrites", 5, "Rewrites requested per sentence from ollama")

	generateCmd.Flags().DurationVar(&genTimeout, "timeout", 0, "Per-generator timeout for one batch (0 = none)")
	generateCmd.Flags().IntVar(&genMaxAttempts, "max-attempts", 3, "Attempts per generator and batch")
	generateCmd.Flags().IntVar(&genMinGenerators, "min-generators", 1, "Generators that must succeed per batch")

	generateCmd.MarkFlagRequired("input")
	generateCmd.MarkFlagRequired("output")
}
