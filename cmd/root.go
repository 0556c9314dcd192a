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
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/qgen/internal/pipeline"
)

var version = "0.1.0"

// exitConverged is the process status of a training loop that stopped
// because the corpus converged.
const exitConverged = 2

var (
	logLevel   string
	logFormat  string
	ledgerPath string

	logger = slog.Default()
	// trainOutcome is set by a training loop that ended without error.
	trainOutcome pipeline.Outcome
)

var rootCmd = &cobra.Command{
	Use:   "qgen",
	Short: "Pseudo-parallel corpus builder for question rewriting",
	Long: `A CLI application that builds pseudo-parallel question corpora by
nearest-neighbour search over sentence embeddings and refines them
iteratively with an external NMT toolkit until the corpus converges.

Use "qgen train --help" for the training loop.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}

// exitStatus maps how a command ended to the process status: 1 for any
// error, 2 for a converged training loop and 0 otherwise.
func exitStatus(outcome pipeline.Outcome, err error) int {
	switch {
	case err != nil:
		return 1
	case outcome == pipeline.OutcomeConverged:
		return exitConverged
	}
	return 0
}

// Execute runs the root command and exits with exitStatus.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if code := exitStatus(trainOutcome, err); code != 0 {
		os.Exit(code)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "./data/qgen.db", "Run ledger database path (empty disables)")
}
