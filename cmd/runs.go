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
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/valpere/qgen/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run ledger",
	Long:  `List, summarise and delete the experiments recorded in the SQLite run ledger.`,
}

func mustLedger() (*store.Store, error) {
	db, err := openLedger()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("run ledger is disabled (--ledger is empty)")
	}
	return db, nil
}

var runsListCmd = &cobra.Command{
	Use:   "list [experiment]",
	Short: "List experiments, or the iterations of one experiment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := mustLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if len(args) == 0 {
			experiments, err := db.ListExperiments(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list experiments: %w", err)
			}
			if len(experiments) == 0 {
				fmt.Println("No experiments in the ledger.")
				return nil
			}
			fmt.Fprintln(w, "NAME\tENCODER\tCREATED\tUPDATED\tCONFIG")
			for _, e := range experiments {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Name, e.Encoder, e.CreatedAt.Format("2006-01-02 15:04"), humanize.Time(e.UpdatedAt), e.ConfigPath)
			}
			return w.Flush()
		}

		iterations, err := db.ListIterations(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list iterations: %w", err)
		}
		if len(iterations) == 0 {
			fmt.Printf("No iterations recorded for %s.\n", args[0])
			return nil
		}
		fmt.Fprintln(w, "ITER\tPHASE\tPAIRS\tREFINED\tUPDATE RATE\tOUTCOME\tSTARTED\tTOOK\tERROR")
		for _, it := range iterations {
			took := "-"
			if it.FinishedAt != nil {
				took = it.FinishedAt.Sub(it.StartedAt).Round(time.Second).String()
			}
			snippet := it.Err
			if len(snippet) > 40 {
				snippet = snippet[:37] + "..."
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.4f\t%s\t%s\t%s\t%s\n",
				it.Iteration, it.Phase, humanize.Comma(int64(it.Pairs)), humanize.Comma(int64(it.Refined)),
				it.UpdateRate, it.Outcome, it.StartedAt.Format("2006-01-02 15:04"), took, snippet)
		}
		return w.Flush()
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run ledger statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := mustLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Experiments:     %s\n", humanize.Comma(int64(stats.Experiments)))
		fmt.Printf("Iterations:      %s\n", humanize.Comma(int64(stats.Iterations)))
		fmt.Printf("Converged:       %s\n", humanize.Comma(int64(stats.Converged)))
		fmt.Printf("Failed:          %s\n", humanize.Comma(int64(stats.Failed)))
		fmt.Printf("Step runs:       %s\n", humanize.Comma(int64(stats.StepRuns)))
		fmt.Printf("Time in steps:   %s\n", stats.StepTime.Round(time.Second))
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <experiment>",
	Short: "Delete an experiment and its iterations from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := mustLedger()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.DeleteExperiment(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete experiment: %w", err)
		}
		fmt.Printf("Deleted experiment %s with %s iterations\n", args[0], humanize.Comma(n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
