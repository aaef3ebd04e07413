package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-sim/internal/export"
	"github.com/sells-group/market-sim/internal/simulation"
)

var (
	simulateIterations int
	simulateSeed       int64
	simulateJSONOut    string
	simulateCSVOut     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a single simulation pass over the configured market",
	Long:  "Builds the market from the configured inputs, runs the configured number of customer searches through the offer, bid, and connection pipeline, and prints the resulting market metrics.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("simulate"); err != nil {
			return err
		}

		simCfg, err := cfg.Simulation.ToSimulation()
		if err != nil {
			return err
		}
		if simulateIterations > 0 {
			simCfg.SearchIterations = simulateIterations
		}
		if cmd.Flags().Changed("seed") {
			simCfg = simCfg.WithSeed(simulateSeed)
		}
		// One configuration; sweeps are the sweep command's job.
		simCfg.SupplyConfigurationIterations = 1
		if err := simCfg.Validate(); err != nil {
			return err
		}

		mkt, err := buildMarket()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.CreateRun(ctx, mkt.ID(), simCfg)
		if err != nil {
			return err
		}

		eng, err := simulation.NewEngine(simCfg)
		if err != nil {
			return err
		}
		runs, err := eng.Run(ctx, mkt)
		if err != nil {
			if failErr := st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
				zap.L().Warn("could not mark run failed", zap.Error(failErr))
			}
			return eris.Wrap(err, "simulate")
		}

		summary := simulation.AggregateSummaries(runs)
		if err := st.SaveResults(ctx, run.ID, runs); err != nil {
			return err
		}
		if err := st.FinishRun(ctx, run.ID, summary); err != nil {
			return err
		}

		if simulateJSONOut != "" {
			if err := export.WriteSummaryJSON(simulateJSONOut, mkt.ID(), simCfg, runs); err != nil {
				return err
			}
		}
		if simulateCSVOut != "" {
			if err := export.WriteResultsCSV(simulateCSVOut, runs); err != nil {
				return err
			}
		}

		fmt.Fprintf(os.Stdout, "Run %s complete (%d searches)\n", run.ID, simCfg.SearchIterations)
		formatSummary(os.Stdout, summary)
		return nil
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateIterations, "iterations", 0, "number of searches (default from config)")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "random seed for reproducible runs")
	simulateCmd.Flags().StringVar(&simulateJSONOut, "json", "", "write summary JSON to this path")
	simulateCmd.Flags().StringVar(&simulateCSVOut, "csv", "", "write per-search CSV to this path")
	rootCmd.AddCommand(simulateCmd)
}
