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
	sweepConfigurations int
	sweepParallel       bool
	sweepSeed           int64
	sweepJSONOut        string
	sweepCSVOut         string
	sweepXLSXOut        string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a supply configuration sweep",
	Long:  "Repeats the full search simulation across supply configuration iterations and aggregates metrics across them, optionally in parallel.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		simCfg, err := cfg.Simulation.ToSimulation()
		if err != nil {
			return err
		}
		if sweepConfigurations > 0 {
			simCfg.SupplyConfigurationIterations = sweepConfigurations
		}
		if cmd.Flags().Changed("parallel") {
			simCfg.ParallelExecution = sweepParallel
		}
		if cmd.Flags().Changed("seed") {
			simCfg = simCfg.WithSeed(sweepSeed)
		}
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
			return eris.Wrap(err, "sweep")
		}

		summary := simulation.AggregateSummaries(runs)
		if err := st.SaveResults(ctx, run.ID, runs); err != nil {
			return err
		}
		if err := st.FinishRun(ctx, run.ID, summary); err != nil {
			return err
		}

		if sweepJSONOut != "" {
			if err := export.WriteSummaryJSON(sweepJSONOut, mkt.ID(), simCfg, runs); err != nil {
				return err
			}
		}
		if sweepCSVOut != "" {
			if err := export.WriteResultsCSV(sweepCSVOut, runs); err != nil {
				return err
			}
		}
		if sweepXLSXOut != "" {
			if err := export.WriteWorkbook(sweepXLSXOut, mkt.ID(), runs); err != nil {
				return err
			}
		}

		fmt.Fprintf(os.Stdout, "Run %s complete (%d configurations x %d searches)\n",
			run.ID, simCfg.SupplyConfigurationIterations, simCfg.SearchIterations)
		formatSummary(os.Stdout, summary)
		return nil
	},
}

func init() {
	sweepCmd.Flags().IntVar(&sweepConfigurations, "configurations", 0, "number of supply configuration iterations (default from config)")
	sweepCmd.Flags().BoolVar(&sweepParallel, "parallel", false, "run configurations in parallel")
	sweepCmd.Flags().Int64Var(&sweepSeed, "seed", 0, "random seed for reproducible sweeps")
	sweepCmd.Flags().StringVar(&sweepJSONOut, "json", "", "write summary JSON to this path")
	sweepCmd.Flags().StringVar(&sweepCSVOut, "csv", "", "write per-search CSV to this path")
	sweepCmd.Flags().StringVar(&sweepXLSXOut, "xlsx", "", "write XLSX workbook to this path")
	rootCmd.AddCommand(sweepCmd)
}
