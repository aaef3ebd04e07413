package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/market-sim/internal/export"
)

var reportXLSXOut string

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print a metrics report for a persisted run",
	Long:  "Loads a completed run from the store, prints its aggregate and per-configuration metrics, and optionally exports an XLSX workbook.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "report")
		}

		fmt.Fprintf(os.Stdout, "Run %s (%s, %s)\n", run.ID, run.MarketID, run.Status)
		if run.Error != "" {
			fmt.Fprintf(os.Stdout, "Error: %s\n", run.Error)
		}
		fmt.Fprintf(os.Stdout, "Searches: %d x %d configurations\n\n",
			run.Config.SearchIterations, run.Config.SupplyConfigurationIterations)
		formatSummary(os.Stdout, run.Summary)

		if reportXLSXOut != "" {
			results, err := st.ListResults(ctx, run.ID)
			if err != nil {
				return eris.Wrap(err, "report results")
			}
			if err := export.WriteWorkbook(reportXLSXOut, run.MarketID, results); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "\nWorkbook written to %s\n", reportXLSXOut)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportXLSXOut, "xlsx", "", "write XLSX workbook to this path")
	rootCmd.AddCommand(reportCmd)
}

// formatSummary writes metrics as an aligned metric/value table, with
// locale-aware number formatting for large counts.
func formatSummary(out io.Writer, summary map[string]float64) {
	if len(summary) == 0 {
		_, _ = fmt.Fprintln(out, "No metrics recorded.")
		return
	}

	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		_, _ = p.Fprintf(w, "%s:\t%.4f\n", k, summary[k])
	}
	_ = w.Flush()
}
