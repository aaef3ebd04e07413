package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var neighborsThresholdKM float64

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <postal-code>",
	Short: "List postal codes near a given code",
	Long:  "Builds the configured market and lists postal codes whose centroids fall within the distance threshold of the given code.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("simulate"); err != nil {
			return err
		}

		mkt, err := buildMarket()
		if err != nil {
			return err
		}

		neighbors, err := mkt.PostalNeighbors(args[0], neighborsThresholdKM)
		if err != nil {
			return eris.Wrap(err, "neighbors")
		}

		if len(neighbors) == 0 {
			fmt.Fprintf(os.Stderr, "No postal codes within %.1f km of %s.\n", neighborsThresholdKM, args[0])
			return nil
		}

		origin, _ := mkt.PostalCode(args[0])
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CODE\tDISTANCE_KM\tSTR_TAM")
		for _, pc := range neighbors {
			_, _ = fmt.Fprintf(w, "%s\t%.2f\t%d\n", pc.Code, origin.DistanceKM(pc), pc.STRTAM)
		}
		return w.Flush()
	},
}

func init() {
	neighborsCmd.Flags().Float64Var(&neighborsThresholdKM, "threshold", 5, "distance threshold in km")
	rootCmd.AddCommand(neighborsCmd)
}
