package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/market-sim/internal/config"
	"github.com/sells-group/market-sim/internal/simulation"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml to the current directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		const path = "config.yaml"
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return eris.Errorf("%s already exists (use --force to overwrite)", path)
		}

		defaults := simulation.DefaultConfig()
		doc := config.Config{
			Store: config.StoreConfig{
				Driver:      "sqlite",
				DatabaseURL: "market-sim.db",
			},
			Market: config.MarketConfig{
				ID:             "my-market",
				PostalCodesCSV: "postal_codes.csv",
				CleanersCSV:    "cleaners.csv",
				ShapefileField: "ZCTA5CE20",
			},
			Simulation: config.SimulationConfig{
				SearchIterations:              defaults.SearchIterations,
				SupplyConfigurationIterations: defaults.SupplyConfigurationIterations,
				SearchRadiusKM:                defaults.SearchRadiusKM,
				CleanerBaseBidProbability:     defaults.CleanerBaseBidProbability,
				ConnectionBaseProbability:     defaults.ConnectionBaseProbability,
				DistanceDecayFactor:           defaults.DistanceDecayFactor,
				MaxConnectionsPerMember:       defaults.MaxConnectionsPerMember,
				MinCapacityFactor:             defaults.MinCapacityFactor,
				MaxWorkers:                    defaults.MaxWorkers,
			},
			Server: config.ServerConfig{Port: 8080, RequestsPerSec: 10},
			Log:    config.LogConfig{Level: "info", Format: "json"},
		}

		data, err := yaml.Marshal(doc)
		if err != nil {
			return eris.Wrap(err, "config init: marshal")
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrap(err, "config init: write")
		}

		fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config.yaml")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
