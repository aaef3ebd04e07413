// Package simulation drives probabilistic search trials against a market
// and aggregates their outcomes into summary metrics.
package simulation

import (
	"github.com/rotisserie/eris"
)

// Config holds the validated simulation parameters. Immutable once built;
// invalid values fail at validation rather than surfacing mid-run.
type Config struct {
	// Core parameters.
	SearchIterations              int    `json:"search_iterations" yaml:"search_iterations"`
	SupplyConfigurationIterations int    `json:"supply_configuration_iterations" yaml:"supply_configuration_iterations"`
	RandomSeed                    *int64 `json:"random_seed,omitempty" yaml:"random_seed,omitempty"`
	SearchRadiusKM                float64 `json:"search_radius_km" yaml:"search_radius_km"`

	// Probability parameters.
	CleanerBaseBidProbability float64 `json:"cleaner_base_bid_probability" yaml:"cleaner_base_bid_probability"`
	ConnectionBaseProbability float64 `json:"connection_base_probability" yaml:"connection_base_probability"`
	DistanceDecayFactor       float64 `json:"distance_decay_factor" yaml:"distance_decay_factor"`

	// Capacity parameters.
	MaxConnectionsPerMember int     `json:"max_connections_per_member" yaml:"max_connections_per_member"`
	MinCapacityFactor       float64 `json:"min_capacity_factor" yaml:"min_capacity_factor"`

	// Execution parameters.
	ParallelExecution bool `json:"parallel_execution" yaml:"parallel_execution"`
	MaxWorkers        int  `json:"max_workers" yaml:"max_workers"`
}

// DefaultConfig returns the baseline parameters calibrated from historical
// marketplace data.
func DefaultConfig() Config {
	return Config{
		SearchIterations:              10,
		SupplyConfigurationIterations: 10,
		SearchRadiusKM:                10,
		CleanerBaseBidProbability:     0.14,
		ConnectionBaseProbability:     0.4,
		DistanceDecayFactor:           0.2,
		MaxConnectionsPerMember:       10,
		MinCapacityFactor:             0.1,
		MaxWorkers:                    4,
	}
}

// Validate checks every parameter range.
func (c Config) Validate() error {
	if c.SearchIterations <= 0 {
		return eris.New("simulation: search_iterations must be positive")
	}
	if c.SupplyConfigurationIterations <= 0 {
		return eris.New("simulation: supply_configuration_iterations must be positive")
	}
	if c.SearchRadiusKM <= 0 {
		return eris.New("simulation: search_radius_km must be positive")
	}
	if c.CleanerBaseBidProbability < 0 || c.CleanerBaseBidProbability > 1 {
		return eris.New("simulation: cleaner_base_bid_probability must be between 0 and 1")
	}
	if c.ConnectionBaseProbability < 0 || c.ConnectionBaseProbability > 1 {
		return eris.New("simulation: connection_base_probability must be between 0 and 1")
	}
	if c.DistanceDecayFactor < 0 {
		return eris.New("simulation: distance_decay_factor must be non-negative")
	}
	if c.MaxConnectionsPerMember <= 0 {
		return eris.New("simulation: max_connections_per_member must be positive")
	}
	if c.MinCapacityFactor <= 0 || c.MinCapacityFactor > 1 {
		return eris.New("simulation: min_capacity_factor must be between 0 and 1")
	}
	if c.MaxWorkers <= 0 {
		return eris.New("simulation: max_workers must be positive")
	}
	return nil
}

// TotalIterations is the number of search trials a full supply sweep runs.
func (c Config) TotalIterations() int {
	return c.SearchIterations * c.SupplyConfigurationIterations
}

// WithSeed returns a copy of the config with the given seed set.
func (c Config) WithSeed(seed int64) Config {
	c.RandomSeed = &seed
	return c
}
