// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/market-sim/internal/simulation"
	"github.com/sells-group/market-sim/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Market     MarketConfig     `yaml:"market" mapstructure:"market"`
	Simulation SimulationConfig `yaml:"simulation" mapstructure:"simulation"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// MarketConfig points at the market input files.
type MarketConfig struct {
	ID             string  `yaml:"id" mapstructure:"id"`
	PostalCodesCSV string  `yaml:"postal_codes_csv" mapstructure:"postal_codes_csv"`
	CleanersCSV    string  `yaml:"cleaners_csv" mapstructure:"cleaners_csv"`
	Shapefile      string  `yaml:"shapefile" mapstructure:"shapefile"`
	ShapefileField string  `yaml:"shapefile_field" mapstructure:"shapefile_field"`
	CenterLat      float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon      float64 `yaml:"center_lon" mapstructure:"center_lon"`
	RadiusKM       float64 `yaml:"radius_km" mapstructure:"radius_km"`
}

// SimulationConfig mirrors simulation.Config for file and env loading.
type SimulationConfig struct {
	SearchIterations              int     `yaml:"search_iterations" mapstructure:"search_iterations"`
	SupplyConfigurationIterations int     `yaml:"supply_configuration_iterations" mapstructure:"supply_configuration_iterations"`
	RandomSeed                    *int64  `yaml:"random_seed" mapstructure:"random_seed"`
	SearchRadiusKM                float64 `yaml:"search_radius_km" mapstructure:"search_radius_km"`
	CleanerBaseBidProbability     float64 `yaml:"cleaner_base_bid_probability" mapstructure:"cleaner_base_bid_probability"`
	ConnectionBaseProbability     float64 `yaml:"connection_base_probability" mapstructure:"connection_base_probability"`
	DistanceDecayFactor           float64 `yaml:"distance_decay_factor" mapstructure:"distance_decay_factor"`
	MaxConnectionsPerMember       int     `yaml:"max_connections_per_member" mapstructure:"max_connections_per_member"`
	MinCapacityFactor             float64 `yaml:"min_capacity_factor" mapstructure:"min_capacity_factor"`
	ParallelExecution             bool    `yaml:"parallel_execution" mapstructure:"parallel_execution"`
	MaxWorkers                    int     `yaml:"max_workers" mapstructure:"max_workers"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int     `yaml:"port" mapstructure:"port"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKETSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "market-sim.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_sec", 10)
	v.SetDefault("market.shapefile_field", "ZCTA5CE20")

	defaults := simulation.DefaultConfig()
	v.SetDefault("simulation.search_iterations", defaults.SearchIterations)
	v.SetDefault("simulation.supply_configuration_iterations", defaults.SupplyConfigurationIterations)
	v.SetDefault("simulation.search_radius_km", defaults.SearchRadiusKM)
	v.SetDefault("simulation.cleaner_base_bid_probability", defaults.CleanerBaseBidProbability)
	v.SetDefault("simulation.connection_base_probability", defaults.ConnectionBaseProbability)
	v.SetDefault("simulation.distance_decay_factor", defaults.DistanceDecayFactor)
	v.SetDefault("simulation.max_connections_per_member", defaults.MaxConnectionsPerMember)
	v.SetDefault("simulation.min_capacity_factor", defaults.MinCapacityFactor)
	v.SetDefault("simulation.parallel_execution", defaults.ParallelExecution)
	v.SetDefault("simulation.max_workers", defaults.MaxWorkers)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ToSimulation converts the loaded simulation section into a validated
// simulation.Config.
func (c SimulationConfig) ToSimulation() (simulation.Config, error) {
	cfg := simulation.Config{
		SearchIterations:              c.SearchIterations,
		SupplyConfigurationIterations: c.SupplyConfigurationIterations,
		RandomSeed:                    c.RandomSeed,
		SearchRadiusKM:                c.SearchRadiusKM,
		CleanerBaseBidProbability:     c.CleanerBaseBidProbability,
		ConnectionBaseProbability:     c.ConnectionBaseProbability,
		DistanceDecayFactor:           c.DistanceDecayFactor,
		MaxConnectionsPerMember:       c.MaxConnectionsPerMember,
		MinCapacityFactor:             c.MinCapacityFactor,
		ParallelExecution:             c.ParallelExecution,
		MaxWorkers:                    c.MaxWorkers,
	}
	if err := cfg.Validate(); err != nil {
		return simulation.Config{}, eris.Wrap(err, "config: simulation")
	}
	return cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the configuration for the requested mode. Simulation
// parameter ranges are validated separately by ToSimulation.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		missing = append(missing, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url is required")
	}

	switch mode {
	case "simulate", "sweep":
		if c.Market.ID == "" {
			missing = append(missing, "market.id is required")
		}
		hasPostal := c.Market.PostalCodesCSV != ""
		hasRadius := c.Market.RadiusKM > 0
		if !hasPostal && !hasRadius {
			missing = append(missing, "market.postal_codes_csv or market.radius_km is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.Server.RequestsPerSec <= 0 {
			missing = append(missing, "server.requests_per_sec must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}
