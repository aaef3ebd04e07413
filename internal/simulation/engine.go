package simulation

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-sim/internal/market"
	"github.com/sells-group/market-sim/internal/model"
)

// ConfigurationRun holds the outcome of one supply configuration iteration:
// the ordered search results and the derived summary metrics.
type ConfigurationRun struct {
	Index   int                  `json:"index"`
	Seed    *int64               `json:"seed,omitempty"`
	Results []model.SearchResult `json:"results"`
	Summary map[string]float64   `json:"summary"`
}

// Engine repeats full simulator runs across supply configuration
// iterations. Sequential by default; with parallel execution enabled each
// iteration runs on its own simulator with a seed derived from the run seed
// and the iteration index, keeping sweeps reproducible.
type Engine struct {
	cfg Config
}

// NewEngine validates the config and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Run executes the configured number of supply configuration iterations
// against the market and returns them in index order.
func (e *Engine) Run(ctx context.Context, mkt *market.Market) ([]ConfigurationRun, error) {
	if mkt == nil {
		return nil, eris.New("simulation: market is required")
	}

	n := e.cfg.SupplyConfigurationIterations
	runs := make([]ConfigurationRun, n)

	log := zap.L().With(
		zap.String("market", mkt.ID()),
		zap.Int("configurations", n),
		zap.Int("searches_per_configuration", e.cfg.SearchIterations),
	)
	log.Info("starting supply configuration sweep")

	if e.cfg.ParallelExecution {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.MaxWorkers)

		for i := 0; i < n; i++ {
			i := i
			g.Go(func() error {
				run, err := e.runConfiguration(gctx, mkt, i)
				if err != nil {
					return err
				}
				runs[i] = run
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, eris.Wrap(err, "simulation: sweep")
		}
	} else {
		for i := 0; i < n; i++ {
			run, err := e.runConfiguration(ctx, mkt, i)
			if err != nil {
				return nil, eris.Wrap(err, "simulation: sweep")
			}
			runs[i] = run
		}
	}

	log.Info("sweep complete", zap.Int("total_searches", n*e.cfg.SearchIterations))
	return runs, nil
}

// runConfiguration runs one iteration on a dedicated simulator. The
// per-iteration seed is the run seed offset by the index, so iterations use
// independent deterministic sub-streams rather than interleaving one shared
// stream.
func (e *Engine) runConfiguration(ctx context.Context, mkt *market.Market, index int) (ConfigurationRun, error) {
	cfg := e.cfg
	if e.cfg.RandomSeed != nil {
		cfg = e.cfg.WithSeed(*e.cfg.RandomSeed + int64(index))
	}

	sim, err := NewSimulator(mkt, cfg)
	if err != nil {
		return ConfigurationRun{}, err
	}

	results, err := sim.Run(ctx, cfg.SearchIterations)
	if err != nil {
		return ConfigurationRun{}, eris.Wrapf(err, "configuration %d", index)
	}

	metrics := NewMetrics()
	metrics.AddResults(results)

	return ConfigurationRun{
		Index:   index,
		Seed:    cfg.RandomSeed,
		Results: results,
		Summary: metrics.Calculate(mkt),
	}, nil
}

// AggregateSummaries averages each metric across configuration runs.
// Metrics absent from a run are averaged over the runs that produced them.
func AggregateSummaries(runs []ConfigurationRun) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, run := range runs {
		for k, v := range run.Summary {
			sums[k] += v
			counts[k]++
		}
	}

	out := make(map[string]float64, len(sums))
	for k, sum := range sums {
		out[k] = sum / float64(counts[k])
	}
	return out
}
