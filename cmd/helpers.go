package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-sim/internal/geo"
	"github.com/sells-group/market-sim/internal/loader"
	"github.com/sells-group/market-sim/internal/market"
	"github.com/sells-group/market-sim/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "market-sim.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildMarket assembles the market from the configured inputs: postal codes
// from CSV (optionally with shapefile-derived areas), or a plain
// center-plus-radius market when no postal codes are given. Cleaners are
// loaded last so membership validation sees the final geography.
func buildMarket() (*market.Market, error) {
	mc := cfg.Market
	if mc.ID == "" {
		return nil, eris.New("market.id is required")
	}

	var mkt *market.Market

	if mc.PostalCodesCSV != "" {
		codes, err := loader.LoadPostalCodes(mc.PostalCodesCSV, mc.ID)
		if err != nil {
			return nil, err
		}

		if mc.Shapefile != "" {
			areas, err := loader.LoadPostalAreas(mc.Shapefile, mc.ShapefileField)
			if err != nil {
				return nil, err
			}
			var matched int
			codes, matched = loader.ApplyAreas(codes, areas)
			zap.L().Info("shapefile areas applied",
				zap.Int("matched", matched),
				zap.Int("codes", len(codes)),
			)
		}

		mkt, err = market.NewPostalCodeMarket(mc.ID, codes)
		if err != nil {
			return nil, err
		}
	} else {
		center, err := geo.NewPoint(mc.CenterLat, mc.CenterLon)
		if err != nil {
			return nil, eris.Wrap(err, "market center")
		}
		mkt, err = market.NewLocationMarket(mc.ID, center, mc.RadiusKM)
		if err != nil {
			return nil, err
		}
	}

	if mc.CleanersCSV != "" {
		cleaners, err := loader.LoadCleaners(mc.CleanersCSV)
		if err != nil {
			return nil, err
		}
		for _, c := range cleaners {
			if err := mkt.AddCleaner(c); err != nil {
				return nil, eris.Wrapf(err, "cleaner %s", c.ContractorID)
			}
		}
	}

	return mkt, nil
}
