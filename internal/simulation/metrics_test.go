package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-sim/internal/geo"
	"github.com/sells-group/market-sim/internal/market"
	"github.com/sells-group/market-sim/internal/model"
)

func metricsMarket(t *testing.T, areas map[string]float64) *market.Market {
	t.Helper()

	codes := map[string]model.PostalCode{}
	centroids := map[string]geo.Point{
		"10001": {Lat: 40.7505, Lon: -73.9965},
		"10002": {Lat: 40.7156, Lon: -73.9862},
	}
	for code, centroid := range centroids {
		pc, err := model.NewPostalCode(code, "M", centroid, 100, areas[code])
		require.NoError(t, err)
		codes[code] = pc
	}

	mkt, err := market.NewPostalCodeMarket("M", codes)
	require.NoError(t, err)
	return mkt
}

func addMetricsCleaner(t *testing.T, mkt *market.Market, id, postal string, radius float64, active bool) {
	t.Helper()
	pc, ok := mkt.PostalCode(postal)
	require.True(t, ok)
	require.NoError(t, mkt.AddCleaner(model.Cleaner{
		ContractorID:     id,
		Location:         pc.Centroid,
		PostalCode:       postal,
		BiddingActive:    active,
		AssignmentActive: true,
		Score:            0.7,
		ServiceRadiusKM:  radius,
		TeamSize:         1,
	}))
}

func sampleResult(bids, connections int) model.SearchResult {
	r := model.SearchResult{
		SearchID:   "s",
		Location:   geo.Point{Lat: 40.75, Lon: -74},
		PostalCode: "10001",
		Offers: []model.Offer{
			{ContractorID: "C1", DistanceKM: 2, Score: 0.8, Active: true, TeamSize: 1},
			{ContractorID: "C2", DistanceKM: 4, Score: 0.4, Active: true, TeamSize: 1},
		},
	}
	for i := 0; i < bids; i++ {
		r.Bids = append(r.Bids, model.Bid{Offer: r.Offers[i]})
	}
	for i := 0; i < connections; i++ {
		r.Connections = append(r.Connections, model.Connection{Bid: r.Bids[i]})
	}
	return r
}

func TestMetricsRates(t *testing.T) {
	mkt := metricsMarket(t, map[string]float64{"10001": 2, "10002": 3})

	m := NewMetrics()
	m.AddResult(sampleResult(2, 1))
	m.AddResult(sampleResult(1, 0))
	m.AddResult(sampleResult(0, 0))

	out := m.Calculate(mkt)

	assert.InDelta(t, 1.0/3, out["connection_rate"], 1e-9)
	assert.InDelta(t, 1.0, out["avg_bids_per_search"], 1e-9)
	assert.InDelta(t, 1.0, out["med_bids_per_search"], 1e-9)
	assert.InDelta(t, 2.0/3, out["pct_searches_with_bids"], 1e-9)
	assert.InDelta(t, 3.0, out["avg_offer_distance"], 1e-9)
	assert.InDelta(t, 0.6, out["avg_offer_score"], 1e-9)
	assert.InDelta(t, 2.0, out["avg_connection_distance"], 1e-9)
	assert.InDelta(t, 3.0/5, out["search_density"], 1e-9)
	assert.InDelta(t, 1.0/5, out["connection_density"], 1e-9)
	assert.InDelta(t, 1.0/3, out["connection_ratio"], 1e-9)
}

func TestMetricsZeroSearches(t *testing.T) {
	mkt := metricsMarket(t, map[string]float64{"10001": 2, "10002": 3})

	out := NewMetrics().Calculate(mkt)
	assert.Zero(t, out["connection_rate"])
	_, hasBids := out["avg_bids_per_search"]
	assert.False(t, hasBids)
	assert.Zero(t, out["search_density"])
}

func TestMetricsZeroArea(t *testing.T) {
	mkt := metricsMarket(t, nil)
	addMetricsCleaner(t, mkt, "C1", "10001", 10, true)

	m := NewMetrics()
	m.AddResult(sampleResult(1, 1))

	out := m.Calculate(mkt)
	assert.Zero(t, out["search_density"])
	assert.Zero(t, out["connection_density"])
	assert.Zero(t, out["coverage_ratio"])
	assert.Zero(t, out["active_coverage_ratio"])
}

func TestCoverageRatio_Bounds(t *testing.T) {
	mkt := metricsMarket(t, map[string]float64{"10001": 2, "10002": 3})

	// No cleaners: both ratios are zero.
	out := NewMetrics().Calculate(mkt)
	assert.Zero(t, out["coverage_ratio"])
	assert.Zero(t, out["active_coverage_ratio"])

	// Many overlapping cleaners at the same location must not push
	// coverage past 1.
	for _, id := range []string{"C1", "C2", "C3", "C4"} {
		addMetricsCleaner(t, mkt, id, "10001", 50, true)
	}
	addMetricsCleaner(t, mkt, "C5", "10002", 50, false)

	out = NewMetrics().Calculate(mkt)
	assert.LessOrEqual(t, out["coverage_ratio"], 1.0)
	assert.GreaterOrEqual(t, out["coverage_ratio"], 0.0)
	assert.LessOrEqual(t, out["active_coverage_ratio"], out["coverage_ratio"])
}

func TestCoverageRatio_SaturatesAtPostalArea(t *testing.T) {
	// 10001 has 2 km^2; a 50 km radius covers far more than that, so the
	// covered area is capped at the postal code's own area.
	mkt := metricsMarket(t, map[string]float64{"10001": 2, "10002": 3})
	addMetricsCleaner(t, mkt, "C1", "10001", 50, true)

	out := NewMetrics().Calculate(mkt)
	assert.InDelta(t, 2.0/5, out["coverage_ratio"], 1e-9)
	assert.InDelta(t, 2.0/5, out["active_coverage_ratio"], 1e-9)
}

func TestCoverageRatio_ActiveSubset(t *testing.T) {
	mkt := metricsMarket(t, map[string]float64{"10001": 2, "10002": 3})
	addMetricsCleaner(t, mkt, "C1", "10001", 50, true)
	addMetricsCleaner(t, mkt, "C2", "10002", 50, false)

	out := NewMetrics().Calculate(mkt)
	// All cleaners cover both codes; only 10001 has an active cleaner.
	assert.InDelta(t, 1.0, out["coverage_ratio"], 1e-9)
	assert.InDelta(t, 2.0/5, out["active_coverage_ratio"], 1e-9)
}

func TestCoverageRatio_LocationMarket(t *testing.T) {
	center := geo.Point{Lat: 40.75, Lon: -74}
	mkt, err := market.NewLocationMarket("midtown", center, 10)
	require.NoError(t, err)

	require.NoError(t, mkt.AddCleaner(model.Cleaner{
		ContractorID:     "C1",
		Location:         center,
		BiddingActive:    true,
		AssignmentActive: true,
		Score:            0.5,
		ServiceRadiusKM:  5,
		TeamSize:         1,
	}))

	out := NewMetrics().Calculate(mkt)
	// One 5 km circle inside a 10 km market: pi*25 / pi*100.
	assert.InDelta(t, 0.25, out["coverage_ratio"], 1e-9)
	assert.InDelta(t, 5.0, out["avg_service_radius"], 1e-9)

	// Stacking overlapping cleaners saturates at 1.
	for _, id := range []string{"C2", "C3", "C4", "C5", "C6"} {
		require.NoError(t, mkt.AddCleaner(model.Cleaner{
			ContractorID:     id,
			Location:         center,
			BiddingActive:    true,
			AssignmentActive: true,
			Score:            0.5,
			ServiceRadiusKM:  9,
			TeamSize:         1,
		}))
	}
	out = NewMetrics().Calculate(mkt)
	assert.InDelta(t, 1.0, out["coverage_ratio"], 1e-9)
	assert.LessOrEqual(t, out["active_coverage_ratio"], out["coverage_ratio"])
}

func TestMetricsFromSimulatorRun(t *testing.T) {
	mkt := scenarioMarket(t)
	sim, err := NewSimulator(mkt, seededConfig(42))
	require.NoError(t, err)

	results, err := sim.Run(context.Background(), 300)
	require.NoError(t, err)

	m := NewMetrics()
	m.AddResults(results)
	assert.Equal(t, 300, m.SearchCount())

	out := m.Calculate(mkt)
	assert.GreaterOrEqual(t, out["connection_rate"], 0.0)
	assert.LessOrEqual(t, out["connection_rate"], 1.0)
	assert.LessOrEqual(t, out["active_coverage_ratio"], out["coverage_ratio"])
}

func TestGeospatialAndDistributions(t *testing.T) {
	mkt := metricsMarket(t, map[string]float64{"10001": 2, "10002": 3})
	addMetricsCleaner(t, mkt, "C1", "10001", 10, true)

	m := NewMetrics()
	m.AddResult(sampleResult(2, 1))

	data := m.Geospatial(mkt)
	assert.Len(t, data.Searches, 1)
	assert.Len(t, data.Connections, 1)
	assert.Len(t, data.Cleaners, 1)
	assert.Len(t, data.ServiceAreas, 1)

	dists := m.DistanceDistributions()
	assert.Len(t, dists[StageOffer], 2)
	assert.Len(t, dists[StageBid], 2)
	assert.Len(t, dists[StageConnection], 1)

	scores := m.ScoreDistributions()
	assert.Len(t, scores[StageOffer], 2)
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1, percentile(values, 0), 1e-9)
	assert.InDelta(t, 4, percentile(values, 100), 1e-9)
	assert.InDelta(t, 2.5, percentile(values, 50), 1e-9)
	assert.Zero(t, percentile(nil, 50))
}
