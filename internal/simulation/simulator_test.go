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

// scenarioMarket is the reference setup: one postal code, one active
// cleaner at its centroid.
func scenarioMarket(t *testing.T) *market.Market {
	t.Helper()

	centroid := geo.Point{Lat: 40.7505, Lon: -73.9965}
	pc, err := model.NewPostalCode("10001", "M", centroid, 100, 0)
	require.NoError(t, err)

	mkt, err := market.NewPostalCodeMarket("M", map[string]model.PostalCode{"10001": pc})
	require.NoError(t, err)

	require.NoError(t, mkt.AddCleaner(model.Cleaner{
		ContractorID:      "C1",
		Location:          centroid,
		PostalCode:        "10001",
		BiddingActive:     true,
		AssignmentActive:  true,
		Score:             0.8,
		ServiceRadiusKM:   10,
		TeamSize:          2,
		ActiveConnections: 5,
	}))
	return mkt
}

func seededConfig(seed int64) Config {
	cfg := DefaultConfig()
	cfg.SearchIterations = 100
	return cfg.WithSeed(seed)
}

func TestNewSimulator_Validation(t *testing.T) {
	mkt := scenarioMarket(t)

	_, err := NewSimulator(nil, DefaultConfig())
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.SearchRadiusKM = -1
	_, err = NewSimulator(mkt, bad)
	assert.Error(t, err)
}

func TestSimulateSearch_SinglePostalCodeScenario(t *testing.T) {
	mkt := scenarioMarket(t)
	sim, err := NewSimulator(mkt, seededConfig(42))
	require.NoError(t, err)

	results, err := sim.Run(context.Background(), 1000)
	require.NoError(t, err)
	require.Len(t, results, 1000)

	connections := 0
	for _, r := range results {
		assert.Equal(t, "10001", r.PostalCode)
		require.Len(t, r.Offers, 1)
		assert.Equal(t, "C1", r.Offers[0].ContractorID)
		assert.NotEmpty(t, r.SearchID)
		connections += r.NumConnections()
	}

	// The connection rate must land strictly between zero and the
	// theoretical ceiling connection_base_probability * score.
	rate := float64(connections) / 1000
	assert.Greater(t, rate, 0.0)
	assert.Less(t, rate, 0.4*0.8)
}

func TestRun_Reproducible(t *testing.T) {
	mkt := scenarioMarket(t)

	first, err := NewSimulator(mkt, seededConfig(1234))
	require.NoError(t, err)
	second, err := NewSimulator(mkt, seededConfig(1234))
	require.NoError(t, err)

	a, err := first.Run(context.Background(), 50)
	require.NoError(t, err)
	b, err := second.Run(context.Background(), 50)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Location, b[i].Location)
		assert.Equal(t, a[i].PostalCode, b[i].PostalCode)
		assert.Equal(t, a[i].Offers, b[i].Offers)
		assert.Equal(t, a[i].Bids, b[i].Bids)
		assert.Equal(t, a[i].Connections, b[i].Connections)
	}
}

func TestRun_SameSimulatorReseedsBetweenRuns(t *testing.T) {
	mkt := scenarioMarket(t)
	sim, err := NewSimulator(mkt, seededConfig(7))
	require.NoError(t, err)

	a, err := sim.Run(context.Background(), 20)
	require.NoError(t, err)
	b, err := sim.Run(context.Background(), 20)
	require.NoError(t, err)

	for i := range a {
		assert.Equal(t, a[i].Location, b[i].Location)
		assert.Equal(t, a[i].Bids, b[i].Bids)
	}
}

func TestRun_AtMostOneConnection(t *testing.T) {
	mkt := scenarioMarket(t)

	// Pile on competing cleaners to stress the connection walk.
	centroid := geo.Point{Lat: 40.7505, Lon: -73.9965}
	for _, id := range []string{"C2", "C3", "C4", "C5"} {
		require.NoError(t, mkt.AddCleaner(model.Cleaner{
			ContractorID:     id,
			Location:         centroid,
			PostalCode:       "10001",
			BiddingActive:    true,
			AssignmentActive: true,
			Score:            0.9,
			ServiceRadiusKM:  10,
			TeamSize:         3,
		}))
	}

	cfg := seededConfig(99)
	cfg.CleanerBaseBidProbability = 1
	cfg.ConnectionBaseProbability = 1
	sim, err := NewSimulator(mkt, cfg)
	require.NoError(t, err)

	results, err := sim.Run(context.Background(), 200)
	require.NoError(t, err)

	for _, r := range results {
		assert.LessOrEqual(t, r.NumConnections(), 1)
		if r.NumConnections() == 1 {
			// The connection's contractor must come from the bids.
			found := false
			for _, b := range r.Bids {
				if b.ContractorID == r.Connections[0].ContractorID {
					found = true
				}
			}
			assert.True(t, found)
		}
	}
}

func TestRun_ConnectionPrefersHighScores(t *testing.T) {
	centroid := geo.Point{Lat: 40.7505, Lon: -73.9965}
	pc, err := model.NewPostalCode("10001", "M", centroid, 100, 0)
	require.NoError(t, err)
	mkt, err := market.NewPostalCodeMarket("M", map[string]model.PostalCode{"10001": pc})
	require.NoError(t, err)

	for id, score := range map[string]float64{"LOW": 0.2, "HIGH": 1.0} {
		require.NoError(t, mkt.AddCleaner(model.Cleaner{
			ContractorID:     id,
			Location:         centroid,
			PostalCode:       "10001",
			BiddingActive:    true,
			AssignmentActive: true,
			Score:            score,
			ServiceRadiusKM:  10,
			TeamSize:         1,
		}))
	}

	cfg := seededConfig(5)
	cfg.CleanerBaseBidProbability = 1
	cfg.ConnectionBaseProbability = 1
	cfg.DistanceDecayFactor = 0
	sim, err := NewSimulator(mkt, cfg)
	require.NoError(t, err)

	results, err := sim.Run(context.Background(), 100)
	require.NoError(t, err)

	// With both cleaners always bidding and the high-score cleaner's
	// connection probability at 1, every connection goes to HIGH.
	for _, r := range results {
		if r.NumConnections() == 1 {
			assert.Equal(t, "HIGH", r.Connections[0].ContractorID)
		}
	}
}

func TestRun_InactiveCleanersGetOffersButNeverBid(t *testing.T) {
	mkt := scenarioMarket(t)
	centroid := geo.Point{Lat: 40.7505, Lon: -73.9965}
	require.NoError(t, mkt.AddCleaner(model.Cleaner{
		ContractorID:     "IDLE",
		Location:         centroid,
		PostalCode:       "10001",
		BiddingActive:    false,
		AssignmentActive: true,
		Score:            1,
		ServiceRadiusKM:  10,
		TeamSize:         5,
	}))

	sim, err := NewSimulator(mkt, seededConfig(21))
	require.NoError(t, err)

	results, err := sim.Run(context.Background(), 100)
	require.NoError(t, err)

	for _, r := range results {
		require.Len(t, r.Offers, 2)
		for _, b := range r.Bids {
			assert.NotEqual(t, "IDLE", b.ContractorID)
		}
		for _, o := range r.Offers {
			if o.ContractorID == "IDLE" {
				assert.False(t, o.Active)
			}
		}
	}
}

func TestRun_CanceledContext(t *testing.T) {
	mkt := scenarioMarket(t)
	sim, err := NewSimulator(mkt, seededConfig(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sim.Run(ctx, 10)
	assert.Error(t, err)
}
