package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-sim/internal/geo"
)

func testOffer(id string, distance, score float64, active bool) Offer {
	return Offer{
		ContractorID:      id,
		DistanceKM:        distance,
		Score:             score,
		Active:            active,
		TeamSize:          2,
		ActiveConnections: 3,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestOfferValidate(t *testing.T) {
	require.NoError(t, testOffer("C1", 2.5, 0.8, true).Validate())

	assert.Error(t, testOffer("C1", -1, 0.8, true).Validate())
	assert.Error(t, testOffer("C1", 2, 1.5, true).Validate())

	o := testOffer("C1", 2, 0.8, true)
	o.TeamSize = 0
	assert.Error(t, o.Validate())
}

func TestBidValidate(t *testing.T) {
	b := Bid{Offer: testOffer("C1", 2.5, 0.8, true)}
	require.NoError(t, b.Validate())

	b.AmountUSD = floatPtr(120)
	b.PlacedAt = floatPtr(30)
	require.NoError(t, b.Validate())

	b.AmountUSD = floatPtr(0)
	assert.Error(t, b.Validate())

	b.AmountUSD = floatPtr(120)
	b.PlacedAt = floatPtr(-1)
	assert.Error(t, b.Validate())
}

func TestConnectionValidate(t *testing.T) {
	c := Connection{Bid: Bid{Offer: testOffer("C1", 2.5, 0.8, true)}}
	require.NoError(t, c.Validate())

	// Connection time without a bid time is inconsistent.
	c.ConnectedAt = floatPtr(60)
	assert.Error(t, c.Validate())

	c.PlacedAt = floatPtr(30)
	require.NoError(t, c.Validate())

	// Connection cannot precede the bid.
	c.ConnectedAt = floatPtr(10)
	assert.Error(t, c.Validate())
}

func TestSearchResultCounts(t *testing.T) {
	r := SearchResult{
		SearchID: "s1",
		Location: geo.Point{Lat: 40.75, Lon: -74},
		Offers: []Offer{
			testOffer("C1", 1, 0.9, true),
			testOffer("C2", 2, 0.5, false),
			testOffer("C1", 3, 0.9, true), // same cleaner offered twice
		},
		Bids: []Bid{
			{Offer: testOffer("C1", 1, 0.9, true)},
		},
		Connections: []Connection{
			{Bid: Bid{Offer: testOffer("C1", 1, 0.9, true)}},
		},
	}

	assert.Equal(t, 3, r.NumOffers())
	assert.Equal(t, 1, r.NumBids())
	assert.Equal(t, 1, r.NumConnections())
	assert.Len(t, r.UniqueCleaners(), 2)
	assert.Len(t, r.UniqueActiveCleaners(), 1)
}

func TestSearchResultStats(t *testing.T) {
	r := SearchResult{
		SearchID: "s1",
		Location: geo.Point{Lat: 40.75, Lon: -74},
		Offers: []Offer{
			testOffer("C1", 1, 0.9, true),
			testOffer("C2", 3, 0.5, true),
		},
		Bids: []Bid{
			{Offer: testOffer("C1", 1, 0.9, true)},
		},
	}

	stats := r.Stats()
	assert.InDelta(t, 0.5, stats["bid_rate"], 1e-9)
	assert.InDelta(t, 0.0, stats["acceptance_rate"], 1e-9)
	assert.InDelta(t, 2.0, stats["avg_offer_distance"], 1e-9)
	assert.InDelta(t, 2.0, stats["med_offer_distance"], 1e-9)
	assert.InDelta(t, 0.7, stats["avg_offer_score"], 1e-9)
	assert.InDelta(t, 0.9, stats["avg_bid_score"], 1e-9)
	_, hasConn := stats["avg_connection_distance"]
	assert.False(t, hasConn)
}

func TestSearchResultStats_NoOffers(t *testing.T) {
	r := SearchResult{SearchID: "s1"}
	stats := r.Stats()

	assert.Zero(t, stats["num_offers"])
	_, hasBidRate := stats["bid_rate"]
	assert.False(t, hasBidRate)
}

func TestMedian(t *testing.T) {
	assert.InDelta(t, 2, median([]float64{3, 1, 2}), 1e-9)
	assert.InDelta(t, 2.5, median([]float64{4, 1, 2, 3}), 1e-9)
	assert.Zero(t, median(nil))
}
