package model

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-sim/internal/geo"
)

// Offer records one cleaner found within search radius of a sampled
// location. Offers are generated for every cleaner in range, including
// inactive ones, so downstream metrics can report nearby-but-inactive
// supply.
type Offer struct {
	ContractorID      string  `json:"contractor_id"`
	DistanceKM        float64 `json:"distance_km"`
	Score             float64 `json:"cleaner_score"`
	Active            bool    `json:"active"`
	TeamSize          int     `json:"team_size"`
	ActiveConnections int     `json:"active_connections"`
}

// Validate checks the offer invariants.
func (o Offer) Validate() error {
	if o.DistanceKM < 0 {
		return eris.New("model: offer distance cannot be negative")
	}
	if o.Score < 0 || o.Score > 1 {
		return eris.New("model: offer score must be between 0 and 1")
	}
	if o.TeamSize <= 0 {
		return eris.New("model: offer team size must be positive")
	}
	if o.ActiveConnections < 0 {
		return eris.New("model: offer active connections cannot be negative")
	}
	return nil
}

// Bid widens an Offer with the optional amount and time of the bid.
type Bid struct {
	Offer

	AmountUSD *float64 `json:"bid_amount,omitempty"`
	PlacedAt  *float64 `json:"bid_time,omitempty"`
}

// Validate checks the bid invariants on top of the offer's.
func (b Bid) Validate() error {
	if err := b.Offer.Validate(); err != nil {
		return err
	}
	if b.AmountUSD != nil && *b.AmountUSD <= 0 {
		return eris.New("model: bid amount must be positive")
	}
	if b.PlacedAt != nil && *b.PlacedAt < 0 {
		return eris.New("model: bid time cannot be negative")
	}
	return nil
}

// Connection widens a Bid with the time the hire was confirmed.
type Connection struct {
	Bid

	ConnectedAt *float64 `json:"connection_time,omitempty"`
}

// Validate checks the connection invariants on top of the bid's. A
// connection time requires a bid time and cannot precede it.
func (c Connection) Validate() error {
	if err := c.Bid.Validate(); err != nil {
		return err
	}
	if c.ConnectedAt != nil {
		if c.PlacedAt == nil {
			return eris.New("model: connection requires a bid time")
		}
		if *c.ConnectedAt < *c.PlacedAt {
			return eris.New("model: connection time cannot precede bid time")
		}
	}
	return nil
}

// SearchResult holds the full outcome of one simulated search: the sampled
// location and the ordered offer, bid, and connection lists. At most one
// connection is ever present. Created by the simulator, consumed read-only
// by metrics.
type SearchResult struct {
	SearchID   string    `json:"search_id"`
	Location   geo.Point `json:"location"`
	PostalCode string    `json:"postal_code,omitempty"`

	Offers      []Offer      `json:"offers"`
	Bids        []Bid        `json:"bids"`
	Connections []Connection `json:"connections"`
}

// NumOffers returns the offer count.
func (r SearchResult) NumOffers() int { return len(r.Offers) }

// NumBids returns the bid count.
func (r SearchResult) NumBids() int { return len(r.Bids) }

// NumConnections returns the connection count (0 or 1).
func (r SearchResult) NumConnections() int { return len(r.Connections) }

// UniqueCleaners returns the contractor ids seen in offers.
func (r SearchResult) UniqueCleaners() map[string]struct{} {
	ids := make(map[string]struct{}, len(r.Offers))
	for _, o := range r.Offers {
		ids[o.ContractorID] = struct{}{}
	}
	return ids
}

// UniqueActiveCleaners returns the contractor ids of bid-active cleaners
// seen in offers.
func (r SearchResult) UniqueActiveCleaners() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, o := range r.Offers {
		if o.Active {
			ids[o.ContractorID] = struct{}{}
		}
	}
	return ids
}

// Stats returns the per-search summary metrics: counts, conversion rates,
// and distance/score aggregates per funnel stage. Searches with no offers
// return only the count fields.
func (r SearchResult) Stats() map[string]float64 {
	stats := map[string]float64{
		"num_offers":                 float64(r.NumOffers()),
		"num_bids":                   float64(r.NumBids()),
		"num_connections":            float64(r.NumConnections()),
		"num_unique_cleaners":        float64(len(r.UniqueCleaners())),
		"num_unique_active_cleaners": float64(len(r.UniqueActiveCleaners())),
	}

	if r.NumOffers() > 0 {
		stats["bid_rate"] = float64(r.NumBids()) / float64(r.NumOffers())
		stats["offer_to_connection_rate"] = float64(r.NumConnections()) / float64(r.NumOffers())
	}
	if r.NumBids() > 0 {
		stats["acceptance_rate"] = float64(r.NumConnections()) / float64(r.NumBids())
	}

	addSeries := func(prefix string, values []float64) {
		if len(values) == 0 {
			return
		}
		stats["avg_"+prefix] = mean(values)
		stats["med_"+prefix] = median(values)
	}

	addSeries("offer_distance", offerDistances(r.Offers))
	addSeries("bid_distance", bidDistances(r.Bids))
	addSeries("connection_distance", connectionDistances(r.Connections))
	addSeries("offer_score", offerScores(r.Offers))
	addSeries("bid_score", bidScores(r.Bids))
	addSeries("connection_score", connectionScores(r.Connections))

	return stats
}

func offerDistances(offers []Offer) []float64 {
	out := make([]float64, len(offers))
	for i, o := range offers {
		out[i] = o.DistanceKM
	}
	return out
}

func offerScores(offers []Offer) []float64 {
	out := make([]float64, len(offers))
	for i, o := range offers {
		out[i] = o.Score
	}
	return out
}

func bidDistances(bids []Bid) []float64 {
	out := make([]float64, len(bids))
	for i, b := range bids {
		out[i] = b.DistanceKM
	}
	return out
}

func bidScores(bids []Bid) []float64 {
	out := make([]float64, len(bids))
	for i, b := range bids {
		out[i] = b.Score
	}
	return out
}

func connectionDistances(conns []Connection) []float64 {
	out := make([]float64, len(conns))
	for i, c := range conns {
		out[i] = c.DistanceKM
	}
	return out
}

func connectionScores(conns []Connection) []float64 {
	out := make([]float64, len(conns))
	for i, c := range conns {
		out[i] = c.Score
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
