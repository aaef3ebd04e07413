package model

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-sim/internal/geo"
)

// DefaultConnectionsPerMember is the number of concurrent connections one
// team member can serve.
const DefaultConnectionsPerMember = 10

// Cleaner is a supplier registered in a market. Immutable for the duration
// of a simulation run; active connections and flags are only updated between
// runs.
type Cleaner struct {
	ContractorID string    `json:"contractor_id"`
	Location     geo.Point `json:"location"`

	// PostalCode is the cleaner's home postal code. Empty for cleaners in
	// location-based markets; informational otherwise.
	PostalCode string `json:"postal_code,omitempty"`

	// BiddingActive gates participation in new searches.
	BiddingActive bool `json:"bidding_active"`

	// AssignmentActive marks eligibility for assignment to existing work.
	// It does not gate bidding.
	AssignmentActive bool `json:"assignment_active"`

	Score             float64 `json:"cleaner_score"`
	ServiceRadiusKM   float64 `json:"service_radius"`
	TeamSize          int     `json:"team_size"`
	ActiveConnections int     `json:"active_connections"`
}

// Validate checks all cleaner invariants.
func (c Cleaner) Validate() error {
	if c.ContractorID == "" {
		return eris.New("model: contractor id is required")
	}
	if c.Score < 0 || c.Score > 1 {
		return eris.Errorf("model: cleaner %s: score must be between 0 and 1", c.ContractorID)
	}
	if c.ServiceRadiusKM <= 0 {
		return eris.Errorf("model: cleaner %s: service radius must be positive", c.ContractorID)
	}
	if c.TeamSize < 1 {
		return eris.Errorf("model: cleaner %s: team size must be at least 1", c.ContractorID)
	}
	if c.ActiveConnections < 0 {
		return eris.Errorf("model: cleaner %s: active connections cannot be negative", c.ContractorID)
	}
	return nil
}

// MaxConnections is the connection capacity derived from team size.
func (c Cleaner) MaxConnections() int {
	return c.TeamSize * DefaultConnectionsPerMember
}

// CapacityFactor returns the available-capacity multiplier in
// [minCapacity, 1]. Fully loaded cleaners bottom out at the floor instead
// of reaching zero.
func (c Cleaner) CapacityFactor(minCapacity float64) float64 {
	factor := 1 - float64(c.ActiveConnections)/float64(c.MaxConnections())
	return math.Max(minCapacity, factor)
}

// BidParams bundles the simulation parameters that shape bid probability.
type BidParams struct {
	BaseProbability     float64
	DistanceDecayFactor float64
	MinCapacityFactor   float64
}

// BidProbability returns the probability that this cleaner bids on an offer
// at the given distance. Quality, capacity, and distance decay combine
// multiplicatively; the result is clamped to [0, 1]. A cleaner with bidding
// disabled never bids.
func (c Cleaner) BidProbability(distanceKM float64, p BidParams) float64 {
	if !c.BiddingActive {
		return 0
	}

	qualityFactor := c.Score
	capacityFactor := c.CapacityFactor(p.MinCapacityFactor)
	distanceFactor := math.Exp(-p.DistanceDecayFactor * distanceKM)

	probability := p.BaseProbability * qualityFactor * capacityFactor * distanceFactor

	return math.Max(0, math.Min(1, probability))
}

// DistanceKM returns the great-circle distance from the cleaner to a point.
func (c Cleaner) DistanceKM(p geo.Point) float64 {
	return c.Location.DistanceKM(p)
}

// InServiceRange reports whether a point lies within the cleaner's service
// radius.
func (c Cleaner) InServiceRange(p geo.Point) bool {
	return c.DistanceKM(p) <= c.ServiceRadiusKM
}
