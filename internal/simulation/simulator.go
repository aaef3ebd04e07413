package simulation

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-sim/internal/geo"
	"github.com/sells-group/market-sim/internal/market"
	"github.com/sells-group/market-sim/internal/model"
)

// Simulator executes independent search trials against one market. It owns
// its random stream; a configured seed makes runs byte-for-byte
// reproducible. The market's cleaner registry must not be mutated while a
// run is in flight.
type Simulator struct {
	market *market.Market
	cfg    Config
	rng    *rand.Rand
}

// NewSimulator validates the config and builds a simulator over the market.
func NewSimulator(m *market.Market, cfg Config) (*Simulator, error) {
	if m == nil {
		return nil, eris.New("simulation: market is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var src rand.Source
	if cfg.RandomSeed != nil {
		src = rand.NewSource(*cfg.RandomSeed)
	} else {
		src = rand.NewSource(rand.Int63())
	}

	return &Simulator{
		market: m,
		cfg:    cfg,
		rng:    rand.New(src),
	}, nil
}

// Config returns the simulator's configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Run executes the given number of independent searches (the configured
// count when iterations <= 0) and returns the ordered results. A configured
// seed reseeds the stream once at the start of the run, so consecutive runs
// over the same market are identical.
func (s *Simulator) Run(ctx context.Context, iterations int) ([]model.SearchResult, error) {
	n := iterations
	if n <= 0 {
		n = s.cfg.SearchIterations
	}

	if s.cfg.RandomSeed != nil {
		s.rng = rand.New(rand.NewSource(*s.cfg.RandomSeed))
	}

	results := make([]model.SearchResult, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "simulation: run interrupted")
		}
		result, err := s.SimulateSearch()
		if err != nil {
			return nil, eris.Wrapf(err, "simulation: search %d", i)
		}
		results = append(results, result)
	}
	return results, nil
}

// SimulateSearch runs one search trial: sample a location, generate an
// offer per cleaner in range, simulate bid decisions, and simulate at most
// one connection.
func (s *Simulator) SimulateSearch() (model.SearchResult, error) {
	point, postalCode, err := s.market.SampleSearchLocation(s.rng)
	if err != nil {
		return model.SearchResult{}, err
	}

	result := model.SearchResult{
		SearchID:   uuid.New().String(),
		Location:   point,
		PostalCode: postalCode,
	}

	cleaners, err := s.market.CleanersInRange(point, s.cfg.SearchRadiusKM)
	if err != nil {
		return model.SearchResult{}, err
	}

	result.Offers = s.generateOffers(cleaners, point)
	result.Bids = s.simulateBids(result.Offers)
	if len(result.Bids) > 0 {
		result.Connections = s.simulateConnections(result.Bids)
	}

	return result, nil
}

// generateOffers records one offer per cleaner in range, inactive cleaners
// included.
func (s *Simulator) generateOffers(cleaners []model.Cleaner, point geo.Point) []model.Offer {
	offers := make([]model.Offer, 0, len(cleaners))
	for _, c := range cleaners {
		offers = append(offers, model.Offer{
			ContractorID:      c.ContractorID,
			DistanceKM:        c.DistanceKM(point),
			Score:             c.Score,
			Active:            c.BiddingActive,
			TeamSize:          c.TeamSize,
			ActiveConnections: c.ActiveConnections,
		})
	}
	return offers
}

// simulateBids draws one uniform number per active offer; a draw below the
// bid probability promotes the offer to a bid. Inactive cleaners never bid.
func (s *Simulator) simulateBids(offers []model.Offer) []model.Bid {
	var bids []model.Bid
	for _, offer := range offers {
		if !offer.Active {
			continue
		}

		probability := s.bidProbability(offer)
		if s.rng.Float64() < probability {
			bids = append(bids, model.Bid{Offer: offer})
		}
	}
	return bids
}

// bidProbability combines base probability, quality, capacity, and distance
// decay for one offer, clamped to [0, 1].
func (s *Simulator) bidProbability(offer model.Offer) float64 {
	quality := offer.Score
	capacity := 1 - float64(offer.ActiveConnections)/float64(offer.TeamSize*s.cfg.MaxConnectionsPerMember)
	capacity = math.Max(s.cfg.MinCapacityFactor, capacity)
	decay := math.Exp(-s.cfg.DistanceDecayFactor * offer.DistanceKM)

	p := s.cfg.CleanerBaseBidProbability * quality * capacity * decay
	return math.Max(0, math.Min(1, p))
}

// simulateConnections walks the bids in descending score order (stable for
// equal scores) and accepts the first bid whose uniform draw beats its
// connection probability. At most one connection is ever produced.
func (s *Simulator) simulateConnections(bids []model.Bid) []model.Connection {
	sorted := append([]model.Bid(nil), bids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	for _, bid := range sorted {
		probability := s.cfg.ConnectionBaseProbability * bid.Score *
			math.Exp(-s.cfg.DistanceDecayFactor*bid.DistanceKM)

		if s.rng.Float64() < probability {
			return []model.Connection{{Bid: bid}}
		}
	}
	return nil
}
