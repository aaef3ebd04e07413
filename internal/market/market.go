// Package market aggregates the geography of a service market (postal codes
// or a center plus radius) with its registered cleaners, and provides the
// spatial queries and location sampling the simulator runs against.
package market

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-sim/internal/geo"
	"github.com/sells-group/market-sim/internal/model"
)

// searchJitterSigmaKM is the standard deviation of the Gaussian perturbation
// applied around postal code centroids when sampling search locations, so
// search points do not cluster exactly on centroids.
const searchJitterSigmaKM = 1.0

// Market is either postal-code-based or location-based; the variant is fixed
// at construction. The cleaner registry preserves insertion order so that
// range scans consume the shared RNG stream deterministically.
type Market struct {
	id string

	// Postal-code variant. nil for location markets.
	postalCodes map[string]model.PostalCode
	codeOrder   []string // sorted postal codes, for deterministic sampling

	// Location variant.
	center   geo.Point
	radiusKM float64

	cleaners     map[string]model.Cleaner
	cleanerOrder []string
}

// NewPostalCodeMarket builds a postal-code-based market from a non-empty
// postal code mapping.
func NewPostalCodeMarket(id string, codes map[string]model.PostalCode) (*Market, error) {
	if id == "" {
		return nil, eris.New("market: market id is required")
	}
	if len(codes) == 0 {
		return nil, eris.New("market: postal code market requires at least one postal code")
	}

	order := make([]string, 0, len(codes))
	for code, pc := range codes {
		if err := pc.Validate(); err != nil {
			return nil, eris.Wrapf(err, "market: postal code %s", code)
		}
		if code != pc.Code {
			return nil, eris.Errorf("market: postal code key %s does not match entry %s", code, pc.Code)
		}
		order = append(order, code)
	}
	sort.Strings(order)

	copied := make(map[string]model.PostalCode, len(codes))
	for code, pc := range codes {
		copied[code] = pc
	}

	return &Market{
		id:          id,
		postalCodes: copied,
		codeOrder:   order,
		cleaners:    make(map[string]model.Cleaner),
	}, nil
}

// NewLocationMarket builds a location-based market from a center point and a
// positive radius.
func NewLocationMarket(id string, center geo.Point, radiusKM float64) (*Market, error) {
	if id == "" {
		return nil, eris.New("market: market id is required")
	}
	if radiusKM <= 0 {
		return nil, eris.New("market: radius must be positive")
	}

	return &Market{
		id:       id,
		center:   center,
		radiusKM: radiusKM,
		cleaners: make(map[string]model.Cleaner),
	}, nil
}

// ID returns the market identifier.
func (m *Market) ID() string { return m.id }

// PostalCodeBased reports whether this is the postal-code variant.
func (m *Market) PostalCodeBased() bool { return m.postalCodes != nil }

// Center returns the center point of a location market.
func (m *Market) Center() geo.Point { return m.center }

// RadiusKM returns the radius of a location market, zero for postal-code
// markets.
func (m *Market) RadiusKM() float64 { return m.radiusKM }

// PostalCode looks up a postal code by its code.
func (m *Market) PostalCode(code string) (model.PostalCode, bool) {
	pc, ok := m.postalCodes[code]
	return pc, ok
}

// PostalCodes returns the market's postal codes in lexical order. Empty for
// location markets.
func (m *Market) PostalCodes() []model.PostalCode {
	out := make([]model.PostalCode, 0, len(m.codeOrder))
	for _, code := range m.codeOrder {
		out = append(out, m.postalCodes[code])
	}
	return out
}

// AddCleaner registers a cleaner, replacing any existing entry with the same
// contractor id. Postal-code markets reject cleaners whose postal code is
// not part of the market; location markets reject cleaners outside the
// market radius.
func (m *Market) AddCleaner(c model.Cleaner) error {
	if err := c.Validate(); err != nil {
		return eris.Wrap(err, "market: add cleaner")
	}

	if m.PostalCodeBased() {
		if _, ok := m.postalCodes[c.PostalCode]; !ok {
			return eris.Errorf("market: cleaner postal code %q not in market %s", c.PostalCode, m.id)
		}
	} else {
		distance := m.center.DistanceKM(c.Location)
		if distance > m.radiusKM {
			return eris.Errorf("market: cleaner %s is %.1f km from market center, exceeds radius of %.1f km",
				c.ContractorID, distance, m.radiusKM)
		}
	}

	if _, exists := m.cleaners[c.ContractorID]; !exists {
		m.cleanerOrder = append(m.cleanerOrder, c.ContractorID)
	}
	m.cleaners[c.ContractorID] = c
	return nil
}

// Cleaner looks up a cleaner by contractor id.
func (m *Market) Cleaner(contractorID string) (model.Cleaner, bool) {
	c, ok := m.cleaners[contractorID]
	return c, ok
}

// Cleaners returns all registered cleaners in insertion order.
func (m *Market) Cleaners() []model.Cleaner {
	out := make([]model.Cleaner, 0, len(m.cleanerOrder))
	for _, id := range m.cleanerOrder {
		out = append(out, m.cleaners[id])
	}
	return out
}

// NumCleaners returns the registry size.
func (m *Market) NumCleaners() int { return len(m.cleaners) }

// CleanersInRange returns every cleaner within radiusKM of the point,
// boundary inclusive, in insertion order.
func (m *Market) CleanersInRange(p geo.Point, radiusKM float64) ([]model.Cleaner, error) {
	if radiusKM <= 0 {
		return nil, eris.New("market: search radius must be positive")
	}

	var inRange []model.Cleaner
	for _, id := range m.cleanerOrder {
		c := m.cleaners[id]
		if c.DistanceKM(p) <= radiusKM {
			inRange = append(inRange, c)
		}
	}
	return inRange, nil
}

// TotalSTRTAM sums the demand weight over all postal codes. Only defined for
// the postal-code variant.
func (m *Market) TotalSTRTAM() (int, error) {
	if !m.PostalCodeBased() {
		return 0, eris.New("market: TAM only available for postal code markets")
	}
	var total int
	for _, pc := range m.postalCodes {
		total += pc.STRTAM
	}
	return total, nil
}

// TotalAreaKM2 returns the market area: the sum of postal code areas, or
// pi*r^2 for location markets. Postal codes with unknown area contribute
// zero.
func (m *Market) TotalAreaKM2() float64 {
	if m.PostalCodeBased() {
		var total float64
		for _, pc := range m.postalCodes {
			total += pc.AreaKM2
		}
		return total
	}
	return math.Pi * m.radiusKM * m.radiusKM
}

// SampleSearchLocation draws a search location from the market's demand
// model. Postal-code markets sample a postal code with probability
// proportional to its TAM, then jitter the centroid with a 1 km Gaussian;
// location markets sample uniformly within the radius and return an empty
// postal code.
func (m *Market) SampleSearchLocation(rng *rand.Rand) (geo.Point, string, error) {
	if !m.PostalCodeBased() {
		p, err := geo.SamplePointInRadius(rng, m.center, m.radiusKM)
		if err != nil {
			return geo.Point{}, "", eris.Wrap(err, "market: sample location")
		}
		return p, "", nil
	}

	total, err := m.TotalSTRTAM()
	if err != nil {
		return geo.Point{}, "", err
	}
	if total <= 0 {
		return geo.Point{}, "", eris.Errorf("market: market %s has zero total TAM", m.id)
	}

	// Categorical draw over the renormalized TAM weights, in lexical
	// postal code order so seeded runs stay deterministic.
	target := rng.Float64()
	var cumulative float64
	selected := m.postalCodes[m.codeOrder[len(m.codeOrder)-1]]
	for _, code := range m.codeOrder {
		pc := m.postalCodes[code]
		cumulative += float64(pc.STRTAM) / float64(total)
		if target < cumulative {
			selected = pc
			break
		}
	}

	p, err := geo.JitterGaussian(rng, selected.Centroid, searchJitterSigmaKM)
	if err != nil {
		return geo.Point{}, "", eris.Wrap(err, "market: jitter search location")
	}
	return p, selected.Code, nil
}

// PostalNeighbors returns all other postal codes whose centroid lies within
// thresholdKM of the given code's centroid, excluding the code itself.
func (m *Market) PostalNeighbors(code string, thresholdKM float64) ([]model.PostalCode, error) {
	if thresholdKM <= 0 {
		return nil, eris.New("market: neighbor threshold must be positive")
	}
	origin, ok := m.postalCodes[code]
	if !ok {
		return nil, eris.Errorf("market: unknown postal code %q", code)
	}

	var neighbors []model.PostalCode
	for _, other := range m.codeOrder {
		if other == code {
			continue
		}
		pc := m.postalCodes[other]
		if origin.DistanceKM(pc) <= thresholdKM {
			neighbors = append(neighbors, pc)
		}
	}
	return neighbors, nil
}
