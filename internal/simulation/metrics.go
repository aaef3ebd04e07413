package simulation

import (
	"math"
	"sort"

	"github.com/sells-group/market-sim/internal/geo"
	"github.com/sells-group/market-sim/internal/market"
	"github.com/sells-group/market-sim/internal/model"
)

// Funnel stage keys used in the distance and score series.
const (
	StageOffer      = "offer"
	StageBid        = "bid"
	StageConnection = "connection"
)

// Metrics folds a stream of search results into running aggregates and
// derives the summary metric vocabulary consumed by reporting layers.
type Metrics struct {
	searchCount     int
	connectionCount int
	bidCounts       []int

	distances map[string][]float64
	scores    map[string][]float64

	searchPoints     []geo.Point
	connectionPoints []geo.Point
}

// NewMetrics returns an empty aggregator.
func NewMetrics() *Metrics {
	return &Metrics{
		distances: make(map[string][]float64),
		scores:    make(map[string][]float64),
	}
}

// AddResult folds a single search result into the aggregates.
func (m *Metrics) AddResult(r model.SearchResult) {
	m.searchCount++
	m.bidCounts = append(m.bidCounts, r.NumBids())
	m.connectionCount += r.NumConnections()

	m.searchPoints = append(m.searchPoints, r.Location)
	if r.NumConnections() > 0 {
		m.connectionPoints = append(m.connectionPoints, r.Location)
	}

	for _, o := range r.Offers {
		m.distances[StageOffer] = append(m.distances[StageOffer], o.DistanceKM)
		m.scores[StageOffer] = append(m.scores[StageOffer], o.Score)
	}
	for _, b := range r.Bids {
		m.distances[StageBid] = append(m.distances[StageBid], b.DistanceKM)
		m.scores[StageBid] = append(m.scores[StageBid], b.Score)
	}
	for _, c := range r.Connections {
		m.distances[StageConnection] = append(m.distances[StageConnection], c.DistanceKM)
		m.scores[StageConnection] = append(m.scores[StageConnection], c.Score)
	}
}

// AddResults folds a batch of results in order.
func (m *Metrics) AddResults(results []model.SearchResult) {
	for _, r := range results {
		m.AddResult(r)
	}
}

// SearchCount returns the number of folded searches.
func (m *Metrics) SearchCount() int { return m.searchCount }

// ConnectionCount returns the number of folded connections.
func (m *Metrics) ConnectionCount() int { return m.connectionCount }

// Calculate derives the summary metrics for the given market. Degenerate
// states fail soft: zero searches yield a zero connection rate and omit the
// per-stage aggregates, and a zero-area market zeroes the geographic block
// instead of dividing by zero.
func (m *Metrics) Calculate(mkt *market.Market) map[string]float64 {
	metrics := map[string]float64{}

	if m.searchCount > 0 {
		metrics["connection_rate"] = float64(m.connectionCount) / float64(m.searchCount)
	} else {
		metrics["connection_rate"] = 0
	}

	if len(m.bidCounts) > 0 {
		counts := make([]float64, len(m.bidCounts))
		withBids := 0
		for i, n := range m.bidCounts {
			counts[i] = float64(n)
			if n > 0 {
				withBids++
			}
		}
		metrics["avg_bids_per_search"] = mean(counts)
		metrics["med_bids_per_search"] = median(counts)
		metrics["pct_searches_with_bids"] = float64(withBids) / float64(len(m.bidCounts))
	}

	for _, stage := range []string{StageOffer, StageBid, StageConnection} {
		if ds := m.distances[stage]; len(ds) > 0 {
			metrics["avg_"+stage+"_distance"] = mean(ds)
			metrics["med_"+stage+"_distance"] = median(ds)
		}
		if ss := m.scores[stage]; len(ss) > 0 {
			metrics["avg_"+stage+"_score"] = mean(ss)
			metrics["med_"+stage+"_score"] = median(ss)
		}
	}

	for k, v := range m.coverageMetrics(mkt) {
		metrics[k] = v
	}

	return metrics
}

// coverageMetrics computes the geographic block: densities, coverage
// ratios, and connection ratio. A market with zero total area returns all
// zeros for the block.
func (m *Metrics) coverageMetrics(mkt *market.Market) map[string]float64 {
	metrics := map[string]float64{}

	totalArea := mkt.TotalAreaKM2()
	if totalArea <= 0 {
		metrics["search_density"] = 0
		metrics["connection_density"] = 0
		metrics["coverage_ratio"] = 0
		metrics["active_coverage_ratio"] = 0
		return metrics
	}

	metrics["search_density"] = float64(len(m.searchPoints)) / totalArea
	metrics["connection_density"] = float64(len(m.connectionPoints)) / totalArea
	metrics["coverage_ratio"] = coverageRatio(mkt, false)
	metrics["active_coverage_ratio"] = coverageRatio(mkt, true)

	if !mkt.PostalCodeBased() {
		var radii []float64
		for _, c := range mkt.Cleaners() {
			if c.BiddingActive {
				radii = append(radii, c.ServiceRadiusKM)
			}
		}
		if len(radii) > 0 {
			metrics["avg_service_radius"] = mean(radii)
		}
	}

	if len(m.searchPoints) > 0 && len(m.connectionPoints) > 0 {
		metrics["connection_ratio"] = float64(len(m.connectionPoints)) / float64(len(m.searchPoints))
	}

	return metrics
}

// coverageRatio approximates the fraction of market area reachable by at
// least one cleaner. Per postal code, the single largest service radius
// stands in for the union of all circles, saturating at the postal code's
// own area; location markets sum per-cleaner circles, capped at the market
// area. The approximation deliberately understates dense many-cleaner
// coverage and must match the documented formula.
func coverageRatio(mkt *market.Market, activeOnly bool) float64 {
	totalArea := mkt.TotalAreaKM2()
	if totalArea <= 0 {
		return 0
	}

	considered := func(c model.Cleaner) bool {
		return !activeOnly || c.BiddingActive
	}

	if mkt.PostalCodeBased() {
		maxRadius := map[string]float64{}
		for _, c := range mkt.Cleaners() {
			if !considered(c) {
				continue
			}
			if c.ServiceRadiusKM > maxRadius[c.PostalCode] {
				maxRadius[c.PostalCode] = c.ServiceRadiusKM
			}
		}

		var covered float64
		for _, pc := range mkt.PostalCodes() {
			r, ok := maxRadius[pc.Code]
			if !ok || pc.AreaKM2 <= 0 {
				continue
			}
			covered += math.Min(math.Pi*r*r, pc.AreaKM2)
		}
		return math.Min(1, covered/totalArea)
	}

	var covered float64
	for _, c := range mkt.Cleaners() {
		if !considered(c) {
			continue
		}
		covered += math.Pi * c.ServiceRadiusKM * c.ServiceRadiusKM
	}
	covered = math.Min(covered, totalArea)
	return covered / totalArea
}

// GeospatialData exposes the raw point sets a presentation layer needs for
// map rendering.
type GeospatialData struct {
	Searches     []geo.Point   `json:"searches"`
	Connections  []geo.Point   `json:"connections"`
	Cleaners     []geo.Point   `json:"cleaners"`
	ServiceAreas []ServiceArea `json:"service_areas"`
}

// ServiceArea is a cleaner location with its service radius.
type ServiceArea struct {
	Center   geo.Point `json:"center"`
	RadiusKM float64   `json:"radius_km"`
}

// Geospatial returns the point sets collected so far plus the market's
// cleaner positions.
func (m *Metrics) Geospatial(mkt *market.Market) GeospatialData {
	data := GeospatialData{
		Searches:    append([]geo.Point(nil), m.searchPoints...),
		Connections: append([]geo.Point(nil), m.connectionPoints...),
	}
	for _, c := range mkt.Cleaners() {
		data.Cleaners = append(data.Cleaners, c.Location)
		data.ServiceAreas = append(data.ServiceAreas, ServiceArea{Center: c.Location, RadiusKM: c.ServiceRadiusKM})
	}
	return data
}

// DistanceDistributions returns the per-stage distance series.
func (m *Metrics) DistanceDistributions() map[string][]float64 {
	return copySeries(m.distances)
}

// ScoreDistributions returns the per-stage score series.
func (m *Metrics) ScoreDistributions() map[string][]float64 {
	return copySeries(m.scores)
}

func copySeries(src map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(src))
	for k, v := range src {
		out[k] = append([]float64(nil), v...)
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
	return percentile(values, 50)
}

// percentile returns the pth percentile using linear interpolation between
// closest ranks. values need not be sorted.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
