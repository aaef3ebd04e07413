// Package geo provides the distance and point-sampling primitives used by
// the market and simulation layers.
package geo

import (
	"math"
	"math/rand"

	"github.com/rotisserie/eris"
)

// EarthRadiusKM is the mean Earth radius used by the haversine formula.
const EarthRadiusKM = 6371.0

// DegreesPerKM is an approximate conversion factor for latitude degrees to
// kilometers. At mid-latitudes, 1 degree of latitude is approximately 111 km.
const DegreesPerKM = 1.0 / 111.0

// KMPerDegree is the inverse conversion, kilometers per degree of latitude.
const KMPerDegree = 111.0

// Point is a validated geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint builds a Point, rejecting out-of-range coordinates. Coordinates
// are never clamped.
func NewPoint(lat, lon float64) (Point, error) {
	if lat < -90 || lat > 90 {
		return Point{}, eris.Errorf("geo: latitude %f out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return Point{}, eris.Errorf("geo: longitude %f out of range [-180, 180]", lon)
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// DistanceKM returns the great-circle distance to q in kilometers using the
// haversine formula. Symmetric, zero for identical points, never negative.
func (p Point) DistanceKM(q Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// SamplePointInRadius draws a random point within radiusKM of center. The
// bearing is uniform and the distance is radius-uniform (not area-uniform),
// converted to a lat/lon offset with a local flat-earth approximation.
func SamplePointInRadius(rng *rand.Rand, center Point, radiusKM float64) (Point, error) {
	if radiusKM <= 0 {
		return Point{}, eris.New("geo: sample radius must be positive")
	}

	angle := rng.Float64() * 2 * math.Pi
	r := rng.Float64() * radiusKM

	latOffset := r * math.Cos(angle) * DegreesPerKM
	lonOffset := r * math.Sin(angle) / (KMPerDegree * math.Cos(center.Lat*math.Pi/180))

	return NewPoint(center.Lat+latOffset, center.Lon+lonOffset)
}

// JitterGaussian perturbs center with an independent 2-D Gaussian of the
// given standard deviation in kilometers on both axes.
func JitterGaussian(rng *rand.Rand, center Point, sigmaKM float64) (Point, error) {
	if sigmaKM <= 0 {
		return Point{}, eris.New("geo: jitter sigma must be positive")
	}

	latStd := sigmaKM * DegreesPerKM
	lonStd := sigmaKM / (KMPerDegree * math.Cos(center.Lat*math.Pi/180))

	lat := center.Lat + rng.NormFloat64()*latStd
	lon := center.Lon + rng.NormFloat64()*lonStd

	return NewPoint(lat, lon)
}
