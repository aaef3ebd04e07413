// Package model defines the domain entities of the marketplace simulation:
// postal codes, cleaners, and the offer/bid/connection records produced by
// a search.
package model

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-sim/internal/geo"
)

// PostalCode is a postal code area belonging to exactly one market.
// Immutable once loaded.
type PostalCode struct {
	Code     string    `json:"postal_code"`
	MarketID string    `json:"market"`
	Centroid geo.Point `json:"centroid"`

	// STRTAM is the short-term-rental total addressable market, the
	// demand weight used for search location sampling.
	STRTAM int `json:"str_tam"`

	// AreaKM2 is the postal code area in square kilometers. Zero means
	// unknown; density and coverage math treat it as absent.
	AreaKM2 float64 `json:"area_km2,omitempty"`
}

// NewPostalCode validates and builds a PostalCode.
func NewPostalCode(code, marketID string, centroid geo.Point, strTAM int, areaKM2 float64) (PostalCode, error) {
	pc := PostalCode{
		Code:     code,
		MarketID: marketID,
		Centroid: centroid,
		STRTAM:   strTAM,
		AreaKM2:  areaKM2,
	}
	if err := pc.Validate(); err != nil {
		return PostalCode{}, err
	}
	return pc, nil
}

// Validate checks the postal code invariants.
func (pc PostalCode) Validate() error {
	if pc.Code == "" {
		return eris.New("model: postal code is required")
	}
	if pc.MarketID == "" {
		return eris.Errorf("model: postal code %s: market id is required", pc.Code)
	}
	if pc.STRTAM < 0 {
		return eris.Errorf("model: postal code %s: str_tam cannot be negative", pc.Code)
	}
	if pc.AreaKM2 < 0 {
		return eris.Errorf("model: postal code %s: area cannot be negative", pc.Code)
	}
	return nil
}

// DistanceKM returns the great-circle distance between the centroids of two
// postal codes.
func (pc PostalCode) DistanceKM(other PostalCode) float64 {
	return pc.Centroid.DistanceKM(other.Centroid)
}

// TAMWeight returns this postal code's demand weight relative to the total
// market TAM.
func (pc PostalCode) TAMWeight(totalTAM int) (float64, error) {
	if totalTAM <= 0 {
		return 0, eris.New("model: total market TAM must be positive")
	}
	return float64(pc.STRTAM) / float64(totalTAM), nil
}
