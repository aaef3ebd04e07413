// Package loader reads market inputs from CSV files and shapefiles.
package loader

import (
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-sim/internal/geo"
	"github.com/sells-group/market-sim/internal/model"
)

// postalCodeRow is the CSV layout for postal code inputs.
type postalCodeRow struct {
	PostalCode string  `csv:"postal_code"`
	Latitude   float64 `csv:"latitude"`
	Longitude  float64 `csv:"longitude"`
	STRTAM     int     `csv:"str_tam"`
	AreaKM2    float64 `csv:"area_km2,omitempty"`
}

// cleanerRow is the CSV layout for cleaner inputs.
type cleanerRow struct {
	ContractorID      string  `csv:"contractor_id"`
	Latitude          float64 `csv:"latitude"`
	Longitude         float64 `csv:"longitude"`
	PostalCode        string  `csv:"postal_code,omitempty"`
	BiddingActive     bool    `csv:"bidding_active"`
	AssignmentActive  bool    `csv:"assignment_active"`
	Score             float64 `csv:"score"`
	ServiceRadiusKM   float64 `csv:"service_radius_km"`
	TeamSize          int     `csv:"team_size"`
	ActiveConnections int     `csv:"active_connections,omitempty"`
}

// LoadPostalCodes reads postal codes from a CSV file and assigns them to the
// given market. Rows that fail validation abort the load with the offending
// row number in the error.
func LoadPostalCodes(path, marketID string) (map[string]model.PostalCode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read postal codes %s", path)
	}

	var rows []postalCodeRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "loader: parse postal codes %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("loader: %s contains no postal codes", path)
	}

	codes := make(map[string]model.PostalCode, len(rows))
	for i, row := range rows {
		centroid, err := geo.NewPoint(row.Latitude, row.Longitude)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: postal code row %d (%s)", i+1, row.PostalCode)
		}
		pc, err := model.NewPostalCode(row.PostalCode, marketID, centroid, row.STRTAM, row.AreaKM2)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: postal code row %d", i+1)
		}
		if _, dup := codes[pc.Code]; dup {
			return nil, eris.Errorf("loader: duplicate postal code %s at row %d", pc.Code, i+1)
		}
		codes[pc.Code] = pc
	}

	zap.L().Info("postal codes loaded",
		zap.String("path", path),
		zap.Int("count", len(codes)),
	)
	return codes, nil
}

// LoadCleaners reads cleaners from a CSV file. Validation of market
// membership happens when the cleaners are added to a market, not here.
func LoadCleaners(path string) ([]model.Cleaner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read cleaners %s", path)
	}

	var rows []cleanerRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "loader: parse cleaners %s", path)
	}

	cleaners := make([]model.Cleaner, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		location, err := geo.NewPoint(row.Latitude, row.Longitude)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: cleaner row %d (%s)", i+1, row.ContractorID)
		}
		c := model.Cleaner{
			ContractorID:      row.ContractorID,
			Location:          location,
			PostalCode:        row.PostalCode,
			BiddingActive:     row.BiddingActive,
			AssignmentActive:  row.AssignmentActive,
			Score:             row.Score,
			ServiceRadiusKM:   row.ServiceRadiusKM,
			TeamSize:          row.TeamSize,
			ActiveConnections: row.ActiveConnections,
		}
		if err := c.Validate(); err != nil {
			return nil, eris.Wrapf(err, "loader: cleaner row %d", i+1)
		}
		if _, dup := seen[c.ContractorID]; dup {
			return nil, eris.Errorf("loader: duplicate contractor %s at row %d", c.ContractorID, i+1)
		}
		seen[c.ContractorID] = struct{}{}
		cleaners = append(cleaners, c)
	}

	zap.L().Info("cleaners loaded",
		zap.String("path", path),
		zap.Int("count", len(cleaners)),
	)
	return cleaners, nil
}
