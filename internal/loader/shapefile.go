package loader

import (
	"math"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	geopkg "github.com/sells-group/market-sim/internal/geo"
	"github.com/sells-group/market-sim/internal/model"
)

// PostalArea is a postal code boundary reduced to the two quantities the
// simulation needs: its centroid and its surface area.
type PostalArea struct {
	Centroid geopkg.Point
	AreaKM2  float64
}

// LoadPostalAreas reads polygon boundaries from a shapefile and returns
// per-code centroids and areas. codeField names the attribute that carries
// the postal code (ZCTA5CE20 in Census ZCTA files). Records without a
// usable polygon are skipped.
func LoadPostalAreas(shpPath, codeField string) (map[string]PostalArea, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	codeIdx := fieldIndex(reader, codeField)
	if codeIdx < 0 {
		return nil, eris.Errorf("loader: shapefile field %s not found", codeField)
	}

	areas := make(map[string]PostalArea)
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		code := strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))
		if code == "" {
			skipped++
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		centroidCoord, err := xy.Centroid(mp)
		if err != nil {
			skipped++
			continue
		}
		centroid, err := geopkg.NewPoint(centroidCoord[1], centroidCoord[0])
		if err != nil {
			skipped++
			continue
		}

		areas[code] = PostalArea{
			Centroid: centroid,
			AreaKM2:  areaKM2(mp, centroid.Lat),
		}
	}

	if skipped > 0 {
		zap.L().Debug("loader: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	zap.L().Info("postal areas loaded",
		zap.String("path", shpPath),
		zap.Int("count", len(areas)),
	)
	return areas, nil
}

// ApplyAreas copies shapefile-derived areas onto matching postal codes and
// returns the updated set plus the number of codes that matched. Codes
// without a boundary keep whatever area they already carry.
func ApplyAreas(codes map[string]model.PostalCode, areas map[string]PostalArea) (map[string]model.PostalCode, int) {
	out := make(map[string]model.PostalCode, len(codes))
	matched := 0
	for code, pc := range codes {
		if area, ok := areas[code]; ok {
			pc.AreaKM2 = area.AreaKM2
			matched++
		}
		out[code] = pc
	}
	return out, matched
}

// areaKM2 converts a planar degree-squared area to km^2. Longitude degrees
// shrink with latitude, so the east-west axis is scaled by cos(lat) at the
// polygon's centroid.
func areaKM2(mp *geom.MultiPolygon, centroidLat float64) float64 {
	areaDeg2 := math.Abs(mp.Area())
	latScale := geopkg.KMPerDegree
	lonScale := geopkg.KMPerDegree * math.Cos(centroidLat*math.Pi/180)
	return areaDeg2 * latScale * lonScale
}

// fieldIndex returns the index of a named attribute, or -1 if absent.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Malformed rings are skipped rather than failing the record.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("loader: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("loader: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
