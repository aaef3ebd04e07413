// Package export writes simulation output as JSON, CSV, and XLSX.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/market-sim/internal/simulation"
)

// summaryDocument is the JSON export layout.
type summaryDocument struct {
	MarketID       string               `json:"market_id"`
	Config         simulation.Config    `json:"config"`
	Summary        map[string]float64   `json:"summary"`
	Configurations []configurationEntry `json:"configurations"`
}

type configurationEntry struct {
	Index   int                `json:"index"`
	Seed    *int64             `json:"seed,omitempty"`
	Summary map[string]float64 `json:"summary"`
}

// searchRow is the flattened CSV layout: one row per search with its
// connection, if any.
type searchRow struct {
	Configuration       int      `csv:"configuration"`
	SearchID            string   `csv:"search_id"`
	PostalCode          string   `csv:"postal_code,omitempty"`
	Latitude            float64  `csv:"latitude"`
	Longitude           float64  `csv:"longitude"`
	Offers              int      `csv:"offers"`
	Bids                int      `csv:"bids"`
	Connections         int      `csv:"connections"`
	ConnectedContractor string   `csv:"connected_contractor,omitempty"`
	ConnectionScore     *float64 `csv:"connection_score,omitempty"`
	ConnectionDistance  *float64 `csv:"connection_distance_km,omitempty"`
}

// WriteSummaryJSON writes the run configuration, aggregate summary, and
// per-configuration summaries as indented JSON.
func WriteSummaryJSON(path, marketID string, cfg simulation.Config, runs []simulation.ConfigurationRun) error {
	doc := summaryDocument{
		MarketID: marketID,
		Config:   cfg,
		Summary:  simulation.AggregateSummaries(runs),
	}
	for _, run := range runs {
		doc.Configurations = append(doc.Configurations, configurationEntry{
			Index:   run.Index,
			Seed:    run.Seed,
			Summary: run.Summary,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}

	zap.L().Info("summary exported", zap.String("path", path))
	return nil
}

// WriteResultsCSV flattens every search across all configuration runs into
// one CSV row each.
func WriteResultsCSV(path string, runs []simulation.ConfigurationRun) error {
	rows := flattenRows(runs)

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "export: marshal results")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}

	zap.L().Info("results exported",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// WriteWorkbook writes an XLSX workbook with three sheets: the aggregate
// summary, per-configuration metrics, and the flattened searches.
func WriteWorkbook(path, marketID string, runs []simulation.ConfigurationRun) error {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, marketID, runs); err != nil {
		return err
	}
	if err := addConfigurationsSheet(f, runs); err != nil {
		return err
	}
	if err := addSearchesSheet(f, runs); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}

	zap.L().Info("workbook exported", zap.String("path", path))
	return nil
}

func addSummarySheet(f *xlsx.File, marketID string, runs []simulation.ConfigurationRun) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("metric")
	header.AddCell().SetString("value")

	row := sheet.AddRow()
	row.AddCell().SetString("market_id")
	row.AddCell().SetString(marketID)

	agg := simulation.AggregateSummaries(runs)
	for _, key := range sortedKeys(agg) {
		row := sheet.AddRow()
		row.AddCell().SetString(key)
		row.AddCell().SetFloat(agg[key])
	}
	return nil
}

func addConfigurationsSheet(f *xlsx.File, runs []simulation.ConfigurationRun) error {
	sheet, err := f.AddSheet("Configurations")
	if err != nil {
		return eris.Wrap(err, "export: add configurations sheet")
	}

	// Column set is the union of metric names, in sorted order, so every
	// configuration lines up even when a metric is missing from some runs.
	union := map[string]float64{}
	for _, run := range runs {
		for k := range run.Summary {
			union[k] = 0
		}
	}
	keys := sortedKeys(union)

	header := sheet.AddRow()
	header.AddCell().SetString("configuration")
	header.AddCell().SetString("seed")
	for _, key := range keys {
		header.AddCell().SetString(key)
	}

	for _, run := range runs {
		row := sheet.AddRow()
		row.AddCell().SetInt(run.Index)
		if run.Seed != nil {
			row.AddCell().SetString(fmt.Sprintf("%d", *run.Seed))
		} else {
			row.AddCell().SetString("")
		}
		for _, key := range keys {
			if v, ok := run.Summary[key]; ok {
				row.AddCell().SetFloat(v)
			} else {
				row.AddCell().SetString("")
			}
		}
	}
	return nil
}

func addSearchesSheet(f *xlsx.File, runs []simulation.ConfigurationRun) error {
	sheet, err := f.AddSheet("Searches")
	if err != nil {
		return eris.Wrap(err, "export: add searches sheet")
	}

	header := sheet.AddRow()
	for _, name := range []string{
		"configuration", "search_id", "postal_code", "latitude", "longitude",
		"offers", "bids", "connections", "connected_contractor",
	} {
		header.AddCell().SetString(name)
	}

	for _, r := range flattenRows(runs) {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.Configuration)
		row.AddCell().SetString(r.SearchID)
		row.AddCell().SetString(r.PostalCode)
		row.AddCell().SetFloat(r.Latitude)
		row.AddCell().SetFloat(r.Longitude)
		row.AddCell().SetInt(r.Offers)
		row.AddCell().SetInt(r.Bids)
		row.AddCell().SetInt(r.Connections)
		row.AddCell().SetString(r.ConnectedContractor)
	}
	return nil
}

func flattenRows(runs []simulation.ConfigurationRun) []searchRow {
	var rows []searchRow
	for _, run := range runs {
		for _, result := range run.Results {
			row := searchRow{
				Configuration: run.Index,
				SearchID:      result.SearchID,
				PostalCode:    result.PostalCode,
				Latitude:      result.Location.Lat,
				Longitude:     result.Location.Lon,
				Offers:        result.NumOffers(),
				Bids:          result.NumBids(),
				Connections:   result.NumConnections(),
			}
			if result.NumConnections() > 0 {
				conn := result.Connections[0]
				score := conn.Score
				dist := conn.DistanceKM
				row.ConnectedContractor = conn.ContractorID
				row.ConnectionScore = &score
				row.ConnectionDistance = &dist
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
