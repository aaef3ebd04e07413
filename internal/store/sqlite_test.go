package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-sim/internal/geo"
	"github.com/sells-group/market-sim/internal/model"
	"github.com/sells-group/market-sim/internal/simulation"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testConfigurationRuns() []simulation.ConfigurationRun {
	seed := int64(42)
	return []simulation.ConfigurationRun{
		{
			Index: 0,
			Seed:  &seed,
			Results: []model.SearchResult{
				{
					SearchID:   "s1",
					Location:   geo.Point{Lat: 40.75, Lon: -74},
					PostalCode: "10001",
					Offers: []model.Offer{
						{ContractorID: "C1", DistanceKM: 2, Score: 0.8, Active: true, TeamSize: 1},
					},
				},
			},
			Summary: map[string]float64{"connection_rate": 0.2},
		},
		{
			Index:   1,
			Results: nil,
			Summary: map[string]float64{"connection_rate": 0.3},
		},
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateRun(ctx, "nyc", simulation.DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, RunStatusQueued, created.Status)

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "nyc", got.MarketID)
	assert.Equal(t, simulation.DefaultConfig(), got.Config)
	assert.Nil(t, got.Summary)

	summary := map[string]float64{"connection_rate": 0.18, "avg_bids_per_search": 1.4}
	require.NoError(t, st.FinishRun(ctx, created.ID, summary))

	got, err = st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	assert.InDelta(t, 0.18, got.Summary["connection_rate"], 1e-9)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateRun(ctx, "nyc", simulation.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, created.ID, "market has no postal codes"))

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "market has no postal codes", got.Error)
}

func TestSQLite_RunNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "nope")
	assert.Error(t, err)
	assert.Error(t, st.FinishRun(ctx, "nope", nil))
	assert.Error(t, st.FailRun(ctx, "nope", "x"))
}

func TestSQLite_ListRuns_Filtered(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "nyc", simulation.DefaultConfig())
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "chicago", simulation.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, a.ID, nil))

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = st.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, a.ID, runs[0].ID)

	runs, err = st.ListRuns(ctx, RunFilter{MarketID: "chicago"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "chicago", runs[0].MarketID)

	runs, err = st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_SaveAndListResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateRun(ctx, "nyc", simulation.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, st.SaveResults(ctx, created.ID, testConfigurationRuns()))

	got, err := st.ListResults(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 0, got[0].Index)
	require.NotNil(t, got[0].Seed)
	assert.Equal(t, int64(42), *got[0].Seed)
	require.Len(t, got[0].Results, 1)
	assert.Equal(t, "10001", got[0].Results[0].PostalCode)
	assert.Equal(t, "C1", got[0].Results[0].Offers[0].ContractorID)

	assert.Equal(t, 1, got[1].Index)
	assert.Nil(t, got[1].Seed)
	assert.InDelta(t, 0.3, got[1].Summary["connection_rate"], 1e-9)
}

func TestSQLite_ListResults_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.ListResults(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, got)
}
