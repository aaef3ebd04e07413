package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-sim/internal/store"
)

func TestRootCommandRegistration(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"simulate", "sweep", "runs", "report", "neighbors", "serve", "config"} {
		assert.True(t, names[want], "command %s not registered", want)
	}
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789abcdef"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatSummary(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, map[string]float64{
		"connection_rate":     0.1834,
		"avg_bids_per_search": 1.25,
	})

	out := buf.String()
	assert.Contains(t, out, "connection_rate:")
	assert.Contains(t, out, "0.1834")
	// Sorted key order.
	require.Less(t, strings.Index(out, "avg_bids_per_search"), strings.Index(out, "connection_rate"))
}

func TestFormatSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, nil)
	assert.Contains(t, buf.String(), "No metrics recorded")
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []store.Run{
		{
			ID:       "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			MarketID: "nyc",
			Status:   store.RunStatusComplete,
			Summary:  map[string]float64{"connection_rate": 0.25},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "aaaaaaaa")
	assert.NotContains(t, out, "bbbb-cccc")
	assert.Contains(t, out, "nyc")
	assert.Contains(t, out, "0.250")
}
