// Package store persists simulation runs and their results.
package store

import (
	"context"
	"time"

	"github.com/sells-group/market-sim/internal/simulation"
)

// RunStatus tracks a simulation run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted simulation run: the configuration it was started with
// and, once complete, the aggregated summary metrics.
type Run struct {
	ID        string             `json:"id"`
	MarketID  string             `json:"market_id"`
	Status    RunStatus          `json:"status"`
	Config    simulation.Config  `json:"config"`
	Summary   map[string]float64 `json:"summary,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   RunStatus `json:"status,omitempty"`
	MarketID string    `json:"market_id,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Offset   int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for simulation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, marketID string, cfg simulation.Config) (*Run, error)
	FinishRun(ctx context.Context, runID string, summary map[string]float64) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Results
	SaveResults(ctx context.Context, runID string, runs []simulation.ConfigurationRun) error
	ListResults(ctx context.Context, runID string) ([]simulation.ConfigurationRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
