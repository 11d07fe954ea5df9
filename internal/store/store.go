// Package store defines storage interfaces for persisting and retrieving
// price bars, per-partition impact tables and backtest run summaries.
package store

import (
	"context"
	"time"

	"forecaster/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars for symbol, replacing bars that
	// share a date.
	WriteBars(ctx context.Context, symbol string, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end] in date order.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// ImpactStore exports the impact records of a run for external plotting.
type ImpactStore interface {
	// WriteImpacts replaces the impact table of one partition of a run.
	WriteImpacts(ctx context.Context, runID string, partition domain.PartitionName, recs []domain.ImpactRecord) error

	// ReadImpacts returns the impact table of one partition of a run.
	ReadImpacts(ctx context.Context, runID string, partition domain.PartitionName) ([]domain.ImpactRecord, error)
}

// RunStore persists run summaries and their per-partition evaluations.
type RunStore interface {
	// SaveRun inserts a run and its evaluations.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run and its evaluations by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	// Evaluations are not loaded.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// RunStatus is the outcome of a pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the persisted summary of one pipeline run.
type Run struct {
	ID          string
	Ticker      string
	Classifier  string
	Status      RunStatus
	Error       string
	Start       time.Time
	End         time.Time
	SplitIndex  int
	Config      string // YAML snapshot of the pipeline settings
	CreatedAt   time.Time
	Evaluations []Evaluation
}

// Evaluation holds the metrics of one partition of a run. Undefined metrics
// are NaN in memory and NULL in the database.
type Evaluation struct {
	Partition        domain.PartitionName
	Rows             int
	FinalEquity      float64
	AverageDaily     float64
	AverageWeekly    float64
	AverageMonthly   float64
	AverageQuarterly float64
	Accuracy         float64
	Precision        float64
	Recall           float64
	F1               float64
}
