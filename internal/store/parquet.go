package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"forecaster/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ ImpactStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and ImpactStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // UTC midnight, Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	AdjClose  float64 `parquet:"adj_close"`
	Volume    int64   `parquet:"volume"`
}

// ImpactRow is the Parquet schema for an exported impact table.
type ImpactRow struct {
	Timestamp        int64   `parquet:"timestamp,timestamp(millisecond)"`
	Label            int32   `parquet:"label"`
	Predicted        int32   `parquet:"predicted_label"`
	ForwardChange    float64 `parquet:"forward_change"`
	Correct          bool    `parquet:"correct"`
	SignedOutcome    float64 `parquet:"signed_outcome"`
	PositionResult   float64 `parquet:"position_result"`
	CumulativeEquity float64 `parquet:"cumulative_equity"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/prices/<SYMBOL>/<YYYY>.parquet
//
// Existing files are merged, with incoming bars replacing stored bars of the
// same date.
func (s *ParquetStore) WriteBars(ctx context.Context, symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	symbol = strings.ToUpper(symbol)

	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		groups[b.Date.Year()] = append(groups[b.Date.Year()], BarRecord{
			Symbol:    symbol,
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			AdjClose:  b.AdjClose,
			Volume:    b.Volume,
		})
	}

	years := make([]int, 0, len(groups))
	for y := range groups {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.barPath(symbol, year)

		// Read existing records to merge.
		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		merged := mergeBarRecords(existing, groups[year])

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and date
// range. Years without a file are skipped.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := s.barPath(symbol, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Date:     ts,
				Open:     r.Open,
				High:     r.High,
				Low:      r.Low,
				Close:    r.Close,
				AdjClose: r.AdjClose,
				Volume:   r.Volume,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "prices")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// ImpactStore implementation
// ---------------------------------------------------------------------------

// WriteImpacts writes one partition's impact table to
// <DataDir>/runs/<runID>/<partition>.parquet. An empty table still produces
// a file so that every run has all three partitions.
func (s *ParquetStore) WriteImpacts(_ context.Context, runID string, partition domain.PartitionName, recs []domain.ImpactRecord) error {
	rows := make([]ImpactRow, len(recs))
	for i, r := range recs {
		rows[i] = ImpactRow{
			Timestamp:        r.Date.UnixMilli(),
			Label:            int32(r.Label),
			Predicted:        int32(r.Predicted),
			ForwardChange:    r.ForwardChange,
			Correct:          r.Correct,
			SignedOutcome:    r.SignedOutcome,
			PositionResult:   r.PositionResult,
			CumulativeEquity: r.CumulativeEquity,
		}
	}
	if err := writeParquetFile(s.impactPath(runID, partition), rows); err != nil {
		return fmt.Errorf("writing %s impacts for run %s: %w", partition, runID, err)
	}
	return nil
}

// ReadImpacts reads one partition's impact table back.
func (s *ParquetStore) ReadImpacts(_ context.Context, runID string, partition domain.PartitionName) ([]domain.ImpactRecord, error) {
	rows, err := readParquetFile[ImpactRow](s.impactPath(runID, partition))
	if err != nil {
		return nil, fmt.Errorf("reading %s impacts for run %s: %w", partition, runID, err)
	}
	recs := make([]domain.ImpactRecord, len(rows))
	for i, r := range rows {
		recs[i] = domain.ImpactRecord{
			Date:             time.UnixMilli(r.Timestamp).UTC(),
			Label:            int(r.Label),
			Predicted:        int(r.Predicted),
			ForwardChange:    r.ForwardChange,
			Correct:          r.Correct,
			SignedOutcome:    r.SignedOutcome,
			PositionResult:   r.PositionResult,
			CumulativeEquity: r.CumulativeEquity,
		}
	}
	return recs, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/prices/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "prices", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// impactPath returns the filesystem path for an impact Parquet file.
// Layout: <dataDir>/runs/<runID>/<partition>.parquet
func (s *ParquetStore) impactPath(runID string, partition domain.PartitionName) string {
	return filepath.Join(s.DataDir, "runs", runID, string(partition)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
