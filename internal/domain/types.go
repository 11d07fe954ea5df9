// Package domain defines the core data types that flow through the forecaster
// pipeline: price bars, labeled rows, date-indexed tables, partitions and the
// prediction and impact records derived from them.
package domain

import (
	"fmt"
	"sort"
	"time"
)

// ---------------------------------------------------------------------------
// Price data
// ---------------------------------------------------------------------------

// Bar is one calendar day of price data for a single instrument. Date is the
// trading day normalised to UTC midnight.
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// ---------------------------------------------------------------------------
// Labeled rows and tables
// ---------------------------------------------------------------------------

// Row is a Bar plus its forward change, label and feature values. Feature
// values are positional and match the owning table's Features names.
type Row struct {
	Bar
	ForwardChange Opt[float64]
	Label         Opt[int]
	Features      []Opt[float64]
}

// Complete reports whether every field of the row is defined.
func (r Row) Complete() bool {
	if !r.ForwardChange.Valid() || !r.Label.Valid() {
		return false
	}
	for _, f := range r.Features {
		if !f.Valid() {
			return false
		}
	}
	return true
}

// Clone returns a copy of the row that shares no memory with r.
func (r Row) Clone() Row {
	out := r
	if r.Features != nil {
		out.Features = append([]Opt[float64](nil), r.Features...)
	}
	return out
}

// Table is a date-indexed, chronologically ordered sequence of rows for a
// single symbol.
type Table struct {
	Symbol   string
	Features []string
	Rows     []Row
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// First returns the earliest date in the table.
func (t Table) First() time.Time {
	if len(t.Rows) == 0 {
		return time.Time{}
	}
	return t.Rows[0].Date
}

// Last returns the latest date in the table.
func (t Table) Last() time.Time {
	if len(t.Rows) == 0 {
		return time.Time{}
	}
	return t.Rows[len(t.Rows)-1].Date
}

// Index returns the position of the row dated exactly d. Lookup is by exact
// date match, never nearest.
func (t Table) Index(d time.Time) (int, bool) {
	i := sort.Search(len(t.Rows), func(i int) bool {
		return !t.Rows[i].Date.Before(d)
	})
	if i < len(t.Rows) && t.Rows[i].Date.Equal(d) {
		return i, true
	}
	return -1, false
}

// FeatureIndex returns the column position of the named feature.
func (t Table) FeatureIndex(name string) (int, bool) {
	for i, f := range t.Features {
		if f == name {
			return i, true
		}
	}
	return -1, false
}

// ValidateIndex checks that every row carries a date at UTC midnight and
// that dates are strictly increasing.
func (t Table) ValidateIndex() error {
	for i, r := range t.Rows {
		if r.Date.IsZero() {
			return fmt.Errorf("%w: row %d has no date", ErrConfiguration, i)
		}
		if r.Date.Location() != time.UTC || r.Date.Hour() != 0 || r.Date.Minute() != 0 ||
			r.Date.Second() != 0 || r.Date.Nanosecond() != 0 {
			return fmt.Errorf("%w: row %d date %s is not a UTC calendar day", ErrConfiguration, i, r.Date)
		}
		if i > 0 && !r.Date.After(t.Rows[i-1].Date) {
			return fmt.Errorf("%w: dates not strictly increasing at row %d (%s after %s)",
				ErrConfiguration, i, r.Date.Format(DateLayout), t.Rows[i-1].Date.Format(DateLayout))
		}
	}
	return nil
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{Symbol: t.Symbol}
	if t.Features != nil {
		out.Features = append([]string(nil), t.Features...)
	}
	if t.Rows != nil {
		out.Rows = make([]Row, len(t.Rows))
		for i, r := range t.Rows {
			out.Rows[i] = r.Clone()
		}
	}
	return out
}

// DateLayout is the calendar-date format used in configuration and logs.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q: %v", ErrConfiguration, s, err)
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Partitions
// ---------------------------------------------------------------------------

// PartitionName identifies one of the three temporal slices.
type PartitionName string

const (
	Train     PartitionName = "train"
	Test      PartitionName = "test"
	AfterTest PartitionName = "after_test"
)

// PartitionNames lists the partitions in chronological order.
var PartitionNames = []PartitionName{Train, Test, AfterTest}

// Partition is a contiguous, chronologically ordered slice of complete rows.
type Partition struct {
	Name     PartitionName
	Features []string
	Rows     []Row
}

// Len returns the number of rows in the partition.
func (p Partition) Len() int { return len(p.Rows) }

// ---------------------------------------------------------------------------
// Predictions and impacts
// ---------------------------------------------------------------------------

// PredictionRecord is a labeled row plus the label a fitted classifier
// assigned to it.
type PredictionRecord struct {
	Row
	Predicted int
}

// ScoredPartition holds the prediction records produced for one partition.
type ScoredPartition struct {
	Name    PartitionName
	Records []PredictionRecord
}

// Len returns the number of scored rows.
func (s ScoredPartition) Len() int { return len(s.Records) }

// ImpactRecord is the position-sized outcome of a single prediction.
// CumulativeEquity is the running sum of PositionResult within the owning
// partition only.
type ImpactRecord struct {
	Date             time.Time
	Label            int
	Predicted        int
	ForwardChange    float64
	Correct          bool
	SignedOutcome    float64
	PositionResult   float64
	CumulativeEquity float64
}

// Signal is the trading direction implied by a predicted label.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
)

// SignalFor maps a binary predicted label to a trading signal.
func SignalFor(predicted int) Signal {
	if predicted > 0 {
		return SignalBuy
	}
	return SignalSell
}
