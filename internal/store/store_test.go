package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"forecaster/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameBar(a, b domain.Bar) bool {
	a.Date, b.Date = a.Date.UTC(), b.Date.UTC()
	return a.Date.Equal(b.Date) && a.Open == b.Open && a.High == b.High && a.Low == b.Low &&
		a.Close == b.Close && a.AdjClose == b.AdjClose && a.Volume == b.Volume
}

func sameImpact(a, b domain.ImpactRecord) bool {
	ad, bd := a.Date, b.Date
	a.Date, b.Date = time.Time{}, time.Time{}
	return ad.Equal(bd) && a == b
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("spy", 2024)
	if want := filepath.Join("/data", "prices", "SPY", "2024.parquet"); bp != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, want)
	}

	ip := ps.impactPath("run-1", domain.AfterTest)
	if want := filepath.Join("/data", "runs", "run-1", "after_test.parquet"); ip != want {
		t.Errorf("impactPath mismatch:\n  got  %s\n  want %s", ip, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Date: day(2023, 12, 29), Open: 475.0, High: 477.0, Low: 473.0, Close: 475.3, AdjClose: 470.1, Volume: 120000000},
		{Date: day(2024, 1, 2), Open: 185.0, High: 186.5, Low: 184.0, Close: 185.5, AdjClose: 184.9, Volume: 50000000},
		{Date: day(2024, 1, 3), Open: 185.5, High: 187.0, Low: 185.0, Close: 186.0, AdjClose: 185.4, Volume: 45000000},
	}
	if err := ps.WriteBars(ctx, "SPY", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "SPY", day(2023, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadBars returned %d bars, want 3", len(got))
	}
	for i := range bars {
		if !sameBar(got[i], bars[i]) {
			t.Errorf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}
	if got[0].Date.Location() != time.UTC {
		t.Errorf("bar date location = %s, want UTC", got[0].Date.Location())
	}

	// The range is inclusive on both ends.
	got, err = ps.ReadBars(ctx, "SPY", day(2024, 1, 2), day(2024, 1, 2))
	if err != nil || len(got) != 1 {
		t.Fatalf("single-day ReadBars = %d bars, %v", len(got), err)
	}

	// Unknown symbols read as empty, not as an error.
	got, err = ps.ReadBars(ctx, "NONE", day(2024, 1, 1), day(2024, 12, 31))
	if err != nil || len(got) != 0 {
		t.Errorf("ReadBars(NONE) = %d bars, %v", len(got), err)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{
		{Date: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 403, AdjClose: 403, Volume: 30000000},
	}
	if err := ps.WriteBars(ctx, "MSFT", first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// A second write for the same year merges; a repeated date is replaced.
	second := []domain.Bar{
		{Date: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 404, AdjClose: 404, Volume: 30000000},
		{Date: day(2024, 3, 4), Open: 403, High: 410, Low: 402, Close: 408, AdjClose: 408, Volume: 35000000},
	}
	if err := ps.WriteBars(ctx, "MSFT", second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404 {
		t.Errorf("merged bar Close = %v, want 404 (incoming wins)", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if symbols, err := ps.ListSymbols(ctx); err != nil || len(symbols) != 0 {
		t.Fatalf("ListSymbols on empty store = %v, %v", symbols, err)
	}

	bar := []domain.Bar{{Date: day(2024, 1, 2), Open: 1, High: 1, Low: 1, Close: 1, AdjClose: 1}}
	for _, sym := range []string{"googl", "AAPL"} {
		if err := ps.WriteBars(ctx, sym, bar); err != nil {
			t.Fatalf("WriteBars(%s): %v", sym, err)
		}
	}

	symbols, err := ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}

func TestParquetStoreImpacts(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	recs := []domain.ImpactRecord{
		{Date: day(2024, 1, 2), Label: 1, Predicted: 1, ForwardChange: 1.5, Correct: true,
			SignedOutcome: 1.5, PositionResult: 150, CumulativeEquity: 150},
		{Date: day(2024, 1, 3), Label: 0, Predicted: 1, ForwardChange: -0.5, Correct: false,
			SignedOutcome: -0.5, PositionResult: -50, CumulativeEquity: 100},
	}
	if err := ps.WriteImpacts(ctx, "run-1", domain.Test, recs); err != nil {
		t.Fatalf("WriteImpacts: %v", err)
	}
	got, err := ps.ReadImpacts(ctx, "run-1", domain.Test)
	if err != nil {
		t.Fatalf("ReadImpacts: %v", err)
	}
	if len(got) != 2 || !sameImpact(got[0], recs[0]) || !sameImpact(got[1], recs[1]) {
		t.Errorf("ReadImpacts = %+v, want %+v", got, recs)
	}

	if err := ps.WriteImpacts(ctx, "run-1", domain.AfterTest, nil); err != nil {
		t.Fatalf("WriteImpacts(empty): %v", err)
	}
	got, err = ps.ReadImpacts(ctx, "run-1", domain.AfterTest)
	if err != nil || len(got) != 0 {
		t.Errorf("ReadImpacts(empty) = %d records, %v", len(got), err)
	}

	if _, err := ps.ReadImpacts(ctx, "missing", domain.Train); err == nil {
		t.Error("ReadImpacts of a missing run should fail")
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()
	ctx := context.Background()

	older := &Run{
		ID: "a", Ticker: "SPY", Classifier: "decision_tree", Status: RunFailed,
		Error: "split stage: range error", CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	newer := &Run{
		ID: "b", Ticker: "SPY", Classifier: "logistic", Status: RunSucceeded,
		Start: day(2020, 1, 2), End: day(2022, 12, 30), SplitIndex: 377,
		Config:    "ticker: SPY\n",
		CreatedAt: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC),
		Evaluations: []Evaluation{
			{Partition: domain.AfterTest, Rows: 0, FinalEquity: 0,
				AverageDaily: math.NaN(), AverageWeekly: math.NaN(), AverageMonthly: math.NaN(), AverageQuarterly: math.NaN(),
				Accuracy: math.NaN(), Precision: math.NaN(), Recall: math.NaN(), F1: math.NaN()},
			{Partition: domain.Train, Rows: 377, FinalEquity: 12.5,
				AverageDaily: 0.03, AverageWeekly: 0.031, AverageMonthly: 0.029, AverageQuarterly: 0.033,
				Accuracy: 0.61, Precision: 0.6, Recall: 0.7, F1: 0.646},
		},
	}
	for _, r := range []*Run{older, newer} {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s): %v", r.ID, err)
		}
	}

	if err := s.SaveRun(ctx, older); err == nil {
		t.Error("SaveRun with a duplicate ID should fail")
	}

	got, err := s.GetRun(ctx, "b")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunSucceeded || got.SplitIndex != 377 || !got.Start.Equal(newer.Start) || got.Config != newer.Config {
		t.Errorf("GetRun = %+v", got)
	}
	if len(got.Evaluations) != 2 {
		t.Fatalf("GetRun evaluations = %d, want 2", len(got.Evaluations))
	}
	// Evaluations come back in chronological partition order.
	if got.Evaluations[0].Partition != domain.Train || got.Evaluations[1].Partition != domain.AfterTest {
		t.Errorf("evaluation order = %s, %s", got.Evaluations[0].Partition, got.Evaluations[1].Partition)
	}
	if got.Evaluations[0].F1 != 0.646 {
		t.Errorf("train F1 = %v, want 0.646", got.Evaluations[0].F1)
	}
	if !math.IsNaN(got.Evaluations[1].AverageDaily) || !math.IsNaN(got.Evaluations[1].Accuracy) {
		t.Errorf("NaN metrics should round-trip through NULL: %+v", got.Evaluations[1])
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[1].ID != "a" {
		t.Errorf("ListRuns order = %v, want [b a]", runs)
	}
	if runs[1].Error == "" || !runs[1].Start.IsZero() {
		t.Errorf("failed run = %+v", runs[1])
	}

	if runs, err := s.ListRuns(ctx, 1); err != nil || len(runs) != 1 {
		t.Errorf("ListRuns(1) = %d runs, %v", len(runs), err)
	}

	if _, err := s.GetRun(ctx, "zzz"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(unknown) error = %v, want ErrRunNotFound", err)
	}
}
