package prices

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"forecaster/internal/config"
	"forecaster/internal/domain"
	"forecaster/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const sampleCSV = `Date,Open,High,Low,Close,Adj Close,Volume
2012-05-14,16.10,16.20,15.80,15.90,11.20,1000
2012-05-11,16.00,16.30,15.90,16.10,11.35,2000.0
2012-05-15,null,null,null,null,null,0
`

func TestReadCSV(t *testing.T) {
	bars, err := readCSV(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	// Rows come back sorted by date.
	if !bars[0].Date.Equal(day(2012, 5, 11)) || !bars[1].Date.Equal(day(2012, 5, 14)) {
		t.Errorf("dates = %s, %s", bars[0].Date, bars[1].Date)
	}
	if bars[0].Close != 16.10 || bars[0].AdjClose != 11.35 || bars[0].Volume != 2000 {
		t.Errorf("bar 0 = %+v", bars[0])
	}
	if !math.IsNaN(bars[2].Open) || !math.IsNaN(bars[2].Close) {
		t.Errorf("null prices should be NaN: %+v", bars[2])
	}
}

func TestReadCSVNoAdjClose(t *testing.T) {
	in := "date,open,high,low,close,volume\n2024-01-02T00:00:00Z,1,2,0.5,1.5,10\n"
	bars, err := readCSV(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(bars) != 1 || bars[0].AdjClose != 1.5 || !bars[0].Date.Equal(day(2024, 1, 2)) {
		t.Errorf("bars = %+v", bars)
	}
}

func TestReadCSVErrors(t *testing.T) {
	if _, err := readCSV(context.Background(), strings.NewReader("Open,Close\n1,2\n")); !errors.Is(err, domain.ErrDataIntegrity) {
		t.Errorf("missing date column: error = %v, want ErrDataIntegrity", err)
	}
	if _, err := readCSV(context.Background(), strings.NewReader("Date,Open,Close\nyesterday,1,2\n")); !errors.Is(err, domain.ErrDataIntegrity) {
		t.Errorf("bad date: error = %v, want ErrDataIntegrity", err)
	}
}

func TestCSVSourceSymbolPlaceholder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "SPY.csv"), []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewCSVSource(filepath.Join(dir, "{symbol}.csv"))
	bars, err := src.Bars(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 3 || src.Name() != ProviderCSV {
		t.Errorf("Bars = %d, Name = %q", len(bars), src.Name())
	}
	if _, err := src.Bars(context.Background(), "QQQ"); err == nil {
		t.Error("missing file should fail")
	}
}

// fakeClient returns fixed bars per adjustment and records requests.
type fakeClient struct {
	bars map[marketdata.Adjustment][]marketdata.Bar
	reqs []marketdata.GetBarsRequest
	err  error
}

func (f *fakeClient) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[req.Adjustment], nil
}

func TestAlpacaSourceJoinsAdjusted(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	ts := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, ny) }

	fc := &fakeClient{bars: map[marketdata.Adjustment][]marketdata.Bar{
		marketdata.Raw: {
			{Timestamp: ts(3), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 300},
			{Timestamp: ts(2), Open: 9, High: 10, Low: 8, Close: 9.5, Volume: 200},
		},
		marketdata.All: {
			{Timestamp: ts(2), Close: 9.0},
		},
	}}
	src := newAlpacaSource(fc, nil, "", day(2024, 1, 1), nil, nil)

	bars, err := src.Bars(context.Background(), "spy")
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if !bars[0].Date.Equal(day(2024, 1, 2)) || bars[0].AdjClose != 9.0 || bars[0].Volume != 200 {
		t.Errorf("bar 0 = %+v", bars[0])
	}
	// No adjusted bar for Jan 3: adjusted close falls back to raw close.
	if bars[1].AdjClose != 10.5 {
		t.Errorf("bar 1 AdjClose = %v, want 10.5", bars[1].AdjClose)
	}
	if len(fc.reqs) != 2 || fc.reqs[0].TimeFrame != marketdata.OneDay || string(fc.reqs[0].Feed) != "sip" {
		t.Errorf("requests = %+v", fc.reqs)
	}
}

func TestAlpacaSourceError(t *testing.T) {
	fc := &fakeClient{err: errors.New("403 forbidden")}
	src := newAlpacaSource(fc, nil, "iex", day(2024, 1, 1), nil, nil)
	if _, err := src.Bars(context.Background(), "SPY"); err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("Bars error = %v, want wrapped 403", err)
	}
}

// fakeCalendar returns fixed trading days.
type fakeCalendar struct {
	days []string
	err  error
}

func (f *fakeCalendar) GetCalendar(_ alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]alpaca.CalendarDay, len(f.days))
	for i, d := range f.days {
		out[i] = alpaca.CalendarDay{Date: d}
	}
	return out, nil
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return ny
}

func TestLatestFinishedDay(t *testing.T) {
	ny := newYork(t)
	week := []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}

	tests := []struct {
		name    string
		cal     calendarClient
		now     time.Time
		want    time.Time
		wantErr bool
	}{
		{"mid session", &fakeCalendar{days: week[:2]}, time.Date(2024, 1, 3, 12, 0, 0, 0, ny), day(2024, 1, 2), false},
		{"after settle", &fakeCalendar{days: week[:2]}, time.Date(2024, 1, 3, 21, 0, 0, 0, ny), day(2024, 1, 3), false},
		{"weekend", &fakeCalendar{days: week}, time.Date(2024, 1, 6, 10, 0, 0, 0, ny), day(2024, 1, 5), false},
		{"utc clock past midnight", &fakeCalendar{days: week[:2]}, time.Date(2024, 1, 4, 2, 0, 0, 0, time.UTC), day(2024, 1, 3), false},
		{"no calendar, mid session", nil, time.Date(2024, 1, 3, 12, 0, 0, 0, ny), day(2024, 1, 2), false},
		{"no calendar, after settle", nil, time.Date(2024, 1, 3, 20, 30, 0, 0, ny), day(2024, 1, 3), false},
		{"calendar error", &fakeCalendar{err: errors.New("502 bad gateway")}, time.Date(2024, 1, 3, 12, 0, 0, 0, ny), time.Time{}, true},
		{"empty calendar", &fakeCalendar{}, time.Date(2024, 1, 3, 12, 0, 0, 0, ny), time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := latestFinishedDay(tt.cal, tt.now, ny)
			if (err != nil) != tt.wantErr {
				t.Fatalf("latestFinishedDay() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("latestFinishedDay() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAlpacaSourceDropsUnfinishedDay(t *testing.T) {
	ny := newYork(t)
	ts := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, ny) }
	now := time.Date(2024, 1, 3, 14, 30, 0, 0, ny)

	// Jan 3 is today's partial bar.
	fc := &fakeClient{bars: map[marketdata.Adjustment][]marketdata.Bar{
		marketdata.Raw: {
			{Timestamp: ts(2), Open: 9, High: 10, Low: 8, Close: 9.5, Volume: 200},
			{Timestamp: ts(3), Open: 10, High: 10.2, Low: 9.9, Close: 10.1, Volume: 40},
		},
		marketdata.All: {
			{Timestamp: ts(2), Close: 9.5},
			{Timestamp: ts(3), Close: 10.1},
		},
	}}
	src := newAlpacaSource(fc, &fakeCalendar{days: []string{"2024-01-02", "2024-01-03"}}, "", day(2024, 1, 1), nil, nil)
	src.now = func() time.Time { return now }

	bars, err := src.Bars(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 1 || !bars[0].Date.Equal(day(2024, 1, 2)) {
		t.Fatalf("bars = %+v, want only 2024-01-02", bars)
	}
	for _, req := range fc.reqs {
		if req.End.After(now) {
			t.Errorf("request end %s is after now %s", req.End, now)
		}
	}

	// The partial day must not reach the cache either.
	st := store.NewParquetStore(t.TempDir())
	cached := NewCachedSource(src, st, day(2024, 1, 1), nil)
	cached.now = func() time.Time { return now }
	if _, err := cached.Bars(context.Background(), "SPY"); err != nil {
		t.Fatalf("cached Bars: %v", err)
	}
	stored, err := st.ReadBars(context.Background(), "SPY", day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(stored) != 1 || !stored[0].Date.Equal(day(2024, 1, 2)) {
		t.Errorf("cached bars = %+v, want only 2024-01-02", stored)
	}
}

// countingSource counts upstream fetches.
type countingSource struct {
	bars  []domain.Bar
	calls int
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) Bars(context.Context, string) ([]domain.Bar, error) {
	c.calls++
	return c.bars, nil
}

func TestCachedSourceReadThrough(t *testing.T) {
	up := &countingSource{bars: []domain.Bar{
		{Date: day(2024, 1, 2), Open: 1, High: 1, Low: 1, Close: 1, AdjClose: 1},
		{Date: day(2024, 1, 3), Open: 2, High: 2, Low: 2, Close: 2, AdjClose: 2},
	}}
	st := store.NewParquetStore(t.TempDir())
	cs := NewCachedSource(up, st, day(2023, 1, 1), nil)
	cs.now = func() time.Time { return day(2024, 6, 1) }

	for i := 0; i < 2; i++ {
		bars, err := cs.Bars(context.Background(), "SPY")
		if err != nil {
			t.Fatalf("Bars #%d: %v", i, err)
		}
		if len(bars) != 2 {
			t.Fatalf("Bars #%d returned %d bars, want 2", i, len(bars))
		}
	}
	if up.calls != 1 {
		t.Errorf("upstream called %d times, want 1", up.calls)
	}
	if cs.Name() != "counting" {
		t.Errorf("Name() = %q, want upstream name", cs.Name())
	}

	if _, err := cs.Refresh(context.Background(), "SPY"); err != nil || up.calls != 2 {
		t.Errorf("Refresh: calls = %d, err = %v", up.calls, err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Prices.CSVPath = "prices.csv"

	src, err := NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig(csv): %v", err)
	}
	if _, ok := src.(*CSVSource); !ok {
		t.Errorf("source = %T, want *CSVSource", src)
	}

	cfg.Prices.Provider = "alpaca"
	cfg.Prices.Cache = true
	src, err = NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig(alpaca): %v", err)
	}
	if _, ok := src.(*CachedSource); !ok || src.Name() != ProviderAlpaca {
		t.Errorf("source = %T (%s), want cached alpaca", src, src.Name())
	}

	cfg.Prices.Provider = "yahoo"
	if _, err := NewFromConfig(cfg, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("unknown provider error = %v, want ErrConfiguration", err)
	}

	cfg.Prices.Provider = "csv"
	cfg.Prices.StartDate = "01/01/2020"
	if _, err := NewFromConfig(cfg, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("bad start date error = %v, want ErrConfiguration", err)
	}
}
