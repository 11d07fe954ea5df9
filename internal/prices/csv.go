package prices

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"forecaster/internal/domain"
	"forecaster/internal/util"
)

var _ Source = (*CSVSource)(nil)

// CSVSource reads bars from a CSV export with a header row such as
// Date,Open,High,Low,Close,Adj Close,Volume. Header names are matched
// case-insensitively. A "{symbol}" placeholder in Path is replaced with the
// requested symbol.
type CSVSource struct {
	Path string
}

// NewCSVSource returns a CSVSource reading path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

// Name returns the provider identifier.
func (s *CSVSource) Name() string { return ProviderCSV }

// Bars reads and sorts the file. Empty, "null" or "NaN" prices are kept as
// NaN so that downstream stages treat them as undefined. A missing adjusted
// close falls back to Close.
func (s *CSVSource) Bars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	path := strings.ReplaceAll(s.Path, "{symbol}", symbol)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(ctx, f)
}

func readCSV(ctx context.Context, rd io.Reader) ([]domain.Bar, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		k := strings.ToLower(strings.TrimSpace(h))
		k = strings.NewReplacer(" ", "", "_", "").Replace(k)
		cols[k] = i
	}
	for _, required := range []string{"date", "open", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: csv has no %q column", domain.ErrDataIntegrity, required)
		}
	}

	get := func(rec []string, keys ...string) string {
		for _, k := range keys {
			if i, ok := cols[k]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
		}
		return ""
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		d, err := parseDay(get(rec, "date", "timestamp", "time"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b := domain.Bar{
			Date:   d,
			Open:   parsePrice(get(rec, "open")),
			High:   parsePrice(get(rec, "high")),
			Low:    parsePrice(get(rec, "low")),
			Close:  parsePrice(get(rec, "close")),
			Volume: parseVolume(get(rec, "volume", "vol")),
		}
		b.AdjClose = parsePrice(get(rec, "adjclose"))
		if get(rec, "adjclose") == "" {
			b.AdjClose = b.Close
		}
		bars = append(bars, b)
	}

	sortBars(bars)
	return bars, nil
}

// parseDay accepts YYYY-MM-DD, RFC 3339 or a "YYYY-MM-DD hh:mm:ss" prefix and
// keeps only the calendar date.
func parseDay(s string) (time.Time, error) {
	if d, err := time.Parse(domain.DateLayout, s); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return util.Day(ts), nil
	}
	if len(s) >= len(domain.DateLayout) {
		if d, err := time.Parse(domain.DateLayout, s[:len(domain.DateLayout)]); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad date %q", domain.ErrDataIntegrity, s)
}

func parsePrice(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseVolume(s string) int64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return int64(v)
}
