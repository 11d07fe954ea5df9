// Package prices provides daily bar sources: a CSV file, the Alpaca market
// data API and a read-through Parquet cache in front of either.
package prices

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"forecaster/internal/config"
	"forecaster/internal/domain"
	"forecaster/internal/store"
	"forecaster/internal/util"
)

// Source returns the full daily price history of a symbol in date order,
// one bar per trading day, dated at UTC midnight.
type Source interface {
	// Name returns the provider identifier.
	Name() string

	// Bars fetches every available bar for symbol.
	Bars(ctx context.Context, symbol string) ([]domain.Bar, error)
}

// Provider names accepted in configuration.
const (
	ProviderCSV    = "csv"
	ProviderAlpaca = "alpaca"
)

// NewFromConfig builds the configured source. When prices.cache is set the
// source is wrapped in a CachedSource over a Parquet store under the data
// directory. Unknown providers fail with domain.ErrConfiguration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	start, err := HistoryStart(cfg.Prices.StartDate)
	if err != nil {
		return nil, err
	}

	var src Source
	switch strings.ToLower(cfg.Prices.Provider) {
	case ProviderCSV:
		src = NewCSVSource(cfg.Prices.CSVPath)
	case ProviderAlpaca:
		src = NewAlpacaSource(cfg.Alpaca, start, util.NewRateLimiter(cfg.Prices.RateLimitPerMin), logger)
	default:
		return nil, fmt.Errorf("%w: unknown price provider %q (want %s or %s)",
			domain.ErrConfiguration, cfg.Prices.Provider, ProviderCSV, ProviderAlpaca)
	}

	if cfg.Prices.Cache {
		src = NewCachedSource(src, store.NewParquetStore(cfg.Storage.DataDir), start, logger)
	}
	return src, nil
}

// DefaultHistoryStart is the first date requested from remote providers
// when prices.start_date is empty.
var DefaultHistoryStart = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

// HistoryStart parses prices.start_date, defaulting to DefaultHistoryStart.
func HistoryStart(s string) (time.Time, error) {
	if s == "" {
		return DefaultHistoryStart, nil
	}
	return domain.ParseDate(s)
}

// sortBars orders bars by date in place.
func sortBars(bars []domain.Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
