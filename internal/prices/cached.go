package prices

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"forecaster/internal/domain"
	"forecaster/internal/store"
	"forecaster/internal/util"
)

var _ Source = (*CachedSource)(nil)

// CachedSource serves bars from a BarStore and reads through to an upstream
// source when the store holds nothing for a symbol.
type CachedSource struct {
	upstream Source
	store    store.BarStore
	start    time.Time
	now      func() time.Time
	log      *slog.Logger
}

// NewCachedSource wraps upstream with a read-through cache in st. Cached
// bars are read from start onward.
func NewCachedSource(upstream Source, st store.BarStore, start time.Time, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{
		upstream: upstream,
		store:    st,
		start:    start,
		now:      time.Now,
		log:      logger.With("source", "cache"),
	}
}

// Name returns the upstream provider identifier.
func (s *CachedSource) Name() string { return s.upstream.Name() }

// Bars returns the cached history, fetching and storing it first on a miss.
func (s *CachedSource) Bars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	bars, err := s.store.ReadBars(ctx, symbol, s.start, util.Day(s.now()))
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	if len(bars) > 0 {
		s.log.Debug("cache hit", "symbol", symbol, "bars", len(bars))
		return bars, nil
	}

	s.log.Info("cache miss, fetching", "symbol", symbol, "upstream", s.upstream.Name())
	return s.Refresh(ctx, symbol)
}

// Refresh fetches the full history from upstream and replaces the cached
// bars of the same dates.
func (s *CachedSource) Refresh(ctx context.Context, symbol string) ([]domain.Bar, error) {
	bars, err := s.upstream.Bars(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := s.store.WriteBars(ctx, symbol, bars); err != nil {
		return nil, fmt.Errorf("writing cache: %w", err)
	}
	return bars, nil
}
