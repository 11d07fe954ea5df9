package prices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // Alpaca stamps daily bars at New York midnight.

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"forecaster/internal/config"
	"forecaster/internal/domain"
	"forecaster/internal/util"
)

var _ Source = (*AlpacaSource)(nil)

// barsClient is the subset of *marketdata.Client used by AlpacaSource.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaSource fetches daily bars from the Alpaca market data API. Each
// symbol takes two requests: raw prices for OHLCV and all-adjusted prices
// for the adjusted close. Bars after the latest settled session are never
// returned, so a run does not see a partial day.
type AlpacaSource struct {
	client   barsClient
	calendar calendarClient
	now      func() time.Time
	feed     string
	start    time.Time
	limiter  *util.RateLimiter
	loc      *time.Location
	log      *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource for the given credentials. History
// is requested from start up to the latest finished trading day, taken from
// the Alpaca market calendar.
func NewAlpacaSource(cfg config.Alpaca, start time.Time, limiter *util.RateLimiter, logger *slog.Logger) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	cal := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	return newAlpacaSource(marketdata.NewClient(opts), cal, cfg.Feed, start, limiter, logger)
}

func newAlpacaSource(client barsClient, cal calendarClient, feed string, start time.Time, limiter *util.RateLimiter, logger *slog.Logger) *AlpacaSource {
	if logger == nil {
		logger = slog.Default()
	}
	if feed == "" {
		feed = "sip"
	}
	if limiter == nil {
		limiter = util.NewRateLimiter(0)
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &AlpacaSource{
		client:   client,
		calendar: cal,
		now:      time.Now,
		feed:     feed,
		start:    start,
		limiter:  limiter,
		loc:      loc,
		log:      logger.With("source", ProviderAlpaca),
	}
}

// Name returns the provider identifier.
func (s *AlpacaSource) Name() string { return ProviderAlpaca }

// Bars fetches raw and all-adjusted daily bars and joins them by date. Days
// missing from the adjusted series keep the raw close as adjusted close.
// Bars dated after the latest finished trading day are dropped.
func (s *AlpacaSource) Bars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	now := s.now()
	last, err := latestFinishedDay(s.calendar, now, s.loc)
	if err != nil {
		return nil, err
	}
	end := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, s.loc)
	if end.After(now) {
		end = now
	}

	raw, err := s.fetch(ctx, symbol, marketdata.Raw, end)
	if err != nil {
		return nil, err
	}
	adjusted, err := s.fetch(ctx, symbol, marketdata.All, end)
	if err != nil {
		return nil, err
	}

	adjClose := make(map[time.Time]float64, len(adjusted))
	for _, ab := range adjusted {
		adjClose[s.day(ab.Timestamp)] = ab.Close
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		d := s.day(ab.Timestamp)
		if d.After(last) {
			continue
		}
		b := domain.Bar{
			Date:     d,
			Open:     ab.Open,
			High:     ab.High,
			Low:      ab.Low,
			Close:    ab.Close,
			AdjClose: ab.Close,
			Volume:   int64(ab.Volume),
		}
		if v, ok := adjClose[d]; ok {
			b.AdjClose = v
		}
		bars = append(bars, b)
	}
	sortBars(bars)

	s.log.Debug("fetched bars", "symbol", symbol, "bars", len(bars), "through", last.Format(domain.DateLayout))
	return bars, nil
}

func (s *AlpacaSource) fetch(ctx context.Context, symbol string, adj marketdata.Adjustment, end time.Time) ([]marketdata.Bar, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	bars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      s.start,
		End:        end,
		Feed:       marketdata.Feed(s.feed),
		Adjustment: adj,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s (%s): %w", symbol, adj, err)
	}
	return bars, nil
}

// day maps an Alpaca bar timestamp to its New York trading date.
func (s *AlpacaSource) day(ts time.Time) time.Time {
	return util.Day(ts.In(s.loc))
}
