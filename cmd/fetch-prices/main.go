// Command fetch-prices refreshes the Parquet price cache for one or more
// symbols from the configured provider.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"forecaster/internal/config"
	"forecaster/internal/prices"
	"forecaster/internal/store"
	"forecaster/internal/util"
)

func main() {
	cfgFlag := flag.String("config", "", "path to config file (default $FORECASTER_CONFIG or "+config.DefaultPath+")")
	symbols := flag.String("symbols", "", "comma-separated symbols (default pipeline.ticker)")
	flag.Parse()

	cfg, err := config.Load(config.Path(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	list := splitSymbols(*symbols)
	if len(list) == 0 && cfg.Pipeline.Ticker != "" {
		list = []string{cfg.Pipeline.Ticker}
	}
	if len(list) == 0 {
		log.Fatal("no symbols given: pass -symbols or set pipeline.ticker")
	}

	// The cache is wrapped below; NewFromConfig must return the bare provider.
	cfg.Prices.Cache = false
	upstream, err := prices.NewFromConfig(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create price source: %v", err)
	}
	start, err := prices.HistoryStart(cfg.Prices.StartDate)
	if err != nil {
		log.Fatalf("invalid prices.start_date: %v", err)
	}
	cache := prices.NewCachedSource(upstream, store.NewParquetStore(cfg.Storage.DataDir), start, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	failed := 0
	for _, sym := range list {
		var n int
		err := util.Retry(ctx, max(cfg.Prices.RetryAttempts, 1), cfg.Prices.RetryDelay, func() error {
			bars, err := cache.Refresh(ctx, sym)
			n = len(bars)
			return err
		})
		if err != nil {
			failed++
			slog.Error("refresh failed", "symbol", sym, "error", err)
			continue
		}
		slog.Info("refreshed", "symbol", sym, "bars", n)
	}
	if failed > 0 {
		log.Fatalf("%d of %d symbols failed", failed, len(list))
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
