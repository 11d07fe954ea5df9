// Command forecaster runs one backtest from a YAML configuration, prints the
// report and records the run in SQLite.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"forecaster/internal/config"
	"forecaster/internal/metrics"
	"forecaster/internal/pipeline"
	"forecaster/internal/prices"
	"forecaster/internal/report"
	"forecaster/internal/store"
	"forecaster/internal/util"
)

func main() {
	cfgFlag := flag.String("config", "", "path to config file (default $FORECASTER_CONFIG or "+config.DefaultPath+")")
	ticker := flag.String("ticker", "", "override pipeline.ticker")
	classifier := flag.String("classifier", "", "override classifier.name")
	noSave := flag.Bool("no-save", false, "do not record the run in SQLite")
	flag.Parse()

	cfg, err := config.Load(config.Path(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *ticker != "" {
		cfg.Pipeline.Ticker = *ticker
	}
	if *classifier != "" {
		cfg.Classifier.Name = *classifier
	}

	// Logs go to stderr so the report owns stdout.
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	pcfg, err := pipeline.ConfigFromFile(cfg)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	snapshot, err := pipeline.Snapshot(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	src, err := prices.NewFromConfig(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create price source: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, runErr := pipeline.New(src, pcfg, logger).Run(ctx)

	if !*noSave {
		if err := save(ctx, cfg, res, runErr, snapshot); err != nil {
			slog.Error("failed to record run", "run_id", res.RunID, "error", err)
		}
	}
	if cfg.Report.MetricsPath != "" {
		if err := metrics.WriteTextfile(cfg.Report.MetricsPath); err != nil {
			slog.Error("failed to write metrics", "path", cfg.Report.MetricsPath, "error", err)
		}
	}

	if runErr != nil {
		log.Fatalf("run %s failed: %v", res.RunID, runErr)
	}
	if err := report.Render(os.Stdout, res); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
}

func save(ctx context.Context, cfg *config.Config, res *pipeline.Result, runErr error, snapshot string) error {
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	var impacts store.ImpactStore
	if cfg.Report.ExportImpacts {
		impacts = store.NewParquetStore(cfg.Storage.DataDir)
	}
	return pipeline.Persist(ctx, res, runErr, snapshot, runs, impacts)
}
