// Command runs lists recorded backtest runs, or shows one run in detail.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"forecaster/internal/config"
	"forecaster/internal/report"
	"forecaster/internal/store"
)

func main() {
	cfgFlag := flag.String("config", "", "path to config file (default $FORECASTER_CONFIG or "+config.DefaultPath+")")
	limit := flag.Int("limit", 20, "maximum runs to list (0 for all)")
	id := flag.String("id", "", "show a single run")
	flag.Parse()

	cfg, err := config.Load(config.Path(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if *id != "" {
		run, err := st.GetRun(ctx, *id)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := report.RenderRun(os.Stdout, run); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	runs, err := st.ListRuns(ctx, *limit)
	if err != nil {
		log.Fatalf("failed to list runs: %v", err)
	}
	if err := report.RenderRuns(os.Stdout, runs); err != nil {
		log.Fatalf("%v", err)
	}
}
