package pipeline

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"forecaster/internal/config"
	"forecaster/internal/store"
)

// Snapshot renders the settings that determine a run's output as YAML, for
// storage next to the run.
func Snapshot(cfg *config.Config) (string, error) {
	out, err := yaml.Marshal(struct {
		Pipeline   config.Pipeline   `yaml:"pipeline"`
		Classifier config.Classifier `yaml:"classifier"`
	}{cfg.Pipeline, cfg.Classifier})
	if err != nil {
		return "", fmt.Errorf("encoding config snapshot: %w", err)
	}
	return string(out), nil
}

// Record converts the outcome of Run into a store.Run. A non-nil runErr
// marks the run failed; whatever the run resolved before failing is kept.
func Record(res *Result, runErr error, snapshot string) *store.Run {
	run := &store.Run{
		ID:         res.RunID,
		Ticker:     res.Ticker,
		Classifier: res.Classifier,
		Status:     store.RunSucceeded,
		Start:      res.Start,
		End:        res.End,
		SplitIndex: res.SplitIndex,
		Config:     snapshot,
		CreatedAt:  time.Now(),
	}
	if runErr != nil {
		run.Status = store.RunFailed
		run.Error = runErr.Error()
		return run
	}

	for _, p := range res.Partitions {
		run.Evaluations = append(run.Evaluations, store.Evaluation{
			Partition:        p.Name,
			Rows:             p.Rows(),
			FinalEquity:      p.FinalEquity,
			AverageDaily:     p.Returns.AverageDaily,
			AverageWeekly:    p.Returns.AverageWeekly,
			AverageMonthly:   p.Returns.AverageMonthly,
			AverageQuarterly: p.Returns.AverageQuarterly,
			Accuracy:         p.Classification.Accuracy,
			Precision:        p.Classification.Precision,
			Recall:           p.Classification.Recall,
			F1:               p.Classification.F1,
		})
	}
	return run
}

// Persist records a run. For a successful run with an impact store, every
// partition's impact table is exported first; if the export fails the run is
// recorded as failed with the export error, and that error is returned.
// Cancellation of ctx is ignored so an interrupted run is still recorded.
func Persist(ctx context.Context, res *Result, runErr error, snapshot string, runs store.RunStore, impacts store.ImpactStore) error {
	ctx = context.WithoutCancel(ctx)
	run := Record(res, runErr, snapshot)

	var exportErr error
	if runErr == nil && impacts != nil {
		for _, p := range res.Partitions {
			if err := impacts.WriteImpacts(ctx, res.RunID, p.Name, p.Impacts); err != nil {
				exportErr = fmt.Errorf("exporting impacts: %w", err)
				run.Status = store.RunFailed
				run.Error = exportErr.Error()
				break
			}
		}
	}

	if err := runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("saving run %s: %w", res.RunID, err)
	}
	return exportErr
}
