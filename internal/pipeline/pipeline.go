// Package pipeline runs one backtest end to end: fetch prices, attach the
// label and features, split by date, fit and score a classifier, and account
// for the position-sized outcome of every prediction.
//
// Stages run once, strictly in order. A failing stage stops the run and its
// error is returned wrapped as "<stage> stage: ..." so errors.Is still
// matches the domain error kinds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"forecaster/internal/domain"
	"forecaster/internal/features"
	"forecaster/internal/label"
	"forecaster/internal/metrics"
	"forecaster/internal/model"
	"forecaster/internal/prices"
	"forecaster/internal/result"
	"forecaster/internal/split"
	"forecaster/internal/util"
)

// Stage names, in execution order.
const (
	StageFetch    = "fetch"
	StageLabel    = "label"
	StageFeatures = "features"
	StageSplit    = "split"
	StageFit      = "fit"
	StageScore    = "score"
	StageResult   = "result"
)

// PartitionResult is everything a report needs about one partition.
type PartitionResult struct {
	Name           domain.PartitionName
	Impacts        []domain.ImpactRecord
	Returns        result.Returns
	Classification model.Classification
	FinalEquity    float64
	Signals        result.SignalCounts
	Annual         []result.YearReturn
}

// Rows returns the number of scored rows.
func (p PartitionResult) Rows() int { return len(p.Impacts) }

// Result is the terminal output of a run.
type Result struct {
	RunID        string
	Ticker       string
	Classifier   string
	PositionSize float64
	Start        time.Time
	End          time.Time
	DataRangeLen int
	SplitIndex   int
	Partitions   []PartitionResult // train, test, after_test
	Evaluation   result.Evaluation
	Combined     []result.EquityPoint
	Annual       []result.YearReturn
	Duration     time.Duration
}

// Partition returns the result of the named partition.
func (r *Result) Partition(name domain.PartitionName) (PartitionResult, bool) {
	for _, p := range r.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return PartitionResult{}, false
}

// Pipeline wires a price source to the backtest stages.
type Pipeline struct {
	source   prices.Source
	cfg      Config
	registry *model.Registry
	newID    func() string
	log      *slog.Logger
}

// New creates a Pipeline. A nil logger uses slog.Default().
func New(source prices.Source, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:   source,
		cfg:      cfg,
		registry: model.DefaultRegistry(),
		newID:    uuid.NewString,
		log:      logger.With("component", "pipeline"),
	}
}

// Run executes every stage once. On failure it returns the run ID it
// assigned along with the stage error so the caller can record the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	res := &Result{
		RunID:        p.newID(),
		Ticker:       p.cfg.Ticker,
		Classifier:   p.cfg.Classifier,
		PositionSize: p.cfg.PositionSize,
	}
	log := p.log.With("run_id", res.RunID, "ticker", p.cfg.Ticker)
	log.Info("run started", "classifier", p.cfg.Classifier, "source", p.source.Name())

	err := p.run(ctx, res, log)
	res.Duration = time.Since(started)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		log.Error("run failed", "error", err, "elapsed", res.Duration.Round(time.Millisecond))
		return res, err
	}

	metrics.RunsTotal.WithLabelValues("succeeded").Inc()
	for _, pr := range res.Partitions {
		metrics.PartitionRows.WithLabelValues(string(pr.Name)).Set(float64(pr.Rows()))
		metrics.PartitionEquity.WithLabelValues(string(pr.Name)).Set(pr.FinalEquity)
	}
	log.Info("run finished",
		"split_index", res.SplitIndex,
		"elapsed", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

// stage times fn and wraps its error with the stage name.
func stage(name string, fn func() error) error {
	defer metrics.ObserveStage(name, time.Now())
	if err := fn(); err != nil {
		return fmt.Errorf("%s stage: %w", name, err)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, res *Result, log *slog.Logger) error {
	var (
		bars       []domain.Bar
		tbl        domain.Table
		splitter   *split.Splitter
		parts      []domain.Partition
		classifier model.Classifier
		scored     []domain.ScoredPartition
	)
	names := p.cfg.FeatureNames()

	if err := stage(StageFetch, func() (err error) {
		bars, err = p.fetch(ctx)
		return err
	}); err != nil {
		return err
	}
	log.Debug("bars fetched", "bars", len(bars))

	if err := stage(StageLabel, func() (err error) {
		tbl, err = label.Generate(p.cfg.Ticker, bars, p.cfg.Horizon, p.cfg.Label)
		return err
	}); err != nil {
		return err
	}

	if err := stage(StageFeatures, func() (err error) {
		tbl, err = features.Generate(tbl, p.cfg.Features)
		return err
	}); err != nil {
		return err
	}

	if err := stage(StageSplit, func() (err error) {
		splitter, err = split.New(tbl, p.cfg.Split, log)
		if err != nil {
			return err
		}
		parts = splitter.Partitions()
		return nil
	}); err != nil {
		return err
	}
	res.Start, res.End = splitter.Start(), splitter.End()
	res.DataRangeLen, res.SplitIndex = splitter.DataRangeLen(), splitter.SplitIndex()
	log.Info("data split",
		"start", res.Start.Format(domain.DateLayout),
		"end", res.End.Format(domain.DateLayout),
		"train", parts[0].Len(), "test", parts[1].Len(), "after_test", parts[2].Len(),
	)

	if err := stage(StageFit, func() (err error) {
		classifier, err = p.registry.New(p.cfg.Classifier, p.cfg.Params)
		if err != nil {
			return err
		}
		return model.Fit(classifier, parts[0], names)
	}); err != nil {
		return err
	}

	if err := stage(StageScore, func() error {
		scored = make([]domain.ScoredPartition, 0, len(parts))
		for _, part := range parts {
			sp, err := model.Score(classifier, part, names)
			if err != nil {
				return err
			}
			scored = append(scored, sp)
		}
		return nil
	}); err != nil {
		return err
	}

	return stage(StageResult, func() error {
		acct, err := result.New(scored[0], scored[1], scored[2], p.cfg.PositionSize, log)
		if err != nil {
			return err
		}
		res.Evaluation = acct.Evaluate()
		res.Combined = acct.Combined()

		var all []domain.ImpactRecord
		for i, name := range domain.PartitionNames {
			impacts := acct.Partition(name)
			all = append(all, impacts...)
			res.Partitions = append(res.Partitions, PartitionResult{
				Name:           name,
				Impacts:        impacts,
				Returns:        res.Evaluation[name],
				Classification: model.EvaluatePartition(scored[i]),
				FinalEquity:    acct.FinalEquity(name),
				Signals:        result.CountSignals(impacts),
				Annual:         result.AnnualReturns(impacts),
			})
		}
		res.Annual = result.AnnualReturns(all)
		return nil
	})
}

// fetch retries the price source with backoff. Configuration and data
// errors are not retried.
func (p *Pipeline) fetch(ctx context.Context) ([]domain.Bar, error) {
	var bars []domain.Bar
	attempts := max(p.cfg.RetryAttempts, 1)
	attempt := 0
	err := util.Retry(ctx, attempts, p.cfg.RetryDelay, func() error {
		attempt++
		b, err := p.source.Bars(ctx, p.cfg.Ticker)
		if err != nil {
			if errors.Is(err, domain.ErrConfiguration) || errors.Is(err, domain.ErrDataIntegrity) ||
				errors.Is(err, context.Canceled) {
				return util.Permanent(err)
			}
			p.log.Warn("price fetch failed", "attempt", attempt, "error", err)
			return err
		}
		bars = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s returned no bars for %s", domain.ErrDataIntegrity, p.source.Name(), p.cfg.Ticker)
	}
	return bars, nil
}
