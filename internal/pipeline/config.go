package pipeline

import (
	"fmt"
	"math"
	"time"

	"forecaster/internal/config"
	"forecaster/internal/domain"
	"forecaster/internal/features"
	"forecaster/internal/label"
	"forecaster/internal/model"
	"forecaster/internal/result"
	"forecaster/internal/split"
)

// Config is the resolved, validated configuration of one run. Every
// identifier has been checked against its registry.
type Config struct {
	Ticker        string
	Horizon       int
	Label         label.Kind
	Features      []features.ID
	Split         split.Config
	PositionSize  float64
	Classifier    string
	Params        model.Params
	RetryAttempts int
	RetryDelay    time.Duration
}

// FeatureNames returns the column names of the configured features.
func (c Config) FeatureNames() []string {
	names := make([]string, len(c.Features))
	for i, id := range c.Features {
		names[i] = id.Name()
	}
	return names
}

// ConfigFromFile resolves the pipeline and classifier sections of a loaded
// configuration. It fails with domain.ErrConfiguration on any unknown
// identifier or out-of-range value, before any data is fetched.
func ConfigFromFile(cfg *config.Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	p := cfg.Pipeline

	kind, err := label.ParseKind(p.Label)
	if err != nil {
		return Config{}, err
	}
	ids, err := features.Parse(p.Features)
	if err != nil {
		return Config{}, err
	}
	if len(ids) == 0 {
		return Config{}, fmt.Errorf("%w: at least one feature is required", domain.ErrConfiguration)
	}

	sc := split.DefaultConfig()
	if p.Start != "" {
		if sc.Start, err = domain.ParseDate(p.Start); err != nil {
			return Config{}, err
		}
	}
	if p.End != "" {
		if sc.End, err = domain.ParseDate(p.End); err != nil {
			return Config{}, err
		}
	}
	if p.TrainFraction != nil {
		sc.TrainFraction = *p.TrainFraction
	}
	if p.StepSize != nil {
		step := *p.StepSize
		sc.StepSize = &step
	}

	size := result.DefaultPositionSize
	if p.PositionSize != nil {
		size = *p.PositionSize
	}
	if math.IsNaN(size) || math.IsInf(size, 0) {
		return Config{}, fmt.Errorf("%w: position_size must be finite", domain.ErrConfiguration)
	}

	params := model.Params{
		Criterion:    cfg.Classifier.Criterion,
		MaxDepth:     cfg.Classifier.MaxDepth,
		LearningRate: cfg.Classifier.LearningRate,
		Epochs:       cfg.Classifier.Epochs,
	}
	// Build once to reject unknown names and bad hyperparameters early.
	if _, err := model.DefaultRegistry().New(cfg.Classifier.Name, params); err != nil {
		return Config{}, err
	}

	return Config{
		Ticker:        p.Ticker,
		Horizon:       p.Horizon,
		Label:         kind,
		Features:      ids,
		Split:         sc,
		PositionSize:  size,
		Classifier:    cfg.Classifier.Name,
		Params:        params,
		RetryAttempts: cfg.Prices.RetryAttempts,
		RetryDelay:    cfg.Prices.RetryDelay,
	}, nil
}
