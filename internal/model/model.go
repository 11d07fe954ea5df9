// Package model defines the Classifier interface used to fit and score
// partitions, a Registry of the available classifiers, and the helpers that
// turn partitions into feature matrices.
package model

import (
	"fmt"
	"sort"
	"strings"

	"forecaster/internal/domain"
)

// Classifier is a supervised binary classifier with a fit/predict contract.
// Implementations must be deterministic: the same training data always
// yields the same predictions.
type Classifier interface {
	// Name returns the registry key of the classifier.
	Name() string

	// Fit trains on rows X with labels y. Fitting zero rows is legal and
	// yields a classifier that predicts 0.
	Fit(X [][]float64, y []int) error

	// Predict returns one label per row of X.
	Predict(X [][]float64) ([]int, error)
}

// Params holds hyperparameters for every registered classifier. Each
// classifier reads the fields it understands.
type Params struct {
	Criterion    string
	MaxDepth     int
	LearningRate float64
	Epochs       int
}

// Factory builds a fresh, unfitted classifier.
type Factory func(p Params) (Classifier, error)

// Registry holds a named collection of classifier factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a Registry with the built-in classifiers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(DecisionTreeName, func(p Params) (Classifier, error) { return NewDecisionTree(p) })
	r.Register(LogisticName, func(p Params) (Classifier, error) { return NewLogistic(p) })
	return r
}

// Register adds a factory under name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the classifier registered under name. Unknown names fail with
// domain.ErrConfiguration.
func (r *Registry) New(name string, p Params) (Classifier, error) {
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown classifier %q (available %s)",
			domain.ErrConfiguration, name, strings.Join(r.List(), ", "))
	}
	return f(p)
}

// List returns a sorted slice of all registered classifier names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Datasets
// ---------------------------------------------------------------------------

// Matrix extracts the named feature columns and the labels of a partition.
// A column missing from the partition or an undefined value fails with
// domain.ErrDataIntegrity.
func Matrix(p domain.Partition, features []string) ([][]float64, []int, error) {
	cols := make([]int, len(features))
	for i, name := range features {
		idx := -1
		for j, f := range p.Features {
			if f == name {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("%w: %s partition has no feature column %q",
				domain.ErrDataIntegrity, p.Name, name)
		}
		cols[i] = idx
	}

	X := make([][]float64, len(p.Rows))
	y := make([]int, len(p.Rows))
	for i, r := range p.Rows {
		label, ok := r.Label.Get()
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s row %s has no label",
				domain.ErrDataIntegrity, p.Name, r.Date.Format(domain.DateLayout))
		}
		y[i] = label

		X[i] = make([]float64, len(cols))
		for k, c := range cols {
			if c >= len(r.Features) {
				return nil, nil, fmt.Errorf("%w: %s row %s is missing column %q",
					domain.ErrDataIntegrity, p.Name, r.Date.Format(domain.DateLayout), features[k])
			}
			v, ok := r.Features[c].Get()
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s row %s has undefined %q",
					domain.ErrDataIntegrity, p.Name, r.Date.Format(domain.DateLayout), features[k])
			}
			X[i][k] = v
		}
	}
	return X, y, nil
}

// Fit trains c on the train partition.
func Fit(c Classifier, train domain.Partition, features []string) error {
	X, y, err := Matrix(train, features)
	if err != nil {
		return err
	}
	return c.Fit(X, y)
}

// Score predicts every row of p and returns the scored partition.
func Score(c Classifier, p domain.Partition, features []string) (domain.ScoredPartition, error) {
	X, _, err := Matrix(p, features)
	if err != nil {
		return domain.ScoredPartition{}, err
	}
	pred, err := c.Predict(X)
	if err != nil {
		return domain.ScoredPartition{}, fmt.Errorf("predicting %s: %w", p.Name, err)
	}

	sp := domain.ScoredPartition{Name: p.Name, Records: make([]domain.PredictionRecord, len(p.Rows))}
	for i, r := range p.Rows {
		sp.Records[i] = domain.PredictionRecord{Row: r.Clone(), Predicted: pred[i]}
	}
	return sp, nil
}

func checkShape(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", domain.ErrDataIntegrity, i, len(row), width)
		}
	}
	return nil
}
