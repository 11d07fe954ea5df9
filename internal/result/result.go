// Package result turns scored partitions into position-sized outcomes,
// per-partition cumulative equity and periodic return summaries.
package result

import (
	"fmt"
	"log/slog"
	"math"

	"forecaster/internal/domain"
)

// DefaultPositionSize is the multiplier used when none is configured.
const DefaultPositionSize = 1.0

// Accountant holds the impact records of the train, test and after-test
// partitions. Records are computed once at construction; accessors hand out
// copies.
type Accountant struct {
	positionSize float64
	impacts      map[domain.PartitionName][]domain.ImpactRecord
	logger       *slog.Logger
}

// New validates the three scored partitions and computes their impacts.
// Every record must carry a defined label and forward change, and dates must
// be strictly increasing within a partition; otherwise New fails with
// domain.ErrDataIntegrity naming the partition and date. A non-finite
// position size is a domain.ErrConfiguration. Zero is a legal size and is
// applied like any other multiplier.
func New(train, test, afterTest domain.ScoredPartition, positionSize float64, logger *slog.Logger) (*Accountant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "result")

	if math.IsNaN(positionSize) || math.IsInf(positionSize, 0) {
		return nil, fmt.Errorf("%w: position size must be finite, got %v", domain.ErrConfiguration, positionSize)
	}

	a := &Accountant{
		positionSize: positionSize,
		impacts:      make(map[domain.PartitionName][]domain.ImpactRecord, len(domain.PartitionNames)),
		logger:       logger,
	}

	for i, sp := range []domain.ScoredPartition{train, test, afterTest} {
		want := domain.PartitionNames[i]
		if sp.Name != want {
			return nil, fmt.Errorf("%w: partition %d is %q, want %q", domain.ErrDataIntegrity, i, sp.Name, want)
		}
		if err := validate(sp); err != nil {
			return nil, err
		}
		a.impacts[want] = Impacts(sp.Records, positionSize)
	}

	logger.Debug("impacts computed",
		"position_size", positionSize,
		"train", len(a.impacts[domain.Train]),
		"test", len(a.impacts[domain.Test]),
		"after_test", len(a.impacts[domain.AfterTest]),
	)
	return a, nil
}

func validate(sp domain.ScoredPartition) error {
	for i, r := range sp.Records {
		if !r.Label.Valid() {
			return fmt.Errorf("%w: %s row %s has no label",
				domain.ErrDataIntegrity, sp.Name, r.Date.Format(domain.DateLayout))
		}
		if !r.ForwardChange.Valid() {
			return fmt.Errorf("%w: %s row %s has no forward change",
				domain.ErrDataIntegrity, sp.Name, r.Date.Format(domain.DateLayout))
		}
		if i > 0 && !r.Date.After(sp.Records[i-1].Date) {
			return fmt.Errorf("%w: %s rows out of order at %s",
				domain.ErrDataIntegrity, sp.Name, r.Date.Format(domain.DateLayout))
		}
	}
	return nil
}

// Impacts computes the signed outcome, position result and running equity
// of each record in order. The running total starts at zero for every call.
// Records with an undefined label or forward change must be filtered out by
// the caller.
func Impacts(records []domain.PredictionRecord, positionSize float64) []domain.ImpactRecord {
	out := make([]domain.ImpactRecord, len(records))
	var equity float64
	for i, r := range records {
		label, _ := r.Label.Get()
		change, _ := r.ForwardChange.Get()
		correct := r.Predicted == label

		sign := -1.0
		if correct {
			sign = 1.0
		}
		signed := math.Abs(change) * sign
		res := signed * positionSize
		equity += res

		out[i] = domain.ImpactRecord{
			Date:             r.Date,
			Label:            label,
			Predicted:        r.Predicted,
			ForwardChange:    change,
			Correct:          correct,
			SignedOutcome:    signed,
			PositionResult:   res,
			CumulativeEquity: equity,
		}
	}
	return out
}

// PositionSize returns the configured multiplier.
func (a *Accountant) PositionSize() float64 { return a.positionSize }

// TrainDay returns the impact records of the train partition.
func (a *Accountant) TrainDay() []domain.ImpactRecord { return a.Partition(domain.Train) }

// TestDay returns the impact records of the test partition.
func (a *Accountant) TestDay() []domain.ImpactRecord { return a.Partition(domain.Test) }

// AfterTestDay returns the impact records of the after-test partition.
func (a *Accountant) AfterTestDay() []domain.ImpactRecord { return a.Partition(domain.AfterTest) }

// Partition returns a copy of the impact records for name. Unknown names
// yield nil.
func (a *Accountant) Partition(name domain.PartitionName) []domain.ImpactRecord {
	recs, ok := a.impacts[name]
	if !ok {
		return nil
	}
	return append([]domain.ImpactRecord{}, recs...)
}

// FinalEquity returns the last cumulative equity of a partition, or 0 when
// the partition is empty.
func (a *Accountant) FinalEquity(name domain.PartitionName) float64 {
	recs := a.impacts[name]
	if len(recs) == 0 {
		return 0
	}
	return recs[len(recs)-1].CumulativeEquity
}
