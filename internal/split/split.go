// Package split partitions a date-indexed table into train, test and
// after-test segments under strict temporal ordering.
//
// The analysis window [Start, End] is split at
// SplitIndex = RoundToEven(len(window) * TrainFraction). Train is the window
// before SplitIndex, Test is the remainder of the window and AfterTest is
// every row of the full table strictly after End. Rows with any undefined
// field are dropped from a partition after slicing, so partition lengths can
// be shorter than the window slices they were cut from.
package split

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"forecaster/internal/domain"
	"forecaster/internal/util"
)

// DefaultTrainFraction is used when Config.TrainFraction is zero.
const DefaultTrainFraction = 0.5

// Config holds the splitter parameters. Zero Start or End select the first
// or last date of the table. A nil StepSize leaves the window unshifted.
type Config struct {
	Start         time.Time
	End           time.Time
	TrainFraction float64
	StepSize      *int
}

// DefaultConfig returns a Config spanning the whole table with an even
// train/test split.
func DefaultConfig() Config {
	return Config{TrainFraction: DefaultTrainFraction}
}

// Splitter holds a validated window over a table. It is immutable after
// construction; every accessor returns freshly allocated rows.
type Splitter struct {
	table      domain.Table
	start      time.Time
	end        time.Time
	lo, hi     int // data range is table.Rows[lo:hi]
	splitIndex int
	logger     *slog.Logger
}

// New validates cfg against table and computes the split point. It fails
// with domain.ErrConfiguration for an unordered index, a non-positive step
// size or a train fraction outside (0, 1), and with domain.ErrRange when the
// shifted start or end date is not in the index. The table is cloned, so
// later changes by the caller do not affect the splitter.
func New(table domain.Table, cfg Config, logger *slog.Logger) (*Splitter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "split")

	if err := table.ValidateIndex(); err != nil {
		return nil, err
	}

	frac := cfg.TrainFraction
	if frac == 0 {
		frac = DefaultTrainFraction
	}
	if math.IsNaN(frac) || frac <= 0 || frac >= 1 {
		return nil, fmt.Errorf("%w: train fraction must be in (0, 1), got %v", domain.ErrConfiguration, frac)
	}

	start, end := table.First(), table.Last()
	if !cfg.Start.IsZero() {
		start = util.Day(cfg.Start)
	}
	if !cfg.End.IsZero() {
		end = util.Day(cfg.End)
	}

	if cfg.StepSize != nil {
		step := *cfg.StepSize
		if step <= 0 {
			return nil, fmt.Errorf("%w: step size must be positive, got %d", domain.ErrConfiguration, step)
		}
		start = util.ShiftDays(start, step)
		end = util.ShiftDays(end, step)
	}

	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: table %q has no rows", domain.ErrRange, table.Symbol)
	}

	lo, ok := table.Index(start)
	if !ok {
		return nil, fmt.Errorf("%w: start date %s not in index of %q",
			domain.ErrRange, start.Format(domain.DateLayout), table.Symbol)
	}
	last, ok := table.Index(end)
	if !ok {
		return nil, fmt.Errorf("%w: end date %s not in index of %q",
			domain.ErrRange, end.Format(domain.DateLayout), table.Symbol)
	}
	hi := last + 1
	if hi < lo {
		// start after end selects an empty window, as a label slice would.
		hi = lo
	}

	n := hi - lo
	s := &Splitter{
		table:      table.Clone(),
		start:      start,
		end:        end,
		lo:         lo,
		hi:         hi,
		splitIndex: int(math.RoundToEven(float64(n) * frac)),
		logger:     logger,
	}

	logger.Debug("window resolved",
		"symbol", table.Symbol,
		"start", start.Format(domain.DateLayout),
		"end", end.Format(domain.DateLayout),
		"rows", n,
		"split_index", s.splitIndex,
	)
	return s, nil
}

// Start returns the resolved, shifted start date.
func (s *Splitter) Start() time.Time { return s.start }

// End returns the resolved, shifted end date.
func (s *Splitter) End() time.Time { return s.end }

// SplitIndex returns the position inside the data range where test begins.
func (s *Splitter) SplitIndex() int { return s.splitIndex }

// DataRangeLen returns the number of rows in [Start, End].
func (s *Splitter) DataRangeLen() int { return s.hi - s.lo }

// DataRange returns every row in [Start, End], undefined fields included.
func (s *Splitter) DataRange() []domain.Row {
	return cloneRows(s.table.Rows[s.lo:s.hi])
}

// Train returns the complete rows of the data range before SplitIndex.
func (s *Splitter) Train() domain.Partition {
	return s.partition(domain.Train, s.lo, s.lo+s.splitIndex)
}

// Test returns the complete rows of the data range from SplitIndex on.
func (s *Splitter) Test() domain.Partition {
	return s.partition(domain.Test, s.lo+s.splitIndex, s.hi)
}

// AfterTest returns the complete rows of the full table dated strictly
// after End. It is empty when End is the last date of the table.
func (s *Splitter) AfterTest() domain.Partition {
	from, _ := s.table.Index(s.end)
	return s.partition(domain.AfterTest, from+1, s.table.Len())
}

// Partitions returns Train, Test and AfterTest in chronological order.
func (s *Splitter) Partitions() []domain.Partition {
	return []domain.Partition{s.Train(), s.Test(), s.AfterTest()}
}

func (s *Splitter) partition(name domain.PartitionName, from, to int) domain.Partition {
	p := domain.Partition{Name: name, Features: append([]string(nil), s.table.Features...)}
	if from >= to {
		p.Rows = []domain.Row{}
		return p
	}
	p.Rows = make([]domain.Row, 0, to-from)
	for _, r := range s.table.Rows[from:to] {
		if r.Complete() {
			p.Rows = append(p.Rows, r.Clone())
		}
	}
	if dropped := (to - from) - len(p.Rows); dropped > 0 {
		s.logger.Debug("dropped incomplete rows", "partition", string(name), "dropped", dropped)
	}
	return p
}

func cloneRows(rows []domain.Row) []domain.Row {
	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
