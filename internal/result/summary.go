package result

import (
	"sort"
	"time"

	"forecaster/internal/domain"
)

// YearReturn is the summed position result of one calendar year.
type YearReturn struct {
	Year   int
	Return float64
}

// AnnualReturns sums position results per calendar year, in year order.
func AnnualReturns(recs []domain.ImpactRecord) []YearReturn {
	sums := make(map[int]float64)
	for _, r := range recs {
		sums[r.Date.Year()] += r.PositionResult
	}
	out := make([]YearReturn, 0, len(sums))
	for y, v := range sums {
		out = append(out, YearReturn{Year: y, Return: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// SignalCounts tallies the buy and sell calls in an impact series.
type SignalCounts struct {
	Buy  int
	Sell int
}

// CountSignals counts predicted labels by the signal they imply.
func CountSignals(recs []domain.ImpactRecord) SignalCounts {
	var c SignalCounts
	for _, r := range recs {
		if domain.SignalFor(r.Predicted) == domain.SignalBuy {
			c.Buy++
		} else {
			c.Sell++
		}
	}
	return c
}

// EquityPoint is one row of the run-level equity curve.
type EquityPoint struct {
	Date      time.Time
	Partition domain.PartitionName
	Result    float64
	Equity    float64
}

// Combined concatenates the three partitions in date order and keeps its
// own running total. It is a reporting view; partition equity is unchanged.
func (a *Accountant) Combined() []EquityPoint {
	var out []EquityPoint
	for _, name := range domain.PartitionNames {
		for _, r := range a.impacts[name] {
			out = append(out, EquityPoint{Date: r.Date, Partition: name, Result: r.PositionResult})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	var equity float64
	for i := range out {
		equity += out[i].Result
		out[i].Equity = equity
	}
	return out
}
