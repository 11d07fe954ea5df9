// Package features computes numbered feature columns from price history.
// The set of features is closed: ids are resolved when the pipeline is
// configured and an unknown id is a configuration error.
package features

import (
	"fmt"
	"sort"

	"forecaster/internal/domain"
)

// ID identifies a feature. Its column is named "f<ID>".
type ID int

// Name returns the column name of the feature.
func (id ID) Name() string { return fmt.Sprintf("f%d", int(id)) }

// fn computes one value per bar. A value is undefined when an input is
// missing, during a rolling warm-up, or when the arithmetic has no finite
// result (a division by a zero price).
type fn func(bars []domain.Bar) []domain.Opt[float64]

var registry = map[ID]fn{
	1: closeDiff,
	2: openDiff,
	3: rollingComposite,
}

// Available returns the registered feature ids in ascending order.
func Available() []ID {
	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Parse resolves configured feature numbers. Unknown or repeated numbers
// fail with domain.ErrConfiguration.
func Parse(nums []int) ([]ID, error) {
	seen := make(map[ID]bool, len(nums))
	ids := make([]ID, 0, len(nums))
	for _, n := range nums {
		id := ID(n)
		if _, ok := registry[id]; !ok {
			return nil, fmt.Errorf("%w: feature %d is not implemented (available %v)", domain.ErrConfiguration, n, Available())
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: feature %d listed twice", domain.ErrConfiguration, n)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// Generate returns a copy of tbl with one column appended per id. Values
// that cannot be computed, such as the warm-up rows of a rolling window,
// are undefined.
func Generate(tbl domain.Table, ids []ID) (domain.Table, error) {
	out := tbl.Clone()
	bars := make([]domain.Bar, len(out.Rows))
	for i, r := range out.Rows {
		bars[i] = r.Bar
	}

	for _, id := range ids {
		f, ok := registry[id]
		if !ok {
			return domain.Table{}, fmt.Errorf("%w: feature %d is not implemented", domain.ErrConfiguration, int(id))
		}
		if _, dup := out.FeatureIndex(id.Name()); dup {
			return domain.Table{}, fmt.Errorf("%w: column %s already present", domain.ErrConfiguration, id.Name())
		}
		vals := f(bars)
		for i := range out.Rows {
			out.Rows[i].Features = append(out.Rows[i].Features, vals[i])
		}
		out.Features = append(out.Features, id.Name())
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Feature definitions
// ---------------------------------------------------------------------------

// defined converts a kernel series into feature values. The kernels carry
// missing values as NaN; here NaN and ±Inf both become undefined, so no
// non-finite number reaches a classifier.
func defined(x []float64) []domain.Opt[float64] {
	out := make([]domain.Opt[float64], len(x))
	for i, v := range x {
		out[i] = domain.Float(v)
	}
	return out
}

func closeDiff(bars []domain.Bar) []domain.Opt[float64] {
	return defined(diff(column(bars, func(b domain.Bar) float64 { return b.Close })))
}

func openDiff(bars []domain.Bar) []domain.Opt[float64] {
	return defined(diff(column(bars, func(b domain.Bar) float64 { return b.Open })))
}

// rollingComposite is a dispersion ratio built from the low/high spread of
// rolling quantiles, scaled by the upper quartile of the adjusted close
// acceleration, and squared.
func rollingComposite(bars []domain.Bar) []domain.Opt[float64] {
	low := pctChange(column(bars, func(b domain.Bar) float64 { return b.Low }))
	high := pctChange(column(bars, func(b domain.Bar) float64 { return b.High }))
	adj := pctChange(column(bars, func(b domain.Bar) float64 { return b.AdjClose }))

	spread := sub(rollingQuantile(low, 6, 0.10), rollingQuantile(high, 6, 0.10))
	q := rollingSum(cv(spread, 6), 6)
	r := div(rollingSum(q, 4), rollingQuantile(diff(diff(adj)), 5, 0.75))
	return defined(mul(r, r))
}
