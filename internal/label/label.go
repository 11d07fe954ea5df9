// Package label attaches the forward price change and a direction label to
// each bar of a price series.
package label

import (
	"fmt"
	"strings"

	"forecaster/internal/domain"
)

// Kind names a label scheme.
type Kind string

const (
	// Binary is 1 when the forward change is positive and 0 otherwise.
	Binary Kind = "binary"
)

var kinds = map[Kind]func(change float64) int{
	Binary: func(change float64) int {
		if change > 0 {
			return 1
		}
		return 0
	},
}

// ParseKind resolves a configured label name. Unknown names fail with
// domain.ErrConfiguration.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("%w: unknown label kind %q", domain.ErrConfiguration, s)
	}
	return k, nil
}

// Generate builds a table from bars. Row t carries the Close-Open change of
// row t+horizon and the label derived from it. The last horizon rows have
// neither. Bars must already be in date order; the index is checked by the
// splitter.
func Generate(symbol string, bars []domain.Bar, horizon int, kind Kind) (domain.Table, error) {
	if horizon <= 0 {
		return domain.Table{}, fmt.Errorf("%w: horizon must be a positive integer, got %d", domain.ErrConfiguration, horizon)
	}
	fn, ok := kinds[kind]
	if !ok {
		return domain.Table{}, fmt.Errorf("%w: unknown label kind %q", domain.ErrConfiguration, kind)
	}

	tbl := domain.Table{Symbol: symbol, Rows: make([]domain.Row, len(bars))}
	for i, b := range bars {
		row := domain.Row{Bar: b}
		if j := i + horizon; j < len(bars) {
			change := Change(bars[j])
			if v, ok := change.Get(); ok {
				row.ForwardChange = change
				row.Label = domain.Some(fn(v))
			}
		}
		tbl.Rows[i] = row
	}
	return tbl, nil
}

// Change returns the intraday Close-Open move of a bar, undefined when
// either price is not finite.
func Change(b domain.Bar) domain.Opt[float64] {
	return domain.Float(b.Close - b.Open)
}
