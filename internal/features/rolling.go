package features

import (
	"math"
	"sort"

	"forecaster/internal/domain"
)

// Series kernels work on plain float slices. Inside them NaN marks a
// missing value and propagates: a rolling window containing NaN, or one not
// yet full, yields NaN. Feature definitions pass kernel output through
// defined before it leaves the package.

func column(bars []domain.Bar, get func(domain.Bar) float64) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = get(b)
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func diff(x []float64) []float64 {
	out := nanSeries(len(x))
	for i := 1; i < len(x); i++ {
		out[i] = x[i] - x[i-1]
	}
	return out
}

func pctChange(x []float64) []float64 {
	out := nanSeries(len(x))
	for i := 1; i < len(x); i++ {
		out[i] = x[i]/x[i-1] - 1
	}
	return out
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func div(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] / b[i]
	}
	return out
}

func mul(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

// rolling applies agg to each full window of size w ending at i.
func rolling(x []float64, w int, agg func(win []float64) float64) []float64 {
	out := nanSeries(len(x))
	if w <= 0 {
		return out
	}
outer:
	for i := w - 1; i < len(x); i++ {
		win := x[i-w+1 : i+1]
		for _, v := range win {
			if math.IsNaN(v) {
				continue outer
			}
		}
		out[i] = agg(win)
	}
	return out
}

func sum(win []float64) float64 {
	var s float64
	for _, v := range win {
		s += v
	}
	return s
}

func mean(win []float64) float64 { return sum(win) / float64(len(win)) }

// stddev is the sample standard deviation (n-1 denominator).
func stddev(win []float64) float64 {
	if len(win) < 2 {
		return math.NaN()
	}
	m := mean(win)
	var ss float64
	for _, v := range win {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(win)-1))
}

// quantile uses linear interpolation between closest ranks.
func quantile(win []float64, q float64) float64 {
	s := append([]float64(nil), win...)
	sort.Float64s(s)
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}

func rollingSum(x []float64, w int) []float64 { return rolling(x, w, sum) }

func rollingMean(x []float64, w int) []float64 { return rolling(x, w, mean) }

func rollingStd(x []float64, w int) []float64 { return rolling(x, w, stddev) }

func rollingQuantile(x []float64, w int, q float64) []float64 {
	return rolling(x, w, func(win []float64) float64 { return quantile(win, q) })
}

// cv is the rolling coefficient of variation: std / mean.
func cv(x []float64, w int) []float64 {
	return div(rollingStd(x, w), rollingMean(x, w))
}
