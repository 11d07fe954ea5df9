package model

import (
	"math"

	"forecaster/internal/domain"
)

// Classification holds binary classification metrics with 1 as the
// positive class. Confusion is indexed [actual][predicted]. Ratios with a
// zero denominator are 0; every ratio is NaN when there are no rows.
type Classification struct {
	N         int       `json:"n"`
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1"`
	Confusion [2][2]int `json:"confusion"`
}

// Evaluate compares actual and predicted labels of equal length. Labels
// other than 1 count as the negative class.
func Evaluate(actual, predicted []int) Classification {
	c := Classification{N: len(actual)}
	if len(actual) == 0 {
		nan := math.NaN()
		c.Accuracy, c.Precision, c.Recall, c.F1 = nan, nan, nan, nan
		return c
	}

	for i, a := range actual {
		c.Confusion[bit(a)][bit(predicted[i])]++
	}
	tn, fp := c.Confusion[0][0], c.Confusion[0][1]
	fn, tp := c.Confusion[1][0], c.Confusion[1][1]

	c.Accuracy = float64(tp+tn) / float64(c.N)
	c.Precision = ratio(tp, tp+fp)
	c.Recall = ratio(tp, tp+fn)
	if c.Precision+c.Recall > 0 {
		c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
	}
	return c
}

func bit(v int) int {
	if v == 1 {
		return 1
	}
	return 0
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// EvaluatePartition computes the metrics of a scored partition.
func EvaluatePartition(sp domain.ScoredPartition) Classification {
	actual := make([]int, len(sp.Records))
	predicted := make([]int, len(sp.Records))
	for i, r := range sp.Records {
		actual[i] = r.Label.Or(0)
		predicted[i] = r.Predicted
	}
	return Evaluate(actual, predicted)
}
