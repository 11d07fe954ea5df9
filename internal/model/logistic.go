package model

import (
	"fmt"
	"math"

	"forecaster/internal/domain"
)

// LogisticName is the registry key of Logistic.
const LogisticName = "logistic"

// Logistic is a binary logistic regression fitted by full-batch gradient
// descent on standardized features. Weights start at zero and no sampling
// is involved, so fitting is deterministic.
type Logistic struct {
	lr     float64
	epochs int
	w      []float64
	b      float64
	mean   []float64
	scale  []float64
}

// NewLogistic returns an unfitted model. LearningRate defaults to 0.1 and
// Epochs to 500.
func NewLogistic(p Params) (*Logistic, error) {
	lr := p.LearningRate
	if lr == 0 {
		lr = 0.1
	}
	epochs := p.Epochs
	if epochs == 0 {
		epochs = 500
	}
	if lr < 0 || math.IsNaN(lr) || epochs < 0 {
		return nil, fmt.Errorf("%w: learning rate and epochs must be positive", domain.ErrConfiguration)
	}
	return &Logistic{lr: lr, epochs: epochs}, nil
}

var _ Classifier = (*Logistic)(nil)

// Name implements Classifier.
func (m *Logistic) Name() string { return LogisticName }

// sigmoid returns 1/(1+e^-x) with simple clamping for numerical stability.
func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

// Fit implements Classifier. Labels must be 0 or 1.
func (m *Logistic) Fit(X [][]float64, y []int) error {
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", domain.ErrDataIntegrity, len(X), len(y))
	}
	m.w, m.b, m.mean, m.scale = nil, 0, nil, nil
	if len(X) == 0 {
		return nil
	}
	dim := len(X[0])
	if err := checkShape(X, dim); err != nil {
		return err
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: logistic needs binary labels, row %d is %d", domain.ErrConfiguration, i, v)
		}
	}

	m.mean, m.scale = standardize(X, dim)
	Z := make([][]float64, len(X))
	for i, x := range X {
		Z[i] = m.transform(x)
	}

	m.w = make([]float64, dim)
	n := float64(len(Z))
	gW := make([]float64, dim)
	for e := 0; e < m.epochs; e++ {
		for j := range gW {
			gW[j] = 0
		}
		var gB float64
		for i, z := range Z {
			grad := m.prob(z) - float64(y[i])
			for j := range z {
				gW[j] += grad * z[j]
			}
			gB += grad
		}
		for j := range m.w {
			m.w[j] -= m.lr * gW[j] / n
		}
		m.b -= m.lr * gB / n
	}
	return nil
}

// Predict implements Classifier. Rows with probability above one half are
// labeled 1.
func (m *Logistic) Predict(X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	if m.w == nil {
		return out, nil
	}
	if err := checkShape(X, len(m.w)); err != nil {
		return nil, err
	}
	for i, x := range X {
		if m.prob(m.transform(x)) > 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

// Weights returns the fitted coefficients on the standardized scale and the
// intercept.
func (m *Logistic) Weights() ([]float64, float64) {
	return append([]float64(nil), m.w...), m.b
}

func (m *Logistic) prob(z []float64) float64 {
	s := m.b
	for j := range z {
		s += m.w[j] * z[j]
	}
	return sigmoid(s)
}

func (m *Logistic) transform(x []float64) []float64 {
	z := make([]float64, len(x))
	for j := range x {
		z[j] = (x[j] - m.mean[j]) / m.scale[j]
	}
	return z
}

// standardize returns per-column means and population standard deviations;
// a constant column gets scale 1.
func standardize(X [][]float64, dim int) ([]float64, []float64) {
	mean := make([]float64, dim)
	scale := make([]float64, dim)
	n := float64(len(X))
	for _, x := range X {
		for j := range x {
			mean[j] += x[j]
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, x := range X {
		for j := range x {
			d := x[j] - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return mean, scale
}
