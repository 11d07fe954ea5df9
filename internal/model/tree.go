package model

import (
	"fmt"
	"math"
	"sort"

	"forecaster/internal/domain"
)

// DecisionTreeName is the registry key of DecisionTree.
const DecisionTreeName = "decision_tree"

// DecisionTree is a CART classifier. Splits are axis-aligned thresholds at
// midpoints between consecutive distinct feature values. A node is split
// only when the impurity decrease is positive; among equal decreases the
// first feature and lowest threshold win, so fitting is deterministic.
type DecisionTree struct {
	criterion string
	maxDepth  int
	width     int
	root      *node
}

type node struct {
	leaf      bool
	class     int
	feature   int
	threshold float64
	left      *node
	right     *node
}

// NewDecisionTree returns an unfitted tree. Criterion is "gini" (default) or
// "entropy"; MaxDepth defaults to 3.
func NewDecisionTree(p Params) (*DecisionTree, error) {
	crit := p.Criterion
	if crit == "" {
		crit = "gini"
	}
	if crit != "gini" && crit != "entropy" {
		return nil, fmt.Errorf("%w: unknown split criterion %q", domain.ErrConfiguration, p.Criterion)
	}
	depth := p.MaxDepth
	if depth == 0 {
		depth = 3
	}
	if depth < 0 {
		return nil, fmt.Errorf("%w: max depth must be positive, got %d", domain.ErrConfiguration, p.MaxDepth)
	}
	return &DecisionTree{criterion: crit, maxDepth: depth, width: -1, root: &node{leaf: true}}, nil
}

var _ Classifier = (*DecisionTree)(nil)

// Name implements Classifier.
func (t *DecisionTree) Name() string { return DecisionTreeName }

// Fit implements Classifier.
func (t *DecisionTree) Fit(X [][]float64, y []int) error {
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", domain.ErrDataIntegrity, len(X), len(y))
	}
	if len(X) == 0 {
		t.width = -1
		t.root = &node{leaf: true}
		return nil
	}
	if err := checkShape(X, len(X[0])); err != nil {
		return err
	}
	t.width = len(X[0])

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.root = t.grow(X, y, idx, 0)
	return nil
}

// Predict implements Classifier.
func (t *DecisionTree) Predict(X [][]float64) ([]int, error) {
	if t.width >= 0 {
		if err := checkShape(X, t.width); err != nil {
			return nil, err
		}
	}
	out := make([]int, len(X))
	for i, x := range X {
		n := t.root
		for !n.leaf {
			if x[n.feature] <= n.threshold {
				n = n.left
			} else {
				n = n.right
			}
		}
		out[i] = n.class
	}
	return out, nil
}

// Depth returns the depth of the fitted tree; a single leaf has depth 0.
func (t *DecisionTree) Depth() int { return depth(t.root) }

func depth(n *node) int {
	if n == nil || n.leaf {
		return 0
	}
	return 1 + max(depth(n.left), depth(n.right))
}

func (t *DecisionTree) grow(X [][]float64, y []int, idx []int, d int) *node {
	counts := classCounts(y, idx)
	leaf := &node{leaf: true, class: majority(counts)}
	if d >= t.maxDepth || len(counts) < 2 {
		return leaf
	}

	parent := t.impurity(counts, len(idx))
	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0

	for f := 0; f < len(X[idx[0]]); f++ {
		sorted := append([]int(nil), idx...)
		sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		left := make(map[int]int, len(counts))
		right := make(map[int]int, len(counts))
		for k, v := range counts {
			right[k] = v
		}
		for i := 0; i < len(sorted)-1; i++ {
			c := y[sorted[i]]
			left[c]++
			right[c]--
			lo, hi := X[sorted[i]][f], X[sorted[i+1]][f]
			if lo == hi {
				continue
			}
			nl, nr := i+1, len(sorted)-i-1
			child := (float64(nl)*t.impurity(left, nl) + float64(nr)*t.impurity(right, nr)) / float64(len(sorted))
			if gain := parent - child; gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}

	if bestFeature < 0 {
		return leaf
	}

	var li, ri []int
	for _, i := range idx {
		if X[i][bestFeature] <= bestThreshold {
			li = append(li, i)
		} else {
			ri = append(ri, i)
		}
	}
	return &node{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      t.grow(X, y, li, d+1),
		right:     t.grow(X, y, ri, d+1),
	}
}

func (t *DecisionTree) impurity(counts map[int]int, n int) float64 {
	if n == 0 {
		return 0
	}
	classes := make([]int, 0, len(counts))
	for k := range counts {
		classes = append(classes, k)
	}
	sort.Ints(classes)

	var v float64
	for _, k := range classes {
		c := counts[k]
		if c == 0 {
			continue
		}
		p := float64(c) / float64(n)
		if t.criterion == "entropy" {
			v -= p * math.Log2(p)
		} else {
			v += p * p
		}
	}
	if t.criterion == "entropy" {
		return v
	}
	return 1 - v
}

func classCounts(y []int, idx []int) map[int]int {
	counts := make(map[int]int)
	for _, i := range idx {
		counts[y[i]]++
	}
	return counts
}

// majority returns the most frequent class; ties go to the smaller class.
func majority(counts map[int]int) int {
	best, bestN := 0, -1
	for c, n := range counts {
		if n > bestN || (n == bestN && c < best) {
			best, bestN = c, n
		}
	}
	if bestN < 0 {
		return 0
	}
	return best
}
