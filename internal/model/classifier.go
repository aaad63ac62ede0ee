package model

import (
	"fmt"
	"math"
)

// DecisionThreshold is the positive-class probability at which a customer is
// labelled as churning when the model file does not set its own.
const DecisionThreshold = 0.5

// Classifier is a trained binary classifier over fixed-width feature rows.
// Labelling is left to the caller, which owns the decision threshold.
type Classifier interface {
	// PredictProbability returns one [P(no churn), P(churn)] pair per row.
	PredictProbability(rows [][]float64) ([][]float64, error)
}

func checkWidth(rows [][]float64, width int) error {
	for i, r := range rows {
		if len(r) != width {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(r), width)
		}
	}
	return nil
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Logistic is a fitted logistic-regression model.
type Logistic struct {
	Intercept float64
	Weights   []float64
}

// PredictProbability implements Classifier.
func (m *Logistic) PredictProbability(rows [][]float64) ([][]float64, error) {
	if err := checkWidth(rows, len(m.Weights)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		z := m.Intercept
		for j, w := range m.Weights {
			z += w * r[j]
		}
		p := sigmoid(z)
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// Node is one node of a binary decision tree. Rows with
// x[Feature] <= Threshold go Left. Leaf nodes have IsLeaf set.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	IsLeaf    bool
	Value     float64
}

// Tree is a flat decision tree rooted at node 0.
type Tree struct {
	Nodes []Node
}

func (t Tree) eval(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// EnsembleKind selects how tree outputs are combined.
type EnsembleKind string

const (
	// GradientBoosting sums leaf margins and applies a sigmoid.
	GradientBoosting EnsembleKind = "gradient_boosting"
	// RandomForest averages per-tree churn probabilities.
	RandomForest EnsembleKind = "random_forest"
)

// TreeEnsemble is a boosted or bagged set of decision trees.
type TreeEnsemble struct {
	Kind         EnsembleKind
	Width        int
	BaseScore    float64
	LearningRate float64
	Trees        []Tree
}

// PredictProbability implements Classifier.
func (m *TreeEnsemble) PredictProbability(rows [][]float64) ([][]float64, error) {
	if err := checkWidth(rows, m.Width); err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		var p float64
		switch m.Kind {
		case RandomForest:
			sum := 0.0
			for _, t := range m.Trees {
				sum += t.eval(r)
			}
			if len(m.Trees) > 0 {
				p = clamp01(sum / float64(len(m.Trees)))
			}
		default:
			margin := m.BaseScore
			for _, t := range m.Trees {
				margin += m.LearningRate * t.eval(r)
			}
			p = sigmoid(margin)
		}
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}
