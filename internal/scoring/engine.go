package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/aysenursarun/ChurnGuard-AI/internal/features"
	"github.com/aysenursarun/ChurnGuard-AI/internal/model"
)

// ErrModelUnavailable is returned by every scoring call when the classifier or
// its feature schema could not be loaded.
var ErrModelUnavailable = errors.New("model unavailable")

// Result is the churn score of one customer.
type Result struct {
	Probability float64 `json:"probability"`
	Churn       bool    `json:"churn"`
}

func newResult(p, threshold float64) Result {
	return Result{Probability: p, Churn: p >= threshold}
}

// Engine scores encoded customers against a loaded model. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	artifacts *model.Artifacts
	cause     error
}

// NewEngine returns an engine backed by loaded artifacts.
func NewEngine(a *model.Artifacts) *Engine {
	if a == nil {
		return Unavailable(errors.New("no artifacts"))
	}
	return &Engine{artifacts: a}
}

// Unavailable returns an engine whose every call fails with ErrModelUnavailable
// wrapping cause.
func Unavailable(cause error) *Engine {
	return &Engine{cause: cause}
}

// Available reports whether the engine has a model.
func (e *Engine) Available() bool {
	return e.artifacts != nil
}

// Err returns the load failure of an unavailable engine, or nil.
func (e *Engine) Err() error {
	if e.Available() {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrModelUnavailable, e.cause)
}

// Artifacts returns the loaded artifacts or ErrModelUnavailable.
func (e *Engine) Artifacts() (*model.Artifacts, error) {
	if err := e.Err(); err != nil {
		return nil, err
	}
	return e.artifacts, nil
}

// Schema returns the feature schema or ErrModelUnavailable.
func (e *Engine) Schema() (*features.Schema, error) {
	a, err := e.Artifacts()
	if err != nil {
		return nil, err
	}
	return a.Schema(), nil
}

// ScoreOne scores one encoded vector.
func (e *Engine) ScoreOne(v features.Vector) (Result, error) {
	a, err := e.Artifacts()
	if err != nil {
		return Result{}, err
	}
	if v.Schema() != a.Schema() {
		return Result{}, errors.New("vector was encoded with a different schema")
	}
	probs, err := a.Classifier().PredictProbability([][]float64{v.Values()})
	if err != nil {
		return Result{}, fmt.Errorf("failed to score vector: %w", err)
	}
	return newResult(probs[0][1], a.Info().Threshold), nil
}

// ScoreBatch scores every row of m. Results follow the matrix row order.
func (e *Engine) ScoreBatch(m features.Matrix) ([]Result, error) {
	a, err := e.Artifacts()
	if err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return []Result{}, nil
	}
	if m.Schema() != a.Schema() {
		return nil, errors.New("matrix was encoded with a different schema")
	}
	probs, err := a.Classifier().PredictProbability(m.Rows)
	if err != nil {
		return nil, fmt.Errorf("failed to score batch: %w", err)
	}
	threshold := a.Info().Threshold
	out := make([]Result, len(probs))
	for i, p := range probs {
		out[i] = newResult(p[1], threshold)
	}
	return out, nil
}

// ScoreRecord encodes and scores one raw record.
func (e *Engine) ScoreRecord(r dataset.Record) (Result, error) {
	s, err := e.Schema()
	if err != nil {
		return Result{}, err
	}
	v, err := features.Encode(r, s)
	if err != nil {
		return Result{}, err
	}
	return e.ScoreOne(v)
}

// ScoreCounterfactual applies m to a copy of r and scores the copy. r is left
// unchanged.
func (e *Engine) ScoreCounterfactual(r dataset.Record, m Mutation) (Result, error) {
	if err := e.Err(); err != nil {
		return Result{}, err
	}
	mutated, err := m.Apply(r)
	if err != nil {
		return Result{}, err
	}
	return e.ScoreRecord(mutated)
}

// Scenario is the outcome of one what-if mutation.
type Scenario struct {
	Name     string  `json:"name"`
	Result   Result  `json:"result"`
	Delta    float64 `json:"delta"`
	NewPrice float64 `json:"new_price,omitempty"`
}

// Simulation is a baseline score plus every preset scenario.
type Simulation struct {
	Baseline  Result     `json:"baseline"`
	Scenarios []Scenario `json:"scenarios"`
}

// Simulate scores r and every preset offer against it.
func (e *Engine) Simulate(r dataset.Record) (Simulation, error) {
	base, err := e.ScoreRecord(r)
	if err != nil {
		return Simulation{}, err
	}

	sim := Simulation{Baseline: base, Scenarios: make([]Scenario, 0, len(Presets))}
	for _, p := range Presets {
		res, err := e.ScoreCounterfactual(r, p.Mutation)
		if err != nil {
			return Simulation{}, fmt.Errorf("scenario %s: %w", p.Name, err)
		}
		sc := Scenario{Name: p.Name, Result: res, Delta: res.Probability - base.Probability}
		if p.Mutation.ChargeFactor != nil {
			charge, _, _ := r.Float(dataset.ColMonthlyCharges)
			sc.NewPrice = DiscountedCharge(charge, *p.Mutation.ChargeFactor)
		}
		sim.Scenarios = append(sim.Scenarios, sc)
	}
	return sim, nil
}

// RowScore is the score of one table row.
type RowScore struct {
	Row        int    `json:"row"`
	CustomerID string `json:"customer_id"`
	Result
}

// Scan is the result of scoring a whole table.
type Scan struct {
	Scores   []RowScore             `json:"scores"`
	Failures []*features.FieldError `json:"failures,omitempty"`
}

// ScanTable encodes and scores every row of t. Rows that fail to encode are
// reported in Failures and do not stop the scan.
func (e *Engine) ScanTable(t *dataset.Table) (Scan, error) {
	s, err := e.Schema()
	if err != nil {
		return Scan{}, err
	}

	m, failures := features.EncodeTable(t, s)
	results, err := e.ScoreBatch(m)
	if err != nil {
		return Scan{}, err
	}

	scan := Scan{Scores: make([]RowScore, len(results)), Failures: failures}
	for i, res := range results {
		row := m.Source[i]
		id, _ := t.Cell(row, dataset.ColCustomerID)
		scan.Scores[i] = RowScore{Row: row, CustomerID: id, Result: res}
	}
	return scan, nil
}

// AtRisk returns the scores strictly above threshold, highest first.
func (s Scan) AtRisk(threshold float64) []RowScore {
	out := make([]RowScore, 0)
	for _, sc := range s.Scores {
		if sc.Probability > threshold {
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}
