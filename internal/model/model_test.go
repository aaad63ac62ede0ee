package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aysenursarun/ChurnGuard-AI/internal/features"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLogistic(t *testing.T) {
	m := &Logistic{Intercept: 0, Weights: []float64{1, -1}}

	probs, err := m.PredictProbability([][]float64{{0, 0}, {3, 0}, {0, 3}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, probs[0][1], 1e-12)
	assert.InDelta(t, 0.9525741268224334, probs[1][1], 1e-12)
	assert.InDelta(t, 1.0, probs[2][0]+probs[2][1], 1e-12)

	_, err = m.PredictProbability([][]float64{{1}})
	assert.Error(t, err)
}

func TestTreeEnsemble(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{Feature: 0, Threshold: 10, Left: 1, Right: 2},
		{IsLeaf: true, Value: 0.8},
		{IsLeaf: true, Value: 0.2},
	}}

	forest := &TreeEnsemble{Kind: RandomForest, Width: 1, Trees: []Tree{tree, tree}}
	probs, err := forest.PredictProbability([][]float64{{5}, {20}})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, probs[0][1], 1e-12)
	assert.InDelta(t, 0.2, probs[1][1], 1e-12)

	boosted := &TreeEnsemble{Kind: GradientBoosting, Width: 1, BaseScore: 0, LearningRate: 1, Trees: []Tree{tree}}
	probs, err = boosted.PredictProbability([][]float64{{5}})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(0.8), probs[0][1], 1e-12)
}

func TestLoad_LogisticWithYAMLSchema(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeFile(t, dir, "model.json", `{
		"name": "churn_model",
		"version": "v2",
		"kind": "logistic",
		"updated_at": "2026-01",
		"metrics": {"accuracy": 0.80, "recall": 0.74},
		"intercept": -1.0,
		"coefficients": {"tenure": -0.05, "Contract_Month-to-month": 1.2}
	}`)
	schemaPath := writeFile(t, dir, "features.yaml", "- tenure\n- MonthlyCharges\n- Contract_Month-to-month\n")

	a, err := Load(modelPath, schemaPath)
	require.NoError(t, err)

	assert.Equal(t, "churn_model", a.Info().Name)
	assert.Equal(t, 0.74, a.Info().Metrics.Recall)
	assert.Equal(t, DecisionThreshold, a.Info().Threshold)
	assert.Equal(t, []string{"tenure", "MonthlyCharges", "Contract_Month-to-month"}, a.Schema().Names())

	logistic, ok := a.Classifier().(*Logistic)
	require.True(t, ok)
	assert.Equal(t, []float64{-0.05, 0, 1.2}, logistic.Weights)
}

func TestLoad_EmbeddedSchemaAndTrees(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeFile(t, dir, "model.json", `{
		"name": "gb",
		"kind": "gradient_boosting",
		"features": ["tenure", "MonthlyCharges"],
		"base_score": -0.5,
		"learning_rate": 0.1,
		"trees": [{"nodes": [
			{"feature": "tenure", "threshold": 12, "left": 1, "right": 2},
			{"leaf": 1.5},
			{"leaf": -1.0}
		]}]
	}`)

	a, err := Load(modelPath, "")
	require.NoError(t, err)

	probs, err := a.Classifier().PredictProbability([][]float64{{3, 50}})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(-0.5+0.15), probs[0][1], 1e-12)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "features.json", `["tenure"]`)

	tests := []struct {
		name  string
		model string
	}{
		{name: "corrupt json", model: `{not json`},
		{name: "unknown kind", model: `{"kind": "svm"}`},
		{name: "unknown coefficient", model: `{"kind": "logistic", "coefficients": {"age": 1}}`},
		{name: "no trees", model: `{"kind": "random_forest"}`},
		{name: "threshold above one", model: `{"kind": "logistic", "threshold": 1.5}`},
		{name: "zero threshold", model: `{"kind": "logistic", "threshold": 0}`},
		{name: "backward child", model: `{"kind": "random_forest", "trees": [{"nodes": [{"feature": "tenure", "left": 0, "right": 1}, {"leaf": 1}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "model.json", tt.model)
			_, err := Load(path, schemaPath)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.json"), schemaPath)
	assert.Error(t, err)
}

func TestLoad_CustomThreshold(t *testing.T) {
	dir := t.TempDir()
	modelPath := writeFile(t, dir, "model.json", `{
		"kind": "logistic",
		"threshold": 0.35,
		"features": ["tenure"],
		"coefficients": {"tenure": 0.1}
	}`)

	a, err := Load(modelPath, "")
	require.NoError(t, err)
	assert.Equal(t, 0.35, a.Info().Threshold)
}

func TestNewArtifacts_Threshold(t *testing.T) {
	clf := &Logistic{Weights: []float64{1}}
	schema, err := features.NewSchema([]string{"tenure"})
	require.NoError(t, err)

	a, err := NewArtifacts(Info{Name: "default"}, schema, clf)
	require.NoError(t, err)
	assert.Equal(t, DecisionThreshold, a.Info().Threshold)

	_, err = NewArtifacts(Info{Threshold: -0.2}, schema, clf)
	assert.Error(t, err)
}
