package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aysenursarun/ChurnGuard-AI/internal/features"
)

// Metrics are the offline evaluation numbers shipped with a model.
type Metrics struct {
	Accuracy float64 `json:"accuracy"`
	Recall   float64 `json:"recall"`
}

// Info describes a loaded model.
type Info struct {
	Name      string  `json:"name"`
	Version   string  `json:"version"`
	Kind      string  `json:"kind"`
	UpdatedAt string  `json:"updated_at,omitempty"`
	Metrics   Metrics `json:"metrics"`
	// Threshold is the churn probability at or above which a customer is
	// labelled as churning.
	Threshold float64 `json:"threshold"`
}

// Artifacts bundles a classifier with the feature schema it was trained on.
// It is created once at start-up and only read afterwards.
type Artifacts struct {
	info       Info
	schema     *features.Schema
	classifier Classifier
}

// NewArtifacts wraps an already-built classifier and schema. A zero threshold
// means DecisionThreshold.
func NewArtifacts(info Info, schema *features.Schema, classifier Classifier) (*Artifacts, error) {
	if schema == nil {
		return nil, features.ErrEmptySchema
	}
	if classifier == nil {
		return nil, errors.New("classifier is nil")
	}
	if info.Threshold == 0 {
		info.Threshold = DecisionThreshold
	}
	if info.Threshold <= 0 || info.Threshold >= 1 {
		return nil, fmt.Errorf("decision threshold %v must be between 0 and 1", info.Threshold)
	}
	return &Artifacts{info: info, schema: schema, classifier: classifier}, nil
}

// Info returns model metadata.
func (a *Artifacts) Info() Info { return a.info }

// Schema returns the feature schema.
func (a *Artifacts) Schema() *features.Schema { return a.schema }

// Classifier returns the classifier.
func (a *Artifacts) Classifier() Classifier { return a.classifier }

type nodeFile struct {
	Feature   string   `json:"feature,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	Left      int      `json:"left,omitempty"`
	Right     int      `json:"right,omitempty"`
	Leaf      *float64 `json:"leaf,omitempty"`
}

type treeFile struct {
	Nodes []nodeFile `json:"nodes"`
}

type modelFile struct {
	Name         string             `json:"name"`
	Version      string             `json:"version"`
	Kind         string             `json:"kind"`
	Threshold    *float64           `json:"threshold,omitempty"`
	UpdatedAt    string             `json:"updated_at"`
	Metrics      Metrics            `json:"metrics"`
	Features     []string           `json:"features,omitempty"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients,omitempty"`
	BaseScore    float64            `json:"base_score"`
	LearningRate float64            `json:"learning_rate"`
	Trees        []treeFile         `json:"trees,omitempty"`
}

// Load reads a model file and a feature schema file. When featuresPath is empty
// the schema embedded in the model file is used.
func Load(modelPath, featuresPath string) (*Artifacts, error) {
	raw, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var mf modelFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", modelPath, err)
	}

	var schema *features.Schema
	if featuresPath != "" {
		schema, err = LoadSchema(featuresPath)
	} else {
		schema, err = features.NewSchema(mf.Features)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feature schema: %w", err)
	}

	classifier, err := buildClassifier(mf, schema)
	if err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", modelPath, err)
	}

	info := Info{
		Name:      mf.Name,
		Version:   mf.Version,
		Kind:      mf.Kind,
		UpdatedAt: mf.UpdatedAt,
		Metrics:   mf.Metrics,
		Threshold: DecisionThreshold,
	}
	if mf.Threshold != nil {
		info.Threshold = *mf.Threshold
		if info.Threshold <= 0 || info.Threshold >= 1 {
			return nil, fmt.Errorf("invalid model %s: threshold %v must be between 0 and 1", modelPath, info.Threshold)
		}
	}
	return NewArtifacts(info, schema, classifier)
}

// LoadSchema reads an ordered list of feature names from a JSON or YAML file.
func LoadSchema(path string) (*features.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var names []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &names)
	default:
		err = json.Unmarshal(raw, &names)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema %s: %w", path, err)
	}

	return features.NewSchema(names)
}

func buildClassifier(mf modelFile, schema *features.Schema) (Classifier, error) {
	switch mf.Kind {
	case "logistic", "logistic_regression":
		weights := make([]float64, schema.Len())
		for name, w := range mf.Coefficients {
			i, ok := schema.Index(name)
			if !ok {
				return nil, fmt.Errorf("coefficient for unknown feature %q", name)
			}
			weights[i] = w
		}
		return &Logistic{Intercept: mf.Intercept, Weights: weights}, nil

	case string(GradientBoosting), string(RandomForest):
		if len(mf.Trees) == 0 {
			return nil, errors.New("tree ensemble has no trees")
		}
		ensemble := &TreeEnsemble{
			Kind:         EnsembleKind(mf.Kind),
			Width:        schema.Len(),
			BaseScore:    mf.BaseScore,
			LearningRate: mf.LearningRate,
			Trees:        make([]Tree, len(mf.Trees)),
		}
		if ensemble.Kind == GradientBoosting && ensemble.LearningRate == 0 {
			ensemble.LearningRate = 1
		}
		for t, tf := range mf.Trees {
			tree, err := buildTree(tf, schema)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", t, err)
			}
			ensemble.Trees[t] = tree
		}
		return ensemble, nil

	default:
		return nil, fmt.Errorf("unsupported model kind %q", mf.Kind)
	}
}

// buildTree resolves feature names and checks that every split points forward,
// so evaluation always reaches a leaf.
func buildTree(tf treeFile, schema *features.Schema) (Tree, error) {
	if len(tf.Nodes) == 0 {
		return Tree{}, errors.New("empty tree")
	}
	nodes := make([]Node, len(tf.Nodes))
	for i, nf := range tf.Nodes {
		if nf.Leaf != nil {
			nodes[i] = Node{IsLeaf: true, Value: *nf.Leaf}
			continue
		}
		idx, ok := schema.Index(nf.Feature)
		if !ok {
			return Tree{}, fmt.Errorf("node %d splits on unknown feature %q", i, nf.Feature)
		}
		for _, child := range []int{nf.Left, nf.Right} {
			if child <= i || child >= len(tf.Nodes) {
				return Tree{}, fmt.Errorf("node %d has invalid child %d", i, child)
			}
		}
		nodes[i] = Node{Feature: idx, Threshold: nf.Threshold, Left: nf.Left, Right: nf.Right}
	}
	return Tree{Nodes: nodes}, nil
}
